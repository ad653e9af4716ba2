// Package pool owns the persistent pool record and its lifecycle.
package pool

import (
	"bytes"
	"crypto/sha256"
	"fmt"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/authority"
	"lrtpool/internal/model"
)

// AccountSize is discriminator(8) + bump(1) + four 32-byte identities.
const AccountSize = 8 + 1 + 4*32

// AccountDiscriminator prefixes every serialized pool record.
var AccountDiscriminator = accountDiscriminator("LRTPool")

func accountDiscriminator(name string) [8]byte {
	sum := sha256.Sum256([]byte("account:" + name))
	var out [8]byte
	copy(out[:], sum[:8])
	return out
}

// Pool is the persistent pool record. A zero IntermediateMint marks the
// two-asset shape.
type Pool struct {
	Bump              uint8            `json:"bump"`
	InputMint         solana.PublicKey `json:"input_mint"`
	OutputMint        solana.PublicKey `json:"output_mint"`
	IntermediateMint  solana.PublicKey `json:"intermediate_mint"`
	DelegateAuthority solana.PublicKey `json:"delegate_authority"`
}

// ThreeAsset reports whether deposits pass through the restaking hop.
func (p *Pool) ThreeAsset() bool {
	return !p.IntermediateMint.IsZero()
}

// DelegableMint is the asset held by the pool that can be delegated to an
// AVS: the intermediate asset when present, the input asset otherwise.
func (p *Pool) DelegableMint() solana.PublicKey {
	if p.ThreeAsset() {
		return p.IntermediateMint
	}
	return p.InputMint
}

// Seeds is the pool seed tuple without the bump.
func (p *Pool) Seeds() authority.Seeds {
	return authority.PoolSeeds(p.InputMint, p.OutputMint, p.IntermediateMint)
}

// SignerSeeds is the full seed set the pool signs with.
func (p *Pool) SignerSeeds() [][]byte {
	return p.Seeds().WithBump(p.Bump)
}

// Marshal encodes the record in its fixed on-account layout.
func (p *Pool) Marshal() ([]byte, error) {
	buf := bytes.NewBuffer(make([]byte, 0, AccountSize))
	buf.Write(AccountDiscriminator[:])
	if err := bin.NewBorshEncoder(buf).Encode(*p); err != nil {
		return nil, fmt.Errorf("encode pool: %w", err)
	}
	return buf.Bytes(), nil
}

// Unmarshal decodes a record written by Marshal.
func Unmarshal(data []byte) (*Pool, error) {
	if len(data) != AccountSize {
		return nil, fmt.Errorf("pool account size %d, want %d", len(data), AccountSize)
	}
	if !bytes.Equal(data[:8], AccountDiscriminator[:]) {
		return nil, fmt.Errorf("pool account discriminator %x, want %x", data[:8], AccountDiscriminator)
	}
	var p Pool
	if err := bin.NewBorshDecoder(data[8:]).Decode(&p); err != nil {
		return nil, fmt.Errorf("decode pool: %w", err)
	}
	return &p, nil
}

// View renders the record for display. Balances are filled in by the
// caller.
func (p *Pool) View(addr, programID solana.PublicKey) model.PoolView {
	view := model.PoolView{
		Address:           addr.String(),
		Program:           programID.String(),
		Bump:              p.Bump,
		Shape:             "two-asset",
		InputMint:         p.InputMint.String(),
		OutputMint:        p.OutputMint.String(),
		DelegateAuthority: p.DelegateAuthority.String(),
	}
	if p.ThreeAsset() {
		view.Shape = "three-asset"
		view.IntermediateMint = p.IntermediateMint.String()
	}
	return view
}
