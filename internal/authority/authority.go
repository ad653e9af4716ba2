// Package authority derives the pool's signing identity from seed data.
//
// A derived authority has no private key. It is the first address in the
// bump search order whose hash of (seeds, bump, program) falls off the
// ed25519 curve, so only the owning program can prove it by presenting the
// same seeds to the host.
package authority

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/poolerr"
)

// PoolDomainTag prefixes every pool seed tuple.
const PoolDomainTag = "lrt_pool"

// Seeds is an ordered seed tuple without the bump.
type Seeds [][]byte

// PoolSeeds builds the pool seed tuple from the ordered asset identifiers.
// Zero keys are skipped so the two-asset shape has a shorter tuple.
func PoolSeeds(assets ...solana.PublicKey) Seeds {
	seeds := Seeds{[]byte(PoolDomainTag)}
	for _, asset := range assets {
		if asset.IsZero() {
			continue
		}
		seeds = append(seeds, asset.Bytes())
	}
	return seeds
}

// WithBump returns the signer seed set: the tuple followed by the bump byte.
func (s Seeds) WithBump(bump uint8) [][]byte {
	out := make([][]byte, 0, len(s)+1)
	out = append(out, s...)
	return append(out, []byte{bump})
}

// Derive finds the authority and its canonical bump. The search runs from
// 255 down to 0 and stops at the first off-curve address.
func Derive(programID solana.PublicKey, seeds Seeds) (solana.PublicKey, uint8, error) {
	for bump := 255; bump >= 0; bump-- {
		addr, err := solana.CreateProgramAddress(seeds.WithBump(uint8(bump)), programID)
		if err == nil {
			return addr, uint8(bump), nil
		}
	}
	return solana.PublicKey{}, 0, poolerr.ErrDerivationExhausted
}

// Address re-derives the authority for a known bump.
func Address(programID solana.PublicKey, seedsWithBump [][]byte) (solana.PublicKey, error) {
	addr, err := solana.CreateProgramAddress(seedsWithBump, programID)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("create program address: %w", err)
	}
	return addr, nil
}

// Verify reports whether (authority, bump) is the canonical derivation of seeds.
func Verify(programID solana.PublicKey, seeds Seeds, authority solana.PublicKey, bump uint8) bool {
	addr, canonical, err := Derive(programID, seeds)
	if err != nil {
		return false
	}
	return addr.Equals(authority) && canonical == bump
}
