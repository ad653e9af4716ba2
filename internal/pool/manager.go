package pool

import (
	"errors"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"lrtpool/internal/authority"
	"lrtpool/internal/custody"
	"lrtpool/internal/host"
	"lrtpool/internal/poolerr"
)

// InitParams names the assets and delegate authority of a new pool. Leave
// IntermediateMint zero for the two-asset shape.
type InitParams struct {
	InputMint         solana.PublicKey
	OutputMint        solana.PublicKey
	IntermediateMint  solana.PublicKey
	DelegateAuthority solana.PublicKey
}

// Manager creates, loads and mutates pool records owned by programID.
type Manager struct {
	programID solana.PublicKey
	logger    *zap.Logger
}

func NewManager(programID solana.PublicKey, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{programID: programID, logger: logger}
}

func (m *Manager) ProgramID() solana.PublicKey {
	return m.programID
}

// Address derives the pool address for an asset tuple.
func (m *Manager) Address(inputMint, outputMint, intermediateMint solana.PublicKey) (solana.PublicKey, uint8, error) {
	return authority.Derive(m.programID, authority.PoolSeeds(inputMint, outputMint, intermediateMint))
}

// Initialize creates the pool record and its vaults. The output mint must
// be fresh: zero supply, pool-controlled mint and freeze authority and the
// same decimals as the input mint.
func (m *Manager) Initialize(env *host.Env, params InitParams) (*Pool, solana.PublicKey, error) {
	addr, bump, err := m.Address(params.InputMint, params.OutputMint, params.IntermediateMint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	exists, err := env.Exists(addr)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	if exists {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: pool %s", poolerr.ErrAlreadyExists, addr)
	}
	if !env.IsSigner(params.DelegateAuthority) {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: delegate authority %s", poolerr.ErrMissingSigner, params.DelegateAuthority)
	}

	input, err := custody.LoadMint(env, params.InputMint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	output, err := custody.LoadMint(env, params.OutputMint)
	if err != nil {
		return nil, solana.PublicKey{}, err
	}
	if output.Mint.Supply != 0 {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: %s has supply %d", poolerr.ErrNonZeroOutputSupply, params.OutputMint, output.Mint.Supply)
	}
	if !output.Mint.MintAuthority.Equals(addr) || !output.Mint.FreezeAuthority.Equals(addr) {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: %s must have mint and freeze authority %s", poolerr.ErrMintMismatch, params.OutputMint, addr)
	}
	if output.Mint.Decimals != input.Mint.Decimals {
		return nil, solana.PublicKey{}, fmt.Errorf("%w: output decimals %d, input decimals %d", poolerr.ErrMintMismatch, output.Mint.Decimals, input.Mint.Decimals)
	}

	if _, err := custody.EnsureVault(env, addr, params.InputMint); err != nil {
		return nil, solana.PublicKey{}, err
	}
	if !params.IntermediateMint.IsZero() {
		if _, err := custody.EnsureVault(env, addr, params.IntermediateMint); err != nil {
			return nil, solana.PublicKey{}, err
		}
	}

	p := &Pool{
		Bump:              bump,
		InputMint:         params.InputMint,
		OutputMint:        params.OutputMint,
		IntermediateMint:  params.IntermediateMint,
		DelegateAuthority: params.DelegateAuthority,
	}
	if err := m.put(env, addr, p); err != nil {
		return nil, solana.PublicKey{}, err
	}
	m.logger.Debug("pool initialized",
		zap.Stringer("pool", addr),
		zap.Uint8("bump", bump),
		zap.Bool("three_asset", p.ThreeAsset()),
	)
	return p, addr, nil
}

// Load reads the pool at addr and checks that it re-derives from its own
// seeds.
func (m *Manager) Load(env *host.Env, addr solana.PublicKey) (*Pool, error) {
	acct, err := env.Get(addr)
	if err != nil {
		if errors.Is(err, poolerr.ErrAccountNotFound) {
			return nil, fmt.Errorf("%w: %s", poolerr.ErrPoolNotFound, addr)
		}
		return nil, err
	}
	if acct.Kind != host.KindData || !acct.Owner.Equals(m.programID) {
		return nil, fmt.Errorf("%w: %s is not owned by %s", poolerr.ErrPoolNotFound, addr, m.programID)
	}
	p, err := Unmarshal(acct.Data)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", poolerr.ErrPoolNotFound, err)
	}
	if !m.Derives(addr, p) {
		return nil, fmt.Errorf("%w: %s does not derive from its seeds", poolerr.ErrPoolNotFound, addr)
	}
	return p, nil
}

// Derives reports whether addr and p.Bump are the canonical derivation of
// p's seeds under this program.
func (m *Manager) Derives(addr solana.PublicKey, p *Pool) bool {
	return authority.Verify(m.programID, p.Seeds(), addr, p.Bump)
}

// TransferAuthority hands delegate rights to next. caller must be the
// current delegate authority and sign.
func (m *Manager) TransferAuthority(env *host.Env, addr, caller, next solana.PublicKey) (*Pool, error) {
	p, err := m.Load(env, addr)
	if err != nil {
		return nil, err
	}
	if err := Authorize(env, p, caller); err != nil {
		return nil, err
	}
	prev := p.DelegateAuthority
	p.DelegateAuthority = next
	if err := m.put(env, addr, p); err != nil {
		return nil, err
	}
	m.logger.Debug("delegate authority transferred",
		zap.Stringer("pool", addr),
		zap.Stringer("from", prev),
		zap.Stringer("to", next),
	)
	return p, nil
}

// Authorize fails with ErrUnauthorized unless caller is the pool's delegate
// authority and signed the operation.
func Authorize(env *host.Env, p *Pool, caller solana.PublicKey) error {
	if !caller.Equals(p.DelegateAuthority) {
		return fmt.Errorf("%w: %s is not the delegate authority", poolerr.ErrUnauthorized, caller)
	}
	if !env.IsSigner(caller) {
		return fmt.Errorf("%w: %s did not sign", poolerr.ErrUnauthorized, caller)
	}
	return nil
}

func (m *Manager) put(env *host.Env, addr solana.PublicKey, p *Pool) error {
	data, err := p.Marshal()
	if err != nil {
		return err
	}
	return env.Put(&host.Account{
		Address: addr,
		Owner:   m.programID,
		Kind:    host.KindData,
		Data:    data,
	})
}
