package pool

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/custody"
	"lrtpool/internal/host"
	"lrtpool/internal/host/memstore"
	"lrtpool/internal/poolerr"
)

func mustVault(owner, mint solana.PublicKey) solana.PublicKey {
	addr, err := custody.VaultAddress(owner, mint)
	if err != nil {
		panic(err)
	}
	return addr
}

func TestRecordLayout(t *testing.T) {
	p := &Pool{
		Bump:              254,
		InputMint:         solana.NewWallet().PublicKey(),
		OutputMint:        solana.NewWallet().PublicKey(),
		DelegateAuthority: solana.NewWallet().PublicKey(),
	}
	data, err := p.Marshal()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if len(data) != AccountSize {
		t.Fatalf("size = %d, want %d", len(data), AccountSize)
	}
	if data[8] != 254 {
		t.Fatalf("bump byte = %d", data[8])
	}
	if !solana.PublicKeyFromBytes(data[9:41]).Equals(p.InputMint) {
		t.Fatalf("input mint not at offset 9")
	}
	if !solana.PublicKeyFromBytes(data[105:137]).Equals(p.DelegateAuthority) {
		t.Fatalf("delegate authority not at offset 105")
	}

	got, err := Unmarshal(data)
	if err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if !reflect.DeepEqual(got, p) {
		t.Fatalf("unmarshal = %+v, want %+v", got, p)
	}

	data[0] ^= 0xff
	if _, err := Unmarshal(data); err == nil {
		t.Fatalf("expected discriminator error")
	}
}

func TestDelegableMint(t *testing.T) {
	p := &Pool{
		InputMint:  solana.NewWallet().PublicKey(),
		OutputMint: solana.NewWallet().PublicKey(),
	}
	if !p.DelegableMint().Equals(p.InputMint) {
		t.Fatalf("two-asset pool should delegate its input mint")
	}
	p.IntermediateMint = solana.NewWallet().PublicKey()
	if !p.DelegableMint().Equals(p.IntermediateMint) {
		t.Fatalf("three-asset pool should delegate its intermediate mint")
	}
	if len(p.Seeds()) != 4 {
		t.Fatalf("three-asset seed tuple has %d entries", len(p.Seeds()))
	}
}

type fixture struct {
	host    *host.Host
	manager *Manager
	auth    solana.PublicKey
	input   solana.PublicKey
	output  solana.PublicKey
	addr    solana.PublicKey
}

func newFixture(t *testing.T, outputAuthority func(addr solana.PublicKey) solana.PublicKey, outputDecimals uint8) fixture {
	t.Helper()
	program := solana.NewWallet().PublicKey()
	f := fixture{
		host:    host.New(memstore.New(), nil),
		manager: NewManager(program, nil),
		auth:    solana.NewWallet().PublicKey(),
		input:   solana.NewWallet().PublicKey(),
		output:  solana.NewWallet().PublicKey(),
	}
	addr, _, err := f.manager.Address(f.input, f.output, solana.PublicKey{})
	if err != nil {
		t.Fatalf("address: %v", err)
	}
	f.addr = addr
	if err := f.run([]solana.PublicKey{f.auth}, func(env *host.Env) error {
		if err := custody.CreateMint(env, f.input, 9, f.auth, f.auth); err != nil {
			return err
		}
		owner := outputAuthority(addr)
		return custody.CreateMint(env, f.output, outputDecimals, owner, owner)
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}
	return f
}

func poolControlled(addr solana.PublicKey) solana.PublicKey { return addr }

func (f fixture) run(signers []solana.PublicKey, fn func(env *host.Env) error) error {
	_, err := f.host.Execute(context.Background(), host.Call{
		Program: f.manager.ProgramID(),
		Signers: signers,
	}, fn)
	return err
}

func (f fixture) initialize(signers []solana.PublicKey) error {
	return f.run(signers, func(env *host.Env) error {
		_, _, err := f.manager.Initialize(env, InitParams{
			InputMint:         f.input,
			OutputMint:        f.output,
			DelegateAuthority: f.auth,
		})
		return err
	})
}

func TestInitializeCreatesPool(t *testing.T) {
	f := newFixture(t, poolControlled, 9)
	if err := f.initialize([]solana.PublicKey{f.auth}); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	err := f.run(nil, func(env *host.Env) error {
		p, err := f.manager.Load(env, f.addr)
		if err != nil {
			return err
		}
		if !p.DelegateAuthority.Equals(f.auth) || p.ThreeAsset() {
			t.Fatalf("unexpected pool %+v", p)
		}
		exists, err := env.Exists(mustVault(f.addr, f.input))
		if err != nil {
			return err
		}
		if !exists {
			t.Fatalf("input vault was not created")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if err := f.initialize([]solana.PublicKey{f.auth}); !errors.Is(err, poolerr.ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestInitializeRejections(t *testing.T) {
	tests := []struct {
		name     string
		outAuth  func(solana.PublicKey) solana.PublicKey
		decimals uint8
		setup    func(f fixture) error
		signers  func(f fixture) []solana.PublicKey
		want     error
	}{
		{
			name:     "unsigned delegate authority",
			outAuth:  poolControlled,
			decimals: 9,
			signers:  func(fixture) []solana.PublicKey { return nil },
			want:     poolerr.ErrMissingSigner,
		},
		{
			name:     "foreign mint authority",
			outAuth:  func(solana.PublicKey) solana.PublicKey { return solana.NewWallet().PublicKey() },
			decimals: 9,
			want:     poolerr.ErrMintMismatch,
		},
		{
			name:     "decimals mismatch",
			outAuth:  poolControlled,
			decimals: 6,
			want:     poolerr.ErrMintMismatch,
		},
		{
			name:     "issued output supply",
			outAuth:  poolControlled,
			decimals: 9,
			setup: func(f fixture) error {
				// Only the pool authority can mint, so seed supply directly.
				return f.run(nil, func(env *host.Env) error {
					acct, err := custody.LoadMint(env, f.output)
					if err != nil {
						return err
					}
					acct.Mint.Supply = 1
					return env.Put(acct)
				})
			},
			want: poolerr.ErrNonZeroOutputSupply,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.outAuth, tt.decimals)
			if tt.setup != nil {
				if err := tt.setup(f); err != nil {
					t.Fatalf("setup: %v", err)
				}
			}
			signers := []solana.PublicKey{f.auth}
			if tt.signers != nil {
				signers = tt.signers(f)
			}
			if err := f.initialize(signers); !errors.Is(err, tt.want) {
				t.Fatalf("expected %v, got %v", tt.want, err)
			}
			err := f.run(nil, func(env *host.Env) error {
				_, err := f.manager.Load(env, f.addr)
				return err
			})
			if !errors.Is(err, poolerr.ErrPoolNotFound) {
				t.Fatalf("pool exists after failed initialize: %v", err)
			}
		})
	}
}

func TestTransferAuthority(t *testing.T) {
	f := newFixture(t, poolControlled, 9)
	if err := f.initialize([]solana.PublicKey{f.auth}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	next := solana.NewWallet().PublicKey()

	err := f.run([]solana.PublicKey{next}, func(env *host.Env) error {
		_, err := f.manager.TransferAuthority(env, f.addr, next, next)
		return err
	})
	if !errors.Is(err, poolerr.ErrUnauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}

	err = f.run([]solana.PublicKey{f.auth}, func(env *host.Env) error {
		_, err := f.manager.TransferAuthority(env, f.addr, f.auth, next)
		return err
	})
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}

	err = f.run(nil, func(env *host.Env) error {
		p, err := f.manager.Load(env, f.addr)
		if err != nil {
			return err
		}
		if !p.DelegateAuthority.Equals(next) {
			t.Fatalf("delegate authority = %s, want %s", p.DelegateAuthority, next)
		}
		return Authorize(env, p, f.auth)
	})
	if !errors.Is(err, poolerr.ErrUnauthorized) {
		t.Fatalf("old authority still authorized: %v", err)
	}
}
