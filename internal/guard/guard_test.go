package guard

import (
	"context"
	"errors"
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

func TestRequire(t *testing.T) {
	h := host.New(memstore.New(), nil)
	owner := solana.NewWallet().PublicKey()
	mint := solana.NewWallet().PublicKey()
	vault := mustVault(owner, mint)

	run := func(fn func(env *host.Env) error) error {
		_, err := h.Execute(context.Background(), host.Call{
			Program: solana.TokenProgramID,
			Signers: []solana.PublicKey{owner},
		}, fn)
		return err
	}

	if err := run(func(env *host.Env) error {
		if err := custody.CreateMint(env, mint, 6, owner, owner); err != nil {
			return err
		}
		if _, err := custody.EnsureVault(env, owner, mint); err != nil {
			return err
		}
		return custody.MintTo(env, mint, vault, owner, 300)
	}); err != nil {
		t.Fatalf("setup: %v", err)
	}

	t.Run("sufficient", func(t *testing.T) {
		var balance uint64
		err := run(func(env *host.Env) error {
			var err error
			balance, err = Require(env, vault, 300, poolerr.RolePoolInput)
			return err
		})
		if err != nil {
			t.Fatalf("require: %v", err)
		}
		if balance != 300 {
			t.Fatalf("balance = %d, want 300", balance)
		}
	})

	t.Run("insufficient", func(t *testing.T) {
		err := run(func(env *host.Env) error {
			_, err := Require(env, vault, 500, poolerr.RolePoolInput)
			return err
		})
		if !errors.Is(err, poolerr.ErrInsufficientFunds) {
			t.Fatalf("expected ErrInsufficientFunds, got %v", err)
		}
		if role, ok := poolerr.RoleOf(err); !ok || role != poolerr.RolePoolInput {
			t.Fatalf("role = %q, want %q", role, poolerr.RolePoolInput)
		}
	})

	t.Run("sees writes from the same transaction", func(t *testing.T) {
		err := run(func(env *host.Env) error {
			if err := custody.Burn(env, mint, vault, owner, 250); err != nil {
				return err
			}
			_, err := Require(env, vault, 100, poolerr.RolePoolAVS)
			return err
		})
		if role, _ := poolerr.RoleOf(err); role != poolerr.RolePoolAVS {
			t.Fatalf("expected pool-avs shortfall after in-transaction burn, got %v", err)
		}
	})

	t.Run("missing vault holds nothing", func(t *testing.T) {
		other := mustVault(solana.NewWallet().PublicKey(), mint)
		err := run(func(env *host.Env) error {
			_, err := Require(env, other, 1, poolerr.RolePoolDelegated)
			return err
		})
		if role, _ := poolerr.RoleOf(err); role != poolerr.RolePoolDelegated {
			t.Fatalf("expected pool-delegated shortfall, got %v", err)
		}
	})
}
