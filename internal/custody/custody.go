// Package custody is the asset custody service: mints, balances and the
// checked transfer, mint and burn primitives. Every failure it reports wraps
// poolerr.ErrAssetTransferFailed.
package custody

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common/math"
	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/host"
	"lrtpool/internal/poolerr"
)

func failf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", poolerr.ErrAssetTransferFailed, fmt.Sprintf(format, args...))
}

// CreateMint registers a new asset with zero supply.
func CreateMint(env *host.Env, mint solana.PublicKey, decimals uint8, mintAuthority, freezeAuthority solana.PublicKey) error {
	exists, err := env.Exists(mint)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: mint %s", poolerr.ErrAlreadyExists, mint)
	}
	return env.Put(&host.Account{
		Address: mint,
		Owner:   solana.TokenProgramID,
		Kind:    host.KindMint,
		Mint: &host.Mint{
			Decimals:        decimals,
			MintAuthority:   mintAuthority,
			FreezeAuthority: freezeAuthority,
		},
	})
}

// LoadMint reloads a mint from the running transaction.
func LoadMint(env *host.Env, mint solana.PublicKey) (*host.Account, error) {
	acct, err := env.Get(mint)
	if err != nil {
		return nil, fmt.Errorf("load mint %s: %w", mint, err)
	}
	if acct.Kind != host.KindMint || acct.Mint == nil {
		return nil, fmt.Errorf("%w: %s is not a mint", poolerr.ErrMintMismatch, mint)
	}
	return acct, nil
}

// LoadTokenAccount reloads a balance account from the running transaction.
func LoadTokenAccount(env *host.Env, address solana.PublicKey) (*host.Account, error) {
	acct, err := env.Get(address)
	if err != nil {
		return nil, fmt.Errorf("load token account %s: %w", address, err)
	}
	if acct.Kind != host.KindToken || acct.Token == nil {
		return nil, failf("%s is not a token account", address)
	}
	return acct, nil
}

// Balance returns the live amount held in a token account. A missing
// account holds nothing.
func Balance(env *host.Env, address solana.PublicKey) (uint64, error) {
	acct, err := LoadTokenAccount(env, address)
	if err != nil {
		if errors.Is(err, poolerr.ErrAccountNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return acct.Token.Amount, nil
}

// Transfer moves amount of mint between token accounts. authority must sign
// and own from; decimals must match the mint.
func Transfer(env *host.Env, from, to, mint, authority solana.PublicKey, amount uint64, decimals uint8) error {
	mintAcct, err := LoadMint(env, mint)
	if err != nil {
		return failf("%v", err)
	}
	if mintAcct.Mint.Decimals != decimals {
		return failf("decimals mismatch: mint has %d, got %d", mintAcct.Mint.Decimals, decimals)
	}
	src, err := loadHolding(env, from, mint)
	if err != nil {
		return err
	}
	dst, err := loadHolding(env, to, mint)
	if err != nil {
		return err
	}
	if err := requireOwner(env, src, authority); err != nil {
		return err
	}
	if from.Equals(to) {
		if src.Token.Amount < amount {
			return failf("insufficient balance in %s: have %d, need %d", from, src.Token.Amount, amount)
		}
		return nil
	}

	remaining, underflow := math.SafeSub(src.Token.Amount, amount)
	if underflow {
		return failf("insufficient balance in %s: have %d, need %d", from, src.Token.Amount, amount)
	}
	credited, overflow := math.SafeAdd(dst.Token.Amount, amount)
	if overflow {
		return failf("balance overflow in %s", to)
	}
	src.Token.Amount = remaining
	dst.Token.Amount = credited

	if err := env.Put(src); err != nil {
		return err
	}
	return env.Put(dst)
}

// MintTo issues amount of mint into to. authority must be the mint authority
// and sign.
func MintTo(env *host.Env, mint, to, authority solana.PublicKey, amount uint64) error {
	mintAcct, err := LoadMint(env, mint)
	if err != nil {
		return failf("%v", err)
	}
	if !mintAcct.Mint.MintAuthority.Equals(authority) {
		return failf("%s is not the mint authority of %s", authority, mint)
	}
	if !env.IsSigner(authority) {
		return fmt.Errorf("%w: %w: mint authority %s", poolerr.ErrAssetTransferFailed, poolerr.ErrMissingSigner, authority)
	}
	dst, err := loadHolding(env, to, mint)
	if err != nil {
		return err
	}

	supply, overflow := math.SafeAdd(mintAcct.Mint.Supply, amount)
	if overflow {
		return failf("supply overflow for %s", mint)
	}
	credited, overflow := math.SafeAdd(dst.Token.Amount, amount)
	if overflow {
		return failf("balance overflow in %s", to)
	}
	mintAcct.Mint.Supply = supply
	dst.Token.Amount = credited

	if err := env.Put(mintAcct); err != nil {
		return err
	}
	return env.Put(dst)
}

// Burn destroys amount of mint held in from. authority must own from and sign.
func Burn(env *host.Env, mint, from, authority solana.PublicKey, amount uint64) error {
	mintAcct, err := LoadMint(env, mint)
	if err != nil {
		return failf("%v", err)
	}
	src, err := loadHolding(env, from, mint)
	if err != nil {
		return err
	}
	if err := requireOwner(env, src, authority); err != nil {
		return err
	}

	remaining, underflow := math.SafeSub(src.Token.Amount, amount)
	if underflow {
		return failf("insufficient balance in %s: have %d, need %d", from, src.Token.Amount, amount)
	}
	supply, underflow := math.SafeSub(mintAcct.Mint.Supply, amount)
	if underflow {
		return failf("supply underflow for %s", mint)
	}
	src.Token.Amount = remaining
	mintAcct.Mint.Supply = supply

	if err := env.Put(src); err != nil {
		return err
	}
	return env.Put(mintAcct)
}

func loadHolding(env *host.Env, address, mint solana.PublicKey) (*host.Account, error) {
	acct, err := LoadTokenAccount(env, address)
	if err != nil {
		if errors.Is(err, poolerr.ErrAssetTransferFailed) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", poolerr.ErrAssetTransferFailed, err)
	}
	if !acct.Token.Mint.Equals(mint) {
		return nil, failf("%s holds %s, not %s", address, acct.Token.Mint, mint)
	}
	return acct, nil
}

func requireOwner(env *host.Env, acct *host.Account, authority solana.PublicKey) error {
	if !acct.Token.Owner.Equals(authority) {
		return failf("%s is not owned by %s", acct.Address, authority)
	}
	if !env.IsSigner(authority) {
		return fmt.Errorf("%w: %w: owner %s", poolerr.ErrAssetTransferFailed, poolerr.ErrMissingSigner, authority)
	}
	return nil
}
