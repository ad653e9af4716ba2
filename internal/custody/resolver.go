package custody

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/host"
)

// VaultAddress is the associated balance account of owner for mint.
func VaultAddress(owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, _, err := solana.FindAssociatedTokenAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("resolve vault %s/%s: %w", owner, mint, err)
	}
	return addr, nil
}

// EnsureVault creates the associated balance account when it is absent and
// returns its address.
func EnsureVault(env *host.Env, owner, mint solana.PublicKey) (solana.PublicKey, error) {
	addr, err := VaultAddress(owner, mint)
	if err != nil {
		return solana.PublicKey{}, err
	}
	exists, err := env.Exists(addr)
	if err != nil {
		return solana.PublicKey{}, err
	}
	if exists {
		return addr, nil
	}
	if _, err := LoadMint(env, mint); err != nil {
		return solana.PublicKey{}, err
	}
	err = env.Put(&host.Account{
		Address: addr,
		Owner:   solana.TokenProgramID,
		Kind:    host.KindToken,
		Token: &host.TokenAccount{
			Mint:  mint,
			Owner: owner,
		},
	})
	if err != nil {
		return solana.PublicKey{}, err
	}
	return addr, nil
}
