package pipeline

import (
	"context"
	"fmt"

	"github.com/gagliardetto/solana-go"
	"go.uber.org/zap"

	"lrtpool/internal/custody"
	"lrtpool/internal/host"
	"lrtpool/internal/model"
	"lrtpool/internal/pool"
	"lrtpool/internal/poolerr"
)

// Vaults lists the vaults of a pool with zero amounts: the input vault, the
// intermediate vault of a three-asset pool and one position vault per
// target.
func Vaults(addr solana.PublicKey, rec *pool.Pool, targets ...AVSTarget) ([]model.VaultBalance, error) {
	type entry struct {
		role poolerr.Role
		mint solana.PublicKey
	}
	entries := []entry{{role: poolerr.RolePoolInput, mint: rec.InputMint}}
	if rec.ThreeAsset() {
		entries = append(entries, entry{role: poolerr.RolePoolDelegated, mint: rec.IntermediateMint})
	}
	for _, t := range targets {
		if t.PositionMint.IsZero() {
			continue
		}
		entries = append(entries, entry{role: poolerr.RolePoolAVS, mint: t.PositionMint})
	}

	out := make([]model.VaultBalance, 0, len(entries))
	for _, e := range entries {
		vault, err := custody.VaultAddress(addr, e.mint)
		if err != nil {
			return nil, err
		}
		out = append(out, model.VaultBalance{
			Role:    string(e.role),
			Mint:    e.mint.String(),
			Address: vault.String(),
		})
	}
	return out, nil
}

// AccountLister enumerates committed accounts by owner.
type AccountLister interface {
	OwnedBy(ctx context.Context, owner solana.PublicKey) ([]host.Account, error)
}

// ListPools inspects every pool record owned by the pool program. Accounts
// that do not decode or derive as pools are skipped.
func (p *Pipeline) ListPools(ctx context.Context, lister AccountLister) ([]*model.PoolView, error) {
	accounts, err := lister.OwnedBy(ctx, p.cfg.ProgramID)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	views := make([]*model.PoolView, 0, len(accounts))
	for _, acct := range accounts {
		rec, err := pool.Unmarshal(acct.Data)
		if err != nil || !p.pools.Derives(acct.Address, rec) {
			p.logger.Debug("skip non-pool account", zap.Stringer("address", acct.Address))
			continue
		}
		view, err := p.Inspect(ctx, acct.Address)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	return views, nil
}

// Inspect reads a pool and the live balances of its vaults.
func (p *Pipeline) Inspect(ctx context.Context, addr solana.PublicKey, targets ...AVSTarget) (*model.PoolView, error) {
	var view model.PoolView
	err := p.host.View(ctx, p.cfg.ProgramID, func(env *host.Env) error {
		rec, err := p.pools.Load(env, addr)
		if err != nil {
			return err
		}
		view = rec.View(addr, p.cfg.ProgramID)

		output, err := custody.LoadMint(env, rec.OutputMint)
		if err != nil {
			return err
		}
		view.OutputSupply = output.Mint.Supply

		vaults, err := Vaults(addr, rec, targets...)
		if err != nil {
			return err
		}
		for i := range vaults {
			vault, err := solana.PublicKeyFromBase58(vaults[i].Address)
			if err != nil {
				return err
			}
			if vaults[i].Amount, err = custody.Balance(env, vault); err != nil {
				return err
			}
			mint, err := custody.LoadMint(env, solana.MustPublicKeyFromBase58(vaults[i].Mint))
			if err != nil {
				return err
			}
			vaults[i].Decimals = mint.Mint.Decimals
		}
		view.Vaults = vaults
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &view, nil
}
