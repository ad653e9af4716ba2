package pipeline

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/custodian"
	"lrtpool/internal/custody"
	"lrtpool/internal/pool"
	"lrtpool/internal/poolerr"
)

func (p *Pipeline) restakeAccounts(addr solana.PublicKey, rec *pool.Pool) (custodian.RestakeAccounts, error) {
	if p.cfg.RestakingPool.IsZero() {
		return custodian.RestakeAccounts{}, fmt.Errorf("%w: restaking pool is not configured", poolerr.ErrMissingAccounts)
	}
	inputVault, err := custody.VaultAddress(addr, rec.InputMint)
	if err != nil {
		return custodian.RestakeAccounts{}, err
	}
	intermediateVault, err := custody.VaultAddress(addr, rec.IntermediateMint)
	if err != nil {
		return custodian.RestakeAccounts{}, err
	}
	restakingVault, err := custody.VaultAddress(p.cfg.RestakingPool, rec.InputMint)
	if err != nil {
		return custodian.RestakeAccounts{}, err
	}
	return custodian.RestakeAccounts{
		Staker:                  addr,
		InputMint:               rec.InputMint,
		StakerInputVault:        inputVault,
		StakerIntermediateVault: intermediateVault,
		IntermediateMint:        rec.IntermediateMint,
		PoolInputVault:          restakingVault,
		RestakingPool:           p.cfg.RestakingPool,
	}, nil
}

func delegateAccounts(addr solana.PublicKey, rec *pool.Pool, target AVSTarget) (custodian.DelegateAccounts, error) {
	if err := target.validate(); err != nil {
		return custodian.DelegateAccounts{}, err
	}
	underlying := rec.DelegableMint()
	avsVault, err := custody.VaultAddress(target.AVS, underlying)
	if err != nil {
		return custodian.DelegateAccounts{}, err
	}
	poolVault, err := custody.VaultAddress(addr, underlying)
	if err != nil {
		return custodian.DelegateAccounts{}, err
	}
	positionVault, err := custody.VaultAddress(addr, target.PositionMint)
	if err != nil {
		return custodian.DelegateAccounts{}, err
	}
	return custodian.DelegateAccounts{
		Staker:                addr,
		AVS:                   target.AVS,
		PositionMint:          target.PositionMint,
		AVSUnderlyingVault:    avsVault,
		UnderlyingMint:        underlying,
		StakerUnderlyingVault: poolVault,
		StakerPositionVault:   positionVault,
	}, nil
}
