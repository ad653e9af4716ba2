package simulated

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/custodian"
	"lrtpool/internal/custody"
	"lrtpool/internal/host"
)

// AVS takes custody of an underlying asset and issues position tokens one
// to one.
type AVS struct{}

// CreateAVS registers an AVS at avs accepting underlyingMint. The position
// mint is created with the AVS as authority.
func (AVS) CreateAVS(env *host.Env, avs, underlyingMint, positionMint solana.PublicKey) error {
	underlying, err := custody.LoadMint(env, underlyingMint)
	if err != nil {
		return err
	}
	if err := createState(env, avs, &AVSState{
		UnderlyingMint: underlyingMint,
		PositionMint:   positionMint,
	}); err != nil {
		return err
	}
	if err := custody.CreateMint(env, positionMint, underlying.Mint.Decimals, avs, avs); err != nil {
		return err
	}
	_, err = custody.EnsureVault(env, avs, underlyingMint)
	return err
}

func (AVS) Process(env *host.Env, accounts []*solana.AccountMeta, data []byte) error {
	method, amount, err := custodian.DecodePayload(data)
	if err != nil {
		return err
	}
	if method != custodian.MethodDelegate && method != custodian.MethodUndelegate {
		return fmt.Errorf("avs program does not handle %s", method)
	}
	accts, err := custodian.ParseDelegateAccounts(accounts)
	if err != nil {
		return err
	}

	var state AVSState
	if err := loadState(env, accts.AVS, &state); err != nil {
		return err
	}
	if err := expect("underlying mint", accts.UnderlyingMint, state.UnderlyingMint); err != nil {
		return err
	}
	if err := expect("position mint", accts.PositionMint, state.PositionMint); err != nil {
		return err
	}
	avsVault, err := custody.VaultAddress(accts.AVS, state.UnderlyingMint)
	if err != nil {
		return err
	}
	if err := expect("avs vault", accts.AVSUnderlyingVault, avsVault); err != nil {
		return err
	}
	positionVault, err := custody.EnsureVault(env, accts.Staker, state.PositionMint)
	if err != nil {
		return err
	}
	if err := expect("staker position vault", accts.StakerPositionVault, positionVault); err != nil {
		return err
	}
	underlying, err := custody.LoadMint(env, state.UnderlyingMint)
	if err != nil {
		return err
	}
	decimals := underlying.Mint.Decimals

	if method == custodian.MethodDelegate {
		if err := custody.Transfer(env, accts.StakerUnderlyingVault, accts.AVSUnderlyingVault, state.UnderlyingMint, accts.Staker, amount, decimals); err != nil {
			return err
		}
		return custody.MintTo(env, state.PositionMint, accts.StakerPositionVault, accts.AVS, amount)
	}

	if err := custody.Burn(env, state.PositionMint, accts.StakerPositionVault, accts.Staker, amount); err != nil {
		return err
	}
	return custody.Transfer(env, accts.AVSUnderlyingVault, accts.StakerUnderlyingVault, state.UnderlyingMint, accts.AVS, amount, decimals)
}
