package custodian

import (
	"fmt"

	"github.com/gagliardetto/solana-go"
)

// RestakeAccounts is the positional account set for restake and unrestake.
type RestakeAccounts struct {
	Staker                  solana.PublicKey
	InputMint               solana.PublicKey
	StakerInputVault        solana.PublicKey
	StakerIntermediateVault solana.PublicKey
	IntermediateMint        solana.PublicKey
	PoolInputVault          solana.PublicKey
	RestakingPool           solana.PublicKey
}

// Metas orders the accounts the way the restaking program reads them.
func (a RestakeAccounts) Metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Staker, true, true),
		solana.NewAccountMeta(a.InputMint, true, false),
		solana.NewAccountMeta(a.StakerInputVault, true, false),
		solana.NewAccountMeta(a.StakerIntermediateVault, true, false),
		solana.NewAccountMeta(a.IntermediateMint, true, false),
		solana.NewAccountMeta(a.PoolInputVault, true, false),
		solana.NewAccountMeta(a.RestakingPool, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
}

// DelegateAccounts is the positional account set for delegate and undelegate.
type DelegateAccounts struct {
	Staker                solana.PublicKey
	AVS                   solana.PublicKey
	PositionMint          solana.PublicKey
	AVSUnderlyingVault    solana.PublicKey
	UnderlyingMint        solana.PublicKey
	StakerUnderlyingVault solana.PublicKey
	StakerPositionVault   solana.PublicKey
}

// Metas orders the accounts the way the AVS program reads them.
func (a DelegateAccounts) Metas() solana.AccountMetaSlice {
	return solana.AccountMetaSlice{
		solana.NewAccountMeta(a.Staker, true, true),
		solana.NewAccountMeta(a.AVS, true, false),
		solana.NewAccountMeta(a.PositionMint, true, false),
		solana.NewAccountMeta(a.AVSUnderlyingVault, true, false),
		solana.NewAccountMeta(a.UnderlyingMint, true, false),
		solana.NewAccountMeta(a.StakerUnderlyingVault, true, false),
		solana.NewAccountMeta(a.StakerPositionVault, true, false),
		solana.NewAccountMeta(solana.TokenProgramID, false, false),
		solana.NewAccountMeta(solana.SPLAssociatedTokenAccountProgramID, false, false),
		solana.NewAccountMeta(solana.SystemProgramID, false, false),
	}
}

// AccountCount is the length of both account layouts.
const AccountCount = 10

// ParseRestakeAccounts reads a restake account list and checks the fixed
// program slots and the staker signature flag.
func ParseRestakeAccounts(metas []*solana.AccountMeta) (RestakeAccounts, error) {
	if err := checkLayout(metas, solana.SPLAssociatedTokenAccountProgramID, solana.TokenProgramID); err != nil {
		return RestakeAccounts{}, err
	}
	return RestakeAccounts{
		Staker:                  metas[0].PublicKey,
		InputMint:               metas[1].PublicKey,
		StakerInputVault:        metas[2].PublicKey,
		StakerIntermediateVault: metas[3].PublicKey,
		IntermediateMint:        metas[4].PublicKey,
		PoolInputVault:          metas[5].PublicKey,
		RestakingPool:           metas[6].PublicKey,
	}, nil
}

// ParseDelegateAccounts reads a delegate account list.
func ParseDelegateAccounts(metas []*solana.AccountMeta) (DelegateAccounts, error) {
	if err := checkLayout(metas, solana.TokenProgramID, solana.SPLAssociatedTokenAccountProgramID); err != nil {
		return DelegateAccounts{}, err
	}
	return DelegateAccounts{
		Staker:                metas[0].PublicKey,
		AVS:                   metas[1].PublicKey,
		PositionMint:          metas[2].PublicKey,
		AVSUnderlyingVault:    metas[3].PublicKey,
		UnderlyingMint:        metas[4].PublicKey,
		StakerUnderlyingVault: metas[5].PublicKey,
		StakerPositionVault:   metas[6].PublicKey,
	}, nil
}

func checkLayout(metas []*solana.AccountMeta, slot7, slot8 solana.PublicKey) error {
	if len(metas) != AccountCount {
		return fmt.Errorf("account list length %d, want %d", len(metas), AccountCount)
	}
	if !metas[0].IsSigner {
		return fmt.Errorf("staker %s must sign", metas[0].PublicKey)
	}
	fixed := []solana.PublicKey{slot7, slot8, solana.SystemProgramID}
	for i, want := range fixed {
		meta := metas[7+i]
		if !meta.PublicKey.Equals(want) || meta.IsWritable {
			return fmt.Errorf("account %d must be readonly %s, got %s", 7+i, want, meta.PublicKey)
		}
	}
	return nil
}
