package simulated

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/custodian"
	"lrtpool/internal/custody"
	"lrtpool/internal/host"
)

// Restaking swaps an input asset for an intermediate receipt asset one to
// one. The restaking pool data account is the intermediate mint authority
// and owns the vault holding restaked input.
type Restaking struct{}

// InitPool creates a restaking pool at pool for inputMint, along with its
// intermediate mint and input vault. It must run with the restaking program
// as the executing program.
func (Restaking) InitPool(env *host.Env, pool, inputMint, intermediateMint solana.PublicKey) error {
	input, err := custody.LoadMint(env, inputMint)
	if err != nil {
		return err
	}
	if err := createState(env, pool, &RestakingPoolState{
		InputMint:        inputMint,
		IntermediateMint: intermediateMint,
	}); err != nil {
		return err
	}
	if err := custody.CreateMint(env, intermediateMint, input.Mint.Decimals, pool, pool); err != nil {
		return err
	}
	_, err = custody.EnsureVault(env, pool, inputMint)
	return err
}

func (Restaking) Process(env *host.Env, accounts []*solana.AccountMeta, data []byte) error {
	method, amount, err := custodian.DecodePayload(data)
	if err != nil {
		return err
	}
	if method != custodian.MethodRestake && method != custodian.MethodUnrestake {
		return fmt.Errorf("restaking program does not handle %s", method)
	}
	accts, err := custodian.ParseRestakeAccounts(accounts)
	if err != nil {
		return err
	}

	var state RestakingPoolState
	if err := loadState(env, accts.RestakingPool, &state); err != nil {
		return err
	}
	if err := expect("input mint", accts.InputMint, state.InputMint); err != nil {
		return err
	}
	if err := expect("intermediate mint", accts.IntermediateMint, state.IntermediateMint); err != nil {
		return err
	}
	poolVault, err := custody.VaultAddress(accts.RestakingPool, state.InputMint)
	if err != nil {
		return err
	}
	if err := expect("restaking pool vault", accts.PoolInputVault, poolVault); err != nil {
		return err
	}
	input, err := custody.LoadMint(env, state.InputMint)
	if err != nil {
		return err
	}
	decimals := input.Mint.Decimals

	if method == custodian.MethodRestake {
		if err := custody.Transfer(env, accts.StakerInputVault, accts.PoolInputVault, state.InputMint, accts.Staker, amount, decimals); err != nil {
			return err
		}
		return custody.MintTo(env, state.IntermediateMint, accts.StakerIntermediateVault, accts.RestakingPool, amount)
	}

	if err := custody.Burn(env, state.IntermediateMint, accts.StakerIntermediateVault, accts.Staker, amount); err != nil {
		return err
	}
	return custody.Transfer(env, accts.PoolInputVault, accts.StakerInputVault, state.InputMint, accts.RestakingPool, amount, decimals)
}
