// Package custodian talks to the external restaking and AVS services on the
// pool's behalf.
package custodian

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/host"
)

// Custodian moves pool funds into and out of external positions. signerSeeds
// are the pool authority seeds including the bump.
type Custodian interface {
	Restake(env *host.Env, signerSeeds [][]byte, accounts RestakeAccounts, amount uint64) error
	Unrestake(env *host.Env, signerSeeds [][]byte, accounts RestakeAccounts, amount uint64) error
	Delegate(env *host.Env, signerSeeds [][]byte, accounts DelegateAccounts, amount uint64) error
	Undelegate(env *host.Env, signerSeeds [][]byte, accounts DelegateAccounts, amount uint64) error
}

// Client is the Custodian that issues signed calls to configured programs.
type Client struct {
	RestakingProgram solana.PublicKey
	AVSProgram       solana.PublicKey
}

var _ Custodian = (*Client)(nil)

func (c *Client) Restake(env *host.Env, signerSeeds [][]byte, accounts RestakeAccounts, amount uint64) error {
	return c.call(env, signerSeeds, c.RestakingProgram, MethodRestake, amount, accounts.Metas())
}

func (c *Client) Unrestake(env *host.Env, signerSeeds [][]byte, accounts RestakeAccounts, amount uint64) error {
	return c.call(env, signerSeeds, c.RestakingProgram, MethodUnrestake, amount, accounts.Metas())
}

func (c *Client) Delegate(env *host.Env, signerSeeds [][]byte, accounts DelegateAccounts, amount uint64) error {
	return c.call(env, signerSeeds, c.AVSProgram, MethodDelegate, amount, accounts.Metas())
}

func (c *Client) Undelegate(env *host.Env, signerSeeds [][]byte, accounts DelegateAccounts, amount uint64) error {
	return c.call(env, signerSeeds, c.AVSProgram, MethodUndelegate, amount, accounts.Metas())
}

func (c *Client) call(env *host.Env, signerSeeds [][]byte, program solana.PublicKey, method Method, amount uint64, metas solana.AccountMetaSlice) error {
	ix, err := Build(program, method, amount, metas)
	if err != nil {
		return fmt.Errorf("build %s: %w", method, err)
	}
	return InvokeSigned(env, signerSeeds, ix)
}
