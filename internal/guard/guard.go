// Package guard enforces vault funds preconditions.
package guard

import (
	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/custody"
	"lrtpool/internal/host"
	"lrtpool/internal/poolerr"
)

// Require reloads vault from the running transaction and fails with an
// InsufficientFundsError for role when it holds less than minimum. Earlier
// external calls in the same operation may have moved funds, so the balance
// is never taken from a caller-supplied value.
func Require(env *host.Env, vault solana.PublicKey, minimum uint64, role poolerr.Role) (uint64, error) {
	balance, err := custody.Balance(env, vault)
	if err != nil {
		return 0, err
	}
	if balance < minimum {
		return balance, &poolerr.InsufficientFundsError{
			Role:      role,
			Available: balance,
			Required:  minimum,
		}
	}
	return balance, nil
}
