package poolerr

import (
	"errors"
	"fmt"
)

// Role names the pipeline leg whose vault failed a funds check.
type Role string

const (
	RolePoolInput     Role = "pool-input"
	RolePoolDelegated Role = "pool-delegated"
	RolePoolAVS       Role = "pool-avs"
)

var (
	ErrInsufficientFunds    = errors.New("insufficient funds")
	ErrUnauthorized         = errors.New("unauthorized")
	ErrAlreadyExists        = errors.New("account already exists")
	ErrDerivationExhausted  = errors.New("no valid authority bump in search space")
	ErrNonZeroOutputSupply  = errors.New("output mint supply must be zero during initialization")
	ErrMissingAccounts      = errors.New("missing necessary accounts")
	ErrExternalCallRejected = errors.New("external call rejected")
	ErrAssetTransferFailed  = errors.New("asset transfer failed")
	ErrMintMismatch         = errors.New("mint does not match pool requirements")
	ErrAccountNotFound      = errors.New("account not found")
	ErrPoolNotFound         = errors.New("pool not found")
	ErrUnknownProgram       = errors.New("unknown program")
	ErrMissingSigner        = errors.New("missing required signature")
	ErrUnlockedWrite        = errors.New("write to an account the operation did not lock")
)

// InsufficientFundsError reports a failed vault precondition. It matches
// ErrInsufficientFunds under errors.Is.
type InsufficientFundsError struct {
	Role      Role
	Available uint64
	Required  uint64
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds in %s vault: have %d, need %d", e.Role, e.Available, e.Required)
}

func (e *InsufficientFundsError) Is(target error) bool {
	return target == ErrInsufficientFunds
}

// RoleOf extracts the failing role from an insufficient-funds error chain.
func RoleOf(err error) (Role, bool) {
	var ife *InsufficientFundsError
	if errors.As(err, &ife) {
		return ife.Role, true
	}
	return "", false
}
