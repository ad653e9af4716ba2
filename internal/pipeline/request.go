package pipeline

import (
	"fmt"

	"github.com/gagliardetto/solana-go"

	"lrtpool/internal/host"
	"lrtpool/internal/model"
	"lrtpool/internal/poolerr"
)

// InitRequest creates a pool. Caller pays and signs; DelegateAuthority
// defaults to Caller and must otherwise appear in Cosigners.
type InitRequest struct {
	Caller            solana.PublicKey
	Cosigners         []solana.PublicKey
	InputMint         solana.PublicKey
	OutputMint        solana.PublicKey
	IntermediateMint  solana.PublicKey
	DelegateAuthority solana.PublicKey
}

type DepositRequest struct {
	Pool   solana.PublicKey
	Caller solana.PublicKey
	Amount uint64
}

// WithdrawRequest burns Amount output units. A nil Route is PlainWithdraw.
type WithdrawRequest struct {
	Pool   solana.PublicKey
	Caller solana.PublicKey
	Amount uint64
	Route  Route
}

// DelegateRequest moves pool funds into or out of an AVS position. The same
// shape serves Delegate and Undelegate.
type DelegateRequest struct {
	Pool   solana.PublicKey
	Caller solana.PublicKey
	Amount uint64
	Target AVSTarget
}

type TransferAuthorityRequest struct {
	Pool         solana.PublicKey
	Caller       solana.PublicKey
	NewAuthority solana.PublicKey
}

// AVSTarget names the AVS a pool delegates into and the position token it
// issues.
type AVSTarget struct {
	AVS          solana.PublicKey
	PositionMint solana.PublicKey
}

func (t AVSTarget) validate() error {
	if t.AVS.IsZero() || t.PositionMint.IsZero() {
		return fmt.Errorf("%w: avs and position mint are required", poolerr.ErrMissingAccounts)
	}
	return nil
}

// Route selects the withdraw path.
type Route interface {
	route() string
}

// PlainWithdraw returns funds already held by the pool.
type PlainWithdraw struct{}

// DelegatedWithdraw first pulls the amount back out of Target.
type DelegatedWithdraw struct {
	Target AVSTarget
}

func (PlainWithdraw) route() string     { return "plain" }
func (DelegatedWithdraw) route() string { return "delegated" }

// Receipt is the net effect of a committed operation.
type Receipt struct {
	Operation model.Operation
	Pool      solana.PublicKey
	Caller    solana.PublicKey
	Amount    uint64
	Converted uint64
	Calls     []host.Invocation
}
