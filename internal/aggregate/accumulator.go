package aggregate

import (
	"math/big"

	"lrtpool/internal/model"
)

// Accumulator holds running totals for a single pool.
type Accumulator struct {
	Pool        string
	Operations  uint64
	Committed   uint64
	Failed      uint64
	Deposited   *big.Int
	Issued      *big.Int
	Redeemed    *big.Int
	Withdrawn   *big.Int
	Delegated   *big.Int
	Undelegated *big.Int
	FailedRoles map[string]uint64
	FirstAt     string
	LastAt      string
}

func NewAccumulator(pool string) *Accumulator {
	return &Accumulator{
		Pool:        pool,
		Deposited:   big.NewInt(0),
		Issued:      big.NewInt(0),
		Redeemed:    big.NewInt(0),
		Withdrawn:   big.NewInt(0),
		Delegated:   big.NewInt(0),
		Undelegated: big.NewInt(0),
		FailedRoles: make(map[string]uint64),
	}
}

// AddRecord folds one journal entry in. Only committed operations move the
// totals; failures are counted by the role that ran short.
func (a *Accumulator) AddRecord(record model.OperationRecord) {
	a.Operations++
	if a.FirstAt == "" || record.RecordedAt < a.FirstAt {
		a.FirstAt = record.RecordedAt
	}
	if record.RecordedAt > a.LastAt {
		a.LastAt = record.RecordedAt
	}

	if !record.Committed {
		a.Failed++
		if record.FailedRole != "" {
			a.FailedRoles[record.FailedRole]++
		}
		return
	}
	a.Committed++

	amount := new(big.Int).SetUint64(record.Amount)
	converted := new(big.Int).SetUint64(record.Converted)
	switch record.Operation {
	case model.OpDeposit:
		a.Deposited.Add(a.Deposited, amount)
		a.Issued.Add(a.Issued, converted)
	case model.OpWithdraw:
		a.Redeemed.Add(a.Redeemed, amount)
		a.Withdrawn.Add(a.Withdrawn, converted)
	case model.OpDelegate:
		a.Delegated.Add(a.Delegated, amount)
	case model.OpUndelegate:
		a.Undelegated.Add(a.Undelegated, amount)
	}
}

// Summary renders the totals. NetCustody is input deposited minus input
// paid out; Outstanding is output issued minus output burned.
func (a *Accumulator) Summary() model.PoolSummary {
	summary := model.PoolSummary{
		Pool:        a.Pool,
		Operations:  a.Operations,
		Committed:   a.Committed,
		Failed:      a.Failed,
		Deposited:   a.Deposited.String(),
		Issued:      a.Issued.String(),
		Redeemed:    a.Redeemed.String(),
		Withdrawn:   a.Withdrawn.String(),
		Delegated:   a.Delegated.String(),
		Undelegated: a.Undelegated.String(),
		NetCustody:  new(big.Int).Sub(a.Deposited, a.Withdrawn).String(),
		Outstanding: new(big.Int).Sub(a.Issued, a.Redeemed).String(),
		FirstAt:     a.FirstAt,
		LastAt:      a.LastAt,
	}
	if len(a.FailedRoles) > 0 {
		summary.FailedRoles = a.FailedRoles
	}
	return summary
}
