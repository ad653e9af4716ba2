package model

// PoolSummary totals the journal entries recorded against one pool.
// Amount fields are decimal strings in base units.
type PoolSummary struct {
	Pool        string            `json:"pool"`
	Operations  uint64            `json:"operations"`
	Committed   uint64            `json:"committed"`
	Failed      uint64            `json:"failed"`
	Deposited   string            `json:"deposited"`
	Issued      string            `json:"issued"`
	Redeemed    string            `json:"redeemed"`
	Withdrawn   string            `json:"withdrawn"`
	Delegated   string            `json:"delegated"`
	Undelegated string            `json:"undelegated"`
	NetCustody  string            `json:"net_custody"`
	Outstanding string            `json:"outstanding"`
	FailedRoles map[string]uint64 `json:"failed_roles,omitempty"`
	FirstAt     string            `json:"first_at,omitempty"`
	LastAt      string            `json:"last_at,omitempty"`
}
