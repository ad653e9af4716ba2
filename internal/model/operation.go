package model

// Operation names a top-level pool action.
type Operation string

const (
	OpInitialize        Operation = "initialize"
	OpDeposit           Operation = "deposit"
	OpWithdraw          Operation = "withdraw"
	OpDelegate          Operation = "delegate"
	OpUndelegate        Operation = "undelegate"
	OpTransferAuthority Operation = "transfer_authority"
)

// ExternalCall is one cross-program call made while an operation ran.
type ExternalCall struct {
	Caller  string `json:"caller"`
	Program string `json:"program"`
	Depth   int    `json:"depth"`
	Method  string `json:"method,omitempty"`
	Amount  uint64 `json:"amount,omitempty"`
	Payload string `json:"payload"`
}

// OperationRecord is the journal entry for one top-level operation,
// committed or not.
type OperationRecord struct {
	Operation  Operation      `json:"operation"`
	Pool       string         `json:"pool"`
	Caller     string         `json:"caller"`
	Amount     uint64         `json:"amount"`
	Converted  uint64         `json:"converted"`
	Route      string         `json:"route,omitempty"`
	Target     string         `json:"target,omitempty"`
	Calls      []ExternalCall `json:"calls,omitempty"`
	Committed  bool           `json:"committed"`
	Error      string         `json:"error,omitempty"`
	FailedRole string         `json:"failed_role,omitempty"`
	RecordedAt string         `json:"recorded_at"`
}
