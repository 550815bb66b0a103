package errs

// Error taxonomy for the reconciliation engine. Transient fetch failures are
// logged at the call site and never propagate past the owning component; send
// failures roll the optimistic entry back and surface on the failure stream.
var (
	ErrGatewayQuery   = NewCodeError(1001, "gateway query failed")
	ErrGatewayInsert  = NewCodeError(1002, "gateway insert failed")
	ErrNoSession      = NewCodeError(1101, "no active session")
	ErrNoSelection    = NewCodeError(1102, "no conversation selected")
	ErrUnknownRef     = NewCodeError(1103, "unknown conversation reference")
	ErrSubscribe      = NewCodeError(1201, "change feed subscribe failed")
	ErrPresence       = NewCodeError(1301, "presence channel failed")
	ErrEngineStopped  = NewCodeError(1401, "engine stopped")
	ErrRecordNotFound = NewCodeError(1501, "record not found")
)
