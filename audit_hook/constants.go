package audithook

// Action constants for audit events.
const (
	// Stream actions
	ActionStreamCreated     = "stream.created"
	ActionStreamWithdrawn   = "stream.withdrawn"
	ActionStreamCancelled   = "stream.cancelled"
	ActionStreamPaused      = "stream.paused"
	ActionStreamResumed     = "stream.resumed"
	ActionStreamTransferred = "stream.transferred"
	ActionStreamToppedUp    = "stream.topped_up"
	ActionStreamCompleted   = "stream.completed"

	// Policy actions
	ActionPolicyFallback = "policy.fallback"

	// Worker actions
	ActionAutoWithdrawSweep = "auto_withdraw.sweep"
)

// Resource constants for audit events.
const (
	ResourceStream = "stream"
	ResourcePolicy = "policy"
	ResourceWorker = "worker"
)

// Category constants for audit events.
const (
	CategoryStream     = "stream"
	CategoryPayout     = "payout"
	CategoryAccess     = "access"
	CategoryOperations = "operations"
)

// Severity levels for audit events.
const (
	SeverityInfo     = "info"
	SeverityWarning  = "warning"
	SeverityError    = "error"
	SeverityCritical = "critical"
)

// Outcome values for audit events.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomePartial = "partial"
)
