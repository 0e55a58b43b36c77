package domain

// Stored payment lifecycle. PENDING covers everything from "prompt in flight"
// until a terminal outcome is observed by polling or callback.
const (
	PaymentStatusPending   = "PENDING"
	PaymentStatusCompleted = "COMPLETED"
	PaymentStatusCancelled = "CANCELLED"
	PaymentStatusTimeout   = "TIMEOUT"
	PaymentStatusFailed    = "FAILED"
)

// TerminalStatuses never change once reached.
var TerminalStatuses = map[string]bool{
	PaymentStatusCompleted: true,
	PaymentStatusCancelled: true,
	PaymentStatusTimeout:   true,
	PaymentStatusFailed:    true,
}
