package models

// TransitionKind names a one-shot state change that triggers notifications
type TransitionKind string

const (
	TransitionPaymentReminder   TransitionKind = "payment_reminder"
	TransitionPaymentOverdue    TransitionKind = "payment_overdue"
	TransitionContractEffective TransitionKind = "contract_effective"
	TransitionContractExpiry    TransitionKind = "contract_expiry"
)

// Transition couples a flag/status change with the messages it produces.
// The store applies the change, the notification row and the outbox entries atomically.
type Transition struct {
	Kind       TransitionKind
	ContractID int64
	ScheduleID int64 // zero for contract transitions
	UserID     int64
	Message    string
	Email      *EmailMessage
	Push       *PushMessage
}
