package models

import "time"

// AddendumStatus constants
const (
	AddendumStatusCreated         = "CREATED"
	AddendumStatusApprovalPending = "APPROVAL_PENDING"
	AddendumStatusApproved        = "APPROVED"
	AddendumStatusRejected        = "REJECTED"
	AddendumStatusSigned          = "SIGNED"
)

// Addendum amends a contract and may carry its own payment schedule
type Addendum struct {
	ID               int64             `json:"id"`
	ContractID       int64             `json:"contract_id"`
	Title            string            `json:"title"`
	Status           string            `json:"status"`
	PaymentSchedules []PaymentSchedule `json:"payment_schedules,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// SupersedesPayments reports whether this addendum's installments replace the contract's
func (a *Addendum) SupersedesPayments() bool {
	return a.Status == AddendumStatusApproved || a.Status == AddendumStatusSigned
}
