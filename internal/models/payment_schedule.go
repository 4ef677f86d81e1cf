package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// PaymentStatus is the lifecycle state of an installment
type PaymentStatus string

const (
	PaymentUnpaid  PaymentStatus = "UNPAID"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentOverdue PaymentStatus = "OVERDUE"
)

// CanTransitionTo reports whether a status change keeps the installment moving forward.
// UNPAID may become OVERDUE or PAID, OVERDUE may become PAID, nothing returns to UNPAID.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	switch s {
	case PaymentUnpaid:
		return next == PaymentOverdue || next == PaymentPaid
	case PaymentOverdue:
		return next == PaymentPaid
	default:
		return false
	}
}

// PaymentSchedule represents one installment due on a contract or on an addendum.
// Exactly one of ContractID and AddendumID is set.
type PaymentSchedule struct {
	ID                int64           `json:"id"`
	ContractID        *int64          `json:"contract_id,omitempty"`
	AddendumID        *int64          `json:"addendum_id,omitempty"`
	PaymentOrder      int             `json:"payment_order"`
	Amount            decimal.Decimal `json:"amount"`
	DueDate           *time.Time      `json:"due_date,omitempty"`
	NotifyPaymentDate *time.Time      `json:"notify_payment_date,omitempty"`
	Status            PaymentStatus   `json:"status"`
	ReminderEmailSent bool            `json:"reminder_email_sent"`
	OverdueEmailSent  bool            `json:"overdue_email_sent"`
	CreatedAt         time.Time       `json:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at"`
}

// OwnedByContract reports whether the installment belongs directly to a contract
func (p *PaymentSchedule) OwnedByContract() bool {
	return p.ContractID != nil && p.AddendumID == nil
}
