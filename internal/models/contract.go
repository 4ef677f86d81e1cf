package models

import "time"

// ContractStatus constants
const (
	ContractStatusCreated         = "CREATED"
	ContractStatusApprovalPending = "APPROVAL_PENDING"
	ContractStatusApproved        = "APPROVED"
	ContractStatusSigned          = "SIGNED"
	ContractStatusActive          = "ACTIVE"
	ContractStatusExpired         = "EXPIRED"
	ContractStatusCancelled       = "CANCELLED"
)

// Contract is the aggregate root for installments and addenda
type Contract struct {
	ID                  int64             `json:"id"`
	ContractNumber      string            `json:"contract_number"`
	Title               string            `json:"title"`
	Status              string            `json:"status"`
	OwnerID             int64             `json:"owner_id"`
	Owner               *User             `json:"owner,omitempty"`
	EffectiveDate       *time.Time        `json:"effective_date,omitempty"`
	ExpiryDate          *time.Time        `json:"expiry_date,omitempty"`
	IsEffectiveNotified bool              `json:"is_effective_notified"`
	IsExpiryNotified    bool              `json:"is_expiry_notified"`
	IsLatestVersion     bool              `json:"is_latest_version"`
	PaymentSchedules    []PaymentSchedule `json:"payment_schedules,omitempty"`
	Addenda             []Addendum        `json:"addenda,omitempty"`
	CreatedAt           time.Time         `json:"created_at"`
	UpdatedAt           time.Time         `json:"updated_at"`
}

// ActiveAddenda returns the addenda whose installments supersede the contract's own
func (c *Contract) ActiveAddenda() []Addendum {
	var active []Addendum
	for _, a := range c.Addenda {
		if a.SupersedesPayments() {
			active = append(active, a)
		}
	}
	return active
}
