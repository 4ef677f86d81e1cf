package models

import "time"

// Notification is an in-app message shown to a user
type Notification struct {
	ID         int64     `json:"id"`
	UserID     int64     `json:"user_id"`
	ContractID *int64    `json:"contract_id,omitempty"`
	Message    string    `json:"message"`
	IsRead     bool      `json:"is_read"`
	CreatedAt  time.Time `json:"created_at"`
}
