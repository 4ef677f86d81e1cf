package models

import (
	"encoding/json"
	"time"
)

// Outbox channels
const (
	ChannelEmail = "email"
	ChannelPush  = "push"
)

// Outbox statuses
const (
	OutboxPending = "PENDING"
	OutboxSent    = "SENT"
	OutboxFailed  = "FAILED"
)

// EmailMessage is the queued form of a templated email
type EmailMessage struct {
	To         string            `json:"to"`
	Template   string            `json:"template"`
	Properties map[string]string `json:"properties"`
}

// PushMessage is the queued form of a push notification
type PushMessage struct {
	UserKey string         `json:"user_key"`
	Topic   string         `json:"topic"`
	Payload map[string]any `json:"payload"`
}

// OutboxMessage is a notification waiting for transport dispatch
type OutboxMessage struct {
	ID           int64           `json:"id"`
	EventID      string          `json:"event_id"`
	Channel      string          `json:"channel"`
	Payload      json.RawMessage `json:"payload"`
	Status       string          `json:"status"`
	Attempts     int             `json:"attempts"`
	LastError    string          `json:"last_error,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	DispatchedAt *time.Time      `json:"dispatched_at,omitempty"`
}
