// Package outbox delivers the email and push messages queued alongside scheduler transitions.
//
// Delivery is at-least-once: a message is marked sent only after its transport accepted it,
// so a crash between the two sends it again. Push events carry the outbox event id for
// de-duplication on the client.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Dan9191/contract-service/internal/models"
	"github.com/sirupsen/logrus"
)

// Store is the persistence behind the outbox
type Store interface {
	ListPendingOutbox(ctx context.Context, limit, maxAttempts int) ([]models.OutboxMessage, error)
	MarkOutboxSent(ctx context.Context, id int64) error
	// MarkOutboxFailed records the attempt and gives up once maxAttempts is reached
	MarkOutboxFailed(ctx context.Context, id int64, reason string, maxAttempts int) error
}

// EmailSender delivers a templated email
type EmailSender interface {
	Send(ctx context.Context, msg *models.EmailMessage) error
}

// PushPublisher delivers a push message
type PushPublisher interface {
	Publish(ctx context.Context, eventID string, msg *models.PushMessage) error
}

// Options tune the polling loop
type Options struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
}

// Dispatcher drains pending outbox messages
type Dispatcher struct {
	store Store
	email EmailSender
	push  PushPublisher
	log   *logrus.Logger
	opts  Options
}

// NewDispatcher creates a dispatcher
func NewDispatcher(store Store, email EmailSender, push PushPublisher, log *logrus.Logger, opts Options) *Dispatcher {
	return &Dispatcher{store: store, email: email, push: push, log: log, opts: opts}
}

// Run polls until ctx is done
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.opts.Interval)
	defer ticker.Stop()

	d.log.Infof("Outbox dispatcher started, polling every %s", d.opts.Interval)
	for {
		select {
		case <-ctx.Done():
			d.log.Info("Outbox dispatcher stopped")
			return
		case <-ticker.C:
			if _, _, err := d.DispatchOnce(ctx); err != nil {
				d.log.Errorf("Outbox dispatch failed: %v", err)
			}
		}
	}
}

// DispatchOnce sends one batch. A failing message is recorded and never stops the batch.
func (d *Dispatcher) DispatchOnce(ctx context.Context) (sent, failed int, err error) {
	pending, err := d.store.ListPendingOutbox(ctx, d.opts.BatchSize, d.opts.MaxAttempts)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to list pending outbox messages: %w", err)
	}

	for i := range pending {
		msg := &pending[i]
		logger := d.log.WithFields(logrus.Fields{
			"outbox_id": msg.ID,
			"event_id":  msg.EventID,
			"channel":   msg.Channel,
			"attempt":   msg.Attempts + 1,
		})

		if err := d.deliver(ctx, msg); err != nil {
			failed++
			logger.Warnf("Outbox delivery failed: %v", err)
			if err := d.store.MarkOutboxFailed(ctx, msg.ID, err.Error(), d.opts.MaxAttempts); err != nil {
				logger.Errorf("Failed to record outbox failure: %v", err)
			}
			continue
		}
		if err := d.store.MarkOutboxSent(ctx, msg.ID); err != nil {
			// delivered but not recorded: it will be sent again
			logger.Errorf("Failed to mark outbox message sent: %v", err)
			continue
		}
		sent++
	}
	return sent, failed, nil
}

func (d *Dispatcher) deliver(ctx context.Context, msg *models.OutboxMessage) error {
	switch msg.Channel {
	case models.ChannelEmail:
		var m models.EmailMessage
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return fmt.Errorf("invalid email payload: %w", err)
		}
		return d.email.Send(ctx, &m)
	case models.ChannelPush:
		var m models.PushMessage
		if err := json.Unmarshal(msg.Payload, &m); err != nil {
			return fmt.Errorf("invalid push payload: %w", err)
		}
		return d.push.Publish(ctx, msg.EventID, &m)
	default:
		return fmt.Errorf("unknown outbox channel %q", msg.Channel)
	}
}
