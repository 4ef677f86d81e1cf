package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/Dan9191/contract-service/internal/models"
	"github.com/google/uuid"
)

// guards flip a one-shot flag only while it is still unset
var guards = map[models.TransitionKind]string{
	models.TransitionPaymentReminder: `
		UPDATE payment_schedules
		SET reminder_email_sent = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND reminder_email_sent = FALSE AND status = 'UNPAID'`,
	models.TransitionPaymentOverdue: `
		UPDATE payment_schedules
		SET status = 'OVERDUE', overdue_email_sent = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND overdue_email_sent = FALSE AND status = 'UNPAID'`,
	models.TransitionContractEffective: `
		UPDATE contracts
		SET is_effective_notified = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND is_effective_notified = FALSE`,
	models.TransitionContractExpiry: `
		UPDATE contracts
		SET is_expiry_notified = TRUE, updated_at = CURRENT_TIMESTAMP
		WHERE id = $1 AND is_expiry_notified = FALSE`,
}

// ApplyTransition sets the transition's flag, records the in-app notification and queues
// its email and push messages in one transaction. It returns false without writing anything
// when the flag was already set.
func (r *Repository) ApplyTransition(ctx context.Context, t *models.Transition) (bool, error) {
	query, ok := guards[t.Kind]
	if !ok {
		return false, fmt.Errorf("unknown transition kind %q", t.Kind)
	}
	target := t.ContractID
	if t.Kind == models.TransitionPaymentReminder || t.Kind == models.TransitionPaymentOverdue {
		target = t.ScheduleID
	}

	applied := false
	err := r.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, query, target)
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", t.Kind, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to apply %s: %w", t.Kind, err)
		}
		if n == 0 {
			return nil
		}
		applied = true

		contractID := t.ContractID
		if err := insertNotification(ctx, tx, t.UserID, &contractID, t.Message); err != nil {
			return err
		}
		if t.Email != nil {
			if err := enqueue(ctx, tx, models.ChannelEmail, t.Email); err != nil {
				return err
			}
		}
		if t.Push != nil {
			if err := enqueue(ctx, tx, models.ChannelPush, t.Push); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return applied, nil
}

func enqueue(ctx context.Context, tx *sql.Tx, channel string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to encode %s message: %w", channel, err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO outbox_messages (event_id, channel, payload, status)
		VALUES ($1, $2, $3, $4)`,
		uuid.NewString(), channel, string(data), models.OutboxPending)
	if err != nil {
		return fmt.Errorf("failed to queue %s message: %w", channel, err)
	}
	return nil
}
