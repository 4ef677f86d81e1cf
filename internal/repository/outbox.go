package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dan9191/contract-service/internal/models"
)

// ListPendingOutbox returns the oldest pending messages that still have attempts left
func (r *Repository) ListPendingOutbox(ctx context.Context, limit, maxAttempts int) ([]models.OutboxMessage, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, event_id, channel, payload, status, attempts, last_error, created_at, dispatched_at
		FROM outbox_messages
		WHERE status = $1 AND attempts < $2
		ORDER BY id
		LIMIT $3`, models.OutboxPending, maxAttempts, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list outbox messages: %w", err)
	}
	defer rows.Close()

	var messages []models.OutboxMessage
	for rows.Next() {
		var (
			m          models.OutboxMessage
			payload    []byte
			dispatched sql.NullTime
		)
		if err := rows.Scan(&m.ID, &m.EventID, &m.Channel, &payload, &m.Status, &m.Attempts,
			&m.LastError, &m.CreatedAt, &dispatched); err != nil {
			return nil, fmt.Errorf("failed to scan outbox message: %w", err)
		}
		m.Payload = payload
		m.DispatchedAt = timePtr(dispatched)
		messages = append(messages, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read outbox messages: %w", err)
	}
	return messages, nil
}

// MarkOutboxSent records a successful delivery
func (r *Repository) MarkOutboxSent(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET status = $2, attempts = attempts + 1, last_error = '', dispatched_at = CURRENT_TIMESTAMP
		WHERE id = $1`, id, models.OutboxSent)
	if err != nil {
		return fmt.Errorf("failed to mark outbox message sent: %w", err)
	}
	return nil
}

// MarkOutboxFailed records a failed attempt and moves the message to FAILED once
// maxAttempts is reached
func (r *Repository) MarkOutboxFailed(ctx context.Context, id int64, reason string, maxAttempts int) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE outbox_messages
		SET attempts = attempts + 1,
			last_error = $2,
			status = CASE WHEN attempts + 1 >= $3 THEN $4 ELSE status END
		WHERE id = $1`, id, reason, maxAttempts, models.OutboxFailed)
	if err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}
