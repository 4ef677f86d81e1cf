package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Dan9191/contract-service/internal/models"
)

// ListNotifications returns a user's notifications, newest first
func (r *Repository) ListNotifications(ctx context.Context, userID int64, limit, offset int) ([]models.Notification, error) {
	query := `
		SELECT id, user_id, contract_id, message, is_read, created_at
		FROM notifications
		WHERE user_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`
	rows, err := r.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifications: %w", err)
	}
	defer rows.Close()

	notifications := []models.Notification{}
	for rows.Next() {
		var (
			n          models.Notification
			contractID sql.NullInt64
		)
		if err := rows.Scan(&n.ID, &n.UserID, &contractID, &n.Message, &n.IsRead, &n.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan notification: %w", err)
		}
		n.ContractID = int64Ptr(contractID)
		notifications = append(notifications, n)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read notifications: %w", err)
	}
	return notifications, nil
}

// MarkNotificationRead flags one of the user's notifications as read
func (r *Repository) MarkNotificationRead(ctx context.Context, id, userID int64) error {
	res, err := r.db.ExecContext(ctx,
		`UPDATE notifications SET is_read = TRUE WHERE id = $1 AND user_id = $2`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to mark notification read: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("notification %w", ErrNotFound)
	}
	return nil
}

func insertNotification(ctx context.Context, tx *sql.Tx, userID int64, contractID *int64, message string) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO notifications (user_id, contract_id, message, is_read, created_at)
		VALUES ($1, $2, $3, FALSE, CURRENT_TIMESTAMP)`,
		userID, nullInt64(contractID), message)
	if err != nil {
		return fmt.Errorf("failed to create notification: %w", err)
	}
	return nil
}
