package repository

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/contract-service/internal/models"
)

//go:embed schema.sql
var schema string

// ErrNotFound is returned when a requested row does not exist
var ErrNotFound = errors.New("not found")

// Repository provides database operations
type Repository struct {
	db *sql.DB
}

// NewRepository initializes a new repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// Migrate creates missing tables and indexes
func (r *Repository) Migrate(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

func (r *Repository) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func timePtr(t sql.NullTime) *time.Time {
	if !t.Valid {
		return nil
	}
	v := t.Time
	return &v
}

func int64Ptr(n sql.NullInt64) *int64 {
	if !n.Valid {
		return nil
	}
	v := n.Int64
	return &v
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

const scheduleColumns = `
	id, contract_id, addendum_id, payment_order, amount, due_date, notify_payment_date,
	status, reminder_email_sent, overdue_email_sent, created_at, updated_at`

func scanSchedule(row rowScanner) (models.PaymentSchedule, error) {
	var (
		p          models.PaymentSchedule
		contractID sql.NullInt64
		addendumID sql.NullInt64
		due        sql.NullTime
		notify     sql.NullTime
		status     string
	)
	err := row.Scan(&p.ID, &contractID, &addendumID, &p.PaymentOrder, &p.Amount, &due, &notify,
		&status, &p.ReminderEmailSent, &p.OverdueEmailSent, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return p, err
	}
	p.ContractID = int64Ptr(contractID)
	p.AddendumID = int64Ptr(addendumID)
	p.DueDate = timePtr(due)
	p.NotifyPaymentDate = timePtr(notify)
	p.Status = models.PaymentStatus(status)
	return p, nil
}

func (r *Repository) querySchedules(ctx context.Context, query string, args ...any) ([]models.PaymentSchedule, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query payment schedules: %w", err)
	}
	defer rows.Close()

	var schedules []models.PaymentSchedule
	for rows.Next() {
		p, err := scanSchedule(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment schedule: %w", err)
		}
		schedules = append(schedules, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read payment schedules: %w", err)
	}
	return schedules, nil
}
