package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/Dan9191/contract-service/internal/models"
	"github.com/lib/pq"
)

const contractSelect = `
	SELECT c.id, c.contract_number, c.title, c.status, c.owner_id, c.effective_date, c.expiry_date,
		c.is_effective_notified, c.is_expiry_notified, c.is_latest_version, c.created_at, c.updated_at,
		u.id, u.username, u.email, u.full_name
	FROM contracts c
	JOIN users u ON u.id = c.owner_id`

func scanContract(row rowScanner) (models.Contract, error) {
	var (
		c         models.Contract
		owner     models.User
		effective sql.NullTime
		expiry    sql.NullTime
	)
	err := row.Scan(&c.ID, &c.ContractNumber, &c.Title, &c.Status, &c.OwnerID, &effective, &expiry,
		&c.IsEffectiveNotified, &c.IsExpiryNotified, &c.IsLatestVersion, &c.CreatedAt, &c.UpdatedAt,
		&owner.ID, &owner.Username, &owner.Email, &owner.FullName)
	if err != nil {
		return c, err
	}
	c.EffectiveDate = timePtr(effective)
	c.ExpiryDate = timePtr(expiry)
	c.Owner = &owner
	return c, nil
}

// CreateContract inserts a contract and its own payment schedules
func (r *Repository) CreateContract(ctx context.Context, c *models.Contract) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO contracts (contract_number, title, status, owner_id, effective_date, expiry_date, is_latest_version)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, created_at, updated_at`,
			c.ContractNumber, c.Title, c.Status, c.OwnerID, nullTime(c.EffectiveDate), nullTime(c.ExpiryDate), c.IsLatestVersion,
		).Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create contract: %w", err)
		}
		for i := range c.PaymentSchedules {
			c.PaymentSchedules[i].ContractID = &c.ID
			c.PaymentSchedules[i].AddendumID = nil
			if err := insertSchedule(ctx, tx, &c.PaymentSchedules[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

// CreateAddendum inserts an addendum and its payment schedules
func (r *Repository) CreateAddendum(ctx context.Context, a *models.Addendum) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		err := tx.QueryRowContext(ctx, `
			INSERT INTO addenda (contract_id, title, status)
			VALUES ($1, $2, $3)
			RETURNING id, created_at, updated_at`,
			a.ContractID, a.Title, a.Status,
		).Scan(&a.ID, &a.CreatedAt, &a.UpdatedAt)
		if err != nil {
			return fmt.Errorf("failed to create addendum: %w", err)
		}
		for i := range a.PaymentSchedules {
			a.PaymentSchedules[i].ContractID = nil
			a.PaymentSchedules[i].AddendumID = &a.ID
			if err := insertSchedule(ctx, tx, &a.PaymentSchedules[i]); err != nil {
				return err
			}
		}
		return nil
	})
}

func insertSchedule(ctx context.Context, tx *sql.Tx, p *models.PaymentSchedule) error {
	if p.Status == "" {
		p.Status = models.PaymentUnpaid
	}
	err := tx.QueryRowContext(ctx, `
		INSERT INTO payment_schedules (contract_id, addendum_id, payment_order, amount, due_date, notify_payment_date, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`,
		nullInt64(p.ContractID), nullInt64(p.AddendumID), p.PaymentOrder, p.Amount,
		nullTime(p.DueDate), nullTime(p.NotifyPaymentDate), string(p.Status),
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment schedule: %w", err)
	}
	return nil
}

// ListContracts returns every contract with its owner, without schedules or addenda
func (r *Repository) ListContracts(ctx context.Context) ([]models.Contract, error) {
	rows, err := r.db.QueryContext(ctx, contractSelect+` ORDER BY c.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list contracts: %w", err)
	}
	defer rows.Close()

	var contracts []models.Contract
	for rows.Next() {
		c, err := scanContract(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan contract: %w", err)
		}
		contracts = append(contracts, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read contracts: %w", err)
	}
	return contracts, nil
}

// ListUnpaidPaymentSchedules returns every UNPAID installment of contracts and addenda
func (r *Repository) ListUnpaidPaymentSchedules(ctx context.Context) ([]models.PaymentSchedule, error) {
	return r.querySchedules(ctx, `SELECT `+scheduleColumns+`
		FROM payment_schedules
		WHERE status = $1
		ORDER BY id`, string(models.PaymentUnpaid))
}

// LoadContract returns the contract aggregate: owner, own schedules, addenda and their schedules
func (r *Repository) LoadContract(ctx context.Context, id int64) (*models.Contract, error) {
	c, err := scanContract(r.db.QueryRowContext(ctx, contractSelect+` WHERE c.id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("contract %d %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find contract: %w", err)
	}

	c.PaymentSchedules, err = r.querySchedules(ctx, `SELECT `+scheduleColumns+`
		FROM payment_schedules
		WHERE contract_id = $1
		ORDER BY payment_order, id`, id)
	if err != nil {
		return nil, err
	}

	c.Addenda, err = r.listAddenda(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(c.Addenda) == 0 {
		return &c, nil
	}

	ids := make([]int64, len(c.Addenda))
	index := make(map[int64]int, len(c.Addenda))
	for i, a := range c.Addenda {
		ids[i] = a.ID
		index[a.ID] = i
	}
	schedules, err := r.querySchedules(ctx, `SELECT `+scheduleColumns+`
		FROM payment_schedules
		WHERE addendum_id = ANY($1)
		ORDER BY payment_order, id`, pq.Array(ids))
	if err != nil {
		return nil, err
	}
	for _, p := range schedules {
		i := index[*p.AddendumID]
		c.Addenda[i].PaymentSchedules = append(c.Addenda[i].PaymentSchedules, p)
	}
	return &c, nil
}

func (r *Repository) listAddenda(ctx context.Context, contractID int64) ([]models.Addendum, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, contract_id, title, status, created_at, updated_at
		FROM addenda
		WHERE contract_id = $1
		ORDER BY id`, contractID)
	if err != nil {
		return nil, fmt.Errorf("failed to list addenda: %w", err)
	}
	defer rows.Close()

	var addenda []models.Addendum
	for rows.Next() {
		var a models.Addendum
		if err := rows.Scan(&a.ID, &a.ContractID, &a.Title, &a.Status, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan addendum: %w", err)
		}
		addenda = append(addenda, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read addenda: %w", err)
	}
	return addenda, nil
}

// FindPaymentSchedule returns an installment and the id of the contract it ultimately belongs to
func (r *Repository) FindPaymentSchedule(ctx context.Context, id int64) (*models.PaymentSchedule, int64, error) {
	var contractID int64
	row := r.db.QueryRowContext(ctx, `
		SELECT p.id, p.contract_id, p.addendum_id, p.payment_order, p.amount, p.due_date, p.notify_payment_date,
			p.status, p.reminder_email_sent, p.overdue_email_sent, p.created_at, p.updated_at,
			COALESCE(p.contract_id, a.contract_id)
		FROM payment_schedules p
		LEFT JOIN addenda a ON a.id = p.addendum_id
		WHERE p.id = $1`, id)

	var (
		p           models.PaymentSchedule
		ownContract sql.NullInt64
		addendumID  sql.NullInt64
		due         sql.NullTime
		notify      sql.NullTime
		status      string
	)
	err := row.Scan(&p.ID, &ownContract, &addendumID, &p.PaymentOrder, &p.Amount, &due, &notify,
		&status, &p.ReminderEmailSent, &p.OverdueEmailSent, &p.CreatedAt, &p.UpdatedAt, &contractID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, fmt.Errorf("payment schedule %d %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find payment schedule: %w", err)
	}
	p.ContractID = int64Ptr(ownContract)
	p.AddendumID = int64Ptr(addendumID)
	p.DueDate = timePtr(due)
	p.NotifyPaymentDate = timePtr(notify)
	p.Status = models.PaymentStatus(status)
	return &p, contractID, nil
}

// ErrStatusTransition is returned when a status change would move an installment backwards
var ErrStatusTransition = errors.New("invalid payment status transition")

// UpdatePaymentStatus moves an installment to next if the transition is forward-only
func (r *Repository) UpdatePaymentStatus(ctx context.Context, id int64, next models.PaymentStatus) error {
	return r.withTx(ctx, func(tx *sql.Tx) error {
		var current string
		err := tx.QueryRowContext(ctx,
			`SELECT status FROM payment_schedules WHERE id = $1 FOR UPDATE`, id).Scan(&current)
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("payment schedule %d %w", id, ErrNotFound)
		}
		if err != nil {
			return fmt.Errorf("failed to lock payment schedule: %w", err)
		}
		if !models.PaymentStatus(current).CanTransitionTo(next) {
			return fmt.Errorf("%w: %s to %s", ErrStatusTransition, current, next)
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE payment_schedules SET status = $2, updated_at = CURRENT_TIMESTAMP WHERE id = $1`,
			id, string(next)); err != nil {
			return fmt.Errorf("failed to update payment status: %w", err)
		}
		return nil
	})
}
