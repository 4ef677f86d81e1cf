package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/contract-service/internal/models"
)

const (
	dateLayout     = "2006-01-02"
	dateTimeLayout = "2006-01-02 15:04"

	// PushTopic is the per-user destination for scheduler notifications
	PushTopic = "notifications"
)

// dueSchedule is an installment together with the aggregate it came from
type dueSchedule struct {
	schedule     *models.PaymentSchedule
	fromAddendum bool
}

// CheckPaymentsDue runs the reminder pass and then the overdue pass
func (s *Scheduler) CheckPaymentsDue(ctx context.Context, now time.Time) (int, error) {
	reminders, err := s.paymentPass(ctx, now, s.reminderTransition)
	if err != nil {
		return reminders, err
	}
	overdue, err := s.paymentPass(ctx, now, s.overdueTransition)
	return reminders + overdue, err
}

func (s *Scheduler) paymentPass(ctx context.Context, now time.Time, decide func(*models.Contract, dueSchedule, time.Time) *models.Transition) (int, error) {
	unpaid, err := s.store.ListUnpaidPaymentSchedules(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list unpaid payment schedules: %w", err)
	}

	sent := 0
	for _, contractID := range contractIDs(unpaid) {
		c, err := s.store.LoadContract(ctx, contractID)
		if err != nil {
			s.log.WithField("contract_id", contractID).Errorf("Failed to load contract: %v", err)
			continue
		}
		for _, due := range effectiveSchedules(c) {
			if due.schedule.Status != models.PaymentUnpaid {
				continue
			}
			if t := decide(c, due, now); t != nil && s.apply(ctx, t) {
				sent++
			}
		}
	}
	return sent, nil
}

// contractIDs returns the distinct owning contracts of installments held directly by a contract,
// in first-seen order. Installments owned by an addendum are ignored here.
func contractIDs(schedules []models.PaymentSchedule) []int64 {
	seen := make(map[int64]struct{})
	var ids []int64
	for i := range schedules {
		if !schedules[i].OwnedByContract() {
			continue
		}
		id := *schedules[i].ContractID
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}

// effectiveSchedules resolves which installments count for due dates. Approved or signed
// addenda supersede the contract's own schedule; otherwise only the latest contract version
// is considered.
func effectiveSchedules(c *models.Contract) []dueSchedule {
	var due []dueSchedule
	active := c.ActiveAddenda()
	if len(active) > 0 {
		for i := range active {
			for j := range active[i].PaymentSchedules {
				due = append(due, dueSchedule{schedule: &active[i].PaymentSchedules[j], fromAddendum: true})
			}
		}
		return due
	}
	if !c.IsLatestVersion {
		return nil
	}
	for i := range c.PaymentSchedules {
		due = append(due, dueSchedule{schedule: &c.PaymentSchedules[i]})
	}
	return due
}

func (s *Scheduler) reminderTransition(c *models.Contract, due dueSchedule, now time.Time) *models.Transition {
	p := due.schedule
	if p.ReminderEmailSent {
		return nil
	}
	if due.fromAddendum {
		if p.DueDate == nil {
			return nil
		}
		if !now.After(p.DueDate.Add(-s.opts.PaymentReminderLead)) || !now.Before(*p.DueDate) {
			return nil
		}
	} else {
		if p.NotifyPaymentDate == nil || now.Before(*p.NotifyPaymentDate) {
			return nil
		}
	}
	if c.Owner == nil {
		s.log.WithField("contract_id", c.ID).Warn("Contract has no owner, skipping payment reminder")
		return nil
	}

	message := fmt.Sprintf("Installment #%d of contract %s (%s), amount %s, is due on %s.",
		p.PaymentOrder, c.ContractNumber, c.Title, p.Amount.StringFixed(2), formatDue(p.DueDate))
	return newTransition(models.TransitionPaymentReminder, c, p.ID, message, "payment-reminder", paymentProps(c, p))
}

func (s *Scheduler) overdueTransition(c *models.Contract, due dueSchedule, now time.Time) *models.Transition {
	p := due.schedule
	if p.OverdueEmailSent || p.DueDate == nil || now.Before(*p.DueDate) {
		return nil
	}
	if c.Owner == nil {
		s.log.WithField("contract_id", c.ID).Warn("Contract has no owner, skipping overdue notice")
		return nil
	}

	message := fmt.Sprintf("Installment #%d of contract %s (%s), amount %s, was due on %s and is overdue.",
		p.PaymentOrder, c.ContractNumber, c.Title, p.Amount.StringFixed(2), formatDue(p.DueDate))
	return newTransition(models.TransitionPaymentOverdue, c, p.ID, message, "payment-overdue", paymentProps(c, p))
}

func paymentProps(c *models.Contract, p *models.PaymentSchedule) map[string]string {
	return map[string]string{
		"contractNumber": c.ContractNumber,
		"contractTitle":  c.Title,
		"paymentOrder":   fmt.Sprintf("%d", p.PaymentOrder),
		"amount":         p.Amount.StringFixed(2),
		"dueDate":        formatDue(p.DueDate),
	}
}

func formatDue(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Format(dateTimeLayout)
}

// newTransition builds the notification, push and email for the contract owner.
// The email is omitted when the owner has no address.
func newTransition(kind models.TransitionKind, c *models.Contract, scheduleID int64, message, template string, props map[string]string) *models.Transition {
	props["name"] = c.Owner.DisplayName()
	props["message"] = message

	t := &models.Transition{
		Kind:       kind,
		ContractID: c.ID,
		ScheduleID: scheduleID,
		UserID:     c.Owner.ID,
		Message:    message,
		Push: &models.PushMessage{
			UserKey: c.Owner.Username,
			Topic:   PushTopic,
			Payload: map[string]any{
				"type":       string(kind),
				"message":    message,
				"contractId": c.ID,
			},
		},
	}
	if scheduleID != 0 {
		t.Push.Payload["paymentScheduleId"] = scheduleID
	}
	if c.Owner.Email != "" {
		t.Email = &models.EmailMessage{
			To:         c.Owner.Email,
			Template:   template,
			Properties: props,
		}
	}
	return t
}
