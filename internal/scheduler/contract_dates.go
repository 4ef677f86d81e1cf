package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/Dan9191/contract-service/internal/models"
)

// CheckContractDates notifies owners of contracts whose effective or expiry date falls within
// the lead window. Both bounds are exclusive: a contract at or past its date is not notified.
func (s *Scheduler) CheckContractDates(ctx context.Context, now time.Time) (int, error) {
	contracts, err := s.store.ListContracts(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to list contracts: %w", err)
	}

	sent := 0
	for i := range contracts {
		c := &contracts[i]
		if c.EffectiveDate != nil && !c.IsEffectiveNotified && s.inLeadWindow(now, *c.EffectiveDate) {
			if t := s.contractTransition(c, models.TransitionContractEffective); t != nil && s.apply(ctx, t) {
				sent++
			}
		}
		if c.ExpiryDate != nil && !c.IsExpiryNotified && s.inLeadWindow(now, *c.ExpiryDate) {
			if t := s.contractTransition(c, models.TransitionContractExpiry); t != nil && s.apply(ctx, t) {
				sent++
			}
		}
	}
	return sent, nil
}

func (s *Scheduler) inLeadWindow(now, target time.Time) bool {
	notifyFrom := target.AddDate(0, 0, -s.opts.ContractLeadDays)
	return now.After(notifyFrom) && now.Before(target)
}

func (s *Scheduler) contractTransition(c *models.Contract, kind models.TransitionKind) *models.Transition {
	if c.Owner == nil {
		s.log.WithField("contract_id", c.ID).Warn("Contract has no owner, skipping date notification")
		return nil
	}

	var (
		date     time.Time
		template string
		message  string
	)
	switch kind {
	case models.TransitionContractEffective:
		date = *c.EffectiveDate
		template = "contract-effective"
		message = fmt.Sprintf("Contract %s (%s) becomes effective on %s.", c.ContractNumber, c.Title, date.Format(dateLayout))
	default:
		date = *c.ExpiryDate
		template = "contract-expiry"
		message = fmt.Sprintf("Contract %s (%s) expires on %s.", c.ContractNumber, c.Title, date.Format(dateLayout))
	}

	return newTransition(kind, c, 0, message, template, map[string]string{
		"contractNumber": c.ContractNumber,
		"contractTitle":  c.Title,
		"date":           date.Format(dateLayout),
	})
}
