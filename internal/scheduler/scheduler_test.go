package scheduler

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/Dan9191/contract-service/internal/models"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore keeps contracts in memory and applies transitions with the same
// guard as the SQL store: a flag already set means the transition is rejected.
type memStore struct {
	contracts map[int64]*models.Contract
	order     []int64
	applied   []models.Transition
	loadErr   map[int64]error
}

func newMemStore(contracts ...*models.Contract) *memStore {
	s := &memStore{contracts: make(map[int64]*models.Contract), loadErr: make(map[int64]error)}
	for _, c := range contracts {
		s.contracts[c.ID] = c
		s.order = append(s.order, c.ID)
	}
	return s
}

func (s *memStore) ListContracts(context.Context) ([]models.Contract, error) {
	var out []models.Contract
	for _, id := range s.order {
		out = append(out, cloneContract(s.contracts[id]))
	}
	return out, nil
}

func (s *memStore) ListUnpaidPaymentSchedules(context.Context) ([]models.PaymentSchedule, error) {
	var out []models.PaymentSchedule
	for _, id := range s.order {
		c := s.contracts[id]
		for _, p := range c.PaymentSchedules {
			if p.Status == models.PaymentUnpaid {
				out = append(out, p)
			}
		}
		for _, a := range c.Addenda {
			for _, p := range a.PaymentSchedules {
				if p.Status == models.PaymentUnpaid {
					out = append(out, p)
				}
			}
		}
	}
	return out, nil
}

func (s *memStore) LoadContract(_ context.Context, id int64) (*models.Contract, error) {
	if err := s.loadErr[id]; err != nil {
		return nil, err
	}
	c, ok := s.contracts[id]
	if !ok {
		return nil, errors.New("not found")
	}
	clone := cloneContract(c)
	return &clone, nil
}

func (s *memStore) ApplyTransition(_ context.Context, t *models.Transition) (bool, error) {
	c := s.contracts[t.ContractID]
	switch t.Kind {
	case models.TransitionContractEffective:
		if c.IsEffectiveNotified {
			return false, nil
		}
		c.IsEffectiveNotified = true
	case models.TransitionContractExpiry:
		if c.IsExpiryNotified {
			return false, nil
		}
		c.IsExpiryNotified = true
	case models.TransitionPaymentReminder, models.TransitionPaymentOverdue:
		p := s.schedule(t.ScheduleID)
		if p == nil {
			return false, errors.New("schedule not found")
		}
		if t.Kind == models.TransitionPaymentReminder {
			if p.ReminderEmailSent {
				return false, nil
			}
			p.ReminderEmailSent = true
		} else {
			if p.OverdueEmailSent || p.Status != models.PaymentUnpaid {
				return false, nil
			}
			p.OverdueEmailSent = true
			p.Status = models.PaymentOverdue
		}
	}
	s.applied = append(s.applied, *t)
	return true, nil
}

func (s *memStore) schedule(id int64) *models.PaymentSchedule {
	for _, c := range s.contracts {
		for i := range c.PaymentSchedules {
			if c.PaymentSchedules[i].ID == id {
				return &c.PaymentSchedules[i]
			}
		}
		for i := range c.Addenda {
			for j := range c.Addenda[i].PaymentSchedules {
				if c.Addenda[i].PaymentSchedules[j].ID == id {
					return &c.Addenda[i].PaymentSchedules[j]
				}
			}
		}
	}
	return nil
}

func cloneContract(c *models.Contract) models.Contract {
	clone := *c
	clone.PaymentSchedules = append([]models.PaymentSchedule(nil), c.PaymentSchedules...)
	clone.Addenda = nil
	for _, a := range c.Addenda {
		a.PaymentSchedules = append([]models.PaymentSchedule(nil), a.PaymentSchedules...)
		clone.Addenda = append(clone.Addenda, a)
	}
	return clone
}

var now = time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)

func newTestScheduler(store Store) *Scheduler {
	log := logrus.New()
	log.SetOutput(io.Discard)
	s := New(store, nil, log, DefaultOptions())
	s.now = func() time.Time { return now }
	return s
}

func ptr[T any](v T) *T { return &v }

func owner() *models.User {
	return &models.User{ID: 7, Username: "lan", Email: "lan@example.com", FullName: "Nguyen Lan"}
}

func contractWithDates(id int64, effective, expiry *time.Time) *models.Contract {
	return &models.Contract{
		ID:              id,
		ContractNumber:  "HD-001",
		Title:           "Office lease",
		OwnerID:         7,
		Owner:           owner(),
		EffectiveDate:   effective,
		ExpiryDate:      expiry,
		IsLatestVersion: true,
	}
}

func contractSchedule(id, contractID int64, due, notify *time.Time) models.PaymentSchedule {
	return models.PaymentSchedule{
		ID:                id,
		ContractID:        ptr(contractID),
		PaymentOrder:      1,
		Amount:            decimal.NewFromInt(1500),
		DueDate:           due,
		NotifyPaymentDate: notify,
		Status:            models.PaymentUnpaid,
	}
}

func addendumSchedule(id, addendumID int64, due time.Time) models.PaymentSchedule {
	return models.PaymentSchedule{
		ID:           id,
		AddendumID:   ptr(addendumID),
		PaymentOrder: 1,
		Amount:       decimal.NewFromInt(900),
		DueDate:      ptr(due),
		Status:       models.PaymentUnpaid,
	}
}

func TestCheckContractDates_EffectiveWindow(t *testing.T) {
	store := newMemStore(contractWithDates(1, ptr(now.AddDate(0, 0, 2)), nil))
	s := newTestScheduler(store)

	sent, err := s.CheckContractDates(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, store.contracts[1].IsEffectiveNotified)
	require.Len(t, store.applied, 1)

	tr := store.applied[0]
	assert.Equal(t, models.TransitionContractEffective, tr.Kind)
	assert.Equal(t, int64(7), tr.UserID)
	require.NotNil(t, tr.Email)
	assert.Equal(t, "contract-effective", tr.Email.Template)
	assert.Equal(t, "lan@example.com", tr.Email.To)
	require.NotNil(t, tr.Push)
	assert.Equal(t, "lan", tr.Push.UserKey)
	assert.Equal(t, int64(1), tr.Push.Payload["contractId"])

	// same instant again: nothing new
	sent, err = s.CheckContractDates(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Len(t, store.applied, 1)
}

func TestCheckContractDates_Boundaries(t *testing.T) {
	tests := []struct {
		name      string
		effective time.Time
		want      int
	}{
		{"at target", now, 0},
		{"past target", now.Add(-time.Hour), 0},
		{"exactly lead days before", now.AddDate(0, 0, 5), 0},
		{"just inside lead window", now.AddDate(0, 0, 5).Add(-time.Minute), 1},
		{"far in the future", now.AddDate(0, 1, 0), 0},
		{"one second before target", now.Add(time.Second), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := newMemStore(contractWithDates(1, ptr(tt.effective), nil))
			s := newTestScheduler(store)

			sent, err := s.CheckContractDates(context.Background(), now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, sent)
			assert.Equal(t, tt.want == 1, store.contracts[1].IsEffectiveNotified)
		})
	}
}

func TestCheckContractDates_ExpiryAndEffectiveIndependent(t *testing.T) {
	c := contractWithDates(1, ptr(now.AddDate(0, 0, 1)), ptr(now.AddDate(0, 0, 3)))
	c.IsEffectiveNotified = true
	store := newMemStore(c)
	s := newTestScheduler(store)

	sent, err := s.CheckContractDates(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, store.applied, 1)
	assert.Equal(t, models.TransitionContractExpiry, store.applied[0].Kind)
	assert.True(t, store.contracts[1].IsExpiryNotified)
}

func TestCheckContractDates_NoOwnerSkipped(t *testing.T) {
	c := contractWithDates(1, ptr(now.AddDate(0, 0, 1)), nil)
	c.Owner = nil
	store := newMemStore(c)
	s := newTestScheduler(store)

	sent, err := s.CheckContractDates(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.False(t, store.contracts[1].IsEffectiveNotified)
}

func TestCheckPaymentsDue_ContractReminder(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	c.PaymentSchedules = []models.PaymentSchedule{
		contractSchedule(10, 1, ptr(now.AddDate(0, 0, 3)), ptr(now.Add(-time.Minute))),
		contractSchedule(11, 1, ptr(now.AddDate(0, 1, 0)), ptr(now.AddDate(0, 0, 20))),
	}
	store := newMemStore(c)
	s := newTestScheduler(store)

	sent, err := s.CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, store.applied, 1)
	assert.Equal(t, models.TransitionPaymentReminder, store.applied[0].Kind)
	assert.Equal(t, int64(10), store.applied[0].ScheduleID)
	assert.Equal(t, "payment-reminder", store.applied[0].Email.Template)
	assert.Equal(t, "1500.00", store.applied[0].Email.Properties["amount"])
	assert.True(t, store.schedule(10).ReminderEmailSent)
	assert.False(t, store.schedule(11).ReminderEmailSent)

	sent, err = s.CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.True(t, store.schedule(10).ReminderEmailSent)
}

func TestCheckPaymentsDue_NotifyDateBoundaryIsInclusive(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	c.PaymentSchedules = []models.PaymentSchedule{contractSchedule(10, 1, ptr(now.AddDate(0, 0, 3)), ptr(now))}
	store := newMemStore(c)

	sent, err := newTestScheduler(store).CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
}

func TestCheckPaymentsDue_AddendumSupersedesContract(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	// contract schedule would trigger both reminder and overdue if it were evaluated
	c.PaymentSchedules = []models.PaymentSchedule{
		contractSchedule(10, 1, ptr(now.Add(-time.Hour)), ptr(now.AddDate(0, 0, -2))),
	}
	c.Addenda = []models.Addendum{{
		ID:               3,
		ContractID:       1,
		Status:           models.AddendumStatusApproved,
		PaymentSchedules: []models.PaymentSchedule{addendumSchedule(20, 3, now.Add(2*time.Minute))},
	}}
	store := newMemStore(c)
	s := newTestScheduler(store)

	sent, err := s.CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, store.applied, 1)
	assert.Equal(t, int64(20), store.applied[0].ScheduleID)
	assert.Equal(t, models.TransitionPaymentReminder, store.applied[0].Kind)

	own := store.schedule(10)
	assert.False(t, own.ReminderEmailSent)
	assert.False(t, own.OverdueEmailSent)
	assert.Equal(t, models.PaymentUnpaid, own.Status)
}

func TestCheckPaymentsDue_AddendumReminderWindow(t *testing.T) {
	tests := []struct {
		name string
		due  time.Time
		want bool
	}{
		{"inside lead", now.Add(4 * time.Minute), true},
		{"exactly lead away", now.Add(5 * time.Minute), false},
		{"too early", now.Add(time.Hour), false},
		{"at due date", now, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := contractWithDates(1, nil, nil)
			c.PaymentSchedules = []models.PaymentSchedule{contractSchedule(10, 1, nil, nil)}
			c.Addenda = []models.Addendum{{
				ID: 3, ContractID: 1, Status: models.AddendumStatusSigned,
				PaymentSchedules: []models.PaymentSchedule{addendumSchedule(20, 3, tt.due)},
			}}
			store := newMemStore(c)
			s := newTestScheduler(store)

			_, err := s.CheckPaymentsDue(context.Background(), now)
			require.NoError(t, err)
			assert.Equal(t, tt.want, store.schedule(20).ReminderEmailSent)
		})
	}
}

func TestCheckPaymentsDue_PendingAddendumDoesNotSupersede(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	c.PaymentSchedules = []models.PaymentSchedule{contractSchedule(10, 1, nil, ptr(now.Add(-time.Minute)))}
	c.Addenda = []models.Addendum{{
		ID: 3, ContractID: 1, Status: models.AddendumStatusApprovalPending,
		PaymentSchedules: []models.PaymentSchedule{addendumSchedule(20, 3, now.Add(time.Minute))},
	}}
	store := newMemStore(c)

	sent, err := newTestScheduler(store).CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.True(t, store.schedule(10).ReminderEmailSent)
	assert.False(t, store.schedule(20).ReminderEmailSent)
}

func TestCheckPaymentsDue_StaleVersionSkipped(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	c.IsLatestVersion = false
	c.PaymentSchedules = []models.PaymentSchedule{
		contractSchedule(10, 1, ptr(now.Add(-time.Hour)), ptr(now.AddDate(0, 0, -1))),
	}
	store := newMemStore(c)

	sent, err := newTestScheduler(store).CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Empty(t, store.applied)
}

func TestCheckPaymentsDue_Overdue(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	p := contractSchedule(10, 1, ptr(now.Add(-time.Hour)), nil)
	c.PaymentSchedules = []models.PaymentSchedule{p}
	store := newMemStore(c)
	s := newTestScheduler(store)

	sent, err := s.CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)

	got := store.schedule(10)
	assert.Equal(t, models.PaymentOverdue, got.Status)
	assert.True(t, got.OverdueEmailSent)
	require.Len(t, store.applied, 1)
	assert.Equal(t, "payment-overdue", store.applied[0].Email.Template)

	// now OVERDUE, so it is no longer listed as unpaid and nothing moves backwards
	sent, err = s.CheckPaymentsDue(context.Background(), now.Add(time.Hour))
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, models.PaymentOverdue, store.schedule(10).Status)
}

func TestCheckPaymentsDue_OverdueAtDueInstant(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	c.PaymentSchedules = []models.PaymentSchedule{contractSchedule(10, 1, ptr(now), nil)}
	store := newMemStore(c)

	sent, err := newTestScheduler(store).CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, models.PaymentOverdue, store.schedule(10).Status)
}

func TestCheckPaymentsDue_PaidScheduleNeverOverdue(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	paid := contractSchedule(10, 1, ptr(now.Add(-time.Hour)), ptr(now.AddDate(0, 0, -1)))
	paid.Status = models.PaymentPaid
	unpaid := contractSchedule(11, 1, ptr(now.AddDate(0, 1, 0)), nil)
	c.PaymentSchedules = []models.PaymentSchedule{paid, unpaid}
	store := newMemStore(c)

	sent, err := newTestScheduler(store).CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, sent)
	assert.Equal(t, models.PaymentPaid, store.schedule(10).Status)
	assert.False(t, store.schedule(10).OverdueEmailSent)
}

func TestCheckPaymentsDue_ReminderAndOverdueInOneRun(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	c.PaymentSchedules = []models.PaymentSchedule{
		contractSchedule(10, 1, ptr(now.Add(-time.Minute)), ptr(now.AddDate(0, 0, -3))),
	}
	store := newMemStore(c)

	sent, err := newTestScheduler(store).CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 2, sent)
	require.Len(t, store.applied, 2)
	assert.Equal(t, models.TransitionPaymentReminder, store.applied[0].Kind)
	assert.Equal(t, models.TransitionPaymentOverdue, store.applied[1].Kind)
}

func TestCheckPaymentsDue_BadContractDoesNotAbortBatch(t *testing.T) {
	broken := contractWithDates(1, nil, nil)
	broken.PaymentSchedules = []models.PaymentSchedule{contractSchedule(10, 1, ptr(now.Add(-time.Hour)), nil)}
	healthy := contractWithDates(2, nil, nil)
	healthy.PaymentSchedules = []models.PaymentSchedule{contractSchedule(20, 2, ptr(now.Add(-time.Hour)), nil)}
	store := newMemStore(broken, healthy)
	store.loadErr[1] = errors.New("connection reset")

	sent, err := newTestScheduler(store).CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	assert.Equal(t, models.PaymentOverdue, store.schedule(20).Status)
	assert.Equal(t, models.PaymentUnpaid, store.schedule(10).Status)
}

func TestCheckPaymentsDue_OwnerWithoutEmail(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	c.Owner.Email = ""
	c.PaymentSchedules = []models.PaymentSchedule{contractSchedule(10, 1, ptr(now.Add(-time.Hour)), nil)}
	store := newMemStore(c)

	sent, err := newTestScheduler(store).CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Equal(t, 1, sent)
	require.Len(t, store.applied, 1)
	assert.Nil(t, store.applied[0].Email)
	assert.NotNil(t, store.applied[0].Push)
	assert.Contains(t, store.applied[0].Message, "overdue")
}

type rejectingStore struct{ *memStore }

func (rejectingStore) ApplyTransition(context.Context, *models.Transition) (bool, error) {
	return false, nil
}

func TestCheckPaymentsDue_GuardRejectionNotCounted(t *testing.T) {
	c := contractWithDates(1, nil, nil)
	c.PaymentSchedules = []models.PaymentSchedule{contractSchedule(10, 1, ptr(now.Add(-time.Hour)), nil)}

	sent, err := newTestScheduler(rejectingStore{newMemStore(c)}).CheckPaymentsDue(context.Background(), now)
	require.NoError(t, err)
	assert.Zero(t, sent)
}

func TestContractIDs_SkipsAddendumSchedules(t *testing.T) {
	ids := contractIDs([]models.PaymentSchedule{
		contractSchedule(1, 5, nil, nil),
		addendumSchedule(2, 9, now),
		contractSchedule(3, 5, nil, nil),
		contractSchedule(4, 6, nil, nil),
	})
	assert.Equal(t, []int64{5, 6}, ids)
}
