// Package scheduler scans contracts and payment schedules and turns due dates into
// one-shot notifications.
//
// Every state change goes through Store.ApplyTransition, which flips the flag only if it is
// still unset and queues the email and push messages in the same transaction. Transport
// dispatch is left to the outbox worker.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Dan9191/contract-service/internal/lock"
	"github.com/Dan9191/contract-service/internal/models"
	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"
)

// Store is the persistence the scheduler reads from and writes transitions to
type Store interface {
	ListContracts(ctx context.Context) ([]models.Contract, error)
	ListUnpaidPaymentSchedules(ctx context.Context) ([]models.PaymentSchedule, error)
	// LoadContract returns the contract with owner, own schedules and addenda with their schedules
	LoadContract(ctx context.Context, id int64) (*models.Contract, error)
	// ApplyTransition reports false when the guarded flag was already set
	ApplyTransition(ctx context.Context, t *models.Transition) (bool, error)
}

// Options tune the windows and triggers
type Options struct {
	ContractCheckSpec    string
	PaymentCheckInterval time.Duration
	ContractLeadDays     int
	PaymentReminderLead  time.Duration
	LockTTL              time.Duration
}

// DefaultOptions returns the production windows
func DefaultOptions() Options {
	return Options{
		ContractCheckSpec:    "0 8 * * *",
		PaymentCheckInterval: 60 * time.Second,
		ContractLeadDays:     5,
		PaymentReminderLead:  5 * time.Minute,
		LockTTL:              5 * time.Minute,
	}
}

const releaseTimeout = 5 * time.Second

const (
	contractDatesJob = "contract-dates"
	paymentsDueJob   = "payments-due"
)

// Scheduler runs the contract date and payment due checks
type Scheduler struct {
	store  Store
	locker lock.Locker
	log    *logrus.Logger
	opts   Options
	now    func() time.Time
}

// New creates a scheduler. A nil locker means a single instance deployment.
func New(store Store, locker lock.Locker, log *logrus.Logger, opts Options) *Scheduler {
	if locker == nil {
		locker = lock.Local{}
	}
	return &Scheduler{
		store:  store,
		locker: locker,
		log:    log,
		opts:   opts,
		now:    time.Now,
	}
}

// Start registers the daily contract date check with cron and starts the fixed-delay
// payment loop. The returned function stops both and waits for running jobs.
func (s *Scheduler) Start(ctx context.Context) (func(), error) {
	cronLog := cron.VerbosePrintfLogger(s.log)
	c := cron.New(
		cron.WithLogger(cronLog),
		cron.WithChain(cron.Recover(cronLog), cron.DelayIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(s.opts.ContractCheckSpec, func() {
		s.run(ctx, contractDatesJob, s.CheckContractDates)
	}); err != nil {
		return nil, fmt.Errorf("invalid contract check spec %q: %w", s.opts.ContractCheckSpec, err)
	}
	c.Start()

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.fixedDelay(loopCtx, s.opts.PaymentCheckInterval, func() {
			s.run(loopCtx, paymentsDueJob, s.CheckPaymentsDue)
		})
	}()

	s.log.Infof("Scheduler started: contract dates %q, payments every %s after completion",
		s.opts.ContractCheckSpec, s.opts.PaymentCheckInterval)

	return func() {
		cancel()
		<-c.Stop().Done()
		<-done
	}, nil
}

// fixedDelay runs fn, then waits interval after it returns, until ctx is done
func (s *Scheduler) fixedDelay(ctx context.Context, interval time.Duration, fn func()) {
	timer := time.NewTimer(interval)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}
		fn()
		timer.Reset(interval)
	}
}

func (s *Scheduler) run(ctx context.Context, job string, check func(context.Context, time.Time) (int, error)) {
	logger := s.log.WithField("job", job)
	defer func() {
		if r := recover(); r != nil {
			logger.Errorf("Job panicked: %v", r)
		}
	}()

	l, err := s.locker.Acquire(ctx, "scheduler:"+job, s.opts.LockTTL)
	if errors.Is(err, lock.ErrNotAcquired) {
		logger.Debug("Job skipped, another instance holds the lock")
		return
	}
	if err != nil {
		logger.Errorf("Failed to acquire job lock: %v", err)
		return
	}
	defer func() {
		// the job ctx is already cancelled on shutdown
		releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		if err := l.Release(releaseCtx); err != nil {
			logger.Warnf("Failed to release job lock: %v", err)
		}
	}()

	started := s.now()
	sent, err := check(ctx, started)
	if err != nil {
		logger.Errorf("Job failed: %v", err)
		return
	}
	logger.WithFields(logrus.Fields{
		"transitions": sent,
		"elapsed":     time.Since(started).String(),
	}).Debug("Job finished")
}

func (s *Scheduler) apply(ctx context.Context, t *models.Transition) bool {
	logger := s.log.WithFields(logrus.Fields{
		"kind":        t.Kind,
		"contract_id": t.ContractID,
		"schedule_id": t.ScheduleID,
	})
	applied, err := s.store.ApplyTransition(ctx, t)
	if err != nil {
		logger.Errorf("Failed to apply transition: %v", err)
		return false
	}
	if !applied {
		logger.Debug("Transition already applied by another run")
		return false
	}
	logger.Info("Transition applied")
	return true
}
