package services

import (
	"context"
	"sync"
	"time"

	"github.com/numvend/numvend/internal/logging"
	"github.com/numvend/numvend/internal/models"
	"github.com/numvend/numvend/internal/observability"
	"github.com/numvend/numvend/internal/redisclient"
	"github.com/numvend/numvend/internal/repositories"
	"go.uber.org/zap"
)

const sweepBatchSize = 500

// Notifier delivers expiry warnings to an external channel. The core
// only guarantees each warning is emitted once.
type Notifier interface {
	NotifyExpiryWarning(ctx context.Context, rental *models.Rental)
}

// LogNotifier is the default Notifier: it just logs the warning.
type LogNotifier struct{}

func (LogNotifier) NotifyExpiryWarning(_ context.Context, rental *models.Rental) {
	logging.Logger.Info("rental expiry warning",
		zap.String("rental_id", rental.ID),
		zap.String("account_id", rental.AccountID),
		zap.Time("expires_at", rental.ExpiresAt))
}

// WarningFlags provides cross-instance idempotency for expiry
// warnings. AcquireWarning returns true for exactly one caller per
// rental.
type WarningFlags interface {
	AcquireWarning(ctx context.Context, rentalID string, ttl time.Duration) bool
}

// RedisWarningFlags implements WarningFlags with SETNX, so concurrent
// sweeps on different instances can't double-warn.
type RedisWarningFlags struct {
	redis *redisclient.Client
}

// NewRedisWarningFlags creates Redis-backed warning flags.
func NewRedisWarningFlags(redis *redisclient.Client) *RedisWarningFlags {
	return &RedisWarningFlags{redis: redis}
}

func (f *RedisWarningFlags) AcquireWarning(ctx context.Context, rentalID string, ttl time.Duration) bool {
	ok, err := f.redis.SetNX(ctx, "rental:warned:"+rentalID, "1", ttl).Result()
	if err != nil {
		// Fall back to the persisted warned flag as the only guard
		logging.Logger.Warn("warning flag SETNX failed",
			zap.String("rental_id", rentalID),
			zap.Error(err))
		return true
	}
	return ok
}

// MemoryWarningFlags is the in-process fallback when Redis is absent.
type MemoryWarningFlags struct {
	mu    sync.Mutex
	flags map[string]bool
}

// NewMemoryWarningFlags creates in-memory warning flags.
func NewMemoryWarningFlags() *MemoryWarningFlags {
	return &MemoryWarningFlags{flags: make(map[string]bool)}
}

func (f *MemoryWarningFlags) AcquireWarning(_ context.Context, rentalID string, _ time.Duration) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.flags[rentalID] {
		return false
	}
	f.flags[rentalID] = true
	return true
}

// ExpiryScheduler is the recurring background sweep over pending
// verifications and active rentals. All of its transitions are
// state-guarded, so running concurrently with user actions (or another
// scheduler instance) is safe: the race loser's update is a no-op.
type ExpiryScheduler struct {
	verifications *VerificationService
	rentals       *RentalService
	vrepo         repositories.VerificationRepository
	rrepo         repositories.RentalRepository
	flags         WarningFlags
	notifier      Notifier

	interval   time.Duration
	warnWindow time.Duration

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup

	now func() time.Time
}

// NewExpiryScheduler creates a scheduler. interval is the sweep
// cadence; warnWindow how long before expiry the warning fires.
func NewExpiryScheduler(
	verifications *VerificationService,
	rentals *RentalService,
	vrepo repositories.VerificationRepository,
	rrepo repositories.RentalRepository,
	flags WarningFlags,
	notifier Notifier,
	interval, warnWindow time.Duration,
) *ExpiryScheduler {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	if warnWindow <= 0 {
		warnWindow = time.Hour
	}
	if notifier == nil {
		notifier = LogNotifier{}
	}
	if flags == nil {
		flags = NewMemoryWarningFlags()
	}
	return &ExpiryScheduler{
		verifications: verifications,
		rentals:       rentals,
		vrepo:         vrepo,
		rrepo:         rrepo,
		flags:         flags,
		notifier:      notifier,
		interval:      interval,
		warnWindow:    warnWindow,
		stopChan:      make(chan struct{}),
		now:           time.Now,
	}
}

// Start launches the sweep loop in a background goroutine.
func (s *ExpiryScheduler) Start() {
	s.wg.Add(1)
	go s.loop()
	logging.Logger.Info("expiry scheduler started",
		zap.Duration("interval", s.interval),
		zap.Duration("warn_window", s.warnWindow))
}

// Stop terminates the sweep loop and waits for an in-flight sweep to
// finish.
func (s *ExpiryScheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	logging.Logger.Info("expiry scheduler stopped")
}

func (s *ExpiryScheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopChan:
			return
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), s.interval)
			if err := s.Sweep(ctx); err != nil {
				logging.Logger.Error("sweep failed", zap.Error(err))
			}
			cancel()
		}
	}
}

// Sweep runs one pass: expire overdue verifications, renew or expire
// due rentals, and emit one-hour warnings for rentals nearing expiry.
func (s *ExpiryScheduler) Sweep(ctx context.Context) error {
	start := time.Now()
	now := s.now()

	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	record(s.sweepVerifications(ctx, now))
	record(s.sweepDueRentals(ctx, now))
	record(s.sweepWarnings(ctx, now))

	status := "success"
	if firstErr != nil {
		status = "error"
	}
	observability.SweepRuns.WithLabelValues(status).Inc()

	logging.Logger.Debug("sweep finished",
		zap.Duration("took", time.Since(start)),
		zap.String("status", status))
	return firstErr
}

func (s *ExpiryScheduler) sweepVerifications(ctx context.Context, now time.Time) error {
	overdue, err := s.vrepo.ListExpired(ctx, now, sweepBatchSize)
	if err != nil {
		return err
	}

	for i := range overdue {
		v := &overdue[i]
		won, err := s.verifications.Expire(ctx, v)
		if err != nil {
			logging.Logger.Error("failed to expire verification",
				zap.String("verification_id", v.ID),
				zap.Error(err))
			continue
		}
		if won {
			observability.SweepTransitions.WithLabelValues("verification", "expired").Inc()
		}
	}
	return nil
}

func (s *ExpiryScheduler) sweepDueRentals(ctx context.Context, now time.Time) error {
	due, err := s.rrepo.ListDue(ctx, now, sweepBatchSize)
	if err != nil {
		return err
	}

	for i := range due {
		rental := &due[i]

		if rental.AutoExtend {
			extended, err := s.rentals.Renew(ctx, rental)
			if err != nil {
				logging.Logger.Error("failed to renew rental",
					zap.String("rental_id", rental.ID),
					zap.Error(err))
				continue
			}
			if extended {
				observability.SweepTransitions.WithLabelValues("rental", "extended").Inc()
			} else {
				observability.SweepTransitions.WithLabelValues("rental", "expired").Inc()
			}
			continue
		}

		won, err := s.rentals.Expire(ctx, rental.ID)
		if err != nil {
			logging.Logger.Error("failed to expire rental",
				zap.String("rental_id", rental.ID),
				zap.Error(err))
			continue
		}
		if won {
			observability.SweepTransitions.WithLabelValues("rental", "expired").Inc()
		}
	}
	return nil
}

func (s *ExpiryScheduler) sweepWarnings(ctx context.Context, now time.Time) error {
	warnable, err := s.rrepo.ListWarnable(ctx, now, s.warnWindow, sweepBatchSize)
	if err != nil {
		return err
	}

	for i := range warnable {
		rental := &warnable[i]

		// Two guards: the SETNX flag stops concurrent sweeps, the
		// persisted warned flag stops re-warning after a restart.
		if !s.flags.AcquireWarning(ctx, rental.ID, 2*s.warnWindow) {
			continue
		}
		won, err := s.rrepo.MarkWarned(ctx, rental.ID)
		if err != nil {
			logging.Logger.Error("failed to mark rental warned",
				zap.String("rental_id", rental.ID),
				zap.Error(err))
			continue
		}
		if !won {
			continue
		}

		s.notifier.NotifyExpiryWarning(ctx, rental)
		observability.SweepTransitions.WithLabelValues("rental", "warned").Inc()
	}
	return nil
}
