package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/venue-booking/internal/clock"
	"github.com/iliyamo/venue-booking/internal/repository"
	"github.com/iliyamo/venue-booking/internal/service"
)

// Job names, also used as the "job" log field.
const (
	JobSeatLocks   = "seat-locks"
	JobOrderExpiry = "order-expiry"
	JobHealth      = "health"
	JobDeep        = "deep"
)

// Schedule sets how often each sweep runs.
type Schedule struct {
	SeatLocks   time.Duration
	OrderExpiry time.Duration
	Health      time.Duration
	Deep        time.Duration
	// Retention is how long EXPIRED orders keep their bookings, and how
	// long a seat may stay RESERVED before it is reset unconditionally.
	Retention time.Duration
	BatchSize int
}

// DefaultSchedule is one minute, five minutes, ten minutes and one hour
// with a day of retention.
func DefaultSchedule() Schedule {
	return Schedule{
		SeatLocks:   time.Minute,
		OrderExpiry: 5 * time.Minute,
		Health:      10 * time.Minute,
		Deep:        time.Hour,
		Retention:   24 * time.Hour,
		BatchSize:   100,
	}
}

// Report summarises one sweep run.
type Report struct {
	Job      string        `json:"job"`
	Affected int64         `json:"affected"`
	Failed   int           `json:"failed"`
	Duration time.Duration `json:"duration"`
}

// CleanupReport is returned by EmergencyCleanup.
type CleanupReport struct {
	SuppressorCleared int   `json:"suppressor_cleared"`
	ReleasedLocks     int64 `json:"released_locks"`
	ExpiredOrders     int64 `json:"expired_orders"`
	FailedOrders      int   `json:"failed_orders"`
}

// Sweeper runs the periodic reclamation jobs.  Every job is idempotent and
// a failure on one item is logged and skipped so the rest still get
// reclaimed.
type Sweeper struct {
	svc      *service.BookingService
	seats    *repository.SeatRepo
	bookings *repository.SeatBookingRepo
	orders   *repository.OrderRepo
	clock    clock.Clock
	sched    Schedule

	mu         sync.RWMutex
	lastHealth *service.HealthStats

	wg sync.WaitGroup
}

// NewSweeper wires a Sweeper.  Zero schedule fields take their defaults.
func NewSweeper(db *sql.DB, svc *service.BookingService, sched Schedule, clk clock.Clock) *Sweeper {
	def := DefaultSchedule()
	if sched.SeatLocks <= 0 {
		sched.SeatLocks = def.SeatLocks
	}
	if sched.OrderExpiry <= 0 {
		sched.OrderExpiry = def.OrderExpiry
	}
	if sched.Health <= 0 {
		sched.Health = def.Health
	}
	if sched.Deep <= 0 {
		sched.Deep = def.Deep
	}
	if sched.Retention <= 0 {
		sched.Retention = def.Retention
	}
	if sched.BatchSize <= 0 {
		sched.BatchSize = def.BatchSize
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Sweeper{
		svc:      svc,
		seats:    repository.NewSeatRepo(db),
		bookings: repository.NewSeatBookingRepo(db),
		orders:   repository.NewOrderRepo(db),
		clock:    clk,
		sched:    sched,
	}
}

// Start launches one goroutine per job.  They stop when ctx is cancelled;
// Wait blocks until they have.
func (s *Sweeper) Start(ctx context.Context) {
	s.loop(ctx, JobSeatLocks, s.sched.SeatLocks, s.SweepSeatLocks)
	s.loop(ctx, JobOrderExpiry, s.sched.OrderExpiry, s.SweepExpiredOrders)
	s.loop(ctx, JobHealth, s.sched.Health, s.SweepHealth)
	s.loop(ctx, JobDeep, s.sched.Deep, s.SweepDeep)
}

// Wait blocks until every job goroutine has returned.
func (s *Sweeper) Wait() { s.wg.Wait() }

func (s *Sweeper) loop(ctx context.Context, job string, every time.Duration, run func(context.Context) (Report, error)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(every)
		defer ticker.Stop()
		log := logrus.WithField("job", job)
		log.WithField("interval", every.String()).Info("sweeper started")
		for {
			select {
			case <-ctx.Done():
				log.Info("sweeper stopped")
				return
			case <-ticker.C:
				rep, err := run(ctx)
				if err != nil {
					log.WithError(err).Error("sweep failed")
					continue
				}
				entry := log.WithFields(logrus.Fields{
					"affected": rep.Affected,
					"failed":   rep.Failed,
					"duration": rep.Duration.String(),
				})
				if rep.Failed > 0 {
					entry.Warn("sweep finished with failures")
				} else {
					entry.Debug("sweep finished")
				}
			}
		}
	}()
}

// SweepSeatLocks resets every RESERVED seat whose lock has lapsed and drops
// expired suppressor entries.
func (s *Sweeper) SweepSeatLocks(ctx context.Context) (Report, error) {
	start := s.clock.Now()
	rep := Report{Job: JobSeatLocks}
	s.svc.Suppressor().Purge()
	n, err := s.seats.ReleaseExpiredLocks(ctx, start)
	if err != nil {
		return rep, err
	}
	rep.Affected = n
	rep.Duration = s.clock.Now().Sub(start)
	if n > 0 {
		logrus.WithFields(logrus.Fields{"job": JobSeatLocks, "released": n}).Info("released expired seat locks")
	}
	return rep, nil
}

// SweepExpiredOrders expires PENDING orders past their expiry, one
// transaction per order, in batches.
func (s *Sweeper) SweepExpiredOrders(ctx context.Context) (Report, error) {
	start := s.clock.Now()
	rep := Report{Job: JobOrderExpiry}
	for {
		ids, err := s.orders.ListExpiredPending(ctx, s.clock.Now(), s.sched.BatchSize)
		if err != nil {
			return rep, fmt.Errorf("list expired orders: %w", err)
		}
		var progressed int64
		for _, id := range ids {
			if ctx.Err() != nil {
				return rep, ctx.Err()
			}
			expired, err := s.svc.ExpireOrder(ctx, id)
			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{"job": JobOrderExpiry, "order_id": id}).Error("failed to expire order")
				rep.Failed++
				continue
			}
			if expired {
				progressed++
			}
		}
		rep.Affected += progressed
		// a short batch is the last one; a batch with no progress would
		// come back unchanged
		if len(ids) < s.sched.BatchSize || progressed == 0 {
			break
		}
	}
	rep.Duration = s.clock.Now().Sub(start)
	return rep, nil
}

// SweepHealth collects the health counters, purges orphaned bookings and
// keeps the counters for LastHealth.
func (s *Sweeper) SweepHealth(ctx context.Context) (Report, error) {
	start := s.clock.Now()
	rep := Report{Job: JobHealth}
	stats, err := s.svc.Health(ctx)
	if err != nil {
		return rep, err
	}
	if stats.OrphanedBookings > 0 {
		orphans, err := s.bookings.ListOrphans(ctx, s.sched.BatchSize)
		if err != nil {
			return rep, fmt.Errorf("list orphaned bookings: %w", err)
		}
		for _, b := range orphans {
			deleted, err := s.svc.Writer().PurgeOrphan(ctx, b)
			if err != nil {
				logrus.WithError(err).WithFields(logrus.Fields{"job": JobHealth, "booking_id": b.ID}).Error("failed to purge orphaned booking")
				rep.Failed++
				continue
			}
			if deleted {
				rep.Affected++
			}
		}
	}
	s.mu.Lock()
	s.lastHealth = &stats
	s.mu.Unlock()
	logrus.WithFields(logrus.Fields{
		"job":                JobHealth,
		"active_orders":      stats.ActiveOrders,
		"locked_seats":       stats.LockedSeats,
		"pending_bookings":   stats.PendingBookings,
		"orphaned_bookings":  stats.OrphanedBookings,
		"suppressor_entries": stats.SuppressorEntries,
		"purged_orphans":     rep.Affected,
	}).Info("booking health")
	rep.Duration = s.clock.Now().Sub(start)
	return rep, nil
}

// SweepDeep deletes bookings of orders expired longer than the retention
// window and force-resets seats RESERVED for longer than that window.
func (s *Sweeper) SweepDeep(ctx context.Context) (Report, error) {
	start := s.clock.Now()
	rep := Report{Job: JobDeep}
	cutoff := start.Add(-s.sched.Retention)
	deleted, err := s.bookings.DeleteForExpiredOrders(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).WithField("job", JobDeep).Error("failed to delete expired bookings")
		rep.Failed++
	}
	reset, err := s.seats.ResetStaleReserved(ctx, cutoff)
	if err != nil {
		logrus.WithError(err).WithField("job", JobDeep).Error("failed to reset stale seats")
		rep.Failed++
	}
	rep.Affected = deleted + reset
	rep.Duration = s.clock.Now().Sub(start)
	if rep.Affected > 0 {
		logrus.WithFields(logrus.Fields{"job": JobDeep, "deleted_bookings": deleted, "reset_seats": reset}).Info("deep sweep reclaimed rows")
	}
	return rep, nil
}

// EmergencyCleanup clears the suppressor and runs the seat lock and order
// expiry sweeps synchronously.  It only moves state toward AVAILABLE and
// EXPIRED, so it is safe to trigger at any time.  Both sweeps always run;
// their errors are joined and the report holds whatever did succeed.
func (s *Sweeper) EmergencyCleanup(ctx context.Context) (CleanupReport, error) {
	var (
		out  CleanupReport
		errs []error
	)
	out.SuppressorCleared = s.svc.Suppressor().Clear()
	locks, err := s.SweepSeatLocks(ctx)
	if err != nil {
		logrus.WithError(err).WithField("job", JobSeatLocks).Error("emergency cleanup: seat lock sweep failed")
		errs = append(errs, fmt.Errorf("seat lock sweep: %w", err))
	}
	out.ReleasedLocks = locks.Affected
	orders, err := s.SweepExpiredOrders(ctx)
	if err != nil {
		logrus.WithError(err).WithField("job", JobOrderExpiry).Error("emergency cleanup: order expiry sweep failed")
		errs = append(errs, fmt.Errorf("order expiry sweep: %w", err))
	}
	out.ExpiredOrders = orders.Affected
	out.FailedOrders = orders.Failed
	logrus.WithFields(logrus.Fields{
		"suppressor_cleared": out.SuppressorCleared,
		"released_locks":     out.ReleasedLocks,
		"expired_orders":     out.ExpiredOrders,
		"failed_sweeps":      len(errs),
	}).Warn("emergency cleanup executed")
	return out, errors.Join(errs...)
}

// LastHealth returns the counters of the most recent health sweep.
func (s *Sweeper) LastHealth() (service.HealthStats, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.lastHealth == nil {
		return service.HealthStats{}, false
	}
	return *s.lastHealth, true
}
