package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/venue-booking/internal/clock"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/repository"
)

// Defaults used when Options leaves a field zero.
const (
	DefaultSeatLock       = 10 * time.Minute
	DefaultOrderHold      = 15 * time.Minute
	DefaultMaxLockMinutes = 30
	unwindTimeout         = 5 * time.Second
)

// Options configures a BookingService.
type Options struct {
	// SeatLock is how long CreateOrder holds seats while the order is
	// written.
	SeatLock time.Duration
	// MaxLockMinutes bounds LockSeats durations.
	MaxLockMinutes int
	// MaxTickets bounds the quantity of one order.
	MaxTickets int
	Expiry     ExpiryPolicy
	Pricer     Pricer
	Notifier   Notifier
	Clock      clock.Clock
}

// HealthStats are the counters exposed to monitoring.
type HealthStats struct {
	ActiveOrders      int64     `json:"active_orders"`
	LockedSeats       int64     `json:"locked_seats"`
	PendingBookings   int64     `json:"pending_bookings"`
	OrphanedBookings  int64     `json:"orphaned_bookings"`
	SuppressorEntries int       `json:"suppressor_entries"`
	CollectedAt       time.Time `json:"collected_at"`
}

// BookingService is the entry point for every booking operation.  It
// composes the duplicate suppressor, the seat locker and the order
// transaction and undoes whatever it acquired when a later step fails.
type BookingService struct {
	suppressor *DuplicateSuppressor
	locker     *SeatLocker
	writer     *OrderWriter
	orders     *repository.OrderRepo
	bookings   *repository.SeatBookingRepo
	seats      *repository.SeatRepo
	pricer     Pricer
	notifier   Notifier
	clock      clock.Clock
	opts       Options
}

// NewBookingService wires the service around db.  The suppressor is owned
// by the caller so it can be shared with the sweeper and cleared on
// shutdown.
func NewBookingService(db *sql.DB, suppressor *DuplicateSuppressor, opts Options) *BookingService {
	if opts.Clock == nil {
		opts.Clock = clock.Real()
	}
	if opts.SeatLock <= 0 {
		opts.SeatLock = DefaultSeatLock
	}
	if opts.MaxLockMinutes <= 0 {
		opts.MaxLockMinutes = DefaultMaxLockMinutes
	}
	if opts.MaxTickets <= 0 {
		opts.MaxTickets = DefaultMaxTickets
	}
	if opts.Expiry.Hold <= 0 {
		opts.Expiry.Hold = DefaultOrderHold
	}
	if opts.Notifier == nil {
		opts.Notifier = LogNotifier{}
	}
	if suppressor == nil {
		suppressor = NewDuplicateSuppressor(0, opts.Clock)
	}
	seats := repository.NewSeatRepo(db)
	bookings := repository.NewSeatBookingRepo(db)
	orders := repository.NewOrderRepo(db)
	return &BookingService{
		suppressor: suppressor,
		locker:     NewSeatLocker(db, seats, bookings, opts.Clock),
		writer:     NewOrderWriter(db, orders, bookings, seats, opts.Clock),
		orders:     orders,
		bookings:   bookings,
		seats:      seats,
		pricer:     opts.Pricer,
		notifier:   opts.Notifier,
		clock:      opts.Clock,
		opts:       opts,
	}
}

// Suppressor returns the duplicate suppressor in use.
func (s *BookingService) Suppressor() *DuplicateSuppressor { return s.suppressor }

// Writer returns the order transaction runner; the sweeper shares it.
func (s *BookingService) Writer() *OrderWriter { return s.writer }

// CreateOrder books draft for userID.  Errors are *BookingError with kind
// INVALID_INPUT, DUPLICATE_IN_FLIGHT, SEATS_CONTENDED, SEATS_UNAVAILABLE
// or TRANSACTION_FAILED.  On failure no order exists and every seat this
// call reserved is released before it returns.
func (s *BookingService) CreateOrder(ctx context.Context, userID uint64, draft OrderDraft) (*model.Order, error) {
	now := s.clock.Now()
	d, err := draft.normalize(now, s.opts.Expiry.Location, s.opts.MaxTickets)
	if err != nil {
		return nil, err
	}
	total, err := s.price(d)
	if err != nil {
		return nil, err
	}
	expiresAt, err := s.opts.Expiry.ExpiresAt(now, d.TicketType, d.ShowDate)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{
		"user_id":     userID,
		"ticket_type": d.TicketType,
		"show_date":   d.ShowDate,
		"seat_ids":    d.SeatIDs,
	})

	tok, err := s.suppressor.Acquire(BookingSignature(userID, d.TicketType, d.ShowDate, d.SeatIDs, d.Quantity), userID)
	if err != nil {
		log.Info("duplicate booking request suppressed")
		return nil, err
	}
	defer s.suppressor.Release(tok)

	var locked *LockedSet
	if d.TicketType.Seated() {
		if locked, err = s.locker.Lock(ctx, userID, d.SeatIDs, d.ShowDate, s.opts.SeatLock); err != nil {
			log.WithField("kind", KindOf(err)).Info("seat lock rejected")
			return nil, err
		}
	}
	committed := false
	defer func() {
		if !committed && locked != nil {
			s.unwind(ctx, locked)
		}
	}()

	order, err := s.writer.Create(ctx, &model.Order{
		OrderNumber:      newOrderNumber(now),
		UserID:           userID,
		TicketType:       d.TicketType,
		ShowDate:         d.ShowDate,
		Quantity:         d.Quantity,
		TotalAmountCents: total,
		Status:           model.StatusPending,
		ExpiresAt:        expiresAt,
	}, d.SeatIDs)
	if err != nil {
		log.WithError(err).Warn("order transaction failed")
		return nil, err
	}
	committed = true

	log.WithField("order_id", order.ID).Info("order created")
	s.notifyOrderCreated(ctx, order, d.SeatIDs)
	if len(d.SeatIDs) > 0 {
		s.notifySeats(ctx, d.SeatIDs, d.ShowDate, model.SeatBooked)
	}
	return order, nil
}

// GetOrder returns an order with its bookings.  Only the owner may read it.
func (s *BookingService) GetOrder(ctx context.Context, orderID, userID uint64) (*model.Order, error) {
	o, err := s.orders.GetByID(ctx, orderID)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, fmt.Sprintf("order %d", orderID), nil)
		}
		return nil, txError(err)
	}
	if o.UserID != userID {
		return nil, newError(KindForbidden, "order belongs to another user", nil)
	}
	if o.Bookings, err = s.bookings.ListByOrder(ctx, o.ID); err != nil {
		return nil, txError(err)
	}
	return o, nil
}

// CancelOrder cancels a PENDING or CONFIRMED order owned by userID.
func (s *BookingService) CancelOrder(ctx context.Context, orderID, userID uint64) (*model.Order, error) {
	return s.cancel(ctx, orderID, userID, false)
}

// CancelOrderAsStaff cancels an order regardless of who owns it.
func (s *BookingService) CancelOrderAsStaff(ctx context.Context, orderID, staffID uint64) (*model.Order, error) {
	return s.cancel(ctx, orderID, staffID, true)
}

func (s *BookingService) cancel(ctx context.Context, orderID, actorID uint64, staff bool) (*model.Order, error) {
	o, released, err := s.writer.Cancel(ctx, orderID, actorID, staff)
	if err != nil {
		if isNotFound(err) {
			return nil, newError(KindNotFound, fmt.Sprintf("order %d", orderID), nil)
		}
		return nil, err
	}
	logrus.WithFields(logrus.Fields{
		"order_id": o.ID,
		"actor_id": actorID,
		"staff":    staff,
		"seat_ids": released,
	}).Info("order cancelled")
	if len(released) > 0 {
		s.notifySeats(ctx, released, o.ShowDate, model.SeatAvailable)
	}
	return o, nil
}

// LockSeats holds seats for userID for durationMinutes, for example while
// the customer fills in a checkout form.
func (s *BookingService) LockSeats(ctx context.Context, userID uint64, seatIDs []uint64, showDate string, durationMinutes int) (*LockedSet, error) {
	ids, err := normalizeSeatIDs(seatIDs)
	if err != nil {
		return nil, err
	}
	if err := validateShowDate(showDate, s.clock.Now(), s.opts.Expiry.Location); err != nil {
		return nil, err
	}
	if durationMinutes <= 0 || durationMinutes > s.opts.MaxLockMinutes {
		return nil, invalid("duration must be between 1 and %d minutes", s.opts.MaxLockMinutes)
	}
	set, err := s.locker.Lock(ctx, userID, ids, showDate, time.Duration(durationMinutes)*time.Minute)
	if err != nil {
		return nil, err
	}
	s.notifySeats(ctx, ids, showDate, model.SeatReserved)
	return set, nil
}

// ReleaseSeats drops userID's locks on seatIDs and returns how many seats
// became AVAILABLE.  Seats locked by someone else or already booked are
// left alone.
func (s *BookingService) ReleaseSeats(ctx context.Context, userID uint64, seatIDs []uint64) (int64, error) {
	ids, err := normalizeSeatIDs(seatIDs)
	if err != nil {
		return 0, err
	}
	released, err := s.locker.Unlock(ctx, ids, userID)
	if err != nil {
		return 0, err
	}
	if len(released) > 0 {
		s.notifySeats(ctx, released, "", model.SeatAvailable)
	}
	return int64(len(released)), nil
}

// Health collects the monitoring counters.
func (s *BookingService) Health(ctx context.Context) (HealthStats, error) {
	now := s.clock.Now()
	st := HealthStats{SuppressorEntries: s.suppressor.Len(), CollectedAt: now}
	var err error
	if st.ActiveOrders, err = s.orders.CountActive(ctx); err != nil {
		return st, fmt.Errorf("count active orders: %w", err)
	}
	if st.LockedSeats, err = s.seats.CountLocked(ctx, now); err != nil {
		return st, fmt.Errorf("count locked seats: %w", err)
	}
	if st.PendingBookings, err = s.bookings.CountByStatus(ctx, model.StatusPending); err != nil {
		return st, fmt.Errorf("count pending bookings: %w", err)
	}
	if st.OrphanedBookings, err = s.bookings.CountOrphans(ctx); err != nil {
		return st, fmt.Errorf("count orphaned bookings: %w", err)
	}
	return st, nil
}

// ExpireOrder expires one lapsed PENDING order and announces the freed
// seats.  It reports whether the order changed.
func (s *BookingService) ExpireOrder(ctx context.Context, orderID uint64) (bool, error) {
	o, released, expired, err := s.writer.Expire(ctx, orderID)
	if err != nil || !expired {
		return false, err
	}
	if len(released) > 0 {
		s.notifySeats(ctx, released, o.ShowDate, model.SeatAvailable)
	}
	return true, nil
}

// unwind releases seats reserved by a failed CreateOrder.  Only locks still
// held by the same user are dropped.  It runs even when ctx is already
// cancelled; anything it misses is picked up by the seat lock sweep once
// the lock lapses.
func (s *BookingService) unwind(ctx context.Context, locked *LockedSet) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), unwindTimeout)
	defer cancel()
	if _, err := s.locker.Unlock(ctx, locked.SeatIDs, locked.HolderID); err != nil {
		logrus.WithError(err).WithField("seat_ids", locked.SeatIDs).Error("failed to release seats after failed order")
	}
}

func (s *BookingService) price(d OrderDraft) (uint32, error) {
	if s.pricer == nil {
		return 0, nil
	}
	total, err := s.pricer.Price(d.TicketType, d.Quantity)
	if err != nil {
		return 0, newError(KindInvalidInput, "pricing failed", err)
	}
	return total, nil
}

func (s *BookingService) notifyOrderCreated(ctx context.Context, o *model.Order, seatIDs []uint64) {
	if err := s.notifier.NotifyOrderCreated(ctx, o.ID, o.UserID, seatIDs, o.ShowDate); err != nil {
		logrus.WithError(err).WithField("order_id", o.ID).Warn("order created notification failed")
	}
}

func (s *BookingService) notifySeats(ctx context.Context, seatIDs []uint64, showDate string, status model.SeatStatus) {
	if err := s.notifier.NotifySeatAvailabilityChanged(ctx, seatIDs, showDate, status); err != nil {
		logrus.WithError(err).WithField("seat_ids", seatIDs).Warn("seat availability notification failed")
	}
}

// newOrderNumber returns ORD-YYYYMMDD-XXXXXXXX.
func newOrderNumber(now time.Time) string {
	id := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	return fmt.Sprintf("ORD-%s-%s", now.UTC().Format("20060102"), id[:8])
}
