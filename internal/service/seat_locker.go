package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/venue-booking/internal/clock"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/repository"
)

// LockedSet describes seats RESERVED for one holder.
type LockedSet struct {
	SeatIDs   []uint64  `json:"seat_ids"`
	ShowDate  string    `json:"show_date"`
	HolderID  uint64    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// SeatLocker places short lived claims on seats.  It never waits on a row
// lock and never locks part of a request: either every seat becomes
// RESERVED for the holder or none does.  Seat status is shared by all show
// dates, so a seat that is BOOKED for one date cannot be locked for
// another until its order is cancelled or expires.
type SeatLocker struct {
	db       *sql.DB
	seats    *repository.SeatRepo
	bookings *repository.SeatBookingRepo
	clock    clock.Clock
}

// NewSeatLocker wires a SeatLocker.
func NewSeatLocker(db *sql.DB, seats *repository.SeatRepo, bookings *repository.SeatBookingRepo, clk clock.Clock) *SeatLocker {
	if clk == nil {
		clk = clock.Real()
	}
	return &SeatLocker{db: db, seats: seats, bookings: bookings, clock: clk}
}

// Lock reserves seatIDs for holderID until now+d.  seatIDs must be sorted
// and unique.  Seats the holder already has locked may be locked again,
// which extends the lock.
func (l *SeatLocker) Lock(ctx context.Context, holderID uint64, seatIDs []uint64, showDate string, d time.Duration) (*LockedSet, error) {
	if len(seatIDs) == 0 {
		return nil, invalid("no seats to lock")
	}
	now := l.clock.Now()
	set := &LockedSet{SeatIDs: seatIDs, ShowDate: showDate, HolderID: holderID, ExpiresAt: now.Add(d).UTC()}
	err := repository.RunInTx(ctx, l.db, func(tx *sql.Tx) error {
		seats, err := l.seats.ClaimNowaitTx(ctx, tx, seatIDs)
		if err != nil {
			return err
		}
		if bad := unavailableSeats(seatIDs, seats, func(s model.Seat) bool {
			return s.AvailableAt(now) || s.HeldBy(holderID, now)
		}); len(bad) > 0 {
			return unavailable(bad, "seats are not available")
		}
		taken, err := l.bookings.ActiveSeatIDsTx(ctx, tx, seatIDs, showDate)
		if err != nil {
			return err
		}
		if len(taken) > 0 {
			return unavailable(taken, "seats are already booked for "+showDate)
		}
		n, err := l.seats.ReserveTx(ctx, tx, seatIDs, holderID, set.ExpiresAt)
		if err != nil {
			return err
		}
		if n != int64(len(seatIDs)) {
			return unavailable(seatIDs, "seat reservation changed underneath")
		}
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}
	logrus.WithFields(logrus.Fields{
		"seat_ids":  seatIDs,
		"show_date": showDate,
		"holder_id": holderID,
		"until":     set.ExpiresAt,
	}).Debug("seats locked")
	return set, nil
}

// Unlock returns seats that are still RESERVED to AVAILABLE and reports
// the ids it released.  A non-zero holderID limits the release to that
// holder's locks.  Seats that have since been booked are never touched.
func (l *SeatLocker) Unlock(ctx context.Context, seatIDs []uint64, holderID uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	released, err := l.seats.ReleaseReserved(ctx, seatIDs, holderID)
	if err != nil {
		return nil, txError(err)
	}
	return released, nil
}

// unavailableSeats returns the requested ids that are missing from seats or
// fail ok, in request order.
func unavailableSeats(requested []uint64, seats []model.Seat, ok func(model.Seat) bool) []uint64 {
	byID := make(map[uint64]model.Seat, len(seats))
	for _, s := range seats {
		byID[s.ID] = s
	}
	var bad []uint64
	for _, id := range requested {
		s, found := byID[id]
		if !found || !ok(s) {
			bad = append(bad, id)
		}
	}
	return bad
}

// txError maps errors from a storage call onto BookingError kinds.  A
// BookingError raised inside the transaction is returned as is.
func txError(err error) error {
	if err == nil {
		return nil
	}
	var be *BookingError
	switch {
	case errors.As(err, &be):
		return be
	case errors.Is(err, repository.ErrSeatsContended):
		return newError(KindSeatsContended, "seats are being booked by another request", err)
	case errors.Is(err, repository.ErrNotFound):
		return newError(KindNotFound, "", err)
	default:
		return newError(KindTransactionFailed, "", err)
	}
}
