package service

import (
	"context"
	"database/sql"
	"errors"

	"github.com/iliyamo/venue-booking/internal/clock"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/repository"
)

// releasable are the seat statuses an order gives back when it is
// cancelled, expired or orphaned.  PAID seats stay with their payer.
var releasable = []model.SeatStatus{model.SeatBooked, model.SeatReserved}

// OrderWriter runs every multi-table order change as one transaction.
type OrderWriter struct {
	db       *sql.DB
	orders   *repository.OrderRepo
	bookings *repository.SeatBookingRepo
	seats    *repository.SeatRepo
	clock    clock.Clock
}

// NewOrderWriter wires an OrderWriter.
func NewOrderWriter(db *sql.DB, orders *repository.OrderRepo, bookings *repository.SeatBookingRepo, seats *repository.SeatRepo, clk clock.Clock) *OrderWriter {
	if clk == nil {
		clk = clock.Real()
	}
	return &OrderWriter{db: db, orders: orders, bookings: bookings, seats: seats, clock: clk}
}

// Create inserts order, one PENDING booking per seat and flips the seats to
// BOOKED, all or nothing.  Every seat must be RESERVED by order.UserID with
// a live lock; the check is repeated under a row claim so nothing can
// change between the check and the commit.  The claim waits rather than
// failing fast: the caller owns the lock, and a competing lock attempt
// holds the rows only long enough to see they are taken.
func (w *OrderWriter) Create(ctx context.Context, order *model.Order, seatIDs []uint64) (*model.Order, error) {
	now := w.clock.Now()
	var created *model.Order
	err := repository.RunInTx(ctx, w.db, func(tx *sql.Tx) error {
		if len(seatIDs) > 0 {
			seats, err := w.seats.ClaimTx(ctx, tx, seatIDs)
			if err != nil {
				return err
			}
			if bad := unavailableSeats(seatIDs, seats, func(s model.Seat) bool {
				return s.HeldBy(order.UserID, now)
			}); len(bad) > 0 {
				return unavailable(bad, "seat lock lost before the order was written")
			}
			taken, err := w.bookings.ActiveSeatIDsTx(ctx, tx, seatIDs, order.ShowDate)
			if err != nil {
				return err
			}
			if len(taken) > 0 {
				return unavailable(taken, "seats are already booked for "+order.ShowDate)
			}
		}

		o := *order
		o.Bookings = nil
		if err := w.orders.CreateTx(ctx, tx, &o); err != nil {
			return err
		}
		if len(seatIDs) > 0 {
			rows := make([]model.SeatBooking, len(seatIDs))
			for i, id := range seatIDs {
				rows[i] = model.SeatBooking{OrderID: o.ID, SeatID: id, ShowDate: o.ShowDate, Status: model.StatusPending}
			}
			if err := w.bookings.CreateBulkTx(ctx, tx, rows); err != nil {
				return err
			}
			n, err := w.seats.MarkBookedTx(ctx, tx, seatIDs, o.UserID)
			if err != nil {
				return err
			}
			if n != int64(len(seatIDs)) {
				return unavailable(seatIDs, "seat status changed before the order was written")
			}
			if o.Bookings, err = w.bookings.ListByOrderTx(ctx, tx, o.ID); err != nil {
				return err
			}
		}
		created = &o
		return nil
	})
	if err != nil {
		return nil, txError(err)
	}
	return created, nil
}

// Cancel flips a PENDING or CONFIRMED order and its bookings to CANCELLED
// and gives the seats back.  Unless staff is set the actor must own the
// order.  It returns the cancelled order with its bookings and the seats
// that became AVAILABLE.
func (w *OrderWriter) Cancel(ctx context.Context, orderID, actorID uint64, staff bool) (*model.Order, []uint64, error) {
	var (
		order    *model.Order
		released []uint64
	)
	err := repository.RunInTx(ctx, w.db, func(tx *sql.Tx) error {
		o, err := w.orders.GetForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if !staff && o.UserID != actorID {
			return newError(KindForbidden, "order belongs to another user", nil)
		}
		if !o.Cancellable() {
			return newError(KindAlreadyFinal, "order is "+string(o.Status), nil)
		}
		if err := w.orders.UpdateStatusTx(ctx, tx, o.ID, model.StatusCancelled, model.StatusPending, model.StatusConfirmed); err != nil {
			return err
		}
		if _, err := w.bookings.UpdateStatusByOrderTx(ctx, tx, o.ID, model.StatusCancelled, model.StatusPending, model.StatusConfirmed); err != nil {
			return err
		}
		if released, err = w.releaseOrderSeats(ctx, tx, o.ID); err != nil {
			return err
		}
		o.Status = model.StatusCancelled
		if o.Bookings, err = w.bookings.ListByOrderTx(ctx, tx, o.ID); err != nil {
			return err
		}
		order = o
		return nil
	})
	if err != nil {
		return nil, nil, txError(err)
	}
	return order, released, nil
}

// Expire moves a lapsed PENDING order to EXPIRED the same way Cancel does.
// Orders that are no longer PENDING or not yet due are skipped, which makes
// repeated sweeps harmless.  expired reports whether this call did it.
func (w *OrderWriter) Expire(ctx context.Context, orderID uint64) (order *model.Order, released []uint64, expired bool, err error) {
	now := w.clock.Now()
	err = repository.RunInTx(ctx, w.db, func(tx *sql.Tx) error {
		o, err := w.orders.GetForUpdateTx(ctx, tx, orderID)
		if err != nil {
			return err
		}
		if o.Status != model.StatusPending || !o.ExpiresAt.Before(now) {
			order = o
			return nil
		}
		if err := w.orders.UpdateStatusTx(ctx, tx, o.ID, model.StatusExpired, model.StatusPending); err != nil {
			return err
		}
		if _, err := w.bookings.UpdateStatusByOrderTx(ctx, tx, o.ID, model.StatusExpired, model.StatusPending, model.StatusConfirmed); err != nil {
			return err
		}
		if released, err = w.releaseOrderSeats(ctx, tx, o.ID); err != nil {
			return err
		}
		o.Status = model.StatusExpired
		order, expired = o, true
		return nil
	})
	if err != nil {
		return nil, nil, false, txError(err)
	}
	return order, released, expired, nil
}

// PurgeOrphan deletes a booking whose order no longer exists.  When the
// booking still held its seat the seat is released in the same
// transaction.  It reports whether the booking was deleted.
func (w *OrderWriter) PurgeOrphan(ctx context.Context, b model.SeatBooking) (bool, error) {
	var deleted bool
	err := repository.RunInTx(ctx, w.db, func(tx *sql.Tx) error {
		n, err := w.bookings.DeleteOrphanTx(ctx, tx, b.ID)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		deleted = true
		if b.Status.IsActive() {
			_, err = w.seats.ReleaseTx(ctx, tx, []uint64{b.SeatID}, releasable...)
		}
		return err
	})
	if err != nil {
		return false, txError(err)
	}
	return deleted, nil
}

func (w *OrderWriter) releaseOrderSeats(ctx context.Context, tx *sql.Tx, orderID uint64) ([]uint64, error) {
	bookings, err := w.bookings.ListByOrderTx(ctx, tx, orderID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, len(bookings))
	for _, b := range bookings {
		ids = append(ids, b.SeatID)
	}
	if len(ids) == 0 {
		return nil, nil
	}
	if _, err := w.seats.ReleaseTx(ctx, tx, ids, releasable...); err != nil {
		return nil, err
	}
	return ids, nil
}

// isNotFound reports whether err says the order does not exist.
func isNotFound(err error) bool {
	return errors.Is(err, ErrNotFound) || errors.Is(err, repository.ErrNotFound)
}
