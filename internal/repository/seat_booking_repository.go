package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/venue-booking/internal/model"
)

const bookingColumns = `sb.id, sb.order_id, sb.seat_id, sb.show_date, sb.status, sb.created_at, sb.updated_at`

// SeatBookingRepo provides access to the seat_bookings table.  A booking
// ties one seat to one order for one show date; rows are inserted only by
// the order transaction and are removed only by the sweeper.
type SeatBookingRepo struct {
	db *sql.DB
}

// NewSeatBookingRepo returns a new SeatBookingRepo bound to the given database.
func NewSeatBookingRepo(db *sql.DB) *SeatBookingRepo { return &SeatBookingRepo{db: db} }

// ActiveSeatIDsTx returns which of seatIDs already have a PENDING,
// CONFIRMED or PAID booking for showDate.  The result is ordered by seat id.
func (r *SeatBookingRepo) ActiveSeatIDsTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64, showDate string) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q := `SELECT DISTINCT seat_id FROM seat_bookings
	      WHERE show_date = ? AND status IN (` + inList(len(model.ActiveStatuses)) + `)
	        AND seat_id IN (` + inList(len(seatIDs)) + `)
	      ORDER BY seat_id`
	args := []interface{}{showDate}
	args = append(args, statusArgs(model.ActiveStatuses)...)
	args = append(args, idArgs(seatIDs)...)
	rows, err := tx.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var taken []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken = append(taken, id)
	}
	return taken, rows.Err()
}

// ActiveSeatIDsByZone returns the seats of zoneID holding a PENDING,
// CONFIRMED or PAID booking for showDate.  It reads without locking and
// backs the public seat map only.
func (r *SeatBookingRepo) ActiveSeatIDsByZone(ctx context.Context, zoneID uint64, showDate string) (map[uint64]bool, error) {
	q := `SELECT DISTINCT sb.seat_id FROM seat_bookings sb
	      JOIN seats s ON s.id = sb.seat_id
	      WHERE s.zone_id = ? AND sb.show_date = ? AND sb.status IN (` + inList(len(model.ActiveStatuses)) + `)`
	args := append([]interface{}{zoneID, showDate}, statusArgs(model.ActiveStatuses)...)
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	taken := make(map[uint64]bool)
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		taken[id] = true
	}
	return taken, rows.Err()
}

// CreateBulkTx inserts multiple seat_bookings rows in a single
// statement.  The caller must supply the order ID in each record.
// Passing an empty slice has no effect and returns nil.
func (r *SeatBookingRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, bookings []model.SeatBooking) error {
	if len(bookings) == 0 {
		return nil
	}
	query := `INSERT INTO seat_bookings (order_id, seat_id, show_date, status) VALUES `
	args := make([]interface{}, 0, len(bookings)*4)
	for i, b := range bookings {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?, ?)"
		args = append(args, b.OrderID, b.SeatID, b.ShowDate, string(b.Status))
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return classify(err)
}

// ListByOrder returns the bookings of an order ordered by seat id.
func (r *SeatBookingRepo) ListByOrder(ctx context.Context, orderID uint64) ([]model.SeatBooking, error) {
	return r.listByOrder(ctx, r.db, orderID)
}

// ListByOrderTx is ListByOrder inside tx.
func (r *SeatBookingRepo) ListByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64) ([]model.SeatBooking, error) {
	return r.listByOrder(ctx, tx, orderID)
}

func (r *SeatBookingRepo) listByOrder(ctx context.Context, q querier, orderID uint64) ([]model.SeatBooking, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT `+bookingColumns+` FROM seat_bookings sb WHERE sb.order_id = ? ORDER BY sb.seat_id`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

// UpdateStatusByOrderTx moves the bookings of an order that are currently
// in one of the from statuses to status to.
func (r *SeatBookingRepo) UpdateStatusByOrderTx(ctx context.Context, tx *sql.Tx, orderID uint64, to model.BookingStatus, from ...model.BookingStatus) (int64, error) {
	if len(from) == 0 {
		return 0, nil
	}
	q := `UPDATE seat_bookings SET status = ?, updated_at = UTC_TIMESTAMP()
	      WHERE order_id = ? AND status IN (` + inList(len(from)) + `)`
	args := append([]interface{}{string(to), orderID}, statusArgs(from)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// CountByStatus counts bookings in the given status.
func (r *SeatBookingRepo) CountByStatus(ctx context.Context, status model.BookingStatus) (int64, error) {
	var n int64
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM seat_bookings WHERE status = ?`, string(status)).Scan(&n)
	return n, err
}

// CountOrphans counts bookings whose order row no longer exists.
func (r *SeatBookingRepo) CountOrphans(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM seat_bookings sb
	           LEFT JOIN orders o ON o.id = sb.order_id
	           WHERE o.id IS NULL`
	var n int64
	err := r.db.QueryRowContext(ctx, q).Scan(&n)
	return n, err
}

// ListOrphans returns up to limit bookings whose order no longer exists.
func (r *SeatBookingRepo) ListOrphans(ctx context.Context, limit int) ([]model.SeatBooking, error) {
	q := `SELECT ` + bookingColumns + ` FROM seat_bookings sb
	      LEFT JOIN orders o ON o.id = sb.order_id
	      WHERE o.id IS NULL
	      ORDER BY sb.id
	      LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanBookings(rows)
}

// DeleteOrphanTx deletes one booking provided its order is still missing.
// It returns the number of rows removed (0 when the order reappeared or
// the booking was already gone).
func (r *SeatBookingRepo) DeleteOrphanTx(ctx context.Context, tx *sql.Tx, bookingID uint64) (int64, error) {
	const q = `DELETE FROM seat_bookings
	           WHERE id = ? AND NOT EXISTS (SELECT 1 FROM orders o WHERE o.id = seat_bookings.order_id)`
	res, err := tx.ExecContext(ctx, q, bookingID)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// DeleteForExpiredOrders hard-deletes the bookings of orders that have been
// EXPIRED since before cutoff.
func (r *SeatBookingRepo) DeleteForExpiredOrders(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `DELETE sb FROM seat_bookings sb
	           JOIN orders o ON o.id = sb.order_id
	           WHERE o.status = ? AND o.updated_at < ?`
	res, err := r.db.ExecContext(ctx, q, string(model.StatusExpired), cutoff)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func scanBookings(rows *sql.Rows) ([]model.SeatBooking, error) {
	var out []model.SeatBooking
	for rows.Next() {
		var (
			b        model.SeatBooking
			showDate time.Time
			status   string
		)
		if err := rows.Scan(&b.ID, &b.OrderID, &b.SeatID, &showDate, &status, &b.CreatedAt, &b.UpdatedAt); err != nil {
			return nil, err
		}
		b.ShowDate = showDate.Format(model.ShowDateLayout)
		b.Status = model.BookingStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}
