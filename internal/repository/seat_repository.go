package repository // repository defines data access for seats

import (
	"context"      // context allows query cancellation and timeouts
	"database/sql" // sql provides DB primitives
	"fmt"
	"time"

	"github.com/iliyamo/venue-booking/internal/model"
)

const seatColumns = `id, zone_id, seat_number, status, lock_expiry, locked_by, created_at, updated_at`

// SeatRepo provides methods to work with seats in the database.  Status
// changes always carry the expected current status in their WHERE
// clause so that a stale caller can never downgrade a seat that another
// transaction has moved on.
type SeatRepo struct {
	db *sql.DB
}

// NewSeatRepo constructs a SeatRepo with the given DB handle.
func NewSeatRepo(db *sql.DB) *SeatRepo {
	return &SeatRepo{db: db}
}

// DB exposes the underlying handle so services can open transactions.
func (r *SeatRepo) DB() *sql.DB { return r.db }

// CreateBulkTx inserts the seats of a freshly seeded zone in a single
// statement.  All seats start AVAILABLE.
func (r *SeatRepo) CreateBulkTx(ctx context.Context, tx *sql.Tx, zoneID uint64, seatNumbers []string) error {
	if len(seatNumbers) == 0 {
		return nil
	}
	query := `INSERT INTO seats (zone_id, seat_number, status) VALUES `
	args := make([]interface{}, 0, len(seatNumbers)*3)
	for i, n := range seatNumbers {
		if i > 0 {
			query += ","
		}
		query += "(?, ?, ?)"
		args = append(args, zoneID, n, string(model.SeatAvailable))
	}
	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// ClaimNowaitTx takes exclusive row locks on exactly the given seats with
// SELECT ... FOR UPDATE NOWAIT and returns their current state.  When any
// row is already locked by another transaction the call fails at once
// with ErrSeatsContended; it never waits.  Rows are requested in id order.
// Seats that do not exist are simply absent from the result.
func (r *SeatRepo) ClaimNowaitTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64) ([]model.Seat, error) {
	return r.claim(ctx, tx, seatIDs, ` FOR UPDATE NOWAIT`)
}

// ClaimTx is ClaimNowaitTx for a caller that already holds the seat lock.
// It waits for short claims made by competing lock attempts instead of
// failing; a lock wait timeout or deadlock still maps to ErrSeatsContended.
func (r *SeatRepo) ClaimTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64) ([]model.Seat, error) {
	return r.claim(ctx, tx, seatIDs, ` FOR UPDATE`)
}

func (r *SeatRepo) claim(ctx context.Context, tx *sql.Tx, seatIDs []uint64, lockClause string) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + seatColumns + ` FROM seats WHERE id IN (` + inList(len(seatIDs)) + `) ORDER BY id` + lockClause
	rows, err := tx.QueryContext(ctx, q, idArgs(seatIDs)...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return seats, nil
}

// ReserveTx marks every given seat RESERVED for holderID until expiresAt
// in a single statement.  The rows must already be claimed in tx.
func (r *SeatRepo) ReserveTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64, holderID uint64, expiresAt time.Time) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	q := `UPDATE seats SET status = ?, lock_expiry = ?, locked_by = ?, updated_at = UTC_TIMESTAMP()
	      WHERE id IN (` + inList(len(seatIDs)) + `)`
	args := append([]interface{}{string(model.SeatReserved), expiresAt, holderID}, idArgs(seatIDs)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// MarkBookedTx flips seats that are still RESERVED by holderID to BOOKED
// and clears their lock.  It returns the number of seats changed so the
// caller can detect a seat that slipped away.
func (r *SeatRepo) MarkBookedTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64, holderID uint64) (int64, error) {
	if len(seatIDs) == 0 {
		return 0, nil
	}
	q := `UPDATE seats SET status = ?, lock_expiry = NULL, locked_by = NULL, updated_at = UTC_TIMESTAMP()
	      WHERE id IN (` + inList(len(seatIDs)) + `) AND status = ? AND locked_by = ?`
	args := []interface{}{string(model.SeatBooked)}
	args = append(args, idArgs(seatIDs)...)
	args = append(args, string(model.SeatReserved), holderID)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// ReleaseReserved returns RESERVED seats to AVAILABLE and reports the ids
// it changed, in id order.  Seats in any other status are left alone, so a
// late unlock can never undo a booking that committed in between.  A
// non-zero holderID restricts the release to seats locked by that user.
func (r *SeatRepo) ReleaseReserved(ctx context.Context, seatIDs []uint64, holderID uint64) ([]uint64, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	sel := `SELECT id FROM seats WHERE id IN (` + inList(len(seatIDs)) + `) AND status = ?`
	args := idArgs(seatIDs)
	args = append(args, string(model.SeatReserved))
	if holderID != 0 {
		sel += ` AND locked_by = ?`
		args = append(args, holderID)
	}
	sel += ` ORDER BY id FOR UPDATE`

	var released []uint64
	err := RunInTx(ctx, r.db, func(tx *sql.Tx) error {
		ids, err := queryIDs(ctx, tx, sel, args...)
		if err != nil || len(ids) == 0 {
			return err
		}
		upd := `UPDATE seats SET status = ?, lock_expiry = NULL, locked_by = NULL, updated_at = UTC_TIMESTAMP()
		        WHERE id IN (` + inList(len(ids)) + `) AND status = ?`
		uargs := []interface{}{string(model.SeatAvailable)}
		uargs = append(uargs, idArgs(ids)...)
		uargs = append(uargs, string(model.SeatReserved))
		if _, err := tx.ExecContext(ctx, upd, uargs...); err != nil {
			return classify(err)
		}
		released = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return released, nil
}

func queryIDs(ctx context.Context, q querier, query string, args ...interface{}) ([]uint64, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()
	var ids []uint64
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ReleaseTx returns seats currently in one of the from statuses to
// AVAILABLE inside tx.  Used when an order is cancelled, expired or
// orphaned.
func (r *SeatRepo) ReleaseTx(ctx context.Context, tx *sql.Tx, seatIDs []uint64, from ...model.SeatStatus) (int64, error) {
	if len(seatIDs) == 0 || len(from) == 0 {
		return 0, nil
	}
	q := `UPDATE seats SET status = ?, lock_expiry = NULL, locked_by = NULL, updated_at = UTC_TIMESTAMP()
	      WHERE id IN (` + inList(len(seatIDs)) + `) AND status IN (` + inList(len(from)) + `)`
	args := []interface{}{string(model.SeatAvailable)}
	args = append(args, idArgs(seatIDs)...)
	args = append(args, statusArgs(from)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, classify(err)
	}
	return res.RowsAffected()
}

// ReleaseExpiredLocks resets every RESERVED seat whose lock lapsed before
// now.  The WHERE clause carries the whole validation, so the statement is
// safe to run next to live traffic.
func (r *SeatRepo) ReleaseExpiredLocks(ctx context.Context, now time.Time) (int64, error) {
	const q = `UPDATE seats SET status = ?, lock_expiry = NULL, locked_by = NULL, updated_at = UTC_TIMESTAMP()
	           WHERE status = ? AND (lock_expiry IS NULL OR lock_expiry < ?)`
	res, err := r.db.ExecContext(ctx, q, string(model.SeatAvailable), string(model.SeatReserved), now)
	if err != nil {
		return 0, fmt.Errorf("release expired locks: %w", err)
	}
	return res.RowsAffected()
}

// ResetStaleReserved force-resets seats that have been RESERVED since
// before cutoff regardless of what their lock expiry says.
func (r *SeatRepo) ResetStaleReserved(ctx context.Context, cutoff time.Time) (int64, error) {
	const q = `UPDATE seats SET status = ?, lock_expiry = NULL, locked_by = NULL, updated_at = UTC_TIMESTAMP()
	           WHERE status = ? AND updated_at < ?`
	res, err := r.db.ExecContext(ctx, q, string(model.SeatAvailable), string(model.SeatReserved), cutoff)
	if err != nil {
		return 0, fmt.Errorf("reset stale reserved seats: %w", err)
	}
	return res.RowsAffected()
}

// CountLocked returns the number of seats holding a live lock at now.
func (r *SeatRepo) CountLocked(ctx context.Context, now time.Time) (int64, error) {
	const q = `SELECT COUNT(*) FROM seats WHERE status = ? AND lock_expiry >= ?`
	var n int64
	err := r.db.QueryRowContext(ctx, q, string(model.SeatReserved), now).Scan(&n)
	return n, err
}

// GetByIDs loads seats by id without locking, ordered by id.
func (r *SeatRepo) GetByIDs(ctx context.Context, seatIDs []uint64) ([]model.Seat, error) {
	if len(seatIDs) == 0 {
		return nil, nil
	}
	q := `SELECT ` + seatColumns + ` FROM seats WHERE id IN (` + inList(len(seatIDs)) + `) ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, idArgs(seatIDs)...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

// ListByZone returns the seats of a zone ordered by id.
func (r *SeatRepo) ListByZone(ctx context.Context, zoneID uint64) ([]model.Seat, error) {
	q := `SELECT ` + seatColumns + ` FROM seats WHERE zone_id = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, zoneID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var seats []model.Seat
	for rows.Next() {
		s, err := scanSeat(rows)
		if err != nil {
			return nil, err
		}
		seats = append(seats, s)
	}
	return seats, rows.Err()
}

func scanSeat(rows *sql.Rows) (model.Seat, error) {
	var (
		s        model.Seat
		status   string
		expiry   sql.NullTime
		lockedBy sql.NullInt64
	)
	if err := rows.Scan(&s.ID, &s.ZoneID, &s.SeatNumber, &status, &expiry, &lockedBy, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return s, err
	}
	s.Status = model.SeatStatus(status)
	if expiry.Valid {
		t := expiry.Time.UTC()
		s.LockExpiry = &t
	}
	if lockedBy.Valid {
		id := uint64(lockedBy.Int64)
		s.LockedBy = &id
	}
	return s, nil
}
