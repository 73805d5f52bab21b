package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/venue-booking/internal/model"
)

const orderColumns = `id, order_number, user_id, ticket_type, show_date, quantity, total_amount_cents, status, expires_at, created_at, updated_at`

// OrderRepo provides access to the orders table.  All timestamp fields are
// stored in UTC.
type OrderRepo struct {
	db *sql.DB
}

// NewOrderRepo returns a new OrderRepo bound to the given database.
func NewOrderRepo(db *sql.DB) *OrderRepo { return &OrderRepo{db: db} }

// CreateTx inserts a new order within the scope of an existing
// transaction.  It populates the generated ID and the database defaults
// on the provided record.  The caller must commit or rollback the
// transaction.
func (r *OrderRepo) CreateTx(ctx context.Context, tx *sql.Tx, o *model.Order) error {
	const q = `INSERT INTO orders (order_number, user_id, ticket_type, show_date, quantity, total_amount_cents, status, expires_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, q,
		o.OrderNumber, o.UserID, string(o.TicketType), o.ShowDate, o.Quantity,
		o.TotalAmountCents, string(o.Status), o.ExpiresAt)
	if err != nil {
		return classify(err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return err
	}
	// Query back the full row to populate timestamps
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	got, err := scanOrder(row)
	if err != nil {
		return err
	}
	*o = *got
	return nil
}

// GetByID loads one order.  ErrNotFound is returned when it does not exist.
func (r *OrderRepo) GetByID(ctx context.Context, id uint64) (*model.Order, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ?`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, err
}

// GetForUpdateTx loads one order and holds its row lock until tx ends.
// Unlike the seat claim it waits for the lock: order rows are only ever
// locked briefly by cancel and expiry.
func (r *OrderRepo) GetForUpdateTx(ctx context.Context, tx *sql.Tx, id uint64) (*model.Order, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+orderColumns+` FROM orders WHERE id = ? FOR UPDATE`, id)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return o, classify(err)
}

// UpdateStatusTx moves the order to status to provided it is currently in
// one of the from statuses.  ErrConflict is returned when nothing changed.
func (r *OrderRepo) UpdateStatusTx(ctx context.Context, tx *sql.Tx, id uint64, to model.BookingStatus, from ...model.BookingStatus) error {
	if len(from) == 0 {
		return ErrConflict
	}
	q := `UPDATE orders SET status = ?, updated_at = UTC_TIMESTAMP()
	      WHERE id = ? AND status IN (` + inList(len(from)) + `)`
	args := append([]interface{}{string(to), id}, statusArgs(from)...)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return classify(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ListExpiredPending returns the ids of up to limit PENDING orders whose
// expiry is before now, oldest first.
func (r *OrderRepo) ListExpiredPending(ctx context.Context, now time.Time, limit int) ([]uint64, error) {
	const q = `SELECT id FROM orders WHERE status = ? AND expires_at < ? ORDER BY expires_at, id LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, string(model.StatusPending), now, limit)
	if err != nil {
		return nil, err
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

// CountActive counts orders that are PENDING or CONFIRMED.
func (r *OrderRepo) CountActive(ctx context.Context) (int64, error) {
	const q = `SELECT COUNT(*) FROM orders WHERE status IN (?, ?)`
	var n int64
	err := r.db.QueryRowContext(ctx, q, string(model.StatusPending), string(model.StatusConfirmed)).Scan(&n)
	return n, err
}

func scanOrder(row *sql.Row) (*model.Order, error) {
	var (
		o          model.Order
		ticketType string
		showDate   time.Time
		status     string
	)
	err := row.Scan(&o.ID, &o.OrderNumber, &o.UserID, &ticketType, &showDate, &o.Quantity,
		&o.TotalAmountCents, &status, &o.ExpiresAt, &o.CreatedAt, &o.UpdatedAt)
	if err != nil {
		return nil, err
	}
	o.TicketType = model.TicketType(ticketType)
	o.ShowDate = showDate.Format(model.ShowDateLayout)
	o.Status = model.BookingStatus(status)
	return &o, nil
}
