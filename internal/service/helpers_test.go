package service

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"sync"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-booking/internal/clock"
	"github.com/iliyamo/venue-booking/internal/model"
)

const showDate = "2025-08-15"

var (
	testNow  = time.Date(2025, 8, 14, 12, 0, 0, 0, time.UTC)
	showDay  = time.Date(2025, 8, 15, 0, 0, 0, 0, time.UTC)
	seatCols = []string{"id", "zone_id", "seat_number", "status", "lock_expiry", "locked_by", "created_at", "updated_at"}
	orderCol = []string{"id", "order_number", "user_id", "ticket_type", "show_date", "quantity", "total_amount_cents", "status", "expires_at", "created_at", "updated_at"}
	bookCols = []string{"id", "order_id", "seat_id", "show_date", "status", "created_at", "updated_at"}
)

// Regexps matching the statements issued by the repositories.
const (
	sqlClaimSeats     = `SELECT .* FROM seats WHERE id IN \(.*\) ORDER BY id FOR UPDATE NOWAIT$`
	sqlClaimHeld      = `SELECT .* FROM seats WHERE id IN \(.*\) ORDER BY id FOR UPDATE$`
	sqlActiveBookings = `SELECT DISTINCT seat_id FROM seat_bookings`
	sqlReserveSeats   = `UPDATE seats SET status = \?, lock_expiry = \?, locked_by = \?`
	sqlMarkBooked     = `UPDATE seats SET .* WHERE id IN \(.*\) AND status = \? AND locked_by = \?`
	sqlReleaseSeats   = `UPDATE seats SET .* WHERE id IN \(.*\) AND status IN \(.*\)`
	sqlHolderLocks    = `SELECT id FROM seats WHERE id IN \(.*\) AND status = \? AND locked_by = \? ORDER BY id FOR UPDATE$`
	sqlReleaseHolder  = `UPDATE seats SET .* WHERE id IN \(.*\) AND status = \?$`
	sqlInsertOrder    = `INSERT INTO orders`
	sqlSelectOrder    = `SELECT .* FROM orders WHERE id = \?`
	sqlOrderForUpdate = `SELECT .* FROM orders WHERE id = \? FOR UPDATE`
	sqlUpdateOrder    = `UPDATE orders SET status = \?`
	sqlInsertBookings = `INSERT INTO seat_bookings`
	sqlUpdateBookings = `UPDATE seat_bookings SET status = \?`
	sqlListBookings   = `FROM seat_bookings sb WHERE sb.order_id = \?`
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func newFakeClock() *clock.Fake { return clock.NewFake(testNow) }

func seatRow(rows *sqlmock.Rows, id uint64, status model.SeatStatus, expiry *time.Time, holder *uint64) *sqlmock.Rows {
	var exp, by driver.Value
	if expiry != nil {
		exp = *expiry
	}
	if holder != nil {
		by = int64(*holder)
	}
	return rows.AddRow(int64(id), int64(1), "A1", string(status), exp, by, testNow, testNow)
}

func orderRows(id, userID uint64, tt model.TicketType, qty int, status model.BookingStatus, expiresAt time.Time) *sqlmock.Rows {
	return sqlmock.NewRows(orderCol).AddRow(int64(id), "ORD-20250814-ABCDEF12", int64(userID), string(tt), showDay, int64(qty), int64(10000), string(status), expiresAt, testNow, testNow)
}

func bookingRows(orderID uint64, status model.BookingStatus, seatIDs ...uint64) *sqlmock.Rows {
	rows := sqlmock.NewRows(bookCols)
	for i, id := range seatIDs {
		rows.AddRow(int64(100+i), int64(orderID), int64(id), showDay, string(status), testNow, testNow)
	}
	return rows
}

// expectUnlock scripts a holder release of requested where only owned are
// still locked by holder.
func expectUnlock(mock sqlmock.Sqlmock, holder uint64, requested []uint64, owned ...uint64) {
	args := make([]driver.Value, 0, len(requested)+2)
	for _, id := range requested {
		args = append(args, id)
	}
	args = append(args, "RESERVED", holder)
	rows := sqlmock.NewRows([]string{"id"})
	for _, id := range owned {
		rows.AddRow(int64(id))
	}
	mock.ExpectBegin()
	mock.ExpectQuery(sqlHolderLocks).WithArgs(args...).WillReturnRows(rows)
	if len(owned) > 0 {
		mock.ExpectExec(sqlReleaseHolder).WillReturnResult(sqlmock.NewResult(0, int64(len(owned))))
	}
	mock.ExpectCommit()
}

func ptrTime(t time.Time) *time.Time { return &t }
func ptrID(id uint64) *uint64        { return &id }

type notifyCall struct {
	kind     string
	orderID  uint64
	seatIDs  []uint64
	showDate string
	status   model.SeatStatus
}

// recordingNotifier remembers every call and can be told to fail.
type recordingNotifier struct {
	mu    sync.Mutex
	calls []notifyCall
	err   error
}

func (n *recordingNotifier) NotifyOrderCreated(_ context.Context, orderID, _ uint64, seatIDs []uint64, showDate string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{kind: "order", orderID: orderID, seatIDs: seatIDs, showDate: showDate})
	return n.err
}

func (n *recordingNotifier) NotifySeatAvailabilityChanged(_ context.Context, seatIDs []uint64, showDate string, status model.SeatStatus) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, notifyCall{kind: "seats", seatIDs: seatIDs, showDate: showDate, status: status})
	return n.err
}

func (n *recordingNotifier) snapshot() []notifyCall {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]notifyCall(nil), n.calls...)
}
