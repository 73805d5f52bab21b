package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/repository"
)

func newWriter(t *testing.T) (*OrderWriter, sqlmock.Sqlmock) {
	db, mock := newMock(t)
	w := NewOrderWriter(db, repository.NewOrderRepo(db), repository.NewSeatBookingRepo(db), repository.NewSeatRepo(db), newFakeClock())
	return w, mock
}

func seatedOrder() *model.Order {
	return &model.Order{
		OrderNumber:      "ORD-20250814-ABCDEF12",
		UserID:           7,
		TicketType:       model.TicketStandard,
		ShowDate:         showDate,
		Quantity:         2,
		TotalAmountCents: 10000,
		Status:           model.StatusPending,
		ExpiresAt:        testNow.Add(15 * time.Minute),
	}
}

func heldSeats(holder uint64, ids ...uint64) *sqlmock.Rows {
	rows := sqlmock.NewRows(seatCols)
	for _, id := range ids {
		seatRow(rows, id, model.SeatReserved, ptrTime(testNow.Add(time.Minute)), ptrID(holder))
	}
	return rows
}

func TestOrderWriterCreate(t *testing.T) {
	w, mock := newWriter(t)
	exp := testNow.Add(15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlClaimHeld).WithArgs(1, 2).WillReturnRows(heldSeats(7, 1, 2))
	mock.ExpectQuery(sqlActiveBookings).WillReturnRows(sqlmock.NewRows([]string{"seat_id"}))
	mock.ExpectExec(sqlInsertOrder).
		WithArgs("ORD-20250814-ABCDEF12", 7, "STANDARD", showDate, 2, 10000, "PENDING", exp).
		WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(sqlSelectOrder).WithArgs(42).
		WillReturnRows(orderRows(42, 7, model.TicketStandard, 2, model.StatusPending, exp))
	mock.ExpectExec(sqlInsertBookings).
		WithArgs(42, 1, showDate, "PENDING", 42, 2, showDate, "PENDING").
		WillReturnResult(sqlmock.NewResult(100, 2))
	mock.ExpectExec(sqlMarkBooked).
		WithArgs("BOOKED", 1, 2, "RESERVED", 7).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(sqlListBookings).WithArgs(42).WillReturnRows(bookingRows(42, model.StatusPending, 1, 2))
	mock.ExpectCommit()

	o, err := w.Create(context.Background(), seatedOrder(), []uint64{1, 2})
	require.NoError(t, err)
	assert.Equal(t, uint64(42), o.ID)
	assert.Equal(t, showDate, o.ShowDate)
	require.Len(t, o.Bookings, 2)
	assert.Equal(t, uint64(2), o.Bookings[1].SeatID)
	assert.Equal(t, model.StatusPending, o.Bookings[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderWriterCreateRequiresOwnLock(t *testing.T) {
	w, mock := newWriter(t)

	mock.ExpectBegin()
	rows := heldSeats(7, 1)
	seatRow(rows, 2, model.SeatReserved, ptrTime(testNow.Add(time.Minute)), ptrID(8))
	mock.ExpectQuery(sqlClaimHeld).WillReturnRows(rows)
	mock.ExpectRollback()

	_, err := w.Create(context.Background(), seatedOrder(), []uint64{1, 2})
	var be *BookingError
	require.True(t, errors.As(err, &be))
	assert.Equal(t, KindSeatsUnavailable, be.Kind)
	assert.Equal(t, []uint64{2}, be.SeatIDs)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderWriterCreateRollsBackOnSeatMismatch(t *testing.T) {
	w, mock := newWriter(t)
	exp := testNow.Add(15 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlClaimHeld).WillReturnRows(heldSeats(7, 1, 2))
	mock.ExpectQuery(sqlActiveBookings).WillReturnRows(sqlmock.NewRows([]string{"seat_id"}))
	mock.ExpectExec(sqlInsertOrder).WillReturnResult(sqlmock.NewResult(42, 1))
	mock.ExpectQuery(sqlSelectOrder).WillReturnRows(orderRows(42, 7, model.TicketStandard, 2, model.StatusPending, exp))
	mock.ExpectExec(sqlInsertBookings).WillReturnResult(sqlmock.NewResult(100, 2))
	mock.ExpectExec(sqlMarkBooked).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	_, err := w.Create(context.Background(), seatedOrder(), []uint64{1, 2})
	assert.True(t, errors.Is(err, ErrSeatsUnavailable))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderWriterCreateStanding(t *testing.T) {
	w, mock := newWriter(t)
	o := seatedOrder()
	o.TicketType = model.TicketStanding
	o.Quantity = 3

	mock.ExpectBegin()
	mock.ExpectExec(sqlInsertOrder).WillReturnResult(sqlmock.NewResult(5, 1))
	mock.ExpectQuery(sqlSelectOrder).WillReturnRows(orderRows(5, 7, model.TicketStanding, 3, model.StatusPending, o.ExpiresAt))
	mock.ExpectCommit()

	got, err := w.Create(context.Background(), o, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, got.Quantity)
	assert.Empty(t, got.Bookings)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderWriterCancel(t *testing.T) {
	w, mock := newWriter(t)
	exp := testNow.Add(10 * time.Minute)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlOrderForUpdate).WithArgs(42).
		WillReturnRows(orderRows(42, 7, model.TicketStandard, 2, model.StatusPending, exp))
	mock.ExpectExec(sqlUpdateOrder).
		WithArgs("CANCELLED", 42, "PENDING", "CONFIRMED").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlUpdateBookings).
		WithArgs("CANCELLED", 42, "PENDING", "CONFIRMED").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(sqlListBookings).WillReturnRows(bookingRows(42, model.StatusCancelled, 1, 2))
	mock.ExpectExec(sqlReleaseSeats).
		WithArgs("AVAILABLE", 1, 2, "BOOKED", "RESERVED").
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery(sqlListBookings).WillReturnRows(bookingRows(42, model.StatusCancelled, 1, 2))
	mock.ExpectCommit()

	o, released, err := w.Cancel(context.Background(), 42, 7, false)
	require.NoError(t, err)
	assert.Equal(t, model.StatusCancelled, o.Status)
	assert.Equal(t, []uint64{1, 2}, released)
	assert.Len(t, o.Bookings, 2)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderWriterCancelRejections(t *testing.T) {
	exp := testNow.Add(10 * time.Minute)
	tests := []struct {
		name   string
		status model.BookingStatus
		actor  uint64
		staff  bool
		want   error
	}{
		{"other user", model.StatusPending, 8, false, ErrForbidden},
		{"already cancelled", model.StatusCancelled, 7, false, ErrAlreadyFinal},
		{"paid", model.StatusPaid, 1, true, ErrAlreadyFinal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, mock := newWriter(t)
			mock.ExpectBegin()
			mock.ExpectQuery(sqlOrderForUpdate).WillReturnRows(orderRows(42, 7, model.TicketStandard, 2, tt.status, exp))
			mock.ExpectRollback()

			_, _, err := w.Cancel(context.Background(), 42, tt.actor, tt.staff)
			assert.True(t, errors.Is(err, tt.want), "got %v", err)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestOrderWriterCancelNotFound(t *testing.T) {
	w, mock := newWriter(t)
	mock.ExpectBegin()
	mock.ExpectQuery(sqlOrderForUpdate).WillReturnRows(sqlmock.NewRows(orderCol))
	mock.ExpectRollback()

	_, _, err := w.Cancel(context.Background(), 42, 7, false)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, isNotFound(err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderWriterExpire(t *testing.T) {
	w, mock := newWriter(t)

	mock.ExpectBegin()
	mock.ExpectQuery(sqlOrderForUpdate).
		WillReturnRows(orderRows(42, 7, model.TicketStandard, 1, model.StatusPending, testNow.Add(-time.Second)))
	mock.ExpectExec(sqlUpdateOrder).WithArgs("EXPIRED", 42, "PENDING").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlUpdateBookings).WithArgs("EXPIRED", 42, "PENDING", "CONFIRMED").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(sqlListBookings).WillReturnRows(bookingRows(42, model.StatusExpired, 3))
	mock.ExpectExec(sqlReleaseSeats).WithArgs("AVAILABLE", 3, "BOOKED", "RESERVED").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	o, released, expired, err := w.Expire(context.Background(), 42)
	require.NoError(t, err)
	assert.True(t, expired)
	assert.Equal(t, model.StatusExpired, o.Status)
	assert.Equal(t, []uint64{3}, released)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderWriterExpireSkips(t *testing.T) {
	tests := []struct {
		name      string
		status    model.BookingStatus
		expiresAt time.Time
	}{
		{"already expired", model.StatusExpired, testNow.Add(-time.Hour)},
		{"confirmed meanwhile", model.StatusConfirmed, testNow.Add(-time.Hour)},
		{"not due yet", model.StatusPending, testNow.Add(time.Minute)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w, mock := newWriter(t)
			mock.ExpectBegin()
			mock.ExpectQuery(sqlOrderForUpdate).WillReturnRows(orderRows(42, 7, model.TicketStandard, 1, tt.status, tt.expiresAt))
			mock.ExpectCommit()

			_, released, expired, err := w.Expire(context.Background(), 42)
			require.NoError(t, err)
			assert.False(t, expired)
			assert.Empty(t, released)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestOrderWriterPurgeOrphan(t *testing.T) {
	w, mock := newWriter(t)
	b := model.SeatBooking{ID: 100, OrderID: 9, SeatID: 3, ShowDate: showDate, Status: model.StatusPending}

	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM seat_bookings WHERE id = \?`).WithArgs(100).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(sqlReleaseSeats).WithArgs("AVAILABLE", 3, "BOOKED", "RESERVED").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	deleted, err := w.PurgeOrphan(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, deleted)

	// a cancelled orphan never held its seat
	b.Status = model.StatusCancelled
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM seat_bookings WHERE id = \?`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()
	deleted, err = w.PurgeOrphan(context.Background(), b)
	require.NoError(t, err)
	assert.True(t, deleted)

	// order reappeared
	mock.ExpectBegin()
	mock.ExpectExec(`DELETE FROM seat_bookings WHERE id = \?`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	deleted, err = w.PurgeOrphan(context.Background(), b)
	require.NoError(t, err)
	assert.False(t, deleted)
	assert.NoError(t, mock.ExpectationsWereMet())
}
