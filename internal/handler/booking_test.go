package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-booking/internal/middleware"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/service"
	"github.com/iliyamo/venue-booking/internal/worker"
)

var fixedNow = time.Date(2025, 8, 14, 12, 0, 0, 0, time.UTC)

// fakeAPI returns err when set, otherwise a canned order.
type fakeAPI struct {
	err       error
	gotUser   uint64
	gotDraft  service.OrderDraft
	gotOrder  uint64
	gotSeats  []uint64
	gotMins   int
	released  int64
	health    service.HealthStats
	cancelled string
}

func (f *fakeAPI) order() *model.Order {
	return &model.Order{
		ID:          42,
		OrderNumber: "ORD-20250814-ABCDEF12",
		UserID:      f.gotUser,
		TicketType:  model.TicketStandard,
		ShowDate:    "2025-08-15",
		Quantity:    1,
		Status:      model.StatusPending,
		ExpiresAt:   fixedNow.Add(15 * time.Minute),
		CreatedAt:   fixedNow,
		Bookings:    []model.SeatBooking{{ID: 1, OrderID: 42, SeatID: 3, ShowDate: "2025-08-15", Status: model.StatusPending}},
	}
}

func (f *fakeAPI) CreateOrder(_ context.Context, userID uint64, d service.OrderDraft) (*model.Order, error) {
	f.gotUser, f.gotDraft = userID, d
	if f.err != nil {
		return nil, f.err
	}
	return f.order(), nil
}

func (f *fakeAPI) GetOrder(_ context.Context, orderID, userID uint64) (*model.Order, error) {
	f.gotUser, f.gotOrder = userID, orderID
	if f.err != nil {
		return nil, f.err
	}
	return f.order(), nil
}

func (f *fakeAPI) CancelOrder(_ context.Context, orderID, userID uint64) (*model.Order, error) {
	f.gotUser, f.gotOrder, f.cancelled = userID, orderID, "owner"
	if f.err != nil {
		return nil, f.err
	}
	return f.order(), nil
}

func (f *fakeAPI) CancelOrderAsStaff(_ context.Context, orderID, staffID uint64) (*model.Order, error) {
	f.gotUser, f.gotOrder, f.cancelled = staffID, orderID, "staff"
	if f.err != nil {
		return nil, f.err
	}
	return f.order(), nil
}

func (f *fakeAPI) LockSeats(_ context.Context, userID uint64, seatIDs []uint64, showDate string, minutes int) (*service.LockedSet, error) {
	f.gotUser, f.gotSeats, f.gotMins = userID, seatIDs, minutes
	if f.err != nil {
		return nil, f.err
	}
	return &service.LockedSet{SeatIDs: seatIDs, ShowDate: showDate, HolderID: userID, ExpiresAt: fixedNow.Add(time.Duration(minutes) * time.Minute)}, nil
}

func (f *fakeAPI) ReleaseSeats(_ context.Context, userID uint64, seatIDs []uint64) (int64, error) {
	f.gotUser, f.gotSeats = userID, seatIDs
	return f.released, f.err
}

func (f *fakeAPI) Health(context.Context) (service.HealthStats, error) {
	return f.health, f.err
}

type fakeAdmin struct {
	report worker.CleanupReport
	err    error
	last   *service.HealthStats
}

func (a *fakeAdmin) EmergencyCleanup(context.Context) (worker.CleanupReport, error) {
	return a.report, a.err
}

func (a *fakeAdmin) LastHealth() (service.HealthStats, bool) {
	if a.last == nil {
		return service.HealthStats{}, false
	}
	return *a.last, true
}

func call(h echo.HandlerFunc, method, target, body string, userID uint64, params ...string) *httptest.ResponseRecorder {
	e := echo.New()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	if userID != 0 {
		c.Set(middleware.UserIDKey, float64(userID))
	}
	if len(params) == 2 {
		c.SetParamNames(params[0])
		c.SetParamValues(params[1])
	}
	_ = h(c)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestCreateOrder(t *testing.T) {
	api := &fakeAPI{}
	h := NewBookingHandler(api, &fakeAdmin{})

	rec := call(h.CreateOrder, http.MethodPost, "/v1/orders",
		`{"ticket_type":"STANDARD","show_date":"2025-08-15","seat_ids":[3]}`, 7)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, uint64(7), api.gotUser)
	assert.Equal(t, []uint64{3}, api.gotDraft.SeatIDs)

	body := decode(t, rec)
	assert.Equal(t, "ORD-20250814-ABCDEF12", body["order_number"])
	assert.Equal(t, "2025-08-14T12:15:00Z", body["expires_at"])
	assert.Len(t, body["bookings"], 1)
}

func TestCreateOrderUnauthenticated(t *testing.T) {
	h := NewBookingHandler(&fakeAPI{}, &fakeAdmin{})
	rec := call(h.CreateOrder, http.MethodPost, "/v1/orders", `{}`, 0)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestWriteErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		status     int
		code       string
		retryAfter string
	}{
		{"invalid", &service.BookingError{Kind: service.KindInvalidInput, Detail: "bad"}, http.StatusBadRequest, "INVALID_INPUT", ""},
		{"not found", service.ErrNotFound, http.StatusNotFound, "NOT_FOUND", ""},
		{"forbidden", service.ErrForbidden, http.StatusForbidden, "FORBIDDEN", ""},
		{"final", service.ErrAlreadyFinal, http.StatusConflict, "ALREADY_FINAL", ""},
		{"duplicate", service.ErrDuplicateInFlight, http.StatusConflict, "DUPLICATE_IN_FLIGHT", ""},
		{"contended", service.ErrSeatsContended, http.StatusConflict, "SEATS_CONTENDED", "1"},
		{"unavailable", &service.BookingError{Kind: service.KindSeatsUnavailable, SeatIDs: []uint64{3}}, http.StatusConflict, "SEATS_UNAVAILABLE", ""},
		{"tx failed", service.ErrTransactionFailed, http.StatusInternalServerError, "TRANSACTION_FAILED", ""},
		{"plain", errors.New("boom"), http.StatusInternalServerError, "TRANSACTION_FAILED", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewBookingHandler(&fakeAPI{err: tt.err}, &fakeAdmin{})
			rec := call(h.GetOrder, http.MethodGet, "/v1/orders/42", "", 7, "id", "42")
			assert.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.retryAfter, rec.Header().Get("Retry-After"))
			assert.Equal(t, tt.code, decode(t, rec)["code"])
		})
	}
}

func TestUnavailableListsSeats(t *testing.T) {
	h := NewBookingHandler(&fakeAPI{err: &service.BookingError{Kind: service.KindSeatsUnavailable, SeatIDs: []uint64{3, 4}}}, &fakeAdmin{})
	rec := call(h.LockSeats, http.MethodPost, "/v1/seats/lock", `{"seat_ids":[3,4],"show_date":"2025-08-15"}`, 7)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, []interface{}{float64(3), float64(4)}, decode(t, rec)["seat_ids"])
}

func TestInternalErrorHidesDetail(t *testing.T) {
	h := NewBookingHandler(&fakeAPI{err: errors.New("dial tcp 10.0.0.3:3306: refused")}, &fakeAdmin{})
	rec := call(h.GetOrder, http.MethodGet, "/v1/orders/42", "", 7, "id", "42")
	assert.Equal(t, "internal error", decode(t, rec)["error"])
}

func TestGetOrderBadID(t *testing.T) {
	api := &fakeAPI{}
	h := NewBookingHandler(api, &fakeAdmin{})
	for _, id := range []string{"abc", "0", "-1"} {
		rec := call(h.GetOrder, http.MethodGet, "/v1/orders/"+id, "", 7, "id", id)
		assert.Equal(t, http.StatusBadRequest, rec.Code, id)
	}
	assert.Zero(t, api.gotOrder)
}

func TestCancelOrderRoutesByActor(t *testing.T) {
	api := &fakeAPI{}
	h := NewBookingHandler(api, &fakeAdmin{})

	rec := call(h.CancelOrder, http.MethodDelete, "/v1/orders/42", "", 7, "id", "42")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "owner", api.cancelled)

	rec = call(h.CancelOrderAsStaff, http.MethodDelete, "/v1/admin/orders/42", "", 1, "id", "42")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "staff", api.cancelled)
	assert.Equal(t, uint64(42), api.gotOrder)
}

func TestLockSeatsDefaultsDuration(t *testing.T) {
	api := &fakeAPI{}
	h := NewBookingHandler(api, &fakeAdmin{})
	rec := call(h.LockSeats, http.MethodPost, "/v1/seats/lock", `{"seat_ids":[5],"show_date":"2025-08-15"}`, 7)
	require.Equal(t, http.StatusCreated, rec.Code)
	assert.Equal(t, 5, api.gotMins)
	assert.Equal(t, "2025-08-14T12:05:00Z", decode(t, rec)["expires_at"])
}

func TestReleaseSeats(t *testing.T) {
	api := &fakeAPI{released: 2}
	h := NewBookingHandler(api, &fakeAdmin{})
	rec := call(h.ReleaseSeats, http.MethodPost, "/v1/seats/release", `{"seat_ids":[5,6]}`, 7)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), decode(t, rec)["released"])
	assert.Equal(t, []uint64{5, 6}, api.gotSeats)
}

func TestHealthAndCleanup(t *testing.T) {
	last := service.HealthStats{ActiveOrders: 1}
	admin := &fakeAdmin{last: &last, report: worker.CleanupReport{ReleasedLocks: 4}}
	h := NewBookingHandler(&fakeAPI{health: service.HealthStats{LockedSeats: 2}}, admin)

	rec := call(h.Health, http.MethodGet, "/v1/admin/health", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, float64(2), body["current"].(map[string]interface{})["locked_seats"])
	assert.Equal(t, float64(1), body["last_sweep"].(map[string]interface{})["active_orders"])

	rec = call(h.Cleanup, http.MethodPost, "/v1/admin/cleanup", "", 1)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(4), decode(t, rec)["released_locks"])

	admin.err = errors.New("db down")
	rec = call(h.Cleanup, http.MethodPost, "/v1/admin/cleanup", "", 1)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewBookingHandlerPanicsOnNil(t *testing.T) {
	assert.Panics(t, func() { NewBookingHandler(nil, &fakeAdmin{}) })
}
