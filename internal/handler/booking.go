package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/venue-booking/internal/middleware"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/service"
	"github.com/iliyamo/venue-booking/internal/worker"
)

// BookingAPI is the booking core as seen by HTTP handlers.
type BookingAPI interface {
	CreateOrder(ctx context.Context, userID uint64, draft service.OrderDraft) (*model.Order, error)
	GetOrder(ctx context.Context, orderID, userID uint64) (*model.Order, error)
	CancelOrder(ctx context.Context, orderID, userID uint64) (*model.Order, error)
	CancelOrderAsStaff(ctx context.Context, orderID, staffID uint64) (*model.Order, error)
	LockSeats(ctx context.Context, userID uint64, seatIDs []uint64, showDate string, durationMinutes int) (*service.LockedSet, error)
	ReleaseSeats(ctx context.Context, userID uint64, seatIDs []uint64) (int64, error)
	Health(ctx context.Context) (service.HealthStats, error)
}

// Maintenance exposes the sweeper to operators.
type Maintenance interface {
	EmergencyCleanup(ctx context.Context) (worker.CleanupReport, error)
	LastHealth() (service.HealthStats, bool)
}

// BookingHandler serves order and seat lock endpoints.  All methods assume
// JWTAuth and RequireRole already ran.
type BookingHandler struct {
	API   BookingAPI
	Admin Maintenance
}

// NewBookingHandler constructs a BookingHandler.  Both dependencies must
// be non-nil.
func NewBookingHandler(api BookingAPI, admin Maintenance) *BookingHandler {
	if api == nil || admin == nil {
		panic("nil dependency passed to NewBookingHandler")
	}
	return &BookingHandler{API: api, Admin: admin}
}

type bookingView struct {
	ID       uint64 `json:"id"`
	SeatID   uint64 `json:"seat_id"`
	ShowDate string `json:"show_date"`
	Status   string `json:"status"`
}

type orderView struct {
	ID               uint64        `json:"id"`
	OrderNumber      string        `json:"order_number"`
	UserID           uint64        `json:"user_id"`
	TicketType       string        `json:"ticket_type"`
	ShowDate         string        `json:"show_date"`
	Quantity         int           `json:"quantity"`
	TotalAmountCents uint32        `json:"total_amount_cents"`
	Status           string        `json:"status"`
	ExpiresAt        string        `json:"expires_at"`
	CreatedAt        string        `json:"created_at"`
	Bookings         []bookingView `json:"bookings"`
}

func toOrderView(o *model.Order) orderView {
	v := orderView{
		ID:               o.ID,
		OrderNumber:      o.OrderNumber,
		UserID:           o.UserID,
		TicketType:       string(o.TicketType),
		ShowDate:         o.ShowDate,
		Quantity:         o.Quantity,
		TotalAmountCents: o.TotalAmountCents,
		Status:           string(o.Status),
		ExpiresAt:        o.ExpiresAt.UTC().Format(time.RFC3339),
		CreatedAt:        o.CreatedAt.UTC().Format(time.RFC3339),
		Bookings:         make([]bookingView, 0, len(o.Bookings)),
	}
	for _, b := range o.Bookings {
		v.Bookings = append(v.Bookings, bookingView{ID: b.ID, SeatID: b.SeatID, ShowDate: b.ShowDate, Status: string(b.Status)})
	}
	return v
}

// CreateOrder handles POST /v1/orders.  The body is an OrderDraft.  It
// returns 201 with the order, or 409 with a code telling a duplicate in
// flight, contended seats and unavailable seats apart.
func (h *BookingHandler) CreateOrder(c echo.Context) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var draft service.OrderDraft
	if err := c.Bind(&draft); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	order, err := h.API.CreateOrder(c.Request().Context(), userID, draft)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, toOrderView(order))
}

// GetOrder handles GET /v1/orders/:id.
func (h *BookingHandler) GetOrder(c echo.Context) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.API.GetOrder(c.Request().Context(), orderID, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderView(order))
}

// CancelOrder handles DELETE /v1/orders/:id for the order's owner.
func (h *BookingHandler) CancelOrder(c echo.Context) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.API.CancelOrder(c.Request().Context(), orderID, userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderView(order))
}

// CancelOrderAsStaff handles DELETE /v1/admin/orders/:id.
func (h *BookingHandler) CancelOrderAsStaff(c echo.Context) error {
	staffID, err := middleware.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	orderID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid order id"})
	}
	order, err := h.API.CancelOrderAsStaff(c.Request().Context(), orderID, staffID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, toOrderView(order))
}

type lockRequest struct {
	SeatIDs         []uint64 `json:"seat_ids"`
	ShowDate        string   `json:"show_date"`
	DurationMinutes int      `json:"duration_minutes"`
}

// LockSeats handles POST /v1/seats/lock.  It holds seats for the caller
// while a checkout form is filled in.  duration_minutes defaults to 5.
func (h *BookingHandler) LockSeats(c echo.Context) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body lockRequest
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if body.DurationMinutes == 0 {
		body.DurationMinutes = 5
	}
	set, err := h.API.LockSeats(c.Request().Context(), userID, body.SeatIDs, body.ShowDate, body.DurationMinutes)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"seat_ids":   set.SeatIDs,
		"show_date":  set.ShowDate,
		"expires_at": set.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

// ReleaseSeats handles POST /v1/seats/release.  Only the caller's own locks
// are dropped; the response reports how many seats became available.
func (h *BookingHandler) ReleaseSeats(c echo.Context) error {
	userID, err := middleware.UserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
	}
	var body struct {
		SeatIDs []uint64 `json:"seat_ids"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	n, err := h.API.ReleaseSeats(c.Request().Context(), userID, body.SeatIDs)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, echo.Map{"released": n})
}

// Health handles GET /v1/admin/health.  It returns live counters and the
// ones recorded by the last health sweep, if any.
func (h *BookingHandler) Health(c echo.Context) error {
	stats, err := h.API.Health(c.Request().Context())
	if err != nil {
		logrus.WithError(err).Error("health query failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	resp := echo.Map{"current": stats}
	if last, ok := h.Admin.LastHealth(); ok {
		resp["last_sweep"] = last
	}
	return c.JSON(http.StatusOK, resp)
}

// Cleanup handles POST /v1/admin/cleanup.
func (h *BookingHandler) Cleanup(c echo.Context) error {
	rep, err := h.Admin.EmergencyCleanup(c.Request().Context())
	if err != nil {
		logrus.WithError(err).Error("emergency cleanup failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "cleanup failed", "partial": rep})
	}
	return c.JSON(http.StatusOK, rep)
}

func parseID(c echo.Context) (uint64, error) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// writeError renders a booking error.  Conflicts share 409 and carry a
// code so clients can tell "pick other seats" from "try again shortly".
func writeError(c echo.Context, err error) error {
	var be *service.BookingError
	if !errors.As(err, &be) {
		be = &service.BookingError{Kind: service.KindTransactionFailed, Err: err}
	}
	body := echo.Map{"error": be.Error(), "code": be.Kind}
	status := http.StatusInternalServerError
	switch be.Kind {
	case service.KindInvalidInput:
		status = http.StatusBadRequest
	case service.KindNotFound:
		status = http.StatusNotFound
	case service.KindForbidden:
		status = http.StatusForbidden
	case service.KindAlreadyFinal, service.KindDuplicateInFlight:
		status = http.StatusConflict
	case service.KindSeatsUnavailable:
		status = http.StatusConflict
		body["seat_ids"] = be.SeatIDs
	case service.KindSeatsContended:
		status = http.StatusConflict
		body["retryable"] = true
		c.Response().Header().Set("Retry-After", "1")
	default:
		logrus.WithError(err).WithField("path", c.Path()).Error("booking operation failed")
		body["error"] = "internal error"
	}
	return c.JSON(status, body)
}
