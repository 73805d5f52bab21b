package handler

import (
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/venue-booking/internal/clock"
	"github.com/iliyamo/venue-booking/internal/model"
	"github.com/iliyamo/venue-booking/internal/repository"
)

// VenueHandler serves the zone catalogue and the per date seat map.  The
// listing endpoints are public; zone creation is for staff.
type VenueHandler struct {
	Zones    *repository.ZoneRepo
	Seats    *repository.SeatRepo
	Bookings *repository.SeatBookingRepo
	Clock    clock.Clock
}

// NewVenueHandler builds a VenueHandler on db.
func NewVenueHandler(db *sql.DB, clk clock.Clock) *VenueHandler {
	if clk == nil {
		clk = clock.Real()
	}
	return &VenueHandler{
		Zones:    repository.NewZoneRepo(db),
		Seats:    repository.NewSeatRepo(db),
		Bookings: repository.NewSeatBookingRepo(db),
		Clock:    clk,
	}
}

type zoneView struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

type seatView struct {
	ID         uint64 `json:"id"`
	SeatNumber string `json:"seat_number"`
	Status     string `json:"status"`
}

// ListZones handles GET /v1/zones.
func (h *VenueHandler) ListZones(c echo.Context) error {
	zones, err := h.Zones.List(c.Request().Context())
	if err != nil {
		logrus.WithError(err).Error("list zones")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	out := make([]zoneView, 0, len(zones))
	for _, z := range zones {
		out = append(out, zoneView{ID: z.ID, Name: z.Name})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": out})
}

// SeatMap handles GET /v1/zones/:id/seats?show_date=YYYY-MM-DD.  Each seat
// is reported as the customer would see it for that date: seats with an
// active booking on the date are BOOKED, lapsed locks read as AVAILABLE.
// The map is a snapshot; only a lock or an order actually claims a seat.
func (h *VenueHandler) SeatMap(c echo.Context) error {
	zoneID, err := parseID(c)
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid zone id"})
	}
	showDate := c.QueryParam("show_date")
	if _, err := time.Parse(model.ShowDateLayout, showDate); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "show_date must be YYYY-MM-DD"})
	}
	ctx := c.Request().Context()
	zone, err := h.Zones.GetByID(ctx, zoneID)
	if err != nil {
		if errors.Is(err, repository.ErrZoneNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "zone not found"})
		}
		logrus.WithError(err).WithField("zone_id", zoneID).Error("load zone")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	seats, err := h.Seats.ListByZone(ctx, zoneID)
	if err != nil {
		logrus.WithError(err).WithField("zone_id", zoneID).Error("list seats")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	taken, err := h.Bookings.ActiveSeatIDsByZone(ctx, zoneID, showDate)
	if err != nil {
		logrus.WithError(err).WithField("zone_id", zoneID).Error("list booked seats")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "database error"})
	}
	now := h.Clock.Now()
	out := make([]seatView, 0, len(seats))
	available := 0
	for _, s := range seats {
		status := s.Status
		switch {
		case taken[s.ID]:
			status = model.SeatBooked
		case s.AvailableAt(now):
			status = model.SeatAvailable
			available++
		}
		out = append(out, seatView{ID: s.ID, SeatNumber: s.SeatNumber, Status: string(status)})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"zone":      zoneView{ID: zone.ID, Name: zone.Name},
		"show_date": showDate,
		"available": available,
		"seats":     out,
	})
}

// CreateZone handles POST /v1/admin/zones.  The body names the zone and
// its grid; seats are labelled A1, A2, ... row by row.
func (h *VenueHandler) CreateZone(c echo.Context) error {
	var body struct {
		Name        string `json:"name"`
		Rows        int    `json:"rows"`
		SeatsPerRow int    `json:"seats_per_row"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	name := strings.TrimSpace(body.Name)
	if name == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "name is required"})
	}
	zone, err := h.Zones.CreateWithSeats(c.Request().Context(), name, body.Rows, body.SeatsPerRow)
	if err != nil {
		if errors.Is(err, repository.ErrInvalidLayout) {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
		}
		logrus.WithError(err).Error("create zone")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create zone"})
	}
	return c.JSON(http.StatusCreated, echo.Map{
		"id":    zone.ID,
		"name":  zone.Name,
		"seats": body.Rows * body.SeatsPerRow,
	})
}
