package service

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/iliyamo/venue-booking/internal/model"
)

// DefaultMaxTickets caps the quantity of a single order.
const DefaultMaxTickets = 10

// OrderDraft is what a customer asks for.  Seated ticket types name their
// seats; standing tickets carry only a quantity.
type OrderDraft struct {
	TicketType model.TicketType `json:"ticket_type"`
	ShowDate   string           `json:"show_date"`
	SeatIDs    []uint64         `json:"seat_ids"`
	Quantity   int              `json:"quantity"`
}

// normalize validates the draft and returns a copy with sorted, unique seat
// ids and the quantity filled in for seated tickets.  Show dates before
// today in loc are rejected.
func (d OrderDraft) normalize(now time.Time, loc *time.Location, maxTickets int) (OrderDraft, error) {
	if !d.TicketType.Valid() {
		return d, invalid("unknown ticket type %q", d.TicketType)
	}
	if err := validateShowDate(d.ShowDate, now, loc); err != nil {
		return d, err
	}
	out := d
	if d.TicketType.Seated() {
		ids, err := normalizeSeatIDs(d.SeatIDs)
		if err != nil {
			return d, err
		}
		if d.Quantity != 0 && d.Quantity != len(ids) {
			return d, invalid("quantity %d does not match %d seats", d.Quantity, len(ids))
		}
		out.SeatIDs = ids
		out.Quantity = len(ids)
	} else {
		if len(d.SeatIDs) > 0 {
			return d, invalid("%s tickets do not take seat ids", d.TicketType)
		}
		if d.Quantity <= 0 {
			return d, invalid("quantity must be positive")
		}
		out.SeatIDs = nil
	}
	if maxTickets > 0 && out.Quantity > maxTickets {
		return d, invalid("at most %d tickets per order", maxTickets)
	}
	return out, nil
}

func validateShowDate(showDate string, now time.Time, loc *time.Location) error {
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(model.ShowDateLayout, showDate, loc)
	if err != nil {
		return invalid("show_date must be YYYY-MM-DD")
	}
	local := now.In(loc)
	today := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, loc)
	if day.Before(today) {
		return invalid("show_date %s is in the past", showDate)
	}
	return nil
}

// normalizeSeatIDs sorts and de-duplicates ids.  Zero ids are rejected.
func normalizeSeatIDs(ids []uint64) ([]uint64, error) {
	if len(ids) == 0 {
		return nil, invalid("seat_ids is required")
	}
	seen := make(map[uint64]struct{}, len(ids))
	out := make([]uint64, 0, len(ids))
	for _, id := range ids {
		if id == 0 {
			return nil, invalid("seat ids must be positive")
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}

// Pricer computes the total of an order in cents.
type Pricer interface {
	Price(ticketType model.TicketType, quantity int) (uint32, error)
}

// FlatPricer charges a fixed unit price per ticket type.
type FlatPricer map[model.TicketType]uint32

// Price implements Pricer.
func (p FlatPricer) Price(ticketType model.TicketType, quantity int) (uint32, error) {
	unit, ok := p[ticketType]
	if !ok {
		return 0, fmt.Errorf("no price for ticket type %s", ticketType)
	}
	if quantity < 0 {
		return 0, fmt.Errorf("negative quantity %d", quantity)
	}
	total := uint64(unit) * uint64(quantity)
	if total > math.MaxUint32 {
		return 0, fmt.Errorf("total of %d x %d cents overflows", quantity, unit)
	}
	return uint32(total), nil
}

// ExpiryPolicy decides how long a PENDING order stays payable.
type ExpiryPolicy struct {
	// Hold is the payment window of seated orders.
	Hold time.Duration
	// Location is the venue time zone; standing orders lapse at the end of
	// the show day there.
	Location *time.Location
}

// ExpiresAt returns the expiry of an order placed at now.  The result is in
// UTC.
func (p ExpiryPolicy) ExpiresAt(now time.Time, ticketType model.TicketType, showDate string) (time.Time, error) {
	if ticketType.Seated() {
		return now.Add(p.Hold).UTC(), nil
	}
	loc := p.Location
	if loc == nil {
		loc = time.UTC
	}
	day, err := time.ParseInLocation(model.ShowDateLayout, showDate, loc)
	if err != nil {
		return time.Time{}, invalid("show_date must be YYYY-MM-DD")
	}
	return day.AddDate(0, 0, 1).Add(-time.Second).UTC(), nil
}
