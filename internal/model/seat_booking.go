package model

import "time"

// BookingStatus is shared by orders and seat bookings.
type BookingStatus string

const (
	StatusPending   BookingStatus = "PENDING"
	StatusConfirmed BookingStatus = "CONFIRMED"
	StatusPaid      BookingStatus = "PAID"
	StatusCancelled BookingStatus = "CANCELLED"
	StatusExpired   BookingStatus = "EXPIRED"
)

// ActiveStatuses are the statuses that occupy a seat for a show date.
// At most one booking per (seat, show date) may be in one of them.
var ActiveStatuses = []BookingStatus{StatusPending, StatusConfirmed, StatusPaid}

// IsActive reports whether s occupies a seat.
func (s BookingStatus) IsActive() bool {
	for _, a := range ActiveStatuses {
		if s == a {
			return true
		}
	}
	return false
}

// SeatBooking links an order to one seat for one show date.  Bookings
// are only ever created together with their order inside a single
// transaction.
//
// Fields:
//  ID        – primary key identifier.
//  OrderID   – owning order (no FK; orphans are swept).
//  SeatID    – booked seat.
//  ShowDate  – show date in YYYY-MM-DD form.
//  Status    – PENDING, CONFIRMED, PAID, CANCELLED or EXPIRED.
//  CreatedAt – creation timestamp.
//  UpdatedAt – last update timestamp.
type SeatBooking struct {
	ID        uint64        // seat_bookings.id
	OrderID   uint64        // seat_bookings.order_id
	SeatID    uint64        // seat_bookings.seat_id
	ShowDate  string        // seat_bookings.show_date
	Status    BookingStatus // seat_bookings.status
	CreatedAt time.Time     // seat_bookings.created_at
	UpdatedAt time.Time     // seat_bookings.updated_at
}

// ShowDateLayout is the wire and storage format of a show date.
const ShowDateLayout = "2006-01-02"
