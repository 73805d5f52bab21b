package model

import "time"

// TicketType selects pricing and whether an order books specific seats.
type TicketType string

const (
	TicketStandard TicketType = "STANDARD"
	TicketVIP      TicketType = "VIP"
	TicketStanding TicketType = "STANDING"
)

// Seated reports whether tickets of this type are bound to seats.
func (t TicketType) Seated() bool { return t != TicketStanding }

// Valid reports whether t is a known ticket type.
func (t TicketType) Valid() bool {
	switch t {
	case TicketStandard, TicketVIP, TicketStanding:
		return true
	}
	return false
}

// Order records a user's purchase for one show date.  An order owns its
// seat bookings; standing orders have none and carry only a quantity.
//
// Fields:
//  ID               – primary key identifier.
//  OrderNumber      – human readable number printed on tickets.
//  UserID           – user who placed the order.
//  TicketType       – STANDARD, VIP or STANDING.
//  ShowDate         – show date in YYYY-MM-DD form.
//  Quantity         – number of tickets.
//  TotalAmountCents – price of the whole order in cents.
//  Status           – PENDING, CONFIRMED, PAID, CANCELLED or EXPIRED.
//  ExpiresAt        – when a PENDING order lapses.
//  CreatedAt        – creation timestamp.
//  UpdatedAt        – last update timestamp.
//  Bookings         – seat bookings, populated by lookups only.
type Order struct {
	ID               uint64        // orders.id
	OrderNumber      string        // orders.order_number
	UserID           uint64        // orders.user_id
	TicketType       TicketType    // orders.ticket_type
	ShowDate         string        // orders.show_date
	Quantity         int           // orders.quantity
	TotalAmountCents uint32        // orders.total_amount_cents
	Status           BookingStatus // orders.status
	ExpiresAt        time.Time     // orders.expires_at
	CreatedAt        time.Time     // orders.created_at
	UpdatedAt        time.Time     // orders.updated_at
	Bookings         []SeatBooking
}

// Cancellable reports whether the order may still be cancelled.
func (o Order) Cancellable() bool {
	return o.Status == StatusPending || o.Status == StatusConfirmed
}
