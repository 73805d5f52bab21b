// Package queue defines message payloads exchanged over the message broker
// and the consumer that records them.
package queue

// QueueName is the durable queue every booking event is published to.
// The AMQP message type tells the events apart.
const QueueName = "booking.events"

// Message types.
const (
	TypeOrderCreated     = "order.created"
	TypeSeatAvailability = "seat.availability"
)

// OrderCreatedEvent is published after an order transaction commits.  It
// carries enough for downstream consumers to log, notify or trigger
// analytics without querying the primary database.
type OrderCreatedEvent struct {
	OrderID   uint64   `json:"order_id"`
	UserID    uint64   `json:"user_id"`
	SeatIDs   []uint64 `json:"seat_ids"`
	ShowDate  string   `json:"show_date"`
	CreatedAt string   `json:"created_at"`
}

// SeatAvailabilityChangedEvent is published whenever seats change status
// through a booking operation.  ShowDate is empty when the change is not
// tied to one show date (a released lock).
type SeatAvailabilityChangedEvent struct {
	SeatIDs   []uint64 `json:"seat_ids"`
	ShowDate  string   `json:"show_date,omitempty"`
	Status    string   `json:"status"`
	ChangedAt string   `json:"changed_at"`
}
