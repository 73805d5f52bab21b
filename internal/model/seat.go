package model

import "time"

// SeatStatus is the persisted state of a seat row.
type SeatStatus string

const (
	SeatAvailable SeatStatus = "AVAILABLE"
	SeatReserved  SeatStatus = "RESERVED"
	SeatBooked    SeatStatus = "BOOKED"
	SeatPaid      SeatStatus = "PAID"
	SeatLocked    SeatStatus = "LOCKED"
	SeatEmpty     SeatStatus = "EMPTY"
)

// Seat describes a physical seat inside a zone.  Seats are created when
// a zone is seeded and are never deleted; only their status moves.  A
// RESERVED seat carries a lock expiry and the user holding the lock.
//
// Fields:
//  ID         – primary key identifier.
//  ZoneID     – zone to which this seat belongs.
//  SeatNumber – label printed on the ticket (e.g. A1).
//  Status     – AVAILABLE, RESERVED, BOOKED, PAID, LOCKED or EMPTY.
//  LockExpiry – when a RESERVED claim lapses (nil otherwise).
//  LockedBy   – user holding the RESERVED claim (nil otherwise).
//  CreatedAt  – creation timestamp.
//  UpdatedAt  – last update timestamp.
type Seat struct {
	ID         uint64     // seats.id
	ZoneID     uint64     // seats.zone_id
	SeatNumber string     // seats.seat_number
	Status     SeatStatus // seats.status
	LockExpiry *time.Time // seats.lock_expiry (nullable)
	LockedBy   *uint64    // seats.locked_by (nullable)
	CreatedAt  time.Time  // seats.created_at
	UpdatedAt  time.Time  // seats.updated_at
}

// AvailableAt reports whether the seat may be claimed at now.  A RESERVED
// seat whose lock has lapsed counts as available even if the sweeper has
// not reset it yet.
func (s Seat) AvailableAt(now time.Time) bool {
	switch s.Status {
	case SeatAvailable:
		return true
	case SeatReserved:
		return s.LockExpiry == nil || !s.LockExpiry.After(now)
	}
	return false
}

// HeldBy reports whether userID holds a live RESERVED claim on the seat.
func (s Seat) HeldBy(userID uint64, now time.Time) bool {
	if s.Status != SeatReserved || s.LockedBy == nil || s.LockExpiry == nil {
		return false
	}
	return *s.LockedBy == userID && s.LockExpiry.After(now)
}
