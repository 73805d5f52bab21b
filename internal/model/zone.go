package model

import "time"

// Zone groups the seats of one area of the venue (stalls, balcony, ...).
// A zone owns its seats; seats are generated together with the zone.
type Zone struct {
	ID        uint64    // zones.id
	Name      string    // zones.name
	CreatedAt time.Time // zones.created_at
}
