package service

import (
	"encoding/hex"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/blake2b"

	"github.com/iliyamo/venue-booking/internal/clock"
	"github.com/iliyamo/venue-booking/internal/model"
)

// DefaultSuppressionTTL is how long an identical booking request is
// refused after the first one started.
const DefaultSuppressionTTL = 30 * time.Second

// BookingSignature derives the suppression key of a booking request from
// the user, ticket type, show date, seat ids and quantity.  Seat order in
// the request does not change the signature.
func BookingSignature(userID uint64, ticketType model.TicketType, showDate string, seatIDs []uint64, quantity int) string {
	sorted := append([]uint64(nil), seatIDs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	ids := make([]string, len(sorted))
	for i, id := range sorted {
		ids[i] = strconv.FormatUint(id, 10)
	}
	raw := strings.Join([]string{
		strconv.FormatUint(userID, 10),
		string(ticketType),
		showDate,
		strings.Join(ids, ","),
		strconv.Itoa(quantity),
	}, "|")
	sum := blake2b.Sum256([]byte(raw))
	return hex.EncodeToString(sum[:])
}

// Token is handed out by Acquire and given back to Release.
type Token struct {
	Signature string
	UserID    uint64
	id        uuid.UUID
}

type suppressEntry struct {
	id         uuid.UUID
	userID     uint64
	acquiredAt time.Time
}

// DuplicateSuppressor refuses a booking request while an identical one is
// still in flight.  It is process local and never touches the database;
// losing its state on restart only re-admits near simultaneous duplicates.
type DuplicateSuppressor struct {
	mu      sync.Mutex
	ttl     time.Duration
	clock   clock.Clock
	entries map[string]suppressEntry
}

// NewDuplicateSuppressor creates an empty suppressor.  A non-positive ttl
// selects DefaultSuppressionTTL.
func NewDuplicateSuppressor(ttl time.Duration, clk clock.Clock) *DuplicateSuppressor {
	if ttl <= 0 {
		ttl = DefaultSuppressionTTL
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &DuplicateSuppressor{ttl: ttl, clock: clk, entries: make(map[string]suppressEntry)}
}

// Acquire registers signature for userID.  It fails with
// KindDuplicateInFlight while an unexpired entry for the same signature
// exists.  An expired entry is replaced as if it were absent.
func (s *DuplicateSuppressor) Acquire(signature string, userID uint64) (Token, error) {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[signature]; ok && s.live(e, now) {
		return Token{}, newError(KindDuplicateInFlight, "an identical booking request is already being processed", nil)
	}
	e := suppressEntry{id: uuid.New(), userID: userID, acquiredAt: now}
	s.entries[signature] = e
	return Token{Signature: signature, UserID: userID, id: e.id}, nil
}

// Release removes the entry created for tok.  Releasing twice, releasing
// an expired token or releasing after the signature was re-acquired by a
// newer request are all no-ops.
func (s *DuplicateSuppressor) Release(tok Token) {
	if tok.Signature == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if e, ok := s.entries[tok.Signature]; ok && e.id == tok.id {
		delete(s.entries, tok.Signature)
	}
}

// Purge drops expired entries and returns how many were removed.
func (s *DuplicateSuppressor) Purge() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for sig, e := range s.entries {
		if !s.live(e, now) {
			delete(s.entries, sig)
			n++
		}
	}
	return n
}

// Clear drops every entry, live or not.
func (s *DuplicateSuppressor) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := len(s.entries)
	s.entries = make(map[string]suppressEntry)
	return n
}

// Len returns the number of unexpired entries.
func (s *DuplicateSuppressor) Len() int {
	now := s.clock.Now()
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, e := range s.entries {
		if s.live(e, now) {
			n++
		}
	}
	return n
}

func (s *DuplicateSuppressor) live(e suppressEntry, now time.Time) bool {
	return now.Sub(e.acquiredAt) < s.ttl
}
