// Package clock abstracts the current time so that lock expiry, order
// expiry and duplicate-suppression windows can be driven deterministically
// in tests. Production code injects Real(); tests inject a Fake.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time. All timestamps handed to the database
// are produced through a Clock and are always in UTC.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

// Real returns a Clock backed by time.Now.
func Real() Clock { return realClock{} }

func (realClock) Now() time.Time { return time.Now().UTC() }

// Fake is a Clock whose time only moves when Advance or Set is called.
// It is safe for concurrent use.
type Fake struct {
	mu  sync.Mutex
	now time.Time
}

// NewFake returns a Fake frozen at start.
func NewFake(start time.Time) *Fake {
	return &Fake{now: start.UTC()}
}

func (f *Fake) Now() time.Time {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.now
}

// Advance moves the fake time forward by d.
func (f *Fake) Advance(d time.Duration) {
	f.mu.Lock()
	f.now = f.now.Add(d)
	f.mu.Unlock()
}

// Set jumps the fake time to t.
func (f *Fake) Set(t time.Time) {
	f.mu.Lock()
	f.now = t.UTC()
	f.mu.Unlock()
}
