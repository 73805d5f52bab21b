package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestFakeAdvanceAndSet(t *testing.T) {
	start := time.Date(2025, 8, 15, 10, 0, 0, 0, time.UTC)
	f := NewFake(start)
	assert.Equal(t, start, f.Now())

	f.Advance(6 * time.Minute)
	assert.Equal(t, start.Add(6*time.Minute), f.Now())

	loc := time.FixedZone("UTC+3", 3*3600)
	f.Set(time.Date(2025, 8, 16, 3, 0, 0, 0, loc))
	assert.Equal(t, time.Date(2025, 8, 16, 0, 0, 0, 0, time.UTC), f.Now())
	assert.Equal(t, time.UTC, f.Now().Location())
}

func TestRealIsUTC(t *testing.T) {
	assert.Equal(t, time.UTC, Real().Now().Location())
}
