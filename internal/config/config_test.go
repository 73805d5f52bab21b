package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/venue-booking/internal/model"
)

func TestLoadSettingsDefaults(t *testing.T) {
	booking, sweep, err := LoadSettings("")
	require.NoError(t, err)

	assert.Equal(t, 30*time.Second, booking.SuppressionTTL)
	assert.Equal(t, 10*time.Minute, booking.SeatLock)
	assert.Equal(t, 15*time.Minute, booking.OrderHold)
	assert.Equal(t, 30, booking.MaxLockMinutes)
	assert.Equal(t, 10, booking.MaxTickets)
	assert.Equal(t, uint32(12000), booking.Prices()[model.TicketVIP])

	assert.Equal(t, time.Minute, sweep.SeatLockInterval)
	assert.Equal(t, 5*time.Minute, sweep.OrderExpiryInterval)
	assert.Equal(t, 10*time.Minute, sweep.HealthInterval)
	assert.Equal(t, time.Hour, sweep.DeepInterval)
	assert.Equal(t, 24*time.Hour, sweep.Retention)
	assert.Equal(t, 100, sweep.BatchSize)

	loc, err := booking.Location()
	require.NoError(t, err)
	assert.Equal(t, time.UTC, loc)
}

func TestLoadSettingsFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "booking.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
booking:
  seat_lock: 3m
  max_tickets: 6
  price_standing_cents: 2500
sweep:
  batch_size: 25
  retention: 48h
`), 0o600))
	t.Setenv("BOOKING_SEAT_LOCK", "2m")
	t.Setenv("SWEEP_HEALTH_INTERVAL", "30s")

	booking, sweep, err := LoadSettings(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, booking.SeatLock, "env wins over the file")
	assert.Equal(t, 6, booking.MaxTickets)
	assert.Equal(t, uint32(2500), booking.PriceStandingCents)
	assert.Equal(t, 25, sweep.BatchSize)
	assert.Equal(t, 48*time.Hour, sweep.Retention)
	assert.Equal(t, 30*time.Second, sweep.HealthInterval)
	assert.Equal(t, 15*time.Minute, booking.OrderHold, "unset keys keep defaults")
}

func TestLoadSettingsRejects(t *testing.T) {
	tests := map[string]map[string]string{
		"bad timezone":   {"BOOKING_TIMEZONE": "Mars/Olympus"},
		"zero seat lock": {"BOOKING_SEAT_LOCK": "0s"},
		"negative batch": {"SWEEP_BATCH_SIZE": "-1"},
		"zero retention": {"SWEEP_RETENTION": "0"},
		"free vip":       {"BOOKING_PRICE_VIP_CENTS": "0"},
	}
	for name, env := range tests {
		t.Run(name, func(t *testing.T) {
			for k, v := range env {
				t.Setenv(k, v)
			}
			_, _, err := LoadSettings("")
			assert.Error(t, err)
		})
	}
}

func TestLoadSettingsMissingExplicitFile(t *testing.T) {
	_, _, err := LoadSettings(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "2s")
	t.Setenv("RATE_LIMIT_TTL", "1s")
	t.Setenv("RATE_LIMIT_KEY_STRATEGY", "")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 1, cfg.Capacity)
	assert.Equal(t, 10*time.Second, cfg.TTL)
	assert.Equal(t, "user_route", cfg.KeyStrategy)
	assert.True(t, cfg.Enabled)
}

func TestLoadCacheConfig(t *testing.T) {
	t.Setenv("CACHE_METHODS", "get, head")
	t.Setenv("CACHE_ENABLED", "off")

	cfg := LoadCacheConfig()
	assert.False(t, cfg.Enabled)
	assert.Equal(t, map[string]bool{"GET": true, "HEAD": true}, cfg.Methods)
	assert.Equal(t, 10*time.Second, cfg.TTL)
}

func TestRedisOptions(t *testing.T) {
	t.Setenv("REDIS_ADDR", "cache:6380")
	t.Setenv("REDIS_DB", "2")
	assert.Equal(t, "cache:6380", RedisOptions().Addr)
	assert.Equal(t, 2, RedisOptions().DB)

	t.Setenv("REDIS_HOST", "redis")
	t.Setenv("REDIS_PORT", "6379")
	t.Setenv("REDIS_TLS", "true")
	opts := RedisOptions()
	assert.Equal(t, "redis:6379", opts.Addr)
	assert.NotNil(t, opts.TLSConfig)
}

func TestLoadKafkaConfig(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "")
	assert.False(t, LoadKafkaConfig().Enabled())

	t.Setenv("KAFKA_BROKERS", " kafka-1:9092, ,kafka-2:9092 ")
	t.Setenv("KAFKA_TOPIC", "")
	cfg := LoadKafkaConfig()
	assert.True(t, cfg.Enabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Brokers)
	assert.Equal(t, "booking-events", cfg.Topic)
}
