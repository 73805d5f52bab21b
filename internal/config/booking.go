package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/iliyamo/venue-booking/internal/model"
)

// BookingConfig tunes the booking core.
type BookingConfig struct {
	SuppressionTTL     time.Duration `mapstructure:"suppression_ttl"`
	SeatLock           time.Duration `mapstructure:"seat_lock"`
	OrderHold          time.Duration `mapstructure:"order_hold"`
	MaxLockMinutes     int           `mapstructure:"max_lock_minutes"`
	MaxTickets         int           `mapstructure:"max_tickets"`
	Timezone           string        `mapstructure:"timezone"`
	PriceStandardCents uint32        `mapstructure:"price_standard_cents"`
	PriceVIPCents      uint32        `mapstructure:"price_vip_cents"`
	PriceStandingCents uint32        `mapstructure:"price_standing_cents"`
}

// Location resolves Timezone.
func (b BookingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(b.Timezone)
}

// Prices returns the unit price of each ticket type in cents.
func (b BookingConfig) Prices() map[model.TicketType]uint32 {
	return map[model.TicketType]uint32{
		model.TicketStandard: b.PriceStandardCents,
		model.TicketVIP:      b.PriceVIPCents,
		model.TicketStanding: b.PriceStandingCents,
	}
}

// SweepConfig holds the reclamation sweep schedule.
type SweepConfig struct {
	SeatLockInterval    time.Duration `mapstructure:"seat_lock_interval"`
	OrderExpiryInterval time.Duration `mapstructure:"order_expiry_interval"`
	HealthInterval      time.Duration `mapstructure:"health_interval"`
	DeepInterval        time.Duration `mapstructure:"deep_interval"`
	Retention           time.Duration `mapstructure:"retention"`
	BatchSize           int           `mapstructure:"batch_size"`
}

type settings struct {
	Booking BookingConfig `mapstructure:"booking"`
	Sweep   SweepConfig   `mapstructure:"sweep"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("booking.suppression_ttl", 30*time.Second)
	v.SetDefault("booking.seat_lock", 10*time.Minute)
	v.SetDefault("booking.order_hold", 15*time.Minute)
	v.SetDefault("booking.max_lock_minutes", 30)
	v.SetDefault("booking.max_tickets", 10)
	v.SetDefault("booking.timezone", "UTC")
	v.SetDefault("booking.price_standard_cents", 5000)
	v.SetDefault("booking.price_vip_cents", 12000)
	v.SetDefault("booking.price_standing_cents", 3000)

	v.SetDefault("sweep.seat_lock_interval", time.Minute)
	v.SetDefault("sweep.order_expiry_interval", 5*time.Minute)
	v.SetDefault("sweep.health_interval", 10*time.Minute)
	v.SetDefault("sweep.deep_interval", time.Hour)
	v.SetDefault("sweep.retention", 24*time.Hour)
	v.SetDefault("sweep.batch_size", 100)
}

// LoadSettings reads the booking and sweep sections.  Values come from
// defaults, then config/config.yaml (or the file at path) when present,
// then BOOKING_* and SWEEP_* environment variables.
func LoadSettings(path string) (BookingConfig, SweepConfig, error) {
	v := viper.New()
	setDefaults(v)
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath("./config")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return BookingConfig{}, SweepConfig{}, fmt.Errorf("read config: %w", err)
		}
	}
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var s settings
	if err := v.Unmarshal(&s); err != nil {
		return BookingConfig{}, SweepConfig{}, fmt.Errorf("decode config: %w", err)
	}
	if err := s.validate(); err != nil {
		return BookingConfig{}, SweepConfig{}, err
	}
	return s.Booking, s.Sweep, nil
}

func (s settings) validate() error {
	if _, err := s.Booking.Location(); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}
	for name, d := range map[string]time.Duration{
		"booking.suppression_ttl":     s.Booking.SuppressionTTL,
		"booking.seat_lock":           s.Booking.SeatLock,
		"booking.order_hold":          s.Booking.OrderHold,
		"sweep.seat_lock_interval":    s.Sweep.SeatLockInterval,
		"sweep.order_expiry_interval": s.Sweep.OrderExpiryInterval,
		"sweep.health_interval":       s.Sweep.HealthInterval,
		"sweep.deep_interval":         s.Sweep.DeepInterval,
		"sweep.retention":             s.Sweep.Retention,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be positive", name)
		}
	}
	for tt, cents := range s.Booking.Prices() {
		if cents == 0 {
			return fmt.Errorf("price of %s tickets must be positive", tt)
		}
	}
	if s.Sweep.BatchSize <= 0 {
		return errors.New("sweep.batch_size must be positive")
	}
	return nil
}
