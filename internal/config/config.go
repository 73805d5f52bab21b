package config // package config loads application configuration from environment variables

import (
	"os"      // os provides access to environment variables
	"strconv" // strconv converts strings to other types

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds all runtime configuration values.  The flat fields map one
// to one onto environment variables; Booking and Sweep are loaded through
// viper so they can also come from config/config.yaml.
type Config struct {
	Env          string // application environment (e.g. "dev", "prod")
	Port         string // HTTP port to listen on
	DBUser       string // database username
	DBPass       string // database password (optional)
	DBHost       string // database host address
	DBPort       string // database port number
	DBName       string // database name
	JWTSecret    string // secret used to sign JWTs
	AccessTTLMin int    // access token time‑to‑live in minutes
	RabbitURL    string // broker for booking events; empty disables publishing
	LogLevel     string // logrus level name
	Migrate      bool   // create tables on startup
	Booking      BookingConfig
	Sweep        SweepConfig
}

// Load reads a .env file when one exists, then builds the Config from the
// environment.  Missing required variables are fatal.
func Load() Config {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		logrus.WithError(err).Warn("config: could not read .env")
	}
	booking, sweep, err := LoadSettings("")
	if err != nil {
		logrus.Fatalf("invalid booking settings: %v", err)
	}
	return Config{
		Env:          must("APP_ENV"),                 // environment (dev/test/prod)
		Port:         must("APP_PORT"),                // port to bind the HTTP server
		DBUser:       must("DB_USER"),                 // database user
		DBPass:       os.Getenv("DB_PASS"),            // database password (empty allowed)
		DBHost:       must("DB_HOST"),                 // database host
		DBPort:       must("DB_PORT"),                 // database port
		DBName:       must("DB_NAME"),                 // database name
		JWTSecret:    must("JWT_SECRET"),              // secret used for signing JWTs
		AccessTTLMin: mustInt("ACCESS_TOKEN_TTL_MIN"), // TTL for access tokens in minutes
		RabbitURL:    rabbitURL(),
		LogLevel:     envStr("LOG_LEVEL", "info"),
		Migrate:      envBool("DB_MIGRATE", false),
		Booking:      booking,
		Sweep:        sweep,
	}
}

func rabbitURL() string {
	if v := os.Getenv("RABBITMQ_URL"); v != "" {
		return v
	}
	return os.Getenv("AMQP_URL")
}

// must retrieves the value of a required environment variable.  If the
// variable is unset or empty, the application logs a fatal error and exits.
func must(key string) string {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		logrus.Fatalf("missing required env var: %s", key)
	}
	return v
}

// mustInt is like must() but converts the retrieved string into an integer.
func mustInt(key string) int {
	s := must(key)
	n, err := strconv.Atoi(s)
	if err != nil {
		logrus.Fatalf("invalid int for %s: %q", key, s)
	}
	return n
}
