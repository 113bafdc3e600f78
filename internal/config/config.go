// Package config loads and validates application configuration from environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Event backends.
const (
	EventsNone  = "none"
	EventsKafka = "kafka"
	EventsAMQP  = "amqp"
)

// Config holds all configuration values for the API server.
// Values are populated by Load from environment variables.
type Config struct {
	// Port is the TCP port the HTTP server listens on. Defaults to "8080".
	Port string

	// DatabaseURL is the Postgres connection string. Required unless
	// StoreDriver is "memory".
	DatabaseURL string

	// StoreDriver selects the persistence backend: postgres or memory.
	StoreDriver string

	// LogLevel controls the minimum log level. Defaults to "info".
	LogLevel string

	// CORSOrigins is the list of allowed cross-origin request origins.
	CORSOrigins []string

	MaxBodyBytes    int64
	MigrateOnStart  bool
	ShutdownTimeout time.Duration

	// RedisAddr enables the trip search cache when set.
	RedisAddr      string
	RedisPassword  string
	SearchCacheTTL time.Duration

	EventsBackend string
	KafkaBrokers  []string
	KafkaTopic    string
	AMQPURL       string
	AMQPExchange  string

	// StripeAPIKey enables wallet top-ups. Top-ups are rejected when empty.
	StripeAPIKey string
}

// Load reads configuration from environment variables and returns a Config.
// Every problem found is reported in a single joined error.
func Load() (Config, error) {
	return LoadArgs(nil)
}

// LoadArgs reads the environment, applies command-line overrides from args
// and validates the result. Flags win over the environment.
func LoadArgs(args []string) (Config, error) {
	cfg, errs := fromEnv()

	fs := pflag.NewFlagSet("api", pflag.ContinueOnError)
	fs.StringVar(&cfg.Port, "port", cfg.Port, "HTTP listen port")
	fs.StringVar(&cfg.StoreDriver, "store", cfg.StoreDriver, "persistence backend: postgres or memory")
	fs.BoolVar(&cfg.MigrateOnStart, "migrate", cfg.MigrateOnStart, "apply pending migrations at startup")
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return Config{}, err
		}
		errs = append(errs, err)
	}
	cfg.StoreDriver = strings.ToLower(cfg.StoreDriver)

	errs = append(errs, cfg.validate()...)
	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func fromEnv() (Config, []error) {
	var errs []error

	cfg := Config{
		Port:          getEnv("PORT", "8080"),
		StoreDriver:   strings.ToLower(getEnv("STORE_DRIVER", StorePostgres)),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		CORSOrigins:   splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173")),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		EventsBackend: strings.ToLower(getEnv("EVENTS_BACKEND", EventsNone)),
		KafkaBrokers:  splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaTopic:    getEnv("KAFKA_TOPIC", "ridepool.events"),
		AMQPURL:       os.Getenv("AMQP_URL"),
		AMQPExchange:  getEnv("AMQP_EXCHANGE", "ridepool.events"),
		StripeAPIKey:  os.Getenv("STRIPE_API_KEY"),
		DatabaseURL:   os.Getenv("DATABASE_URL"),
	}

	var err error
	if cfg.MaxBodyBytes, err = getInt64("MAX_BODY_BYTES", 1<<20); err != nil {
		errs = append(errs, err)
	}
	if cfg.MigrateOnStart, err = getBool("MIGRATE_ON_START", true); err != nil {
		errs = append(errs, err)
	}
	if cfg.ShutdownTimeout, err = getDuration("SHUTDOWN_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.SearchCacheTTL, err = getDuration("SEARCH_CACHE_TTL", 30*time.Second); err != nil {
		errs = append(errs, err)
	}
	return cfg, errs
}

// validate checks the cross-field rules once every source has been applied.
func (c Config) validate() []error {
	var errs []error

	switch c.StoreDriver {
	case StorePostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, errors.New("required environment variable not set: DATABASE_URL"))
		}
	case StoreMemory:
	default:
		errs = append(errs, fmt.Errorf("store driver: unknown driver %q", c.StoreDriver))
	}

	switch c.EventsBackend {
	case EventsNone:
	case EventsKafka:
		if len(c.KafkaBrokers) == 0 {
			errs = append(errs, errors.New("KAFKA_BROKERS is required when EVENTS_BACKEND=kafka"))
		}
	case EventsAMQP:
		if c.AMQPURL == "" {
			errs = append(errs, errors.New("AMQP_URL is required when EVENTS_BACKEND=amqp"))
		}
	default:
		errs = append(errs, fmt.Errorf("EVENTS_BACKEND: unknown backend %q", c.EventsBackend))
	}
	return errs
}

// getEnv returns the value of the environment variable named by key,
// or fallback if the variable is not set or is empty.
func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getInt64(key string, fallback int64) (int64, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%s: expected a positive integer, got %q", key, v)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: expected a boolean, got %q", key, v)
	}
	return b, nil
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: expected a duration, got %q", key, v)
	}
	return d, nil
}

// splitCSV splits a comma-separated string into a trimmed slice, ignoring empty entries.
func splitCSV(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if t := strings.TrimSpace(part); t != "" {
			out = append(out, t)
		}
	}
	return out
}
