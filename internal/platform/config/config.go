package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"adpulse/pkg/platform/middleware/metadata"
)

// Server captures process level configuration. FromEnv fills it so main stays lean.
type Server struct {
	Addr        string
	Environment string
	CORSOrigin  string
	// TrustedProxies lists CIDRs or addresses whose forwarding headers are honoured.
	TrustedProxies []string
	RateLimit      RateLimitConfig
	Database       DatabaseConfig
	Redis          RedisConfig
	Kafka          KafkaConfig
	Realtime       RealtimeConfig
	Ingest         IngestConfig
	Optimization   OptimizationConfig
	Log            LogConfig
}

// RateLimitConfig configures the per-client sliding window.
type RateLimitConfig struct {
	Limit           int
	Window          time.Duration
	CleanupInterval time.Duration
}

// DatabaseConfig selects PostgreSQL persistence. An empty URL keeps events in memory.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig selects the shared rate-limit store. An empty URL keeps windows in memory.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// KafkaConfig enables the analytics sink when Brokers is non-empty.
type KafkaConfig struct {
	Brokers  []string
	Topic    string
	ClientID string
}

// RealtimeConfig tunes subscriber queues and the WebSocket transport.
type RealtimeConfig struct {
	SubscriberBuffer int
	WriteTimeout     time.Duration
	PingInterval     time.Duration
}

// IngestConfig bounds the ingest pipeline.
type IngestConfig struct {
	StoreTimeout   time.Duration
	TriggerTimeout time.Duration
	MaxBatchSize   int
}

// OptimizationConfig enables the revenue tracker.
type OptimizationConfig struct {
	Enabled bool
	// ReferenceCPM is the market CPM slots are compared against.
	ReferenceCPM string
	// MinEvents is the revenue events a slot needs before it is judged.
	MinEvents int
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string
	Format string
}

// Defaults applied when the matching variable is unset or unparsable.
const (
	DefaultAddr             = ":4000"
	DefaultRateLimit        = 100
	DefaultRateLimitWindow  = 60 * time.Second
	DefaultSubscriberBuffer = 64
	DefaultStoreTimeout     = 5 * time.Second
	DefaultMaxBatchSize     = 100
	DefaultKafkaTopic       = "ad-events"
)

// FromEnv builds a Server config from environment variables.
func FromEnv() Server {
	env := envString("ADPULSE_ENV", "development")
	logFormat := "text"
	if env == "production" {
		logFormat = "json"
	}

	return Server{
		Addr:           envString("ADPULSE_ADDR", DefaultAddr),
		Environment:    env,
		CORSOrigin:     envString("CORS_ORIGIN", "*"),
		TrustedProxies: envList("TRUSTED_PROXIES"),
		RateLimit: RateLimitConfig{
			Limit:           envInt("RATE_LIMIT", DefaultRateLimit),
			Window:          envMillis("RATE_LIMIT_WINDOW_MS", DefaultRateLimitWindow),
			CleanupInterval: envMillis("RATE_LIMIT_CLEANUP_MS", DefaultRateLimitWindow),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 20),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envMillis("DATABASE_CONN_MAX_LIFETIME_MS", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envMillis("REDIS_DIAL_TIMEOUT_MS", 5*time.Second),
			ReadTimeout:  envMillis("REDIS_READ_TIMEOUT_MS", 3*time.Second),
			WriteTimeout: envMillis("REDIS_WRITE_TIMEOUT_MS", 3*time.Second),
		},
		Kafka: KafkaConfig{
			Brokers:  envList("KAFKA_BROKERS"),
			Topic:    envString("KAFKA_TOPIC", DefaultKafkaTopic),
			ClientID: envString("KAFKA_CLIENT_ID", "adpulse"),
		},
		Realtime: RealtimeConfig{
			SubscriberBuffer: envInt("REALTIME_BUFFER", DefaultSubscriberBuffer),
			WriteTimeout:     envMillis("REALTIME_WRITE_TIMEOUT_MS", 10*time.Second),
			PingInterval:     envMillis("REALTIME_PING_INTERVAL_MS", 30*time.Second),
		},
		Ingest: IngestConfig{
			StoreTimeout:   envMillis("EVENT_STORE_TIMEOUT_MS", DefaultStoreTimeout),
			TriggerTimeout: envMillis("OPTIMIZATION_TIMEOUT_MS", 10*time.Second),
			MaxBatchSize:   envInt("BATCH_MAX_EVENTS", DefaultMaxBatchSize),
		},
		Optimization: OptimizationConfig{
			Enabled:      os.Getenv("OPTIMIZATION_ENABLED") == "true",
			ReferenceCPM: envString("OPTIMIZATION_REFERENCE_CPM", "2.00"),
			MinEvents:    envInt("OPTIMIZATION_MIN_EVENTS", 10),
		},
		Log: LogConfig{
			Level:  envString("LOG_LEVEL", "info"),
			Format: envString("LOG_FORMAT", logFormat),
		},
	}
}

// Validate rejects settings the service cannot run with.
func (s Server) Validate() error {
	var errs []error
	if s.RateLimit.Limit <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT must be positive, got %d", s.RateLimit.Limit))
	}
	if s.RateLimit.Window <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_WINDOW_MS must be positive, got %s", s.RateLimit.Window))
	}
	if s.RateLimit.CleanupInterval <= 0 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_CLEANUP_MS must be positive, got %s", s.RateLimit.CleanupInterval))
	}
	if _, err := metadata.ParseTrustedProxies(s.TrustedProxies); err != nil {
		errs = append(errs, fmt.Errorf("TRUSTED_PROXIES: %w", err))
	}
	if s.Realtime.SubscriberBuffer <= 0 {
		errs = append(errs, fmt.Errorf("REALTIME_BUFFER must be positive, got %d", s.Realtime.SubscriberBuffer))
	}
	if s.Ingest.StoreTimeout <= 0 {
		errs = append(errs, fmt.Errorf("EVENT_STORE_TIMEOUT_MS must be positive, got %s", s.Ingest.StoreTimeout))
	}
	if s.Ingest.MaxBatchSize <= 0 {
		errs = append(errs, fmt.Errorf("BATCH_MAX_EVENTS must be positive, got %d", s.Ingest.MaxBatchSize))
	}
	if s.Optimization.Enabled {
		if _, err := decimal.NewFromString(s.Optimization.ReferenceCPM); err != nil {
			errs = append(errs, fmt.Errorf("OPTIMIZATION_REFERENCE_CPM must be a decimal: %w", err))
		}
	}
	if len(s.Kafka.Brokers) > 0 && s.Kafka.Topic == "" {
		errs = append(errs, errors.New("KAFKA_TOPIC is required when KAFKA_BROKERS is set"))
	}
	return errors.Join(errs...)
}

func envString(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key)))
	if err != nil {
		return fallback
	}
	return v
}

func envMillis(key string, fallback time.Duration) time.Duration {
	ms, err := strconv.ParseInt(strings.TrimSpace(os.Getenv(key)), 10, 64)
	if err != nil {
		return fallback
	}
	return time.Duration(ms) * time.Millisecond
}

func envList(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
