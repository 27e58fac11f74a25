package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnvDefaults(t *testing.T) {
	for _, key := range []string{"ADPULSE_ADDR", "RATE_LIMIT", "RATE_LIMIT_WINDOW_MS", "DATABASE_URL", "REDIS_URL", "KAFKA_BROKERS", "REALTIME_BUFFER", "EVENT_STORE_TIMEOUT_MS", "ADPULSE_ENV", "LOG_FORMAT", "OPTIMIZATION_ENABLED", "TRUSTED_PROXIES"} {
		t.Setenv(key, "")
	}

	cfg := FromEnv()

	assert.Equal(t, ":4000", cfg.Addr)
	assert.Equal(t, 100, cfg.RateLimit.Limit)
	assert.Equal(t, 60*time.Second, cfg.RateLimit.Window)
	assert.Empty(t, cfg.Database.URL)
	assert.Empty(t, cfg.Kafka.Brokers)
	assert.Equal(t, "ad-events", cfg.Kafka.Topic)
	assert.Equal(t, 64, cfg.Realtime.SubscriberBuffer)
	assert.Equal(t, 5*time.Second, cfg.Ingest.StoreTimeout)
	assert.Equal(t, 100, cfg.Ingest.MaxBatchSize)
	assert.Equal(t, "text", cfg.Log.Format)
	assert.Empty(t, cfg.TrustedProxies)
	require.NoError(t, cfg.Validate())
}

func TestFromEnvOverrides(t *testing.T) {
	t.Setenv("ADPULSE_ADDR", ":9000")
	t.Setenv("RATE_LIMIT", "5")
	t.Setenv("RATE_LIMIT_WINDOW_MS", "1500")
	t.Setenv("KAFKA_BROKERS", "kafka-1:9092, kafka-2:9092,")
	t.Setenv("ADPULSE_ENV", "production")
	t.Setenv("LOG_FORMAT", "")

	cfg := FromEnv()

	assert.Equal(t, ":9000", cfg.Addr)
	assert.Equal(t, 5, cfg.RateLimit.Limit)
	assert.Equal(t, 1500*time.Millisecond, cfg.RateLimit.Window)
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "json", cfg.Log.Format)
}

func TestValidate(t *testing.T) {
	t.Setenv("RATE_LIMIT", "0")
	t.Setenv("REALTIME_BUFFER", "-1")

	err := FromEnv().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "RATE_LIMIT must be positive")
	assert.Contains(t, err.Error(), "REALTIME_BUFFER must be positive")
}

func TestValidateOptimization(t *testing.T) {
	t.Setenv("OPTIMIZATION_ENABLED", "true")
	t.Setenv("OPTIMIZATION_REFERENCE_CPM", "two dollars")

	err := FromEnv().Validate()

	require.Error(t, err)
	assert.Contains(t, err.Error(), "OPTIMIZATION_REFERENCE_CPM must be a decimal")

	t.Setenv("OPTIMIZATION_REFERENCE_CPM", "2.50")
	require.NoError(t, FromEnv().Validate())
}

func TestValidateTrustedProxies(t *testing.T) {
	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8, 192.0.2.1")
	cfg := FromEnv()
	assert.Equal(t, []string{"10.0.0.0/8", "192.0.2.1"}, cfg.TrustedProxies)
	require.NoError(t, cfg.Validate())

	t.Setenv("TRUSTED_PROXIES", "10.0.0.0/8,load-balancer")
	err := FromEnv().Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "TRUSTED_PROXIES")
}
