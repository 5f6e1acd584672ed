package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, []string{"localhost:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Second, cfg.LockTimeout)
	assert.Equal(t, 10*time.Minute, cfg.IdempotencyTTL)
	assert.Equal(t, "uploads", cfg.UploadDir)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9999")
	t.Setenv("KAFKA_ADDR", "k1:9092, k2:9092,")
	t.Setenv("LOCK_TIMEOUT", "250ms")
	t.Setenv("OUTBOX_TOPIC", "storefront.orders")

	cfg, err := load(viper.New())
	require.NoError(t, err)

	assert.Equal(t, ":9999", cfg.HTTPAddr)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 250*time.Millisecond, cfg.LockTimeout)
	assert.Equal(t, "storefront.orders", cfg.OutboxTopic)
}

func TestLoadValidation(t *testing.T) {
	t.Setenv("LOCK_TIMEOUT", "-1s")
	_, err := load(viper.New())
	assert.ErrorContains(t, err, "LOCK_TIMEOUT")
}
