package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	viper.Reset()

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)

	assert.True(t, cfg.Outbox.Enabled)
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 3, cfg.Outbox.MaxRetryAttempts)
	assert.Equal(t, 5, cfg.Outbox.MaxConcurrency)
	assert.False(t, cfg.Outbox.DeadLetterUnknownEvents)

	assert.Equal(t, 5*time.Second, cfg.Outbox.ProcessingInterval())
	assert.Equal(t, 2*time.Second, cfg.Outbox.BaseRetryDelay())
}

func TestLoadConfigEnvOverride(t *testing.T) {
	viper.Reset()
	t.Setenv("OUTBOX_BASE_RETRY_DELAY_SECONDS", "7")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, 7*time.Second, cfg.Outbox.BaseRetryDelay())
}
