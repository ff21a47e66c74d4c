package logging

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("development logger ready")
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	require.NotNil(t, logger)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	logger.Info("production logger ready")
}

func TestConfigKeepsTimestampKey(t *testing.T) {
	t.Parallel()

	for _, development := range []bool{true, false} {
		cfg := configFor(development)
		require.Equal(t, "ts", cfg.EncoderConfig.TimeKey)
	}
	require.False(t, configFor(false).DisableStacktrace)
}
