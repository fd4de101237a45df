package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestNewDevelopmentLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(true)
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	assert.True(t, logger.Core().Enabled(zapcore.DebugLevel))
}

func TestNewProductionLogger(t *testing.T) {
	t.Parallel()

	logger, err := New(false)
	require.NoError(t, err)
	defer logger.Sync() //nolint:errcheck // best-effort flush
	assert.False(t, logger.Core().Enabled(zapcore.DebugLevel))
	assert.True(t, logger.Core().Enabled(zapcore.InfoLevel))
}

func TestWithLevel(t *testing.T) {
	t.Parallel()

	logger, err := New(true, WithLevel(zapcore.WarnLevel))
	require.NoError(t, err)
	assert.False(t, logger.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, logger.Core().Enabled(zapcore.WarnLevel))
}

func TestWithOutputWritesToFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "asyncjob.log")
	logger, err := New(false, WithOutput(path))
	require.NoError(t, err)
	logger.Info("job started")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "job started")
}

func TestWithOutputBadPath(t *testing.T) {
	t.Parallel()

	_, err := New(false, WithOutput(filepath.Join(t.TempDir(), "missing", "dir", "x.log")))
	require.Error(t, err)
}
