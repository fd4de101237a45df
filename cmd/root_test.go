package cmd

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/asyncjob/internal/app"
	"github.com/JakeFAU/asyncjob/internal/config"
)

func TestMain(m *testing.M) {
	if err := os.Setenv("ASYNCJOB_STORAGE_BACKEND", "memory"); err != nil {
		panic(err)
	}
	newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (*app.App, error) {
		return app.Build(ctx, cfg, logger, app.WithRegisterer(prometheus.NewRegistry()), app.WithoutTracing())
	}
	os.Exit(m.Run())
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	err := run(context.Background(), args, &stdout, &stderr)
	return stdout.String(), stderr.String(), err
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "asyncjob.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestCopyCommandQuiet(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.bin")
	dst := filepath.Join(dir, "out.bin")
	require.NoError(t, os.WriteFile(src, bytes.Repeat([]byte("x"), 4096), 0o600))

	stdout, _, err := execute(t, "copy", src, dst, "--quiet", "--log-file", filepath.Join(dir, "log.json"))
	require.NoError(t, err)
	assert.Empty(t, stdout)

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Len(t, got, 4096)
}

func TestCopyCommandWithLogSurface(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "in.txt")
	dst := filepath.Join(dir, "out.txt")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o600))
	cfg := writeConfig(t, "job:\n  show_progress: false\n  tick: 5ms\n")

	stdout, _, err := execute(t, "copy", src, dst, "--config", cfg, "--log-file", filepath.Join(dir, "log.json"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "copied 5 B to "+dst)
}

func TestCopyCommandFailure(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "log.json")
	_, _, err := execute(t, "copy", filepath.Join(dir, "missing"), filepath.Join(dir, "out"), "--quiet", "--log-file", logPath)
	require.ErrorIs(t, err, errJobFailed)

	logs, readErr := os.ReadFile(logPath)
	require.NoError(t, readErr)
	assert.Contains(t, string(logs), "Copy failed: open source")
}

func TestSleepCommand(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "sleep", "20ms", "--quiet", "--sync", "--log-file", filepath.Join(dir, "log.json"))
	require.NoError(t, err)
}

func TestSleepCommandRejectsBadDuration(t *testing.T) {
	dir := t.TempDir()
	_, _, err := execute(t, "sleep", "soon", "--quiet", "--log-file", filepath.Join(dir, "log.json"))
	require.Error(t, err)
	assert.NotErrorIs(t, err, errJobFailed)

	_, _, err = execute(t, "sleep", "-1s", "--quiet", "--log-file", filepath.Join(dir, "log.json"))
	require.Error(t, err)
}

func TestUploadCommandToMemory(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "report.json")
	require.NoError(t, os.WriteFile(src, []byte(`{"ok":true}`), 0o600))
	cfg := writeConfig(t, "job:\n  show_progress: false\n")

	stdout, _, err := execute(t, "upload", src, "reports/today.json", "--config", cfg, "--log-file", filepath.Join(dir, "log.json"))
	require.NoError(t, err)
	assert.Contains(t, stdout, "uploaded memory://reports/today.json")
}

func TestBadConfigFile(t *testing.T) {
	_, _, err := execute(t, "sleep", "1s", "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
