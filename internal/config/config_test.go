package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 100*time.Millisecond, cfg.Job.Tick)
	assert.Equal(t, "async", cfg.Job.Mode)
	assert.True(t, cfg.Job.ShowProgress)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4096, cfg.Hub.BufferSize)
	assert.Equal(t, 250*time.Millisecond, cfg.Hub.MaxBatchWait)
	assert.Equal(t, "job_runs", cfg.DB.Table)
	assert.Equal(t, BackendLocal, cfg.Storage.Backend)
	assert.Equal(t, 5*time.Minute, cfg.Download.Timeout)
	assert.Equal(t, "asyncjob", cfg.Telemetry.ServiceName)
}

func TestLoadWithFileOverrides(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "config.yaml")
	configYAML := `
job:
  tick: 50ms
  mode: sync
  show_progress: false
logging:
  development: false
server:
  port: 9090
hub:
  buffer_size: 16
  max_batch_events: 4
  max_batch_wait: 1s
db:
  dsn: postgres://localhost/asyncjob
  table: runs
pubsub:
  project_id: proj
  topic_name: job-events
  include_progress: true
storage:
  backend: gcs
  gcs_bucket: bucket
download:
  user_agent: test-agent
  timeout: 30s
  max_body_size: 1048576
`
	require.NoError(t, os.WriteFile(path, []byte(configYAML), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 50*time.Millisecond, cfg.Job.Tick)
	assert.Equal(t, "sync", cfg.Job.Mode)
	assert.False(t, cfg.Job.ShowProgress)
	assert.False(t, cfg.Logging.Development)
	assert.Equal(t, 9090, cfg.Server.Port)
	assert.Equal(t, 16, cfg.Hub.BufferSize)
	assert.Equal(t, time.Second, cfg.Hub.MaxBatchWait)
	assert.Equal(t, "postgres://localhost/asyncjob", cfg.DB.DSN)
	assert.Equal(t, "runs", cfg.DB.Table)
	assert.Equal(t, "job-events", cfg.PubSub.TopicName)
	assert.True(t, cfg.PubSub.IncludeProgress)
	assert.Equal(t, BackendGCS, cfg.Storage.Backend)
	assert.Equal(t, "bucket", cfg.Storage.GCSBucket)
	assert.Equal(t, "test-agent", cfg.Download.UserAgent)
	assert.Equal(t, 30*time.Second, cfg.Download.Timeout)
	assert.Equal(t, 1048576, cfg.Download.MaxBodySize)
}

func TestLoadEnvOverrides(t *testing.T) {
	t.Setenv("ASYNCJOB_SERVER_PORT", "7070")
	t.Setenv("ASYNCJOB_DB_DSN", "postgres://env/db")
	t.Setenv("ASYNCJOB_STORAGE_BACKEND", "memory")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 7070, cfg.Server.Port)
	assert.Equal(t, "postgres://env/db", cfg.DB.DSN)
	assert.Equal(t, BackendMemory, cfg.Storage.Backend)
}

func TestLoadMissingFile(t *testing.T) {
	t.Parallel()

	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}

func TestValidate(t *testing.T) {
	t.Parallel()

	valid := func() Config {
		return Config{
			Job:      JobConfig{Tick: time.Millisecond, Mode: "async"},
			Server:   ServerConfig{Port: 8080},
			Hub:      HubConfig{BufferSize: 1, MaxBatchEvents: 1, MaxBatchWait: time.Millisecond},
			Storage:  StorageConfig{Backend: BackendMemory},
			Download: DownloadConfig{Timeout: time.Second},
		}
	}
	require.NoError(t, valid().Validate())

	tests := map[string]func(*Config){
		"zero tick":       func(c *Config) { c.Job.Tick = 0 },
		"bad mode":        func(c *Config) { c.Job.Mode = "later" },
		"zero port":       func(c *Config) { c.Server.Port = 0 },
		"zero buffer":     func(c *Config) { c.Hub.BufferSize = 0 },
		"zero batch":      func(c *Config) { c.Hub.MaxBatchEvents = 0 },
		"zero batch wait": func(c *Config) { c.Hub.MaxBatchWait = 0 },
		"gcs no bucket":   func(c *Config) { c.Storage.Backend = BackendGCS },
		"local no dir":    func(c *Config) { c.Storage.Backend = BackendLocal },
		"bad backend":     func(c *Config) { c.Storage.Backend = "s3" },
		"topic no proj":   func(c *Config) { c.PubSub.TopicName = "t" },
		"zero timeout":    func(c *Config) { c.Download.Timeout = 0 },
		"negative body":   func(c *Config) { c.Download.MaxBodySize = -1 },
		"negative rate":   func(c *Config) { c.Download.RatePerHost = -1 },
		"rate no burst":   func(c *Config) { c.Download.RatePerHost = 2; c.Download.Burst = 0 },
	}
	for name, mutate := range tests {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			cfg := valid()
			mutate(&cfg)
			require.Error(t, cfg.Validate())
		})
	}
}
