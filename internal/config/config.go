// Package config loads and validates asyncjob configuration via Viper.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Storage backends accepted by storage.backend.
const (
	BackendGCS    = "gcs"
	BackendLocal  = "local"
	BackendMemory = "memory"
)

// Config captures all configuration knobs loaded via Viper.
type Config struct {
	Job       JobConfig       `mapstructure:"job"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Server    ServerConfig    `mapstructure:"server"`
	Hub       HubConfig       `mapstructure:"hub"`
	DB        DBConfig        `mapstructure:"db"`
	PubSub    PubSubConfig    `mapstructure:"pubsub"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Download  DownloadConfig  `mapstructure:"download"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// JobConfig sets controller defaults for CLI jobs.
type JobConfig struct {
	Tick time.Duration `mapstructure:"tick"`
	// Mode is "async" or "sync".
	Mode         string `mapstructure:"mode"`
	ShowProgress bool   `mapstructure:"show_progress"`
}

// LoggingConfig toggles zap development features.
type LoggingConfig struct {
	Development bool `mapstructure:"development"`
}

// ServerConfig controls the status API.
type ServerConfig struct {
	Port int `mapstructure:"port"`
}

// HubConfig sizes the lifecycle event hub.
type HubConfig struct {
	BufferSize     int           `mapstructure:"buffer_size"`
	MaxBatchEvents int           `mapstructure:"max_batch_events"`
	MaxBatchWait   time.Duration `mapstructure:"max_batch_wait"`
}

// DBConfig controls access to the run history database. An empty DSN keeps
// run history in memory.
type DBConfig struct {
	DSN      string `mapstructure:"dsn"`
	Table    string `mapstructure:"table"`
	MaxConns int32  `mapstructure:"max_conns"`
}

// PubSubConfig enables completion notifications when TopicName is set.
type PubSubConfig struct {
	ProjectID       string `mapstructure:"project_id"`
	TopicName       string `mapstructure:"topic_name"`
	IncludeProgress bool   `mapstructure:"include_progress"`
}

// StorageConfig selects the object store used by uploads.
type StorageConfig struct {
	Backend   string `mapstructure:"backend"`
	GCSBucket string `mapstructure:"gcs_bucket"`
	BaseDir   string `mapstructure:"base_dir"`
}

// DownloadConfig tunes the HTTP downloader.
type DownloadConfig struct {
	UserAgent   string        `mapstructure:"user_agent"`
	Timeout     time.Duration `mapstructure:"timeout"`
	MaxBodySize int           `mapstructure:"max_body_size"`
	// RatePerHost limits requests per second to one host; zero disables it.
	RatePerHost float64 `mapstructure:"rate_per_host"`
	Burst       int     `mapstructure:"burst"`
}

// TelemetryConfig names the service in exported traces.
type TelemetryConfig struct {
	ServiceName string `mapstructure:"service_name"`
}

// Load builds a Config from disk/environment.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("ASYNCJOB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("job.tick", 100*time.Millisecond)
	v.SetDefault("job.mode", "async")
	v.SetDefault("job.show_progress", true)
	v.SetDefault("logging.development", true)
	v.SetDefault("server.port", 8080)
	v.SetDefault("hub.buffer_size", 4096)
	v.SetDefault("hub.max_batch_events", 256)
	v.SetDefault("hub.max_batch_wait", 250*time.Millisecond)
	v.SetDefault("db.table", "job_runs")
	v.SetDefault("db.max_conns", 4)
	v.SetDefault("pubsub.include_progress", false)
	v.SetDefault("storage.backend", BackendLocal)
	v.SetDefault("storage.base_dir", "uploads")
	v.SetDefault("download.user_agent", "asyncjob/0.1")
	v.SetDefault("download.timeout", 5*time.Minute)
	v.SetDefault("download.max_body_size", 0)
	v.SetDefault("download.rate_per_host", 0)
	v.SetDefault("download.burst", 1)
	v.SetDefault("telemetry.service_name", "asyncjob")
	// Bind keys without defaults so AutomaticEnv can see them in Unmarshal.
	v.SetDefault("db.dsn", "")
	v.SetDefault("pubsub.project_id", "")
	v.SetDefault("pubsub.topic_name", "")
	v.SetDefault("storage.gcs_bucket", "")
}

// Validate enforces required values and reasonable limits.
func (c Config) Validate() error {
	if c.Job.Tick <= 0 {
		return fmt.Errorf("job.tick must be > 0")
	}
	switch c.Job.Mode {
	case "async", "sync":
	default:
		return fmt.Errorf("job.mode must be async or sync, got %q", c.Job.Mode)
	}
	if c.Server.Port <= 0 {
		return fmt.Errorf("server.port must be > 0")
	}
	if c.Hub.BufferSize <= 0 {
		return fmt.Errorf("hub.buffer_size must be > 0")
	}
	if c.Hub.MaxBatchEvents <= 0 {
		return fmt.Errorf("hub.max_batch_events must be > 0")
	}
	if c.Hub.MaxBatchWait <= 0 {
		return fmt.Errorf("hub.max_batch_wait must be > 0")
	}
	switch c.Storage.Backend {
	case BackendGCS:
		if c.Storage.GCSBucket == "" {
			return fmt.Errorf("storage.gcs_bucket must be set for the gcs backend")
		}
	case BackendLocal:
		if c.Storage.BaseDir == "" {
			return fmt.Errorf("storage.base_dir must be set for the local backend")
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be gcs, local or memory, got %q", c.Storage.Backend)
	}
	if c.PubSub.TopicName != "" && c.PubSub.ProjectID == "" {
		return fmt.Errorf("pubsub.project_id must be set when pubsub.topic_name is set")
	}
	if c.Download.Timeout <= 0 {
		return fmt.Errorf("download.timeout must be > 0")
	}
	if c.Download.MaxBodySize < 0 {
		return fmt.Errorf("download.max_body_size must be >= 0")
	}
	if c.Download.RatePerHost < 0 {
		return fmt.Errorf("download.rate_per_host must be >= 0")
	}
	if c.Download.RatePerHost > 0 && c.Download.Burst <= 0 {
		return fmt.Errorf("download.burst must be > 0 when download.rate_per_host is set")
	}
	return nil
}
