package config

import (
	"fmt"
	"time"
)

// Config is the top-level deskd configuration
type Config struct {
	Logger  LoggerConfig  `yaml:"logger"`
	API     APIConfig     `yaml:"api"`
	Storage StorageConfig `yaml:"storage"`
	Stream  StreamConfig  `yaml:"stream"`
}

// LoggerConfig represents the configuration for the logger
type LoggerConfig struct {
	Level      string `yaml:"level"`  // debug, info, warn, error
	Format     string `yaml:"format"` // json, console
	Output     string `yaml:"output"` // stdout, file
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"` // MB
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
	Color      bool   `yaml:"color"`
	Stacktrace bool   `yaml:"stacktrace"`
}

// APIConfig configures the local control/diagnostics HTTP server
type APIConfig struct {
	Addr string `yaml:"addr"`
}

// StorageConfig locates the settings and message cache files
type StorageConfig struct {
	DataDir string `yaml:"data_dir"`
}

// StreamConfig carries the stream session and reconnection timings.
// All durations are in seconds except JitterMaxMS.
type StreamConfig struct {
	ConnectTimeout        int `yaml:"connect_timeout"`
	SyncInterval          int `yaml:"sync_interval"`
	LivenessCheckInterval int `yaml:"liveness_check_interval"`
	LivenessIdle          int `yaml:"liveness_idle"`
	LivenessPingGrace     int `yaml:"liveness_ping_grace"`
	BackoffInitial        int `yaml:"backoff_initial"`
	BackoffMax            int `yaml:"backoff_max"`
	JitterMaxMS           int `yaml:"jitter_max_ms"`
}

// SetDefaults fills in zero values with the built-in defaults.
func (c *Config) SetDefaults() {
	if c.API.Addr == "" {
		c.API.Addr = "127.0.0.1:9440"
	}
	if c.Storage.DataDir == "" {
		c.Storage.DataDir = "data"
	}
	s := &c.Stream
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = 10
	}
	if s.SyncInterval == 0 {
		s.SyncInterval = 5
	}
	if s.LivenessCheckInterval == 0 {
		s.LivenessCheckInterval = 15
	}
	if s.LivenessIdle == 0 {
		s.LivenessIdle = 90
	}
	if s.LivenessPingGrace == 0 {
		s.LivenessPingGrace = 30
	}
	if s.BackoffInitial == 0 {
		s.BackoffInitial = 1
	}
	if s.BackoffMax == 0 {
		s.BackoffMax = 30
	}
	if s.JitterMaxMS == 0 {
		s.JitterMaxMS = 500
	}
}

// Validate performs configuration validation
func (c *Config) Validate() error {
	s := c.Stream
	if s.BackoffInitial > s.BackoffMax {
		return fmt.Errorf("stream: backoff_initial (%d) exceeds backoff_max (%d)", s.BackoffInitial, s.BackoffMax)
	}
	if s.LivenessPingGrace >= s.LivenessIdle {
		return fmt.Errorf("stream: liveness_ping_grace (%d) must be below liveness_idle (%d)", s.LivenessPingGrace, s.LivenessIdle)
	}
	return nil
}

func (s StreamConfig) ConnectTimeoutDuration() time.Duration {
	return time.Duration(s.ConnectTimeout) * time.Second
}

func (s StreamConfig) SyncIntervalDuration() time.Duration {
	return time.Duration(s.SyncInterval) * time.Second
}

func (s StreamConfig) LivenessCheckDuration() time.Duration {
	return time.Duration(s.LivenessCheckInterval) * time.Second
}
