// Package config handles typed configuration loading using viper:
// YAML file, environment overrides, and (via cmd/) CLI flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// RecorderConfig is the top-level static configuration for one
// recording session plus its ambient daemon concerns.
type RecorderConfig struct {
	Control ControlConfig `mapstructure:"control"`
	Log     LogConfig     `mapstructure:"log"`
	Metrics MetricsConfig `mapstructure:"metrics"`
	Queue   QueueConfig   `mapstructure:"queue"`
	Writer  WriterConfig  `mapstructure:"writer"`
	Reaper  ReaperConfig  `mapstructure:"reaper"`
	Topics  []string      `mapstructure:"topics"` // each "name" or "name=rate_hz"
}

// ControlConfig configures the local JSON-RPC-over-UDS control surface.
type ControlConfig struct {
	Socket  string `mapstructure:"socket"`
	PIDFile string `mapstructure:"pid_file"`
}

// QueueConfig configures the bounded message queue.
type QueueConfig struct {
	SizeBytes string `mapstructure:"size"` // e.g. "500MB"
}

// WriterConfig configures the bag writer.
type WriterConfig struct {
	Prefix         string `mapstructure:"prefix"`
	Output         string `mapstructure:"output"` // Verbatim mode path; empty = AppendTimestamp mode
	SplitSizeBytes string `mapstructure:"split_size"`
	Compression    string `mapstructure:"compression"` // "", "bz2", "lz4"
	Paused         bool   `mapstructure:"paused"`
	NoUI           bool   `mapstructure:"no_ui"`
	UDP            bool   `mapstructure:"udp"`
	CallerID       string `mapstructure:"caller_id"`
}

// ReaperConfig configures the disk reaper.
type ReaperConfig struct {
	DeleteOldAtBytes string `mapstructure:"delete_old_at"`
}

// MetricsConfig contains Prometheus metrics server settings.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
	Path    string `mapstructure:"path"`
}

// LogConfig contains logging settings.
type LogConfig struct {
	Level   string           `mapstructure:"level"`  // debug / info / warn / error
	Format  string           `mapstructure:"format"` // json / text
	Outputs LogOutputsConfig `mapstructure:"outputs"`
}

// LogOutputsConfig contains structured log output destinations.
type LogOutputsConfig struct {
	File FileOutputConfig `mapstructure:"file"`
	Loki LokiOutputConfig `mapstructure:"loki"`
}

// FileOutputConfig configures file log output.
type FileOutputConfig struct {
	Enabled  bool           `mapstructure:"enabled"`
	Path     string         `mapstructure:"path"`
	Rotation RotationConfig `mapstructure:"rotation"`
}

// RotationConfig configures log file rotation.
type RotationConfig struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	MaxBackups int  `mapstructure:"max_backups"`
	Compress   bool `mapstructure:"compress"`
}

// LokiOutputConfig configures Loki log output.
type LokiOutputConfig struct {
	Enabled      bool              `mapstructure:"enabled"`
	Endpoint     string            `mapstructure:"endpoint"`
	Labels       map[string]string `mapstructure:"labels"`
	BatchSize    int               `mapstructure:"batch_size"`
	BatchTimeout string            `mapstructure:"batch_timeout"`
}

// configRoot is the top-level wrapper matching the YAML structure
// `recorder: ...`.
type configRoot struct {
	Recorder RecorderConfig `mapstructure:"recorder"`
}

// Load loads configuration from path, applying environment overrides
// (key "recorder.log.level" → env "RECORDER_LOG_LEVEL") on top of
// defaults and the file's own values.
func Load(path string) (*RecorderConfig, error) {
	v := viper.New()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	var root configRoot
	if err := v.Unmarshal(&root); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg := root.Recorder

	if err := cfg.ValidateAndApplyDefaults(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("recorder.control.pid_file", "/var/run/bagrecorder.pid")
	v.SetDefault("recorder.control.socket", "/var/run/bagrecorder.sock")

	v.SetDefault("recorder.log.level", "info")
	v.SetDefault("recorder.log.format", "json")
	v.SetDefault("recorder.log.outputs.file.enabled", false)
	v.SetDefault("recorder.log.outputs.file.path", "/var/log/bagrecorder/bagrecorder.log")
	v.SetDefault("recorder.log.outputs.file.rotation.max_size_mb", 100)
	v.SetDefault("recorder.log.outputs.file.rotation.max_age_days", 30)
	v.SetDefault("recorder.log.outputs.file.rotation.max_backups", 5)
	v.SetDefault("recorder.log.outputs.file.rotation.compress", true)

	v.SetDefault("recorder.metrics.enabled", true)
	v.SetDefault("recorder.metrics.listen", ":9091")
	v.SetDefault("recorder.metrics.path", "/metrics")

	v.SetDefault("recorder.queue.size", "500MB")
	v.SetDefault("recorder.writer.prefix", "bag")
	v.SetDefault("recorder.writer.caller_id", "/bagrecorder")
}

// ValidateAndApplyDefaults validates configuration and applies runtime
// defaults that don't have a simple viper default (exclusive flags).
func (cfg *RecorderConfig) ValidateAndApplyDefaults() error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[cfg.Log.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug/info/warn/error)", cfg.Log.Level)
	}
	if cfg.Log.Format != "json" && cfg.Log.Format != "text" {
		return fmt.Errorf("invalid log format: %s (must be json/text)", cfg.Log.Format)
	}
	if cfg.Writer.Compression != "" && cfg.Writer.Compression != "bz2" && cfg.Writer.Compression != "lz4" {
		return fmt.Errorf("invalid writer compression: %s (must be '', bz2, or lz4)", cfg.Writer.Compression)
	}
	return nil
}

// TopicSpec is one parsed topic entry (positional argument or config
// entry): a name and an optional rate limit, given in Hz and stored as
// the minimum interval between accepted messages (zero = unlimited).
type TopicSpec struct {
	Name      string
	RateLimit time.Duration
}

// ParseTopicSpec parses "name" or "name=rate_hz" into a TopicSpec. A
// rate of 0 or an absent "=rate_hz" suffix means unlimited.
func ParseTopicSpec(s string) (TopicSpec, error) {
	name, rateStr, hasRate := strings.Cut(s, "=")
	if name == "" {
		return TopicSpec{}, fmt.Errorf("config: empty topic name in %q", s)
	}
	if !hasRate {
		return TopicSpec{Name: name}, nil
	}

	var rateHz float64
	if _, err := fmt.Sscanf(rateStr, "%g", &rateHz); err != nil {
		return TopicSpec{}, fmt.Errorf("config: invalid rate in %q: %w", s, err)
	}
	if rateHz <= 0 {
		return TopicSpec{Name: name}, nil
	}
	return TopicSpec{Name: name, RateLimit: time.Duration(float64(time.Second) / rateHz)}, nil
}
