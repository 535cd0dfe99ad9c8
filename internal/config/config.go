package config

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"flowstate/internal/classifier"
	"flowstate/internal/database"
	"flowstate/internal/infrastructure/logging"
	"flowstate/internal/platform"
)

const (
	DefaultFlushInterval = time.Minute
	DefaultMinRecordable = 6 * time.Second
	DefaultQueueSize     = 64

	// Chrome rejects idle detection intervals below 15 seconds
	MinIdleDetectionInterval = 15
)

// Config is everything a FlowState process needs to start
type Config struct {
	LogLevel   string           `yaml:"logLevel"`
	Database   *database.Config `yaml:"database"`
	Tracking   TrackingConfig   `yaml:"tracking"`
	Classifier ClassifierConfig `yaml:"classifier"`
}

type TrackingConfig struct {
	// FlushInterval checkpoints the open session; 0 disables periodic flushes
	FlushInterval time.Duration `yaml:"flushInterval"`
	MinRecordable time.Duration `yaml:"minRecordable"`
	// IdleDetectionInterval is sent to the browser at start-up, in seconds
	IdleDetectionInterval int    `yaml:"idleDetectionInterval"`
	QueueSize             int    `yaml:"queueSize"`
	LockPath              string `yaml:"lockPath"`
}

type ClassifierConfig struct {
	Productive  []string `yaml:"productive"`
	Distracting []string `yaml:"distracting"`
}

// Default returns the preset for env ("production", "development" or "test")
func Default(env string) *Config {
	return &Config{
		LogLevel: logging.LevelInfo.String(),
		Database: database.ConfigForEnvironment(env),
		Tracking: TrackingConfig{
			FlushInterval:         DefaultFlushInterval,
			MinRecordable:         DefaultMinRecordable,
			IdleDetectionInterval: platform.DefaultIdleDetectionInterval,
			QueueSize:             DefaultQueueSize,
		},
		Classifier: ClassifierConfig{
			Productive:  append([]string(nil), classifier.DefaultProductive...),
			Distracting: append([]string(nil), classifier.DefaultDistracting...),
		},
	}
}

// DefaultPath is the config file read when no path is given
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil && dir != "" {
		return filepath.Join(dir, "flowstate", "config.yaml")
	}
	return "flowstate.yaml"
}

// Environment returns FLOWSTATE_ENVIRONMENT, defaulting to production
func Environment() string {
	if env := os.Getenv("FLOWSTATE_ENVIRONMENT"); env != "" {
		return env
	}
	return "production"
}

// Load builds the configuration from the environment preset, the YAML
// file at path and FLOWSTATE_* overrides, in that order. An empty path
// reads DefaultPath and tolerates it being absent.
func Load(path string) (*Config, error) {
	cfg := Default(Environment())

	optional := path == ""
	if optional {
		path = DefaultPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := cfg.decode(data); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	if err := cfg.LoadFromEnvironment(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) decode(data []byte) error {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	return dec.Decode(c)
}

// LoadFromEnvironment applies FLOWSTATE_* overrides, including the
// FLOWSTATE_DB_* database settings.
func (c *Config) LoadFromEnvironment() error {
	if level := os.Getenv("FLOWSTATE_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}

	if v := os.Getenv("FLOWSTATE_FLUSH_INTERVAL"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FLOWSTATE_FLUSH_INTERVAL %q: %w", v, err)
		}
		c.Tracking.FlushInterval = d
	}

	if v := os.Getenv("FLOWSTATE_MIN_RECORDABLE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return fmt.Errorf("invalid FLOWSTATE_MIN_RECORDABLE %q: %w", v, err)
		}
		c.Tracking.MinRecordable = d
	}

	if v := os.Getenv("FLOWSTATE_IDLE_DETECTION_INTERVAL"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("invalid FLOWSTATE_IDLE_DETECTION_INTERVAL %q: %w", v, err)
		}
		c.Tracking.IdleDetectionInterval = n
	}

	if v := os.Getenv("FLOWSTATE_LOCK_PATH"); v != "" {
		c.Tracking.LockPath = v
	}

	if v, ok := os.LookupEnv("FLOWSTATE_PRODUCTIVE_DOMAINS"); ok {
		c.Classifier.Productive = splitList(v)
	}
	if v, ok := os.LookupEnv("FLOWSTATE_DISTRACTING_DOMAINS"); ok {
		c.Classifier.Distracting = splitList(v)
	}

	if c.Database == nil {
		c.Database = database.ConfigForEnvironment(Environment())
	}
	return c.Database.LoadFromEnvironment()
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// Validate checks values that would otherwise fail later at start-up
func (c *Config) Validate() error {
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.Database == nil {
		return fmt.Errorf("database configuration is missing")
	}
	if c.Tracking.FlushInterval < 0 {
		return fmt.Errorf("flush interval cannot be negative: %s", c.Tracking.FlushInterval)
	}
	if c.Tracking.MinRecordable < 0 {
		return fmt.Errorf("minimum recordable duration cannot be negative: %s", c.Tracking.MinRecordable)
	}
	if c.Tracking.IdleDetectionInterval < MinIdleDetectionInterval {
		return fmt.Errorf("idle detection interval must be at least %d seconds, got %d",
			MinIdleDetectionInterval, c.Tracking.IdleDetectionInterval)
	}
	if c.Tracking.QueueSize < 0 {
		return fmt.Errorf("queue size cannot be negative: %d", c.Tracking.QueueSize)
	}
	return nil
}

// Level returns the parsed log level, falling back to info
func (c *Config) Level() logging.Level {
	level, err := logging.ParseLevel(c.LogLevel)
	if err != nil {
		return logging.LevelInfo
	}
	return level
}

// InstanceLockPath is where the background host takes its lock. It sits
// next to the ledger unless configured explicitly.
func (c *Config) InstanceLockPath() string {
	if c.Tracking.LockPath != "" {
		return c.Tracking.LockPath
	}
	if c.Database == nil || c.Database.IsInMemory() {
		return filepath.Join(os.TempDir(), "flowstate-host.lock")
	}
	return c.Database.Path + ".lock"
}

// NewClassifier builds the domain classifier from the configured lists
func (c *Config) NewClassifier() *classifier.Classifier {
	return classifier.New(c.Classifier.Productive, c.Classifier.Distracting)
}
