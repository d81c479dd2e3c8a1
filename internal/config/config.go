package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/vincentbai/behaviortrace/internal/tracker"
)

const (
	EnvAddress  = "BEHAVIORTRACE_ADDRESS"
	EnvDatabase = "BEHAVIORTRACE_DB"
	EnvEndpoint = "BEHAVIORTRACE_ENDPOINT"
)

type Config struct {
	Relay   RelayConfig     `yaml:"relay"`
	Tracker tracker.Options `yaml:"tracker"`
}

type RelayConfig struct {
	Address string `yaml:"address"`
	// Database is the SQLite path. Empty disables persistence.
	Database        string        `yaml:"database"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	ListenerBuffer  int           `yaml:"listener_buffer"`
	// StaticDir serves the tracker scripts under /static/ when set.
	StaticDir string `yaml:"static_dir"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{Tracker: tracker.DefaultOptions()}
	cfg.applyEnv()
	cfg.applyDefaults()
	return cfg
}

// Load reads a YAML file, applies environment overrides and defaults, and
// validates the result. A tracker endpoint omitted from the file keeps the
// built-in default; an explicit empty string selects console logging.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Config{Tracker: tracker.Options{Endpoint: tracker.DefaultEndpoint}}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	cfg.applyEnv()
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv(EnvAddress); v != "" {
		c.Relay.Address = v
	}
	if v := os.Getenv(EnvDatabase); v != "" {
		c.Relay.Database = v
	}
	if v, ok := os.LookupEnv(EnvEndpoint); ok {
		c.Tracker.Endpoint = v
	}
}

func (c *Config) applyDefaults() {
	if c.Relay.Address == "" {
		c.Relay.Address = "127.0.0.1:3000"
	}
	if c.Relay.ReadTimeout == 0 {
		c.Relay.ReadTimeout = 10 * time.Second
	}
	if c.Relay.WriteTimeout == 0 {
		c.Relay.WriteTimeout = 10 * time.Second
	}
	if c.Relay.ShutdownTimeout == 0 {
		c.Relay.ShutdownTimeout = 5 * time.Second
	}
	if c.Relay.ListenerBuffer == 0 {
		c.Relay.ListenerBuffer = 64
	}
	c.Tracker.ApplyDefaults()
}

func (c *Config) validate() error {
	if c.Relay.ListenerBuffer < 0 {
		return fmt.Errorf("relay.listener_buffer must not be negative")
	}
	if c.Tracker.ViewThreshold < 0 || c.Tracker.ViewThreshold > 1 {
		return fmt.Errorf("tracker.view_threshold must be within [0, 1], got %v", c.Tracker.ViewThreshold)
	}
	if c.Tracker.ThrottleWindow < 0 {
		return fmt.Errorf("tracker.throttle_window must not be negative")
	}
	if c.Tracker.HoverThreshold < 0 {
		return fmt.Errorf("tracker.hover_threshold must not be negative")
	}
	if c.Tracker.QueueSize < 0 {
		return fmt.Errorf("tracker.queue_size must not be negative")
	}
	return nil
}
