// Package config handles configuration loading and validation for inkwell.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML values like "30m" parse naturally.
type Duration time.Duration

// UnmarshalYAML parses a duration string or integer nanoseconds.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if err := value.Decode(&raw); err != nil {
		var ns int64
		if err := value.Decode(&ns); err != nil {
			return fmt.Errorf("invalid duration %q", value.Value)
		}
		*d = Duration(ns)
		return nil
	}

	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", raw, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML renders the duration in time.Duration string form.
func (d Duration) MarshalYAML() (any, error) {
	return time.Duration(d).String(), nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config holds the application configuration.
type Config struct {
	Channels map[string]ChannelConfig `yaml:"channels"`
	Database DatabaseConfig           `yaml:"database"`
	Sweep    SweepConfig              `yaml:"sweep"`
	DataDir  string                   `yaml:"-"` // set by caller, not from config file
}

// ChannelConfig describes one publish destination.
type ChannelConfig struct {
	// Window is the rate-limit window: the scheduler never publishes two
	// items to this channel within it.
	Window Duration `yaml:"window"`
	// MaxAttempts bounds retries before a draft is marked failed.
	MaxAttempts int `yaml:"max_attempts"`
	// Timeout bounds a single publish attempt. An attempt exceeding it
	// counts as a failure for retry purposes.
	Timeout Duration `yaml:"timeout"`
	// Command is the shell command that performs the publish. The draft
	// body is piped to stdin. Empty means the channel accepts drafts but
	// cannot be queued (book-section).
	Command string `yaml:"command"`
}

// Publishable reports whether queue/publish operations are allowed for
// this channel.
func (c ChannelConfig) Publishable() bool {
	return c.Command != ""
}

// DatabaseConfig holds connection pool settings.
type DatabaseConfig struct {
	MaxOpenConns int `yaml:"max_open_conns"`
	MaxIdleConns int `yaml:"max_idle_conns"`
}

// SweepConfig controls the periodic archive sweep.
type SweepConfig struct {
	Interval Duration `yaml:"interval"`
}

// defaultChannel is the baseline for social channels the config file
// doesn't mention.
func defaultChannel() ChannelConfig {
	return ChannelConfig{
		Window:      Duration(4 * time.Hour),
		MaxAttempts: 3,
		Timeout:     Duration(30 * time.Second),
	}
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	channels := map[string]ChannelConfig{}
	for _, name := range []string{"twitter", "bluesky", "threads", "reddit", "substack"} {
		channels[name] = defaultChannel()
	}
	// book-section drafts feed the manuscript; there is nothing to publish.
	channels["book-section"] = ChannelConfig{MaxAttempts: 1}

	return Config{
		Channels: channels,
		Database: DatabaseConfig{
			MaxOpenConns: 10,
			MaxIdleConns: 5,
		},
		Sweep: SweepConfig{
			Interval: Duration(5 * time.Minute),
		},
	}
}

// Load reads configuration from the given path and sets the data directory.
// If configPath is empty or doesn't exist, returns defaults with the
// provided dataDir. Channels from the config file are merged over the
// built-in set.
func Load(configPath, dataDir string) (*Config, error) {
	cfg := DefaultConfig()
	cfg.DataDir = dataDir

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			data, err := os.ReadFile(configPath)
			if err != nil {
				return nil, fmt.Errorf("read config file: %w", err)
			}

			var user Config
			if err := yaml.Unmarshal(data, &user); err != nil {
				return nil, fmt.Errorf("parse config file: %w", err)
			}

			cfg.merge(user)
		}
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &cfg, nil
}

// merge overlays user configuration onto defaults. User channels override
// built-ins for the same name.
func (c *Config) merge(user Config) {
	for name, ch := range user.Channels {
		c.Channels[name] = ch
	}
	if user.Database.MaxOpenConns != 0 {
		c.Database.MaxOpenConns = user.Database.MaxOpenConns
	}
	if user.Database.MaxIdleConns != 0 {
		c.Database.MaxIdleConns = user.Database.MaxIdleConns
	}
	if user.Sweep.Interval != 0 {
		c.Sweep.Interval = user.Sweep.Interval
	}
}

// applyDefaults sets default values for any unset per-channel options.
func (c *Config) applyDefaults() {
	base := defaultChannel()
	for name, ch := range c.Channels {
		if ch.MaxAttempts == 0 {
			ch.MaxAttempts = base.MaxAttempts
		}
		if ch.Timeout == 0 && ch.Publishable() {
			ch.Timeout = base.Timeout
		}
		c.Channels[name] = ch
	}
}

// Channel returns the configuration for a channel name.
func (c *Config) Channel(name string) (ChannelConfig, bool) {
	ch, ok := c.Channels[name]
	return ch, ok
}

// DatabasePath returns the path to the SQLite ledger file.
func (c *Config) DatabasePath() string {
	return filepath.Join(c.DataDir, "inkwell.db")
}

// Validate checks that the configuration is structurally valid.
func (c *Config) Validate() error {
	if c.DataDir == "" {
		return fmt.Errorf("data directory cannot be empty")
	}

	if len(c.Channels) == 0 {
		return fmt.Errorf("at least one channel must be configured")
	}

	for name, ch := range c.Channels {
		if name == "" {
			return fmt.Errorf("channel name cannot be empty")
		}
		if ch.MaxAttempts < 1 {
			return fmt.Errorf("channel %q: max_attempts must be at least 1", name)
		}
		if ch.Window < 0 {
			return fmt.Errorf("channel %q: window cannot be negative", name)
		}
		if ch.Publishable() && ch.Timeout <= 0 {
			return fmt.Errorf("channel %q: timeout must be positive", name)
		}
	}

	if c.Sweep.Interval <= 0 {
		return fmt.Errorf("sweep.interval must be positive")
	}

	return nil
}
