// Package config loads and validates the bedjetd YAML configuration.
package config

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all daemon configuration.
type Config struct {
	Device    DeviceConfig    `yaml:"device"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	LogLevel  string          `yaml:"log_level"`
}

// DeviceConfig identifies the BedJet and bounds its network operations.
type DeviceConfig struct {
	// Address is the device's MAC address (a CoreBluetooth UUID on
	// macOS), discovered with bedjet-scan.
	Address          string   `yaml:"address"`
	ConnectTimeout   Duration `yaml:"connect_timeout"`
	SubscribeTimeout Duration `yaml:"subscribe_timeout"`
	WriteTimeout     Duration `yaml:"write_timeout"`

	// StaleAfter is how long the device may stay silent before the state
	// counts as stale. The device heartbeats roughly once a second.
	StaleAfter Duration `yaml:"stale_after"`
}

// ReconnectConfig tunes the supervisor's backoff policy.
type ReconnectConfig struct {
	InitialBackoff Duration `yaml:"initial_backoff"`
	MaxBackoff     Duration `yaml:"max_backoff"`
}

// MQTTConfig configures the host-platform bridge.
type MQTTConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Broker      string `yaml:"broker"` // e.g. tcp://localhost:1883
	ClientID    string `yaml:"client_id"`
	TopicPrefix string `yaml:"topic_prefix"`
	Username    string `yaml:"username"`
	Password    string `yaml:"password"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m".
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (d Duration) MarshalYAML() (interface{}, error) {
	return time.Duration(d).String(), nil
}

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// DefaultConfigDir returns the default config directory path.
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "bedjetd")
}

// DefaultConfigPath returns the default config file path.
func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.yaml")
}

// Default returns a Config with sensible default values. The device
// address has no default; it must come from the config file or flag.
func Default() *Config {
	return &Config{
		Device: DeviceConfig{
			ConnectTimeout:   Duration(20 * time.Second),
			SubscribeTimeout: Duration(5 * time.Second),
			WriteTimeout:     Duration(5 * time.Second),
			StaleAfter:       Duration(30 * time.Second),
		},
		Reconnect: ReconnectConfig{
			InitialBackoff: Duration(1 * time.Second),
			MaxBackoff:     Duration(30 * time.Second),
		},
		MQTT: MQTTConfig{
			Enabled:     false,
			Broker:      "tcp://localhost:1883",
			ClientID:    "bedjetd",
			TopicPrefix: "bedjet",
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Listen:  ":9867",
		},
		LogLevel: "info",
	}
}

// Load reads and parses a YAML config file. Missing fields are filled
// with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return cfg, nil
}

// SlogLevel maps the configured log level to a slog.Level. Unknown
// values map to info; Validate rejects them anyway.
func (c *Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if c.Device.Address == "" {
		return fmt.Errorf("device.address must not be empty")
	}
	if c.Device.ConnectTimeout <= 0 {
		return fmt.Errorf("device.connect_timeout must be > 0")
	}
	if c.Device.SubscribeTimeout <= 0 {
		return fmt.Errorf("device.subscribe_timeout must be > 0")
	}
	if c.Device.WriteTimeout <= 0 {
		return fmt.Errorf("device.write_timeout must be > 0")
	}
	if c.Device.StaleAfter <= 0 {
		return fmt.Errorf("device.stale_after must be > 0")
	}

	if c.Reconnect.InitialBackoff <= 0 {
		return fmt.Errorf("reconnect.initial_backoff must be > 0")
	}
	if c.Reconnect.MaxBackoff < c.Reconnect.InitialBackoff {
		return fmt.Errorf("reconnect.max_backoff must be >= reconnect.initial_backoff")
	}

	if c.MQTT.Enabled {
		if c.MQTT.Broker == "" {
			return fmt.Errorf("mqtt.broker must not be empty when mqtt is enabled")
		}
		if c.MQTT.ClientID == "" {
			return fmt.Errorf("mqtt.client_id must not be empty when mqtt is enabled")
		}
		if c.MQTT.TopicPrefix == "" {
			return fmt.Errorf("mqtt.topic_prefix must not be empty when mqtt is enabled")
		}
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		return fmt.Errorf("metrics.listen must not be empty when metrics are enabled")
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}
