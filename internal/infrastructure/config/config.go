package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the WSS session core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Session   SessionConfig   `yaml:"session"`
	Logging   LoggingConfig   `yaml:"logging"`
	History   HistoryConfig   `yaml:"history"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// SessionConfig contains stimulator session settings.
type SessionConfig struct {
	// SerialPort is the fully qualified serial device name. Empty enables
	// driver-side auto-detection.
	SerialPort string `yaml:"serial_port"`

	// ConfigDir is the directory holding the device's JSON config files.
	ConfigDir string `yaml:"config_dir"`

	// DriverDir is the directory holding the stimulator driver objects.
	DriverDir string `yaml:"driver_dir"`

	// TestMode substitutes the simulated transport for the serial one.
	TestMode bool `yaml:"test_mode"`

	// MaxSetupTries is the device's setup retry budget.
	MaxSetupTries int `yaml:"max_setup_tries"`

	// TickIntervalMs is the tick loop period in milliseconds. Values below
	// 1 are clamped to 1.
	TickIntervalMs int `yaml:"tick_interval_ms"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
	File   string `yaml:"file"`
}

// HistoryConfig contains SQLite session-history settings.
type HistoryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// TelemetryConfig contains MQTT status-reporting settings.
type TelemetryConfig struct {
	Enabled         bool   `yaml:"enabled"`
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	TLS             bool   `yaml:"tls"`
	ClientID        string `yaml:"client_id"`
	Username        string `yaml:"username"`
	Password        string `yaml:"password"`
	QoS             int    `yaml:"qos"`
	TopicPrefix     string `yaml:"topic_prefix"`
	IntervalSeconds int    `yaml:"interval_seconds"`
}

// MetricsConfig contains InfluxDB measurement settings.
type MetricsConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: WSSCORE_SECTION_KEY
// For example: WSSCORE_SESSION_SERIAL_PORT, WSSCORE_HISTORY_PATH
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration, with environment overrides
// applied. Used when no config file is supplied.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Session: SessionConfig{
			ConfigDir:      "./config",
			DriverDir:      "./drivers",
			MaxSetupTries:  3,
			TickIntervalMs: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
		History: HistoryConfig{
			Enabled:     true,
			Path:        "./data/wss-sessions.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Telemetry: TelemetryConfig{
			Host:            "localhost",
			Port:            1883,
			ClientID:        "wss-core",
			QoS:             1,
			TopicPrefix:     "wss",
			IntervalSeconds: 10,
		},
		Metrics: MetricsConfig{
			URL:           "http://localhost:8086",
			Org:           "hfi",
			Bucket:        "wss",
			BatchSize:     100,
			FlushInterval: 10,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: WSSCORE_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Session
	if v := os.Getenv("WSSCORE_SESSION_SERIAL_PORT"); v != "" {
		cfg.Session.SerialPort = v
	}
	if v := os.Getenv("WSSCORE_SESSION_CONFIG_DIR"); v != "" {
		cfg.Session.ConfigDir = v
	}
	if v := os.Getenv("WSSCORE_SESSION_DRIVER_DIR"); v != "" {
		cfg.Session.DriverDir = v
	}
	if v := os.Getenv("WSSCORE_SESSION_TEST_MODE"); v != "" {
		cfg.Session.TestMode = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("WSSCORE_SESSION_MAX_SETUP_TRIES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Session.MaxSetupTries = n
		}
	}

	// Logging
	if v := os.Getenv("WSSCORE_LOGGING_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	// History
	if v := os.Getenv("WSSCORE_HISTORY_PATH"); v != "" {
		cfg.History.Path = v
	}

	// Telemetry
	if v := os.Getenv("WSSCORE_TELEMETRY_HOST"); v != "" {
		cfg.Telemetry.Host = v
	}
	if v := os.Getenv("WSSCORE_TELEMETRY_USERNAME"); v != "" {
		cfg.Telemetry.Username = v
	}
	if v := os.Getenv("WSSCORE_TELEMETRY_PASSWORD"); v != "" {
		cfg.Telemetry.Password = v
	}

	// Metrics
	if v := os.Getenv("WSSCORE_METRICS_TOKEN"); v != "" {
		cfg.Metrics.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Session.ConfigDir == "" {
		errs = append(errs, "session.config_dir is required")
	}
	if c.Session.DriverDir == "" {
		errs = append(errs, "session.driver_dir is required")
	}
	if c.Session.MaxSetupTries < 1 {
		errs = append(errs, "session.max_setup_tries must be at least 1")
	}

	switch c.Logging.Output {
	case "stdout", "stderr", "file":
	default:
		errs = append(errs, "logging.output must be stdout, stderr, or file")
	}
	if c.Logging.Output == "file" && c.Logging.File == "" {
		errs = append(errs, "logging.file is required when logging.output is file")
	}

	if c.History.Enabled && c.History.Path == "" {
		errs = append(errs, "history.path is required when history is enabled")
	}

	if c.Telemetry.QoS < 0 || c.Telemetry.QoS > 2 {
		errs = append(errs, "telemetry.qos must be 0, 1, or 2")
	}
	if c.Telemetry.Enabled {
		if c.Telemetry.Host == "" {
			errs = append(errs, "telemetry.host is required when telemetry is enabled")
		}
		if c.Telemetry.Port < 1 || c.Telemetry.Port > 65535 {
			errs = append(errs, "telemetry.port must be between 1 and 65535")
		}
	}

	if c.Metrics.Enabled {
		if c.Metrics.URL == "" {
			errs = append(errs, "metrics.url is required when metrics are enabled")
		}
		if c.Metrics.Token == "" {
			errs = append(errs, "metrics.token is required when metrics are enabled (set WSSCORE_METRICS_TOKEN)")
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// TickInterval returns the session tick period as a Duration, clamped to a
// one millisecond floor.
func (c *Config) TickInterval() time.Duration {
	ms := c.Session.TickIntervalMs
	if ms < 1 {
		ms = 1
	}
	return time.Duration(ms) * time.Millisecond
}

// TelemetryInterval returns the status-report period as a Duration.
func (c *Config) TelemetryInterval() time.Duration {
	return time.Duration(c.Telemetry.IntervalSeconds) * time.Second
}
