package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override, e.g. DPFWATCH_LOG_LEVEL
const EnvPrefix = "DPFWATCH_"

// ErrInvalidConfig is wrapped by every Validate failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds application configuration
type Config struct {
	LogLevel      string              `yaml:"log_level" toml:"log_level" default:"info"`
	StateDir      string              `yaml:"state_dir" toml:"state_dir"`
	Preferences   PreferencesConfig   `yaml:"preferences" toml:"preferences"`
	Host          HostConfig          `yaml:"host" toml:"host"`
	Events        EventsConfig        `yaml:"events" toml:"events"`
	Scan          ScanConfig          `yaml:"scan" toml:"scan"`
	MQTT          MQTTConfig          `yaml:"mqtt" toml:"mqtt"`
	History       HistoryConfig       `yaml:"history" toml:"history"`
	Notifications NotificationsConfig `yaml:"notifications" toml:"notifications"`
}

// PreferencesConfig selects the durable preference backend.
type PreferencesConfig struct {
	Backend string `yaml:"backend" toml:"backend" default:"file"` // file, sqlite, memory
	Path    string `yaml:"path" toml:"path"`
}

// HostConfig locates the service pid file, the execution-context lock and the
// status document.
type HostConfig struct {
	PIDPath        string        `yaml:"pid_path" toml:"pid_path"` // held by `run` for its whole lifetime
	LockPath       string        `yaml:"lock_path" toml:"lock_path"`
	StatusPath     string        `yaml:"status_path" toml:"status_path"`
	AcquireTimeout time.Duration `yaml:"acquire_timeout" toml:"acquire_timeout" default:"10s"`
}

type EventsConfig struct {
	Buffer int `yaml:"buffer" toml:"buffer" default:"64"`
}

// ScanConfig configures the BLE presence scanner.
type ScanConfig struct {
	Enabled        bool          `yaml:"enabled" toml:"enabled" default:"false"`
	LostAfter      time.Duration `yaml:"lost_after" toml:"lost_after" default:"30s"`
	SweepInterval  time.Duration `yaml:"sweep_interval" toml:"sweep_interval" default:"5s"`
	DiagnosticOnly bool          `yaml:"diagnostic_only" toml:"diagnostic_only" default:"true"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled" toml:"enabled" default:"false"`
	Broker      MQTTBrokerConfig    `yaml:"broker" toml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth" toml:"auth"`
	QoS         int                 `yaml:"qos" toml:"qos" default:"1"`
	TopicPrefix string              `yaml:"topic_prefix" toml:"topic_prefix" default:"dpfwatch"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect" toml:"reconnect"`
}

type MQTTBrokerConfig struct {
	Host     string `yaml:"host" toml:"host" default:"127.0.0.1"`
	Port     int    `yaml:"port" toml:"port" default:"1883"`
	TLS      bool   `yaml:"tls" toml:"tls"`
	ClientID string `yaml:"client_id" toml:"client_id" default:"dpfwatch"`
}

type MQTTAuthConfig struct {
	Username string `yaml:"username" toml:"username"`
	Password string `yaml:"password" toml:"password"`
}

// MQTTReconnectConfig holds reconnect delays in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay" toml:"initial_delay" default:"1"`
	MaxDelay     int `yaml:"max_delay" toml:"max_delay" default:"60"`
}

// HistoryConfig configures the InfluxDB event history.
type HistoryConfig struct {
	Enabled       bool   `yaml:"enabled" toml:"enabled" default:"false"`
	URL           string `yaml:"url" toml:"url" default:"http://127.0.0.1:8086"`
	Token         string `yaml:"token" toml:"token"`
	Org           string `yaml:"org" toml:"org"`
	Bucket        string `yaml:"bucket" toml:"bucket" default:"dpfwatch"`
	BatchSize     int    `yaml:"batch_size" toml:"batch_size" default:"50"`
	FlushInterval int    `yaml:"flush_interval" toml:"flush_interval" default:"10"` // seconds
}

// NotificationsConfig overrides the indicator texts; empty keeps the built-in text.
type NotificationsConfig struct {
	MonitoringTitle    string `yaml:"monitoring_title" toml:"monitoring_title"`
	MonitoringBody     string `yaml:"monitoring_body" toml:"monitoring_body"`
	DefaultDeviceLabel string `yaml:"default_device_label" toml:"default_device_label"`
	AlertTitle         string `yaml:"alert_title" toml:"alert_title"`
	AlertBody          string `yaml:"alert_body" toml:"alert_body"`
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	cfg.applyDerivedPaths()
	return cfg
}

// Load reads configuration from path, layered over the defaults. The format
// follows the extension (.yaml, .yml or .toml). An empty path skips the file.
// DPFWATCH_* environment variables override file values.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}

		switch ext := strings.ToLower(filepath.Ext(path)); ext {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parsing config file: %w", err)
			}
		default:
			return nil, fmt.Errorf("%w: unsupported config format %q", ErrInvalidConfig, ext)
		}
	}

	if err := cfg.applyEnvOverrides(); err != nil {
		return nil, err
	}
	cfg.applyDerivedPaths()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// applyEnvOverrides reads DPFWATCH_* variables for the settings most often
// changed per deployment.
func (c *Config) applyEnvOverrides() error {
	str := map[string]*string{
		"LOG_LEVEL":         &c.LogLevel,
		"STATE_DIR":         &c.StateDir,
		"PREFS_BACKEND":     &c.Preferences.Backend,
		"PREFS_PATH":        &c.Preferences.Path,
		"MQTT_HOST":         &c.MQTT.Broker.Host,
		"MQTT_CLIENT_ID":    &c.MQTT.Broker.ClientID,
		"MQTT_USERNAME":     &c.MQTT.Auth.Username,
		"MQTT_PASSWORD":     &c.MQTT.Auth.Password,
		"MQTT_TOPIC_PREFIX": &c.MQTT.TopicPrefix,
		"INFLUXDB_URL":      &c.History.URL,
		"INFLUXDB_TOKEN":    &c.History.Token,
		"INFLUXDB_ORG":      &c.History.Org,
		"INFLUXDB_BUCKET":   &c.History.Bucket,
	}
	for name, dst := range str {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			*dst = v
		}
	}

	flags := map[string]*bool{
		"SCAN_ENABLED":    &c.Scan.Enabled,
		"MQTT_ENABLED":    &c.MQTT.Enabled,
		"HISTORY_ENABLED": &c.History.Enabled,
	}
	for name, dst := range flags {
		if v, ok := os.LookupEnv(EnvPrefix + name); ok {
			b, err := strconv.ParseBool(v)
			if err != nil {
				return fmt.Errorf("%w: %s%s=%q: %v", ErrInvalidConfig, EnvPrefix, name, v, err)
			}
			*dst = b
		}
	}

	if v, ok := os.LookupEnv(EnvPrefix + "MQTT_PORT"); ok {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %sMQTT_PORT=%q: %v", ErrInvalidConfig, EnvPrefix, v, err)
		}
		c.MQTT.Broker.Port = port
	}
	return nil
}

// applyDerivedPaths places unset state files under StateDir.
func (c *Config) applyDerivedPaths() {
	if c.StateDir == "" {
		c.StateDir = defaultStateDir()
	}
	if c.Preferences.Path == "" {
		switch c.Preferences.Backend {
		case "sqlite":
			c.Preferences.Path = filepath.Join(c.StateDir, "prefs.db")
		default:
			c.Preferences.Path = filepath.Join(c.StateDir, "prefs.yaml")
		}
	}
	if c.Host.PIDPath == "" {
		c.Host.PIDPath = filepath.Join(c.StateDir, "dpfwatch.pid")
	}
	if c.Host.LockPath == "" {
		c.Host.LockPath = filepath.Join(c.StateDir, "monitor.lock")
	}
	if c.Host.StatusPath == "" {
		c.Host.StatusPath = filepath.Join(c.StateDir, "status.yaml")
	}
}

func defaultStateDir() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "dpfwatch")
	}
	return filepath.Join(os.TempDir(), "dpfwatch")
}

// Validate checks the configuration for values the components cannot use.
func (c *Config) Validate() error {
	var errs []error

	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	switch c.Preferences.Backend {
	case "file", "sqlite", "memory":
	default:
		errs = append(errs, fmt.Errorf("preferences.backend: unknown backend %q", c.Preferences.Backend))
	}
	if c.Host.AcquireTimeout <= 0 {
		errs = append(errs, errors.New("host.acquire_timeout must be positive"))
	}
	if c.Events.Buffer <= 0 {
		errs = append(errs, errors.New("events.buffer must be positive"))
	}
	if c.Scan.Enabled {
		if c.Scan.LostAfter <= 0 || c.Scan.SweepInterval <= 0 {
			errs = append(errs, errors.New("scan.lost_after and scan.sweep_interval must be positive"))
		}
	}
	if c.MQTT.Enabled {
		if c.MQTT.Broker.Host == "" {
			errs = append(errs, errors.New("mqtt.broker.host is required"))
		}
		if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
			errs = append(errs, fmt.Errorf("mqtt.broker.port %d out of range", c.MQTT.Broker.Port))
		}
		if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
			errs = append(errs, fmt.Errorf("mqtt.qos %d must be 0, 1 or 2", c.MQTT.QoS))
		}
		if c.MQTT.TopicPrefix == "" {
			errs = append(errs, errors.New("mqtt.topic_prefix is required"))
		}
	}
	if c.History.Enabled {
		if c.History.URL == "" || c.History.Org == "" || c.History.Bucket == "" {
			errs = append(errs, errors.New("history.url, history.org and history.bucket are required"))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, errors.Join(errs...))
	}
	return nil
}

// Level returns the parsed log level, or Info when it does not parse
func (c *Config) Level() logrus.Level {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel
	}
	return level
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetLevel(c.Level())

	// Use structured logging format
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
