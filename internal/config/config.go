package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/dokzlo13/aird/internal/device"
)

// Config represents the application configuration
type Config struct {
	Cloud           CloudConfig    `yaml:"cloud"`
	Poll            PollConfig     `yaml:"poll"`
	Devices         []DeviceConfig `yaml:"devices"`
	Control         ControlConfig  `yaml:"control"`
	Debounce        DebounceConfig `yaml:"debounce"`
	Database        DatabaseConfig `yaml:"database"`
	Ledger          LedgerConfig   `yaml:"ledger"`
	EventBus        EventBusConfig `yaml:"eventbus"`
	HTTP            HTTPConfig     `yaml:"http"`
	NATS            NATSConfig     `yaml:"nats"`
	Log             LogConfig      `yaml:"log"`
	ShutdownTimeout Duration       `yaml:"shutdown_timeout"`
}

// CloudConfig contains the vendor cloud API connection settings
type CloudConfig struct {
	BaseURL        string   `yaml:"base_url"`
	Token          string   `yaml:"token"`
	Timeout        Duration `yaml:"timeout"`
	CommandTimeout Duration `yaml:"command_timeout"` // Upper bound for one attribute write
	RateLimitRPS   float64  `yaml:"rate_limit_rps"`
}

// PollConfig contains state polling settings
type PollConfig struct {
	Interval   Duration `yaml:"interval"`
	MinBackoff Duration `yaml:"min_backoff"`
	MaxBackoff Duration `yaml:"max_backoff"`
	Multiplier float64  `yaml:"multiplier"`
}

// DeviceConfig names one appliance to manage
type DeviceConfig struct {
	ID    string `yaml:"id"`
	Name  string `yaml:"name"`
	Model string `yaml:"model"`
}

// ControlConfig contains automatic humidity tracking settings
type ControlConfig struct {
	Enabled           bool     `yaml:"enabled"`
	Interval          Duration `yaml:"interval"`
	IncreaseThreshold float64  `yaml:"increase_threshold"`
	DecreaseThreshold float64  `yaml:"decrease_threshold"`
	AdjustCooldown    Duration `yaml:"adjust_cooldown"`
	ManualCooldown    Duration `yaml:"manual_cooldown"`
}

// DebounceConfig contains continuous-control coalescing settings
type DebounceConfig struct {
	Window Duration `yaml:"window"`
}

// DatabaseConfig contains database settings
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// LedgerConfig contains command ledger settings
type LedgerConfig struct {
	Enabled         bool     `yaml:"enabled"`
	Retention       Duration `yaml:"retention"`
	CleanupInterval Duration `yaml:"cleanup_interval"`
}

// EventBusConfig contains event bus settings
type EventBusConfig struct {
	Workers   int `yaml:"workers"`
	QueueSize int `yaml:"queue_size"`
}

// HTTPConfig contains API server settings
type HTTPConfig struct {
	Enabled bool   `yaml:"enabled"`
	Host    string `yaml:"host"`
	Port    int    `yaml:"port"`
}

// NATSConfig contains change publishing settings
type NATSConfig struct {
	Enabled bool   `yaml:"enabled"`
	URL     string `yaml:"url"`
	Subject string `yaml:"subject"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level"`
	JSON   bool   `yaml:"json"`
	Colors bool   `yaml:"colors"`
}

// Duration is a wrapper around time.Duration for YAML unmarshalling
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse expands environment variables in data, decodes it and applies defaults.
func Parse(data []byte) (*Config, error) {
	expanded := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (cfg *Config) applyDefaults() {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Database.Path == "" {
		cfg.Database.Path = "./aird.sqlite"
	}

	// Cloud defaults
	if cfg.Cloud.Timeout == 0 {
		cfg.Cloud.Timeout = Duration(15 * time.Second)
	}
	if cfg.Cloud.CommandTimeout == 0 {
		cfg.Cloud.CommandTimeout = Duration(30 * time.Second)
	}
	if cfg.Cloud.RateLimitRPS == 0 {
		cfg.Cloud.RateLimitRPS = 2.0
	}

	// Poll defaults
	if cfg.Poll.Interval == 0 {
		cfg.Poll.Interval = Duration(30 * time.Second)
	}
	if cfg.Poll.MinBackoff == 0 {
		cfg.Poll.MinBackoff = Duration(30 * time.Second)
	}
	if cfg.Poll.MaxBackoff == 0 {
		cfg.Poll.MaxBackoff = Duration(10 * time.Minute)
	}
	if cfg.Poll.Multiplier == 0 {
		cfg.Poll.Multiplier = 2.0
	}

	// Control defaults; the decrease band is wider than the increase band
	if cfg.Control.Interval == 0 {
		cfg.Control.Interval = Duration(time.Minute)
	}
	if cfg.Control.IncreaseThreshold == 0 {
		cfg.Control.IncreaseThreshold = 3
	}
	if cfg.Control.DecreaseThreshold == 0 {
		cfg.Control.DecreaseThreshold = 5
	}
	if cfg.Control.AdjustCooldown == 0 {
		cfg.Control.AdjustCooldown = Duration(5 * time.Minute)
	}
	if cfg.Control.ManualCooldown == 0 {
		cfg.Control.ManualCooldown = Duration(30 * time.Minute)
	}

	if cfg.Debounce.Window == 0 {
		cfg.Debounce.Window = Duration(500 * time.Millisecond)
	}

	// Ledger defaults
	if cfg.Ledger.Retention == 0 {
		cfg.Ledger.Retention = Duration(30 * 24 * time.Hour)
	}
	if cfg.Ledger.CleanupInterval == 0 {
		cfg.Ledger.CleanupInterval = Duration(24 * time.Hour)
	}

	// Event bus defaults
	if cfg.EventBus.Workers <= 0 {
		cfg.EventBus.Workers = 4
	}
	if cfg.EventBus.QueueSize <= 0 {
		cfg.EventBus.QueueSize = 256
	}

	// HTTP defaults
	if cfg.HTTP.Port == 0 {
		cfg.HTTP.Port = 9090
	}
	if cfg.HTTP.Host == "" {
		cfg.HTTP.Host = "0.0.0.0"
	}

	if cfg.NATS.URL == "" {
		cfg.NATS.URL = "nats://127.0.0.1:4222"
	}
	if cfg.NATS.Subject == "" {
		cfg.NATS.Subject = "aird.devices"
	}

	for i := range cfg.Devices {
		if cfg.Devices[i].Name == "" {
			cfg.Devices[i].Name = cfg.Devices[i].ID
		}
	}

	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate reports every configuration problem at once.
func (cfg *Config) Validate() error {
	var errs []error

	if cfg.Cloud.BaseURL == "" {
		errs = append(errs, errors.New("cloud.base_url is required"))
	}
	if len(cfg.Devices) == 0 {
		errs = append(errs, errors.New("at least one device is required"))
	}

	seen := make(map[string]bool, len(cfg.Devices))
	for i, d := range cfg.Devices {
		switch {
		case d.ID == "":
			errs = append(errs, fmt.Errorf("devices[%d]: id is required", i))
		case seen[d.ID]:
			errs = append(errs, fmt.Errorf("devices[%d]: duplicate id %q", i, d.ID))
		}
		seen[d.ID] = true
		if _, err := device.LookupModel(d.Model); err != nil {
			errs = append(errs, fmt.Errorf("devices[%d]: %w (known: %s)", i, err, strings.Join(device.ModelNames(), ", ")))
		}
	}

	if cfg.Control.DecreaseThreshold <= cfg.Control.IncreaseThreshold {
		errs = append(errs, errors.New("control.decrease_threshold must be wider than control.increase_threshold"))
	}
	if cfg.Poll.MaxBackoff < cfg.Poll.MinBackoff {
		errs = append(errs, errors.New("poll.max_backoff must not be below poll.min_backoff"))
	}

	return errors.Join(errs...)
}

// DeviceIDs returns the configured ids in file order.
func (cfg *Config) DeviceIDs() []string {
	ids := make([]string, 0, len(cfg.Devices))
	for _, d := range cfg.Devices {
		ids = append(ids, d.ID)
	}
	return ids
}

// Device returns the entry for id.
func (cfg *Config) Device(id string) (DeviceConfig, bool) {
	for _, d := range cfg.Devices {
		if d.ID == id {
			return d, true
		}
	}
	return DeviceConfig{}, false
}

var envPattern = regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	return envPattern.ReplaceAllStringFunc(input, func(match string) string {
		parts := envPattern.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}
		if val := os.Getenv(parts[1]); val != "" {
			return val
		}
		return defaultVal
	})
}
