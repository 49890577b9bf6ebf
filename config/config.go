// Package config defines the typed configuration for the coordination core
// and a thread-safe wrapper so components always observe the current
// values. Configuration is loaded once at startup; the PLC client re-reads
// the live endpoint through SafeConfig on every connect.
package config

import (
	"fmt"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/RicardoGuemba/Realtec-Vision-Buddmeyer/errors"
)

// Config is the complete application configuration.
type Config struct {
	PLC     PLCConfig         `yaml:"plc"`
	Control ControlConfig     `yaml:"control"`
	Tags    map[string]string `yaml:"tags,omitempty"` // logical name -> device name overrides
	NATS    NATSConfig        `yaml:"nats,omitempty"`
	Metrics MetricsConfig     `yaml:"metrics,omitempty"`
}

// PLCConfig holds connection parameters for the PLC session.
type PLCConfig struct {
	IP                string        `yaml:"ip"`
	Port              int           `yaml:"port"`
	ConnectionTimeout time.Duration `yaml:"connection_timeout"`
	RetryInterval     time.Duration `yaml:"retry_interval"`
	MaxRetries        int           `yaml:"max_retries"`
	IORetries         int           `yaml:"io_retries"`
	Simulated         bool          `yaml:"simulated"`
	HeartbeatInterval time.Duration `yaml:"heartbeat_interval"`
	AutoReconnect     bool          `yaml:"auto_reconnect"`
}

// ControlConfig holds handshake deadlines and cycle behavior.
type ControlConfig struct {
	AckTimeout   time.Duration `yaml:"ack_timeout"`
	PickTimeout  time.Duration `yaml:"pick_timeout"`
	PlaceTimeout time.Duration `yaml:"place_timeout"`
	PollInterval time.Duration `yaml:"poll_interval"`
	CycleMode    string        `yaml:"cycle_mode"` // "manual" or "continuous"
}

// NATSConfig enables the optional telemetry bridge.
type NATSConfig struct {
	URL              string `yaml:"url,omitempty"` // empty disables the bridge
	EventsSubject    string `yaml:"events_subject,omitempty"`
	DetectionSubject string `yaml:"detection_subject,omitempty"`
}

// MetricsConfig configures the /metrics endpoint.
type MetricsConfig struct {
	Port int    `yaml:"port,omitempty"` // 0 disables the server
	Path string `yaml:"path,omitempty"`
}

// Default returns the configuration used when no file is supplied.
func Default() *Config {
	return &Config{
		PLC: PLCConfig{
			IP:                "192.168.1.10",
			Port:              44818,
			ConnectionTimeout: 10 * time.Second,
			RetryInterval:     2 * time.Second,
			MaxRetries:        3,
			IORetries:         2,
			Simulated:         false,
			HeartbeatInterval: time.Second,
			AutoReconnect:     true,
		},
		Control: ControlConfig{
			AckTimeout:   5 * time.Second,
			PickTimeout:  30 * time.Second,
			PlaceTimeout: 30 * time.Second,
			PollInterval: 100 * time.Millisecond,
			CycleMode:    "continuous",
		},
		NATS: NATSConfig{
			EventsSubject:    "vision.events",
			DetectionSubject: "vision.detections",
		},
		Metrics: MetricsConfig{
			Port: 9090,
			Path: "/metrics",
		},
	}
}

// Load reads a YAML configuration file, layered over Default.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "Config", "Load", "read file")
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WrapInvalid(err, "Config", "Load", "decode yaml")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks the configuration for values the runtime cannot work with.
func (c *Config) Validate() error {
	if c.PLC.IP == "" {
		return errors.WrapFatal(errors.ErrMissingConfig, "Config", "Validate", "plc.ip is required")
	}
	if c.PLC.Port <= 0 || c.PLC.Port > 65535 {
		return errors.WrapFatal(
			fmt.Errorf("%w: plc.port %d out of range", errors.ErrInvalidConfig, c.PLC.Port),
			"Config", "Validate", "check plc.port")
	}
	if c.PLC.ConnectionTimeout <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: plc.connection_timeout must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "check plc.connection_timeout")
	}
	if c.PLC.IORetries < 0 || c.PLC.IORetries > 5 {
		return errors.WrapFatal(
			fmt.Errorf("%w: plc.io_retries %d out of range [0,5]", errors.ErrInvalidConfig, c.PLC.IORetries),
			"Config", "Validate", "check plc.io_retries")
	}
	if c.PLC.MaxRetries < 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: plc.max_retries must not be negative", errors.ErrInvalidConfig),
			"Config", "Validate", "check plc.max_retries")
	}
	if c.PLC.HeartbeatInterval < 100*time.Millisecond {
		return errors.WrapFatal(
			fmt.Errorf("%w: plc.heartbeat_interval below 100ms", errors.ErrInvalidConfig),
			"Config", "Validate", "check plc.heartbeat_interval")
	}
	if c.Control.AckTimeout <= 0 || c.Control.PickTimeout <= 0 || c.Control.PlaceTimeout <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: control timeouts must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "check control timeouts")
	}
	if c.Control.PollInterval <= 0 {
		return errors.WrapFatal(
			fmt.Errorf("%w: control.poll_interval must be positive", errors.ErrInvalidConfig),
			"Config", "Validate", "check control.poll_interval")
	}
	switch c.Control.CycleMode {
	case "manual", "continuous":
	default:
		return errors.WrapFatal(
			fmt.Errorf("%w: control.cycle_mode %q (want manual or continuous)",
				errors.ErrInvalidConfig, c.Control.CycleMode),
			"Config", "Validate", "check control.cycle_mode")
	}
	return nil
}

// Clone creates a deep copy of the configuration.
func (c *Config) Clone() *Config {
	if c == nil {
		return &Config{}
	}
	copied := *c
	if c.Tags != nil {
		copied.Tags = make(map[string]string, len(c.Tags))
		for k, v := range c.Tags {
			copied.Tags[k] = v
		}
	}
	return &copied
}

// SafeConfig provides thread-safe access to configuration.
type SafeConfig struct {
	mu     sync.RWMutex
	config *Config
}

// NewSafeConfig creates a new thread-safe config wrapper.
func NewSafeConfig(cfg *Config) *SafeConfig {
	if cfg == nil {
		cfg = Default()
	}
	return &SafeConfig{config: cfg}
}

// Get returns a deep copy of the current configuration.
func (sc *SafeConfig) Get() *Config {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.config.Clone()
}

// Update atomically replaces the configuration after validation.
func (sc *SafeConfig) Update(cfg *Config) error {
	if cfg == nil {
		return errors.WrapInvalid(errors.ErrMissingConfig, "SafeConfig", "Update", "nil config")
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.config = cfg
	return nil
}
