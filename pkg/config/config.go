// Package config loads the weather station configuration.
//
// Values are layered: Default, then a YAML file, then WEATHERSTATION_*
// environment variables. Command-line flags are applied by the caller
// before Validate.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cscode-eu/weatherstation/pkg/discovery"
	"github.com/cscode-eu/weatherstation/pkg/registry"
	"github.com/cscode-eu/weatherstation/pkg/telemetry"
	"github.com/cscode-eu/weatherstation/pkg/transport"
)

// HostAuto makes the station look up the daemon over mDNS.
const HostAuto = "auto"

// Environment variables read by ApplyEnv.
const (
	EnvHost     = "WEATHERSTATION_HOST"
	EnvPort     = "WEATHERSTATION_PORT"
	EnvLogLevel = "WEATHERSTATION_LOG_LEVEL"
	EnvCapture  = "WEATHERSTATION_CAPTURE"
)

// Log formats.
const (
	FormatText = "text"
	FormatJSON = "json"
)

// ErrInvalid is wrapped by every Validate failure.
var ErrInvalid = errors.New("invalid configuration")

// Config is the complete station configuration.
type Config struct {
	Bus       BusConfig       `yaml:"bus"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Registry  RegistryConfig  `yaml:"registry"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// BusConfig describes how to reach the Brick Daemon.
type BusConfig struct {
	Host             string        `yaml:"host"`
	Port             int           `yaml:"port"`
	RetryDelay       time.Duration `yaml:"retry_delay"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
	ProbeInterval    time.Duration `yaml:"probe_interval"`
	DispatchWorkers  int           `yaml:"dispatch_workers"`
	DiscoveryTimeout time.Duration `yaml:"discovery_timeout"`
	DiscoveryService string        `yaml:"discovery_service"`
}

// TelemetryConfig controls sensor callbacks.
type TelemetryConfig struct {
	Period time.Duration `yaml:"period"`
}

// RegistryConfig controls module handling.
type RegistryConfig struct {
	DisconnectPolicy   string `yaml:"disconnect_policy"`
	MasterStatusLED    bool   `yaml:"master_status_led"`
	LCDButtonBacklight bool   `yaml:"lcd_button_backlight"`
}

// LoggingConfig controls operational logging and protocol capture.
type LoggingConfig struct {
	Level       string `yaml:"level"`
	Format      string `yaml:"format"`
	CaptureFile string `yaml:"capture_file"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Bus: BusConfig{
			Host:             "localhost",
			Port:             transport.DefaultPort,
			RetryDelay:       transport.DefaultRetryDelay,
			RequestTimeout:   transport.DefaultRequestTimeout,
			ProbeInterval:    transport.DefaultProbeInterval,
			DispatchWorkers:  transport.DefaultDispatchWorkers,
			DiscoveryTimeout: discovery.DefaultTimeout,
			DiscoveryService: discovery.DefaultService,
		},
		Telemetry: TelemetryConfig{
			Period: telemetry.DefaultPeriod,
		},
		Registry: RegistryConfig{
			DisconnectPolicy:   registry.DisconnectIgnore.String(),
			MasterStatusLED:    true,
			LCDButtonBacklight: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: FormatText,
		},
	}
}

// LoadError describes a configuration file that could not be loaded.
type LoadError struct {
	// File is the path to the file that failed to load.
	File string

	// Message describes the error.
	Message string

	// Cause is the underlying error, if any.
	Cause error
}

func (e *LoadError) Error() string {
	return e.File + ": " + e.Message
}

func (e *LoadError) Unwrap() error {
	return e.Cause
}

// Load reads path on top of Default. Unknown keys are rejected.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, &LoadError{File: path, Message: "failed to read file", Cause: err}
	}
	cfg, err := Parse(data)
	if err != nil {
		return Config{}, &LoadError{File: path, Message: err.Error(), Cause: err}
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default.
func Parse(data []byte) (Config, error) {
	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return Config{}, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment. lookup is usually
// os.LookupEnv.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	if v, ok := lookup(EnvHost); ok && v != "" {
		c.Bus.Host = v
	}
	if v, ok := lookup(EnvPort); ok && v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%s: %w", EnvPort, err)
		}
		c.Bus.Port = port
	}
	if v, ok := lookup(EnvLogLevel); ok && v != "" {
		c.Logging.Level = v
	}
	if v, ok := lookup(EnvCapture); ok {
		c.Logging.CaptureFile = v
	}
	return nil
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if c.Bus.Host == "" {
		return fmt.Errorf("%w: bus.host is required", ErrInvalid)
	}
	if c.Bus.Port < 1 || c.Bus.Port > 65535 {
		return fmt.Errorf("%w: bus.port %d out of range", ErrInvalid, c.Bus.Port)
	}
	if c.Bus.RetryDelay <= 0 {
		return fmt.Errorf("%w: bus.retry_delay must be positive", ErrInvalid)
	}
	if c.Bus.RequestTimeout <= 0 {
		return fmt.Errorf("%w: bus.request_timeout must be positive", ErrInvalid)
	}
	if c.Bus.ProbeInterval <= 0 {
		return fmt.Errorf("%w: bus.probe_interval must be positive", ErrInvalid)
	}
	if c.Bus.DispatchWorkers < 1 {
		return fmt.Errorf("%w: bus.dispatch_workers must be at least 1", ErrInvalid)
	}
	if c.Bus.Host == HostAuto {
		if c.Bus.DiscoveryTimeout <= 0 {
			return fmt.Errorf("%w: bus.discovery_timeout must be positive", ErrInvalid)
		}
		if c.Bus.DiscoveryService == "" {
			return fmt.Errorf("%w: bus.discovery_service is required", ErrInvalid)
		}
	}
	if c.Telemetry.Period <= 0 {
		return fmt.Errorf("%w: telemetry.period must be positive", ErrInvalid)
	}
	if _, err := c.DisconnectPolicy(); err != nil {
		return fmt.Errorf("%w: registry.disconnect_policy: %v", ErrInvalid, err)
	}
	if _, err := c.LogLevel(); err != nil {
		return fmt.Errorf("%w: logging.level: %v", ErrInvalid, err)
	}
	switch c.Logging.Format {
	case FormatText, FormatJSON:
	default:
		return fmt.Errorf("%w: logging.format %q (use text or json)", ErrInvalid, c.Logging.Format)
	}
	return nil
}

// Discover reports whether the daemon address comes from mDNS.
func (c Config) Discover() bool {
	return c.Bus.Host == HostAuto
}

// DisconnectPolicy returns the parsed registry.disconnect_policy.
func (c Config) DisconnectPolicy() (registry.DisconnectPolicy, error) {
	return registry.ParseDisconnectPolicy(c.Registry.DisconnectPolicy)
}

// LogLevel returns the parsed logging.level.
func (c Config) LogLevel() (slog.Level, error) {
	var level slog.Level
	err := level.UnmarshalText([]byte(c.Logging.Level))
	return level, err
}

// Transport returns the transport settings. Loggers are left to the caller.
func (c Config) Transport() transport.Config {
	return transport.Config{
		RequestTimeout:  c.Bus.RequestTimeout,
		ProbeInterval:   c.Bus.ProbeInterval,
		RetryDelay:      c.Bus.RetryDelay,
		DispatchWorkers: c.Bus.DispatchWorkers,
	}
}
