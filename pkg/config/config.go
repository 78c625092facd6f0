package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// Transport names accepted in Config.Transport.
const (
	TransportGoBLE  = "go-ble"
	TransportTinyGo = "tinygo"
)

// Config holds application configuration
type Config struct {
	DeviceName        string        `yaml:"device_name" default:"TailorToys PowerUp"`
	ScanTimeout       time.Duration `yaml:"scan_timeout" default:"5s"`
	ConnectTimeout    time.Duration `yaml:"connect_timeout" default:"30s"`
	OpTimeout         time.Duration `yaml:"op_timeout" default:"5s"`
	Transport         string        `yaml:"transport" default:"go-ble"`
	AdapterID         string        `yaml:"adapter_id"` // "hci1" or "1"; empty selects the default adapter
	WriteWithResponse bool          `yaml:"write_with_response" default:"true"`
	LogLevel          string        `yaml:"log_level" default:"warn"`
	Drive             DriveConfig   `yaml:"drive"`
}

// DriveConfig tunes interactive keyboard control.
type DriveConfig struct {
	SpeedStep  int     `yaml:"speed_step" default:"16"`
	RudderStep int     `yaml:"rudder_step" default:"16"`
	MaxRate    float64 `yaml:"max_rate" default:"20"` // commands per second
}

// DefaultConfig returns default configuration values
func DefaultConfig() *Config {
	cfg := &Config{}
	defaults.SetDefaults(cfg)
	return cfg
}

// DefaultPath returns ~/.config/powerup/config.yaml, or "" when the home
// directory is unknown.
func DefaultPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, ".config", "powerup", "config.yaml")
}

// Load returns the defaults overlaid with the YAML file at path. An empty
// path means DefaultPath, which may be absent.
func Load(path string) (*Config, error) {
	explicit := path != ""
	if !explicit {
		path = DefaultPath()
	}

	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !explicit && errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks the config for invalid values.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DeviceName) == "" {
		return fmt.Errorf("device_name must not be empty")
	}

	for name, d := range map[string]time.Duration{
		"scan_timeout":    c.ScanTimeout,
		"connect_timeout": c.ConnectTimeout,
		"op_timeout":      c.OpTimeout,
	} {
		if d <= 0 {
			return fmt.Errorf("%s must be > 0, got %s", name, d)
		}
	}

	switch c.Transport {
	case TransportGoBLE, TransportTinyGo:
	default:
		return fmt.Errorf("transport must be %q or %q, got %q", TransportGoBLE, TransportTinyGo, c.Transport)
	}

	if _, err := c.HCIIndex(); err != nil {
		return err
	}

	if _, err := c.Level(); err != nil {
		return err
	}

	if c.Drive.SpeedStep < 1 || c.Drive.SpeedStep > 254 {
		return fmt.Errorf("drive.speed_step must be between 1 and 254, got %d", c.Drive.SpeedStep)
	}
	if c.Drive.RudderStep < 1 || c.Drive.RudderStep > 255 {
		return fmt.Errorf("drive.rudder_step must be between 1 and 255, got %d", c.Drive.RudderStep)
	}
	if c.Drive.MaxRate <= 0 {
		return fmt.Errorf("drive.max_rate must be > 0, got %g", c.Drive.MaxRate)
	}

	return nil
}

// Level parses LogLevel.
func (c *Config) Level() (logrus.Level, error) {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		return logrus.InfoLevel, fmt.Errorf("log_level: %w", err)
	}
	return level, nil
}

// HCIIndex returns the numeric adapter index for AdapterID ("hci1" or "1").
// An empty AdapterID is -1.
func (c *Config) HCIIndex() (int, error) {
	if c.AdapterID == "" {
		return -1, nil
	}
	n, err := strconv.Atoi(strings.TrimPrefix(strings.ToLower(c.AdapterID), "hci"))
	if err != nil || n < 0 {
		return 0, fmt.Errorf("adapter_id must look like \"hci0\" or \"0\", got %q", c.AdapterID)
	}
	return n, nil
}

// NewLogger creates a configured logger instance
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := c.Level()
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	return logger
}
