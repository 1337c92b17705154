package app

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sophialabs/fixturemock/internal/infrastructure/outbound/logging"
)

// Config holds all configurable parameters for the application.
type Config struct {
	FixturesDir string `yaml:"fixtures_dir"`
	TargetURL   string `yaml:"target_url"`

	MockHost  string `yaml:"mock_host"`
	MockPort  int    `yaml:"mock_port"`
	TraceSize int    `yaml:"trace_size"`
	LogLevel  string `yaml:"log_level"`

	RequestTimeout time.Duration `yaml:"request_timeout"`
	RequestRate    float64       `yaml:"request_rate"`
	RequestBurst   int           `yaml:"request_burst"`
	TargetWait     time.Duration `yaml:"target_wait"`

	Watch         bool          `yaml:"watch"`
	WatchDebounce time.Duration `yaml:"watch_debounce"`

	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// DefaultConfig returns a Config with sensible production defaults.
func DefaultConfig() Config {
	return Config{
		FixturesDir: "./fixtures",
		TargetURL:   "http://localhost:9090",

		MockPort:  8888,
		TraceSize: 200,
		LogLevel:  "info",

		RequestTimeout: 30 * time.Second,
		RequestBurst:   1,

		WatchDebounce: 500 * time.Millisecond,

		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 10 * time.Second,
	}
}

// LoadFile overlays the YAML file at path onto cfg. Keys absent from the
// file keep their current values.
func LoadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return nil
}

// Validate checks the settings the runner depends on.
func (c Config) Validate() error {
	var errs []error
	if c.FixturesDir == "" {
		errs = append(errs, errors.New("fixtures_dir is required"))
	}
	if u, err := url.Parse(c.TargetURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("target_url %q is not an absolute URL", c.TargetURL))
	}
	if c.MockPort < 0 || c.MockPort > 65535 {
		errs = append(errs, fmt.Errorf("mock_port %d is out of range", c.MockPort))
	}
	if c.RequestTimeout < 0 {
		errs = append(errs, errors.New("request_timeout must not be negative"))
	}
	if c.TraceSize < 1 {
		errs = append(errs, errors.New("trace_size must be positive"))
	}
	if _, err := logging.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}
