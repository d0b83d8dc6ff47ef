package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"go.uber.org/multierr"
	"go.uber.org/zap/zapcore"
	"gopkg.in/yaml.v3"

	"github.com/dshills/hookbus/internal/config/loader"
	"github.com/dshills/hookbus/internal/event"
	"github.com/dshills/hookbus/internal/logging"
)

// EnvPrefix is the prefix of environment overrides.
const EnvPrefix = "HOOKBUS_"

// ErrFileNotFound is returned when an explicitly named config file is missing.
var ErrFileNotFound = errors.New("config file not found")

// Config is the process configuration.
type Config struct {
	Bus      BusConfig      `yaml:"bus"`
	Log      LogConfig      `yaml:"log"`
	Host     HostConfig     `yaml:"host"`
	Terminal TerminalConfig `yaml:"terminal"`
	Metrics  MetricsConfig  `yaml:"metrics"`

	// Sources lists where settings were read from, in merge order.
	Sources []string `yaml:"-"`
}

// BusConfig configures the default bus.
type BusConfig struct {
	Name          string `yaml:"name"`
	FaultIsolated bool   `yaml:"fault_isolated"`
}

// LogConfig configures logging.
type LogConfig struct {
	// Level is a zap level name.
	Level string `yaml:"level"`
	// Format is auto, console or json. Auto picks console on a terminal.
	Format string `yaml:"format"`
}

// HostConfig configures the Lua script host.
type HostConfig struct {
	// Events are the native events the host declares.
	Events []string `yaml:"events"`
	// Strict rejects events the host has not declared.
	Strict bool `yaml:"strict"`
	// Scripts run in order at startup.
	Scripts []string `yaml:"scripts"`
}

// TerminalConfig configures the terminal event source.
type TerminalConfig struct {
	Enabled bool `yaml:"enabled"`
}

// MetricsConfig configures the Prometheus collector.
type MetricsConfig struct {
	Namespace string `yaml:"namespace"`
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		Bus:     BusConfig{Name: event.DefaultName, FaultIsolated: true},
		Log:     LogConfig{Level: "info", Format: logging.FormatAuto},
		Metrics: MetricsConfig{Namespace: "hookbus"},
		Sources: []string{"defaults"},
	}
}

// Option configures Load.
type Option func(*loadOptions)

type loadOptions struct {
	path      string
	fs        loader.FileSystem
	envPrefix string
	environ   []string
	useEnv    bool
}

// WithFile reads settings from path. A missing file is an error.
func WithFile(path string) Option {
	return func(o *loadOptions) {
		o.path = path
	}
}

// WithFS reads files from fsys instead of the OS.
func WithFS(fsys loader.FileSystem) Option {
	return func(o *loadOptions) {
		o.fs = fsys
	}
}

// WithEnvPrefix changes the environment override prefix.
func WithEnvPrefix(prefix string) Option {
	return func(o *loadOptions) {
		o.envPrefix = prefix
	}
}

// WithEnviron reads overrides from a fixed KEY=VALUE list instead of the
// process environment.
func WithEnviron(environ []string) Option {
	return func(o *loadOptions) {
		o.environ = environ
	}
}

// WithoutEnv disables environment overrides.
func WithoutEnv() Option {
	return func(o *loadOptions) {
		o.useEnv = false
	}
}

// Load builds a Config from defaults, the optional file and environment
// overrides, in that order, and validates it.
func Load(opts ...Option) (*Config, error) {
	o := loadOptions{envPrefix: EnvPrefix, useEnv: true}
	for _, opt := range opts {
		opt(&o)
	}

	cfg := Default()
	merged := map[string]any{}

	if o.path != "" {
		m, err := loader.ForPath(o.fs, o.path).Load()
		if err != nil {
			return nil, err
		}
		if m == nil {
			return nil, fmt.Errorf("%w: %s", ErrFileNotFound, o.path)
		}
		merged = loader.DeepMerge(merged, m)
		cfg.Sources = append(cfg.Sources, o.path)
	}

	if o.useEnv {
		env := loader.NewEnvLoader(o.envPrefix)
		if o.environ != nil {
			env = loader.NewEnvLoaderFrom(o.envPrefix, o.environ)
		}
		m, err := env.Load()
		if err != nil {
			return nil, err
		}
		if len(m) > 0 {
			merged = loader.DeepMerge(merged, m)
			cfg.Sources = append(cfg.Sources, "env:"+o.envPrefix)
		}
	}

	if err := decode(merged, cfg); err != nil {
		return nil, &DecodeError{Sources: cfg.Sources, Err: err}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// decode applies m over cfg. Keys absent from m keep their current value;
// unknown keys are rejected.
func decode(m map[string]any, cfg *Config) error {
	data, err := yaml.Marshal(m)
	if err != nil {
		return err
	}
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// Validate checks every setting and returns all problems combined.
func (c *Config) Validate() error {
	var errs error
	invalid := func(path, msg string, value any) {
		errs = multierr.Append(errs, &ValidationError{Path: path, Message: msg, Value: value})
	}

	if c.Bus.Name == "" {
		invalid("bus.name", "must not be empty", c.Bus.Name)
	}
	if _, err := zapcore.ParseLevel(c.Log.Level); err != nil {
		invalid("log.level", "unknown level", c.Log.Level)
	}
	switch c.Log.Format {
	case logging.FormatAuto, logging.FormatConsole, logging.FormatJSON:
	default:
		invalid("log.format", "must be auto, console or json", c.Log.Format)
	}
	for _, name := range c.Host.Events {
		if err := event.ValidateEvent(name); err != nil {
			invalid("host.events", err.Error(), name)
		}
	}
	for _, path := range c.Host.Scripts {
		if path == "" {
			invalid("host.scripts", "must not contain empty paths", path)
		}
	}
	if !validNamespace(c.Metrics.Namespace) {
		invalid("metrics.namespace", "must match [a-zA-Z_][a-zA-Z0-9_]*", c.Metrics.Namespace)
	}
	return errs
}

func validNamespace(ns string) bool {
	if ns == "" {
		return false
	}
	for i, r := range ns {
		switch {
		case r == '_', r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case r >= '0' && r <= '9' && i > 0:
		default:
			return false
		}
	}
	return true
}
