package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/valerio/go-framepace/framepace/timing"
)

// Backend names accepted in config files and on the command line.
const (
	BackendHeadless = "headless"
	BackendTerminal = "terminal"
	BackendSDL2     = "sdl2"
)

type Timer struct {
	IdleInterval      time.Duration `yaml:"idle_interval"`
	BootstrapInterval time.Duration `yaml:"bootstrap_interval"`
	// FenceTimeout bounds a single fence wait; negative disables the bound.
	FenceTimeout time.Duration `yaml:"fence_timeout"`
	Pacing       string        `yaml:"pacing"` // "sleep" | "ticker" | "adaptive"
}

// Headless configures the simulated GPU queue.
type Headless struct {
	FenceLatency time.Duration `yaml:"fence_latency"`
	Jitter       time.Duration `yaml:"jitter"`
	FailAtFrame  uint64        `yaml:"fail_at_frame,omitempty"` // 0 = never
}

type Terminal struct {
	RefreshHz float64 `yaml:"refresh_hz"`
}

type Monitor struct {
	Addr     string        `yaml:"addr,omitempty"` // e.g. ":8089"; empty disables
	Interval time.Duration `yaml:"interval"`
}

type Config struct {
	Backend  string `yaml:"backend"`
	Frames   uint64 `yaml:"frames"` // 0 = run until interrupted
	LogLevel string `yaml:"log_level"`

	Timer    Timer    `yaml:"timer"`
	Headless Headless `yaml:"headless"`
	Terminal Terminal `yaml:"terminal"`
	Monitor  Monitor  `yaml:"monitor"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Backend:  BackendHeadless,
		LogLevel: "info",
		Timer: Timer{
			IdleInterval:      8 * time.Millisecond,
			BootstrapInterval: 16 * time.Millisecond,
			FenceTimeout:      time.Second,
			Pacing:            "sleep",
		},
		Headless: Headless{
			FenceLatency: 5 * time.Millisecond,
			Jitter:       time.Millisecond,
		},
		Terminal: Terminal{RefreshHz: 60},
		Monitor:  Monitor{Interval: 250 * time.Millisecond},
	}
}

// Load reads a YAML file on top of Default, so omitted keys keep their defaults.
func Load(path string) (*Config, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	c := Default()
	if err := yaml.Unmarshal(b, c); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return c, nil
}

func Save(path string, c *Config) error {
	b, err := yaml.Marshal(c)
	if err != nil {
		return err
	}
	return os.WriteFile(path, b, 0644)
}

func (c *Config) Validate() error {
	var errs []error

	switch c.Backend {
	case BackendHeadless, BackendTerminal, BackendSDL2:
	default:
		errs = append(errs, fmt.Errorf("unknown backend %q", c.Backend))
	}
	if _, err := ParseLogLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	if c.Timer.IdleInterval <= 0 {
		errs = append(errs, errors.New("timer.idle_interval must be positive"))
	}
	if c.Timer.BootstrapInterval <= 0 {
		errs = append(errs, errors.New("timer.bootstrap_interval must be positive"))
	}
	if _, err := timing.ParsePacing(c.Timer.Pacing); err != nil {
		errs = append(errs, err)
	}
	if c.Headless.FenceLatency < 0 || c.Headless.Jitter < 0 {
		errs = append(errs, errors.New("headless latencies must not be negative"))
	}
	if c.Terminal.RefreshHz <= 0 {
		errs = append(errs, errors.New("terminal.refresh_hz must be positive"))
	}
	if c.Monitor.Addr != "" && c.Monitor.Interval <= 0 {
		errs = append(errs, errors.New("monitor.interval must be positive"))
	}
	return errors.Join(errs...)
}

// ParseLogLevel maps a level name to a slog.Level.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug, nil
	case "", "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}
