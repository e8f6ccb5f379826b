package main

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli"

	"github.com/valerio/go-framepace/framepace/backend/headless"
	"github.com/valerio/go-framepace/framepace/backend/sdl2"
	"github.com/valerio/go-framepace/framepace/backend/terminal"
	"github.com/valerio/go-framepace/framepace/config"
	"github.com/valerio/go-framepace/framepace/timing"
)

func parseConfig(t *testing.T, args ...string) (*config.Config, error) {
	t.Helper()
	var cfg *config.Config
	app := newApp()
	app.Action = func(c *cli.Context) error {
		var err error
		cfg, err = loadConfig(c)
		return err
	}
	err := app.Run(append([]string{"framepace"}, args...))
	return cfg, err
}

func runApp(t *testing.T, args ...string) error {
	t.Helper()
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })
	return newApp().Run(append([]string{"framepace"}, args...))
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := parseConfig(t)
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfig_FlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "framepace.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: terminal
frames: 10
timer:
  pacing: ticker
  idle_interval: 4ms
terminal:
  refresh_hz: 144
`), 0644))

	cfg, err := parseConfig(t,
		"--config", path,
		"--frames", "20",
		"--fence-timeout=-1s",
		"--fence-latency", "3ms",
		"--monitor-addr", ":0",
	)
	require.NoError(t, err)

	assert.Equal(t, config.BackendTerminal, cfg.Backend)
	assert.Equal(t, uint64(20), cfg.Frames)
	assert.Equal(t, "ticker", cfg.Timer.Pacing)
	assert.Equal(t, 4*time.Millisecond, cfg.Timer.IdleInterval)
	assert.Equal(t, -time.Second, cfg.Timer.FenceTimeout)
	assert.Equal(t, 3*time.Millisecond, cfg.Headless.FenceLatency)
	assert.Equal(t, 144.0, cfg.Terminal.RefreshHz)
	assert.Equal(t, ":0", cfg.Monitor.Addr)
	assert.Equal(t, config.Default().Timer.BootstrapInterval, cfg.Timer.BootstrapInterval)
}

func TestLoadConfig_Invalid(t *testing.T) {
	_, err := parseConfig(t, "--pacing", "vsync")
	assert.ErrorIs(t, err, timing.ErrUnknownPacing)

	_, err = parseConfig(t, "--backend", "opengl")
	assert.ErrorContains(t, err, `unknown backend "opengl"`)

	_, err = parseConfig(t, "--config", filepath.Join(t.TempDir(), "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestRun_WriteConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out.yaml")
	require.NoError(t, runApp(t, "--write-config", path, "--backend", "terminal", "--idle-interval", "5ms"))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, config.BackendTerminal, cfg.Backend)
	assert.Equal(t, 5*time.Millisecond, cfg.Timer.IdleInterval)
}

func TestRun_Headless(t *testing.T) {
	err := runApp(t,
		"--backend", "headless",
		"--frames", "20",
		"--fence-latency", "1ms",
		"--jitter", "0s",
		"--log-level", "error",
	)
	require.NoError(t, err)
}

func TestRun_HeadlessDeviceLost(t *testing.T) {
	err := runApp(t,
		"--backend", "headless",
		"--frames", "200",
		"--fence-latency", "1ms",
		"--jitter", "0s",
		"--fail-at-frame", "5",
		"--log-level", "error",
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, headless.ErrDeviceLost)

	var fault *timing.FenceFault
	assert.ErrorAs(t, err, &fault)
}

func TestNewBackend(t *testing.T) {
	level := slog.LevelError

	cfg := config.Default()
	b, logger, err := newBackend(cfg, level)
	require.NoError(t, err)
	assert.IsType(t, &headless.Backend{}, b)
	assert.NotNil(t, logger)

	cfg.Backend = config.BackendTerminal
	b, _, err = newBackend(cfg, level)
	require.NoError(t, err)
	assert.IsType(t, &terminal.Backend{}, b)

	cfg.Backend = config.BackendSDL2
	b, _, err = newBackend(cfg, level)
	if sdl2.Available {
		require.NoError(t, err)
		assert.NotNil(t, b)
	} else {
		assert.ErrorIs(t, err, sdl2.ErrUnavailable)
	}

	cfg.Backend = "opengl"
	_, _, err = newBackend(cfg, level)
	assert.Error(t, err)
}
