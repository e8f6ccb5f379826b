package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/urfave/cli"
	"github.com/xlab/closer"

	"github.com/valerio/go-framepace/framepace/backend"
	"github.com/valerio/go-framepace/framepace/backend/headless"
	"github.com/valerio/go-framepace/framepace/backend/sdl2"
	"github.com/valerio/go-framepace/framepace/backend/terminal"
	"github.com/valerio/go-framepace/framepace/backend/terminal/render"
	"github.com/valerio/go-framepace/framepace/config"
	"github.com/valerio/go-framepace/framepace/monitor"
	"github.com/valerio/go-framepace/framepace/pipeline"
	"github.com/valerio/go-framepace/framepace/timing"
)

const shutdownTimeout = 2 * time.Second

func main() {
	app := newApp()
	if err := app.Run(os.Args); err != nil {
		slog.Error("Error running framepace", "error", err)
		closer.Fatalln(err)
	}
	closer.Close()
}

func newApp() *cli.App {
	app := cli.NewApp()
	app.Name = "framepace"
	app.Description = "Drives a render backend from a presentation-fence synchronised frame timer"
	app.Usage = "framepace [options]"
	app.Version = "0.1.0"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "config",
			Usage: "Path to a YAML config file; flags override its values",
		},
		cli.StringFlag{
			Name:  "backend",
			Usage: "Presentation backend: headless, terminal or sdl2",
		},
		cli.Uint64Flag{
			Name:  "frames",
			Usage: "Number of frames to render (0 = until interrupted)",
		},
		cli.DurationFlag{
			Name:  "idle-interval",
			Usage: "Tick cadence while no presentation fence is pending",
		},
		cli.DurationFlag{
			Name:  "bootstrap-interval",
			Usage: "Tick cadence until the first frame is submitted",
		},
		cli.DurationFlag{
			Name:  "fence-timeout",
			Usage: "Upper bound on a single fence wait (negative = unbounded)",
		},
		cli.StringFlag{
			Name:  "pacing",
			Usage: "Cadence limiter: sleep, ticker or adaptive",
		},
		cli.DurationFlag{
			Name:  "fence-latency",
			Usage: "Simulated GPU latency from submission to fence signal (headless)",
		},
		cli.DurationFlag{
			Name:  "jitter",
			Usage: "Uniform +/- variation of the simulated fence latency (headless)",
		},
		cli.Uint64Flag{
			Name:  "fail-at-frame",
			Usage: "Simulate a lost device on this frame's fence (headless, 0 = never)",
		},
		cli.Float64Flag{
			Name:  "refresh-hz",
			Usage: "Virtual display refresh rate (terminal)",
		},
		cli.StringFlag{
			Name:  "monitor-addr",
			Usage: "Serve live tick statistics over websocket on this address, e.g. :8089",
		},
		cli.StringFlag{
			Name:  "log-level",
			Usage: "debug, info, warn or error",
		},
		cli.StringFlag{
			Name:  "write-config",
			Usage: "Write the effective configuration to this path and exit",
		},
	}
	app.Action = run
	return app
}

// loadConfig layers command line flags over the config file, or over the
// defaults when no file is given.
func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg := config.Default()
	if path := c.String("config"); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	if c.IsSet("backend") {
		cfg.Backend = c.String("backend")
	}
	if c.IsSet("frames") {
		cfg.Frames = c.Uint64("frames")
	}
	if c.IsSet("log-level") {
		cfg.LogLevel = c.String("log-level")
	}
	if c.IsSet("idle-interval") {
		cfg.Timer.IdleInterval = c.Duration("idle-interval")
	}
	if c.IsSet("bootstrap-interval") {
		cfg.Timer.BootstrapInterval = c.Duration("bootstrap-interval")
	}
	if c.IsSet("fence-timeout") {
		cfg.Timer.FenceTimeout = c.Duration("fence-timeout")
	}
	if c.IsSet("pacing") {
		cfg.Timer.Pacing = c.String("pacing")
	}
	if c.IsSet("fence-latency") {
		cfg.Headless.FenceLatency = c.Duration("fence-latency")
	}
	if c.IsSet("jitter") {
		cfg.Headless.Jitter = c.Duration("jitter")
	}
	if c.IsSet("fail-at-frame") {
		cfg.Headless.FailAtFrame = c.Uint64("fail-at-frame")
	}
	if c.IsSet("refresh-hz") {
		cfg.Terminal.RefreshHz = c.Float64("refresh-hz")
	}
	if c.IsSet("monitor-addr") {
		cfg.Monitor.Addr = c.String("monitor-addr")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// newBackend returns the configured backend and the logger to use while it
// owns the output.
func newBackend(cfg *config.Config, level slog.Leveler) (backend.Backend, *slog.Logger, error) {
	stderr := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	switch cfg.Backend {
	case config.BackendHeadless:
		return headless.New(cfg.Frames, headless.GPUConfig{
			FenceLatency: cfg.Headless.FenceLatency,
			Jitter:       cfg.Headless.Jitter,
			FailAtFrame:  cfg.Headless.FailAtFrame,
		}), stderr, nil
	case config.BackendTerminal:
		logs := render.NewLogBuffer(200)
		logger := slog.New(render.NewLogBufferHandler(logs, level))
		return terminal.New(terminal.Options{Logs: logs}), logger, nil
	case config.BackendSDL2:
		if !sdl2.Available {
			return nil, nil, sdl2.ErrUnavailable
		}
		return sdl2.New(), stderr, nil
	default:
		return nil, nil, fmt.Errorf("unknown backend %q", cfg.Backend)
	}
}

func run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}

	if path := c.String("write-config"); path != "" {
		if err := config.Save(path, cfg); err != nil {
			return fmt.Errorf("write config: %w", err)
		}
		slog.Info("Configuration written", "path", path)
		return nil
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	levelVar := new(slog.LevelVar)
	levelVar.Set(level)

	b, logger, err := newBackend(cfg, levelVar)
	if err != nil {
		return err
	}
	prevLogger := slog.Default()
	slog.SetDefault(logger)
	defer slog.SetDefault(prevLogger)

	// The terminal backend has released the screen by the time the summary is logged.
	summary := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: levelVar}))
	return runPipeline(cfg, b, logger, summary)
}

func runPipeline(cfg *config.Config, b backend.Backend, logger, summary *slog.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	finished := make(chan struct{})
	defer close(finished)
	closer.Bind(func() {
		cancel()
		select {
		case <-finished:
		case <-time.After(shutdownTimeout):
		}
	})

	pacing, err := timing.ParsePacing(cfg.Timer.Pacing)
	if err != nil {
		return err
	}

	faults := make(chan error, 1)
	timer, err := timing.New(ctx, timing.Options{
		BootstrapInterval: cfg.Timer.BootstrapInterval,
		IdleInterval:      cfg.Timer.IdleInterval,
		FenceTimeout:      cfg.Timer.FenceTimeout,
		Pacing:            pacing,
		Logger:            logger,
		OnFenceFault: func(err error) {
			select {
			case faults <- err:
			default:
			}
		},
	})
	if err != nil {
		return err
	}
	defer timer.Stop()

	p := pipeline.New(timer, b, pipeline.Options{
		Title:     "framepace",
		RefreshHz: cfg.Terminal.RefreshHz,
		MaxFrames: cfg.Frames,
		Logger:    logger,
	})
	go func() {
		select {
		case err := <-faults:
			p.FenceFault(err)
		case <-ctx.Done():
		}
	}()

	if cfg.Monitor.Addr != "" {
		mon := monitor.New(timer, cfg.Monitor.Interval, logger)
		go func() {
			if err := mon.ListenAndServe(ctx, cfg.Monitor.Addr); err != nil {
				logger.Error("Monitor stopped", "error", err)
			}
		}()
	}

	start := time.Now()
	runErr := p.Run(ctx)
	timer.Stop()

	s := timer.Stats()
	summary.Info("Frame timing summary",
		"frames", p.Frames(),
		"coalesced", p.Coalesced(),
		"ticks", s.Ticks,
		"fence_ticks", s.FenceTicks,
		"idle_ticks", s.IdleTicks,
		"bootstrap_ticks", s.BootstrapTicks,
		"dropped_actions", s.DroppedActions,
		"avg_interval", s.AvgInterval,
		"fps", fmt.Sprintf("%.1f", s.FPS),
		"wall", time.Since(start).Truncate(time.Millisecond))
	return runErr
}
