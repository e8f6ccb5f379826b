package backend

import (
	"time"

	"github.com/valerio/go-framepace/framepace/stats"
	"github.com/valerio/go-framepace/framepace/timing"
)

// Backend represents a presentation target driven by the frame timer.
// Backends are responsible for:
// - Drawing a frame to their specific output (terminal, SDL window, nothing at all)
// - Submitting it for presentation
// - Handing back a wait that blocks until the presentation has completed
type Backend interface {
	// Init configures the backend. It is called once, on the goroutine that
	// will later call Render.
	Init(config BackendConfig) error

	// Render draws and submits frame. The returned action blocks until the
	// frame's presentation fence is signalled; it is invoked at most once,
	// possibly from another goroutine. A nil action means the frame was
	// presented synchronously.
	Render(frame Frame) (timing.FenceWaitAction, error)

	// Cleanup releases backend resources.
	Cleanup() error
}

// Frame is the per-tick input to a backend.
type Frame struct {
	Number  uint64
	Elapsed time.Duration
	Stats   stats.Snapshot
}

// BackendConfig holds configuration for backends
type BackendConfig struct {
	Title     string
	RefreshHz float64 // Target display refresh, used by backends without real vsync
	Callbacks BackendCallbacks
}

// BackendCallbacks allows backends to communicate with the pipeline
type BackendCallbacks struct {
	// OnQuit is called when the backend requests shutdown (window close, quit key).
	OnQuit func()

	// OnDebugMessage receives free-form diagnostics (optional).
	OnDebugMessage func(message string)
}

func (c BackendCallbacks) Quit() {
	if c.OnQuit != nil {
		c.OnQuit()
	}
}

func (c BackendCallbacks) Debug(message string) {
	if c.OnDebugMessage != nil {
		c.OnDebugMessage(message)
	}
}
