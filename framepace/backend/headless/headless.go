package headless

import (
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/valerio/go-framepace/framepace/backend"
	"github.com/valerio/go-framepace/framepace/timing"
)

// ErrDeviceLost is returned by the fence wait of the frame configured in
// GPUConfig.FailAtFrame.
var ErrDeviceLost = errors.New("simulated device lost")

// GPUConfig describes the simulated presentation queue.
type GPUConfig struct {
	FenceLatency time.Duration // Time from submission until the fence is signalled
	Jitter       time.Duration // Uniform +/- variation applied to FenceLatency
	FailAtFrame  uint64        // Frame whose fence wait fails, 0 = never
}

// Backend implements the Backend interface for automated testing and batch
// processing. Frames are not drawn; each submission completes on a
// simulated GPU after the configured latency.
type Backend struct {
	config     backend.BackendConfig
	gpu        GPUConfig
	frameCount uint64
	maxFrames  uint64
	rng        *rand.Rand
}

// New returns a headless backend that requests quit after maxFrames
// frames (0 = never).
func New(maxFrames uint64, gpu GPUConfig) *Backend {
	return &Backend{
		maxFrames: maxFrames,
		gpu:       gpu,
		rng:       rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

func (h *Backend) Init(config backend.BackendConfig) error {
	if h.gpu.FenceLatency < 0 || h.gpu.Jitter < 0 {
		return fmt.Errorf("invalid simulated GPU config: latency %v, jitter %v", h.gpu.FenceLatency, h.gpu.Jitter)
	}
	h.config = config

	slog.Info("Running headless mode",
		"frames", h.maxFrames,
		"fence_latency", h.gpu.FenceLatency,
		"jitter", h.gpu.Jitter,
		"fail_at_frame", h.gpu.FailAtFrame)
	return nil
}

// Render submits the frame to the simulated GPU.
func (h *Backend) Render(frame backend.Frame) (timing.FenceWaitAction, error) {
	h.frameCount++
	number := h.frameCount

	fence := make(chan error, 1)
	latency := h.latency()
	go func() {
		time.Sleep(latency)
		if h.gpu.FailAtFrame != 0 && number == h.gpu.FailAtFrame {
			fence <- ErrDeviceLost
			return
		}
		fence <- nil
	}()

	// Log progress periodically
	if number%60 == 0 {
		slog.Info("Frame progress",
			"completed", number,
			"total", h.maxFrames,
			"fps", fmt.Sprintf("%.1f", frame.Stats.FPS),
			"last_fence_wait", frame.Stats.LastFenceWait)
	}

	if h.maxFrames > 0 && number >= h.maxFrames {
		slog.Info("Headless execution completed", "frames", number, "elapsed", frame.Elapsed)
		h.config.Callbacks.Quit()
	}

	return func() error {
		return <-fence
	}, nil
}

func (h *Backend) Cleanup() error {
	return nil
}

// Frames returns the number of frames submitted so far.
func (h *Backend) Frames() uint64 {
	return h.frameCount
}

func (h *Backend) latency() time.Duration {
	d := h.gpu.FenceLatency
	if h.gpu.Jitter > 0 {
		d += time.Duration(h.rng.Int63n(int64(2*h.gpu.Jitter)+1)) - h.gpu.Jitter
	}
	if d < 0 {
		d = 0
	}
	return d
}
