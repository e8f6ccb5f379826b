package stats

import (
	"sync"
	"time"
)

// Source identifies what released a tick.
type Source int

const (
	// SourceBootstrap ticks are paced at the bootstrap cadence before any frame was submitted.
	SourceBootstrap Source = iota
	// SourceIdle ticks are paced at the idle cadence because no fence was pending.
	SourceIdle
	// SourceFence ticks were released by a completed presentation fence wait.
	SourceFence
)

func (s Source) String() string {
	switch s {
	case SourceBootstrap:
		return "bootstrap"
	case SourceIdle:
		return "idle"
	case SourceFence:
		return "fence"
	default:
		return "unknown"
	}
}

// fpsWindow is the period over which the frame rate estimate is refreshed.
const fpsWindow = time.Second

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Ticks            uint64        `json:"ticks"`
	BootstrapTicks   uint64        `json:"bootstrap_ticks"`
	IdleTicks        uint64        `json:"idle_ticks"`
	FenceTicks       uint64        `json:"fence_ticks"`
	DroppedActions   uint64        `json:"dropped_actions"`
	FenceFaults      uint64        `json:"fence_faults"`
	SubscriberFaults uint64        `json:"subscriber_faults"`
	Elapsed          time.Duration `json:"elapsed_ns"`
	LastInterval     time.Duration `json:"last_interval_ns"`
	MinInterval      time.Duration `json:"min_interval_ns"`
	MaxInterval      time.Duration `json:"max_interval_ns"`
	AvgInterval      time.Duration `json:"avg_interval_ns"`
	LastFenceWait    time.Duration `json:"last_fence_wait_ns"`
	FPS              float64       `json:"fps"`
}

// Counter accumulates tick statistics. Safe for concurrent use.
type Counter struct {
	mu sync.Mutex
	s  Snapshot

	intervalSum  time.Duration
	windowStart  time.Duration
	windowFrames int
}

func New() *Counter {
	return &Counter{}
}

// RecordTick accounts a tick released by src at the given elapsed time.
func (c *Counter) RecordTick(src Source, elapsed time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.s.Ticks > 0 {
		interval := elapsed - c.s.Elapsed
		c.s.LastInterval = interval
		c.intervalSum += interval
		if c.s.MinInterval == 0 || interval < c.s.MinInterval {
			c.s.MinInterval = interval
		}
		if interval > c.s.MaxInterval {
			c.s.MaxInterval = interval
		}
		c.s.AvgInterval = c.intervalSum / time.Duration(c.s.Ticks)
		c.windowFrames++
	} else {
		c.windowStart = elapsed
	}

	c.s.Ticks++
	c.s.Elapsed = elapsed
	switch src {
	case SourceBootstrap:
		c.s.BootstrapTicks++
	case SourceIdle:
		c.s.IdleTicks++
	case SourceFence:
		c.s.FenceTicks++
	}

	if span := elapsed - c.windowStart; span >= fpsWindow {
		c.s.FPS = float64(c.windowFrames) * float64(time.Second) / float64(span)
		c.windowStart = elapsed
		c.windowFrames = 0
	}
}

func (c *Counter) RecordFenceWait(d time.Duration) {
	c.mu.Lock()
	c.s.LastFenceWait = d
	c.mu.Unlock()
}

func (c *Counter) RecordDroppedAction() {
	c.mu.Lock()
	c.s.DroppedActions++
	c.mu.Unlock()
}

func (c *Counter) RecordFenceFault() {
	c.mu.Lock()
	c.s.FenceFaults++
	c.mu.Unlock()
}

func (c *Counter) RecordSubscriberFault() {
	c.mu.Lock()
	c.s.SubscriberFaults++
	c.mu.Unlock()
}

// Snapshot returns a copy of the current counters.
func (c *Counter) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.s
}
