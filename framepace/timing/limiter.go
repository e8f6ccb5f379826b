package timing

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Default cadences used when no presentation fence drives the loop.
const (
	// DefaultBootstrapInterval paces ticks until the first frame is submitted (~60Hz).
	DefaultBootstrapInterval = 16 * time.Millisecond
	// DefaultIdleInterval paces ticks when no fence is pending, fast enough for ~120Hz displays.
	DefaultIdleInterval = 8 * time.Millisecond
	// DefaultFenceTimeout bounds a single fence wait.
	DefaultFenceTimeout = time.Second
)

// IntervalForHz returns the tick interval of a display refreshing at hz.
func IntervalForHz(hz float64) time.Duration {
	if hz <= 0 {
		return 0
	}
	return time.Duration(float64(time.Second) / hz)
}

// Limiter paces idle ticks.
type Limiter interface {
	// Wait blocks until the next tick is due. It returns ctx.Err() if the
	// context is cancelled first.
	Wait(ctx context.Context) error

	// Reset restarts the cadence from now, useful after a fence wait.
	Reset()
}

// Pacing selects a Limiter implementation.
type Pacing int

const (
	// PacingSleep sleeps a fixed interval per tick.
	PacingSleep Pacing = iota
	// PacingTicker uses a time.Ticker.
	PacingTicker
	// PacingAdaptive schedules against absolute deadlines with drift correction.
	PacingAdaptive
)

var ErrUnknownPacing = errors.New("unknown pacing mode")

func (p Pacing) String() string {
	switch p {
	case PacingSleep:
		return "sleep"
	case PacingTicker:
		return "ticker"
	case PacingAdaptive:
		return "adaptive"
	default:
		return fmt.Sprintf("Pacing(%d)", int(p))
	}
}

// ParsePacing converts a pacing name as used in config files and flags.
func ParsePacing(s string) (Pacing, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "sleep":
		return PacingSleep, nil
	case "ticker":
		return PacingTicker, nil
	case "adaptive":
		return PacingAdaptive, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownPacing, s)
	}
}

// NewLimiter returns a limiter of the given kind ticking every interval.
func NewLimiter(p Pacing, interval time.Duration) (Limiter, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("invalid limiter interval %v", interval)
	}
	switch p {
	case PacingSleep:
		return NewSleepLimiter(interval), nil
	case PacingTicker:
		return NewTickerLimiter(interval), nil
	case PacingAdaptive:
		return NewAdaptiveLimiter(interval), nil
	default:
		return nil, fmt.Errorf("%w: %v", ErrUnknownPacing, p)
	}
}

// SleepLimiter waits a fixed interval on every call, regardless of how long
// the caller spent between calls.
type SleepLimiter struct {
	interval time.Duration
}

func NewSleepLimiter(interval time.Duration) *SleepLimiter {
	return &SleepLimiter{interval: interval}
}

func (s *SleepLimiter) Wait(ctx context.Context) error {
	return sleepCtx(ctx, s.interval)
}

func (s *SleepLimiter) Reset() {}

// sleepCtx sleeps for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
