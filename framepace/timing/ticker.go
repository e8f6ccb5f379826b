package timing

import (
	"context"
	"time"
)

// TickerLimiter uses time.Ticker for simple, consistent idle pacing.
// Ticks missed while the caller was busy are dropped, not queued.
type TickerLimiter struct {
	interval time.Duration
	ticker   *time.Ticker
}

func NewTickerLimiter(interval time.Duration) *TickerLimiter {
	return &TickerLimiter{
		interval: interval,
		ticker:   time.NewTicker(interval),
	}
}

func (t *TickerLimiter) Wait(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.ticker.C:
		return nil
	}
}

// Reset restarts the ticker and discards a tick that fired while nobody was waiting.
func (t *TickerLimiter) Reset() {
	t.ticker.Reset(t.interval)
	select {
	case <-t.ticker.C:
	default:
	}
}

func (t *TickerLimiter) Stop() {
	t.ticker.Stop()
}
