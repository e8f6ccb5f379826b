package timing

import (
	"context"
	"log/slog"
	"time"
)

// AdaptiveLimiter schedules ticks against absolute deadlines so that the time
// spent between calls is absorbed into the wait, with periodic drift correction.
type AdaptiveLimiter struct {
	interval     time.Duration
	nextTickTime time.Time
	tickCounter  int64
}

func NewAdaptiveLimiter(interval time.Duration) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		interval:     interval,
		nextTickTime: time.Now().Add(interval),
	}
}

func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	now := time.Now()
	sleepTime := a.nextTickTime.Sub(now)

	if sleepTime > 0 {
		if err := sleepCtx(ctx, sleepTime); err != nil {
			return err
		}
	} else if sleepTime < -5*a.interval {
		// Far behind schedule: start over instead of bursting to catch up.
		a.nextTickTime = now
	}

	a.nextTickTime = a.nextTickTime.Add(a.interval)
	a.tickCounter++

	if a.tickCounter%60 == 0 {
		drift := time.Since(a.nextTickTime.Add(-a.interval))
		if drift.Abs() > a.interval {
			a.nextTickTime = a.nextTickTime.Add(drift / 10)
			slog.Debug("Idle pacing drift correction",
				"drift_ms", drift.Milliseconds(),
				"interval_ms", a.interval.Milliseconds())
		}
	}
	return nil
}

func (a *AdaptiveLimiter) Reset() {
	a.nextTickTime = time.Now().Add(a.interval)
	a.tickCounter = 0
}
