package backend

import (
	"time"

	"github.com/valerio/go-framepace/framepace/timing"
)

// VBlank is a virtual display refresh clock for backends that present
// synchronously and have no hardware fence to wait on. Refresh boundaries
// are multiples of the period since the VBlank was created.
type VBlank struct {
	period time.Duration
	origin time.Time
}

// NewVBlank returns a refresh clock at hz. Non-positive rates fall back to 60Hz.
func NewVBlank(hz float64) *VBlank {
	if hz <= 0 {
		hz = 60
	}
	return &VBlank{
		period: timing.IntervalForHz(hz),
		origin: time.Now(),
	}
}

func (v *VBlank) Period() time.Duration {
	return v.period
}

// Next returns the first refresh boundary strictly after t.
func (v *VBlank) Next(t time.Time) time.Time {
	n := t.Sub(v.origin)/v.period + 1
	return v.origin.Add(n * v.period)
}

// WaitAction returns a fence wait that is signalled at the refresh boundary
// following the call to WaitAction, as if the frame was just queued for scan-out.
func (v *VBlank) WaitAction() timing.FenceWaitAction {
	deadline := v.Next(time.Now())
	return func() error {
		if d := time.Until(deadline); d > 0 {
			time.Sleep(d)
		}
		return nil
	}
}
