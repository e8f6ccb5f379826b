package stats

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCounter_Intervals(t *testing.T) {
	c := New()

	c.RecordTick(SourceBootstrap, 16*time.Millisecond)
	c.RecordTick(SourceIdle, 24*time.Millisecond)
	c.RecordTick(SourceFence, 44*time.Millisecond)

	s := c.Snapshot()
	assert.Equal(t, uint64(3), s.Ticks)
	assert.Equal(t, uint64(1), s.BootstrapTicks)
	assert.Equal(t, uint64(1), s.IdleTicks)
	assert.Equal(t, uint64(1), s.FenceTicks)
	assert.Equal(t, 44*time.Millisecond, s.Elapsed)
	assert.Equal(t, 20*time.Millisecond, s.LastInterval)
	assert.Equal(t, 8*time.Millisecond, s.MinInterval)
	assert.Equal(t, 20*time.Millisecond, s.MaxInterval)
	assert.Equal(t, 14*time.Millisecond, s.AvgInterval)
}

func TestCounter_FPS(t *testing.T) {
	c := New()

	step := time.Second / 60
	for i := 0; i <= 61; i++ {
		c.RecordTick(SourceIdle, time.Duration(i)*step)
	}

	assert.InDelta(t, 60.0, c.Snapshot().FPS, 1.0)
}

func TestCounter_Faults(t *testing.T) {
	c := New()

	c.RecordDroppedAction()
	c.RecordDroppedAction()
	c.RecordFenceFault()
	c.RecordSubscriberFault()
	c.RecordFenceWait(5 * time.Millisecond)

	s := c.Snapshot()
	assert.Equal(t, uint64(2), s.DroppedActions)
	assert.Equal(t, uint64(1), s.FenceFaults)
	assert.Equal(t, uint64(1), s.SubscriberFaults)
	assert.Equal(t, 5*time.Millisecond, s.LastFenceWait)
	assert.Zero(t, s.Ticks)
}

func TestSource_String(t *testing.T) {
	assert.Equal(t, "bootstrap", SourceBootstrap.String())
	assert.Equal(t, "idle", SourceIdle.String())
	assert.Equal(t, "fence", SourceFence.String())
	assert.Equal(t, "unknown", Source(42).String())
}
