package render

import (
	"fmt"
	"strings"
	"time"

	"github.com/valerio/go-framepace/framepace/stats"
)

// FormatDuration renders d in milliseconds with microsecond precision.
func FormatDuration(d time.Duration) string {
	return fmt.Sprintf("%.3fms", float64(d)/float64(time.Millisecond))
}

// StatsLines returns the HUD text for frame number n.
func StatsLines(n uint64, s stats.Snapshot) []string {
	return []string{
		fmt.Sprintf("Frame      %d", n),
		fmt.Sprintf("Elapsed    %s", s.Elapsed.Truncate(time.Millisecond)),
		fmt.Sprintf("FPS        %.1f", s.FPS),
		fmt.Sprintf("Ticks      fence %d  idle %d  bootstrap %d", s.FenceTicks, s.IdleTicks, s.BootstrapTicks),
		fmt.Sprintf("Interval   last %s  avg %s", FormatDuration(s.LastInterval), FormatDuration(s.AvgInterval)),
		fmt.Sprintf("           min %s  max %s", FormatDuration(s.MinInterval), FormatDuration(s.MaxInterval)),
		fmt.Sprintf("Fence wait %s", FormatDuration(s.LastFenceWait)),
		fmt.Sprintf("Dropped    %d  faults %d/%d", s.DroppedActions, s.FenceFaults, s.SubscriberFaults),
	}
}

// ProgressBar draws a marker bouncing across width cells, one cell per frame.
func ProgressBar(width int, frame uint64) string {
	if width < 3 {
		return strings.Repeat("=", max(width, 0))
	}
	inner := width - 2
	span := uint64(2 * (inner - 1))
	pos := 0
	if span > 0 {
		p := int(frame % span)
		if p >= inner {
			p = int(span) - p
		}
		pos = p
	}

	var sb strings.Builder
	sb.WriteByte('[')
	for i := 0; i < inner; i++ {
		if i == pos {
			sb.WriteRune('█')
		} else {
			sb.WriteByte('-')
		}
	}
	sb.WriteByte(']')
	return sb.String()
}
