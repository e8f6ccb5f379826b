//go:build !vulkan

package vulkan

import (
	"time"

	"github.com/valerio/go-framepace/framepace/timing"
)

// Available reports whether this build includes the Vulkan bindings.
const Available = false

// FenceWaiter stub for when the Vulkan bindings are not compiled in.
type FenceWaiter struct{}

func NewFenceWaiter(device any, timeout time.Duration) *FenceWaiter {
	return &FenceWaiter{}
}

// Action returns a wait that always fails with ErrUnavailable.
func (w *FenceWaiter) Action(fence any) timing.FenceWaitAction {
	return func() error { return ErrUnavailable }
}
