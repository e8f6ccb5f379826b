//go:build vulkan

package vulkan

import (
	"fmt"
	"time"

	vk "github.com/vulkan-go/vulkan"

	"github.com/valerio/go-framepace/framepace/timing"
)

// Available reports whether this build includes the Vulkan bindings.
const Available = true

// FenceWaiter turns in-flight frame fences of a logical device into
// timing.FenceWaitAction values.
type FenceWaiter struct {
	device  vk.Device
	timeout time.Duration
}

// NewFenceWaiter returns a waiter for fences created on device. Each wait
// is bounded by timeout on the driver side; zero waits indefinitely.
func NewFenceWaiter(device vk.Device, timeout time.Duration) *FenceWaiter {
	return &FenceWaiter{device: device, timeout: timeout}
}

// Action returns a wait for fence, which must have been submitted with the
// frame's queue present. The fence is reset once signalled so it can be
// reused for the next frame in flight.
func (w *FenceWaiter) Action(fence vk.Fence) timing.FenceWaitAction {
	return func() error {
		fences := []vk.Fence{fence}
		if err := resultError(vk.WaitForFences(w.device, 1, fences, vk.True, w.timeoutNanos())); err != nil {
			return fmt.Errorf("wait for fence: %w", err)
		}
		if err := resultError(vk.ResetFences(w.device, 1, fences)); err != nil {
			return fmt.Errorf("reset fence: %w", err)
		}
		return nil
	}
}

func (w *FenceWaiter) timeoutNanos() uint64 {
	if w.timeout <= 0 {
		return vk.MaxUint64
	}
	return uint64(w.timeout)
}

func resultError(r vk.Result) error {
	switch r {
	case vk.Success:
		return nil
	case vk.Timeout:
		return ErrFenceTimeout
	case vk.ErrorDeviceLost:
		return ErrDeviceLost
	case vk.ErrorOutOfHostMemory, vk.ErrorOutOfDeviceMemory:
		return fmt.Errorf("%w (result %d)", ErrOutOfMemory, r)
	default:
		return fmt.Errorf("vulkan: unexpected result %d", r)
	}
}
