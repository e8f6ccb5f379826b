// Package vulkan adapts Vulkan fences to frame timer fence wait actions.
// The bindings are only compiled with the vulkan build tag.
//
// A Vulkan backend owns its device, swapchain and per-frame fences; after
// queueing a frame it hands the frame's fence to the timer:
//
//	waiter := vulkan.NewFenceWaiter(device, 500*time.Millisecond)
//	...
//	vk.QueueSubmit(queue, 1, submits, inFlight[frame])
//	vk.QueuePresent(queue, &presentInfo)
//	timer.SetPresentFenceWaitAction(waiter.Action(inFlight[frame]))
package vulkan

import "errors"

var (
	ErrUnavailable  = errors.New("vulkan support not available - build with -tags vulkan to enable")
	ErrDeviceLost   = errors.New("vulkan: device lost")
	ErrFenceTimeout = errors.New("vulkan: fence wait timed out")
	ErrOutOfMemory  = errors.New("vulkan: out of memory")
)
