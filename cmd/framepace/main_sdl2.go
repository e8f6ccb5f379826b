//go:build sdl2

package main

import "runtime"

// SDL requires its calls to be made from the main OS thread.
func init() {
	runtime.LockOSThread()
}
