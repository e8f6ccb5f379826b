// Package sdl2 presents frames in an SDL2 window. The bindings are only
// compiled with the sdl2 build tag.
package sdl2

import (
	"errors"
	"fmt"
)

// ErrUnavailable is returned by the stub backend.
var ErrUnavailable = errors.New("SDL2 backend not available - build with -tags sdl2 to enable")

const (
	windowWidth  = 640
	windowHeight = 360
	barWidth     = 24
	barMargin    = 40
)

// sweep returns the x offset of the moving bar for frame n. The bar crosses
// the window once every width-barWidth frames and wraps around.
func sweep(n uint64, width int32) int32 {
	track := width - barWidth
	if track <= 0 {
		return 0
	}
	return int32(n % uint64(track))
}

// shade pulses a colour channel with a period of 120 frames.
func shade(n uint64) uint8 {
	p := n % 120
	if p >= 60 {
		p = 119 - p
	}
	return uint8(64 + p*3)
}

// canvas is the subset of *sdl.Renderer a frame is drawn with.
type canvas interface {
	SetDrawColor(r, g, b, a uint8) error
	Clear() error
	FillRect(x, y, w, h int32) error
}

// drawScene clears the window and draws the bar for frame n.
func drawScene(c canvas, n uint64) error {
	if err := c.SetDrawColor(16, 16, 24, 255); err != nil {
		return fmt.Errorf("set draw color: %w", err)
	}
	if err := c.Clear(); err != nil {
		return fmt.Errorf("clear: %w", err)
	}

	v := shade(n)
	if err := c.SetDrawColor(v/2, v, 255-v/2, 255); err != nil {
		return fmt.Errorf("set draw color: %w", err)
	}
	if err := c.FillRect(sweep(n, windowWidth), barMargin, barWidth, windowHeight-2*barMargin); err != nil {
		return fmt.Errorf("fill rect: %w", err)
	}
	return nil
}
