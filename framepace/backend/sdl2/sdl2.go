//go:build sdl2

package sdl2

import (
	"fmt"
	"log/slog"

	"github.com/veandco/go-sdl2/sdl"

	"github.com/valerio/go-framepace/framepace/backend"
	"github.com/valerio/go-framepace/framepace/timing"
)

// Available reports whether this build includes the SDL2 backend.
const Available = true

// Backend implements the Backend interface using SDL2 bindings.
// Note: building this requires SDL2 development libraries installed.
// Default builds skip this and use a stub, see build tags (sdl2).
//
// The renderer is created with vsync, so Present blocks until the frame is
// scanned out and the fence wait handed back to the timer is already
// signalled.
type Backend struct {
	window    *sdl.Window
	renderer  *sdl.Renderer
	running   bool
	callbacks backend.BackendCallbacks
	config    backend.BackendConfig
}

func New() *Backend {
	return &Backend{}
}

// Init must run on the goroutine locked to the main OS thread.
func (s *Backend) Init(config backend.BackendConfig) error {
	s.config = config
	s.callbacks = config.Callbacks

	if err := sdl.Init(sdl.INIT_VIDEO | sdl.INIT_EVENTS); err != nil {
		return fmt.Errorf("failed to initialize SDL2: %v", err)
	}

	window, err := sdl.CreateWindow(
		config.Title,
		sdl.WINDOWPOS_CENTERED,
		sdl.WINDOWPOS_CENTERED,
		windowWidth,
		windowHeight,
		sdl.WINDOW_SHOWN,
	)
	if err != nil {
		sdl.Quit()
		return fmt.Errorf("failed to create window: %v", err)
	}
	s.window = window

	renderer, err := sdl.CreateRenderer(window, -1, sdl.RENDERER_ACCELERATED|sdl.RENDERER_PRESENTVSYNC)
	if err != nil {
		window.Destroy()
		sdl.Quit()
		return fmt.Errorf("failed to create renderer: %v", err)
	}
	s.renderer = renderer
	s.running = true

	refresh := int32(0)
	if mode, err := window.GetDisplayMode(); err == nil {
		refresh = mode.RefreshRate
	}
	slog.Info("SDL2 backend initialized", "display_refresh_hz", refresh)
	return nil
}

// Render draws a bar sweeping across the window and presents it.
func (s *Backend) Render(frame backend.Frame) (timing.FenceWaitAction, error) {
	if !s.running {
		return nil, nil
	}

	for event := sdl.PollEvent(); event != nil; event = sdl.PollEvent() {
		s.handleEvent(event)
	}
	if !s.running {
		return nil, nil
	}

	if err := drawScene(rendererCanvas{s.renderer}, frame.Number); err != nil {
		return nil, err
	}

	s.renderer.Present()
	return presented, nil
}

type rendererCanvas struct {
	*sdl.Renderer
}

func (r rendererCanvas) FillRect(x, y, w, h int32) error {
	return r.Renderer.FillRect(&sdl.Rect{X: x, Y: y, W: w, H: h})
}

func presented() error {
	return nil
}

func (s *Backend) Cleanup() error {
	slog.Info("Cleaning up SDL2 backend")

	if s.renderer != nil {
		s.renderer.Destroy()
	}
	if s.window != nil {
		s.window.Destroy()
	}
	sdl.Quit()
	return nil
}

func (s *Backend) handleEvent(event sdl.Event) {
	switch e := event.(type) {
	case *sdl.QuitEvent:
		s.quit()
	case *sdl.KeyboardEvent:
		if e.Type == sdl.KEYDOWN && e.Repeat == 0 && (e.Keysym.Sym == sdl.K_ESCAPE || e.Keysym.Sym == sdl.K_q) {
			s.quit()
		}
	}
}

func (s *Backend) quit() {
	s.running = false
	s.callbacks.Quit()
}
