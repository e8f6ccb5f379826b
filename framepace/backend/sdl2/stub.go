//go:build !sdl2

package sdl2

import (
	"github.com/valerio/go-framepace/framepace/backend"
	"github.com/valerio/go-framepace/framepace/timing"
)

// Available reports whether this build includes the SDL2 backend.
const Available = false

// Backend stub for when SDL2 is not available
type Backend struct{}

func New() *Backend {
	return &Backend{}
}

func (s *Backend) Init(config backend.BackendConfig) error {
	return ErrUnavailable
}

func (s *Backend) Render(frame backend.Frame) (timing.FenceWaitAction, error) {
	return nil, ErrUnavailable
}

func (s *Backend) Cleanup() error {
	return nil
}
