package backend

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVBlank_Next(t *testing.T) {
	v := NewVBlank(100)
	require.Equal(t, 10*time.Millisecond, v.Period())

	assert.Equal(t, v.origin.Add(10*time.Millisecond), v.Next(v.origin))
	assert.Equal(t, v.origin.Add(10*time.Millisecond), v.Next(v.origin.Add(9*time.Millisecond)))
	assert.Equal(t, v.origin.Add(20*time.Millisecond), v.Next(v.origin.Add(10*time.Millisecond)))
}

func TestVBlank_DefaultRate(t *testing.T) {
	assert.Equal(t, time.Second/60, NewVBlank(0).Period())
}

func TestVBlank_WaitActionBlocksUntilBoundary(t *testing.T) {
	v := NewVBlank(50)

	action := v.WaitAction()
	require.NoError(t, action())

	// Having waited for a boundary, we are within one period past it.
	sinceOrigin := time.Since(v.origin)
	phase := sinceOrigin % v.Period()
	assert.GreaterOrEqual(t, sinceOrigin, v.Period())
	assert.Less(t, phase, v.Period())
}

func TestBackendCallbacks_NilSafe(t *testing.T) {
	var cb BackendCallbacks
	assert.NotPanics(t, func() {
		cb.Quit()
		cb.Debug("ignored")
	})

	quit := false
	var msg string
	cb = BackendCallbacks{OnQuit: func() { quit = true }, OnDebugMessage: func(m string) { msg = m }}
	cb.Quit()
	cb.Debug("hello")
	assert.True(t, quit)
	assert.Equal(t, "hello", msg)
}
