package pipeline

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valerio/go-framepace/framepace/backend"
	"github.com/valerio/go-framepace/framepace/backend/headless"
	"github.com/valerio/go-framepace/framepace/stats"
	"github.com/valerio/go-framepace/framepace/timing"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// MockBackend records calls and returns immediately-signalled fences.
type MockBackend struct {
	mu          sync.Mutex
	initErr     error
	renderErr   error
	config      backend.BackendConfig
	initialized bool
	cleanedUp   bool
	frames      []backend.Frame
	waits       int
}

func (m *MockBackend) Init(config backend.BackendConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config = config
	m.initialized = m.initErr == nil
	return m.initErr
}

func (m *MockBackend) Render(frame backend.Frame) (timing.FenceWaitAction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.renderErr != nil {
		return nil, m.renderErr
	}
	m.frames = append(m.frames, frame)
	return func() error {
		m.mu.Lock()
		m.waits++
		m.mu.Unlock()
		return nil
	}, nil
}

func (m *MockBackend) Cleanup() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cleanedUp = true
	return nil
}

func (m *MockBackend) frameCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.frames)
}

// fakeTimer delivers ticks only when the test calls fire.
type fakeTimer struct {
	mu         sync.Mutex
	handlers   map[timing.SubscriptionID]timing.TickHandler
	nextID     timing.SubscriptionID
	actions    int
	background bool
	done       chan struct{}
}

func newFakeTimer(background bool) *fakeTimer {
	return &fakeTimer{
		handlers:   map[timing.SubscriptionID]timing.TickHandler{},
		background: background,
		done:       make(chan struct{}),
	}
}

func (f *fakeTimer) Subscribe(h timing.TickHandler) timing.SubscriptionID {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.handlers[f.nextID] = h
	return f.nextID
}

func (f *fakeTimer) Unsubscribe(id timing.SubscriptionID) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.handlers[id]
	delete(f.handlers, id)
	return ok
}

func (f *fakeTimer) SetPresentFenceWaitAction(timing.FenceWaitAction) {
	f.mu.Lock()
	f.actions++
	f.mu.Unlock()
}

func (f *fakeTimer) RunsInBackground() bool { return f.background }
func (f *fakeTimer) Done() <-chan struct{}  { return f.done }
func (f *fakeTimer) Stats() stats.Snapshot  { return stats.Snapshot{} }

func (f *fakeTimer) subscribers() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.handlers)
}

func (f *fakeTimer) fire(elapsed time.Duration) {
	f.mu.Lock()
	handlers := make([]timing.TickHandler, 0, len(f.handlers))
	for _, h := range f.handlers {
		handlers = append(handlers, h)
	}
	f.mu.Unlock()
	for _, h := range handlers {
		h(elapsed)
	}
}

func TestPipeline_HeadlessMaxFrames(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	timer, err := timing.New(ctx, timing.Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer timer.Stop()

	b := headless.New(0, headless.GPUConfig{FenceLatency: 2 * time.Millisecond})
	p := New(timer, b, Options{MaxFrames: 20, Logger: quietLogger()})

	require.NoError(t, p.Run(ctx))
	assert.Equal(t, uint64(20), p.Frames())
	assert.Equal(t, uint64(20), b.Frames())

	s := timer.Stats()
	assert.Greater(t, s.FenceTicks, uint64(0), "ticks are driven by presentation fences")
	assert.GreaterOrEqual(t, s.BootstrapTicks, uint64(1))
}

func TestPipeline_FenceFaultEndsRun(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var p *Pipeline
	timer, err := timing.New(ctx, timing.Options{
		Logger:       quietLogger(),
		OnFenceFault: func(err error) { p.FenceFault(err) },
	})
	require.NoError(t, err)
	defer timer.Stop()

	b := headless.New(0, headless.GPUConfig{FenceLatency: time.Millisecond, FailAtFrame: 3})
	p = New(timer, b, Options{Logger: quietLogger()})

	err = p.Run(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, headless.ErrDeviceLost)

	var fault *timing.FenceFault
	assert.ErrorAs(t, err, &fault)
	assert.GreaterOrEqual(t, p.Frames(), uint64(3))
}

func TestPipeline_CancelCleansUp(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	timer, err := timing.New(context.Background(), timing.Options{Logger: quietLogger()})
	require.NoError(t, err)
	defer timer.Stop()

	mock := &MockBackend{}
	p := New(timer, mock, Options{Title: "Test", Logger: quietLogger()})

	result := make(chan error, 1)
	go func() { result <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return mock.frameCount() >= 5 }, 2*time.Second, time.Millisecond)
	cancel()

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}

	mock.mu.Lock()
	defer mock.mu.Unlock()
	assert.True(t, mock.initialized)
	assert.True(t, mock.cleanedUp)
	assert.Equal(t, "Test", mock.config.Title)
	assert.Greater(t, mock.waits, 0, "fence waits are consumed by the timer")
	for i := 1; i < len(mock.frames); i++ {
		assert.Equal(t, mock.frames[i-1].Number+1, mock.frames[i].Number)
		assert.LessOrEqual(t, mock.frames[i-1].Elapsed, mock.frames[i].Elapsed)
	}
}

func TestPipeline_InitError(t *testing.T) {
	errNoDisplay := errors.New("no display")
	mock := &MockBackend{initErr: errNoDisplay}
	timer := newFakeTimer(true)

	err := New(timer, mock, Options{Logger: quietLogger()}).Run(context.Background())
	assert.ErrorIs(t, err, errNoDisplay)
	assert.False(t, mock.cleanedUp, "cleanup is skipped when init fails")
	assert.Zero(t, timer.subscribers())
}

func TestPipeline_RenderError(t *testing.T) {
	errLost := errors.New("surface lost")
	mock := &MockBackend{renderErr: errLost}
	timer := newFakeTimer(true)
	p := New(timer, mock, Options{Logger: quietLogger()})

	result := make(chan error, 1)
	go func() { result <- p.Run(context.Background()) }()

	require.Eventually(t, func() bool { return timer.subscribers() == 1 }, time.Second, time.Millisecond)
	timer.fire(time.Millisecond)

	select {
	case err := <-result:
		assert.ErrorIs(t, err, errLost)
	case <-time.After(time.Second):
		t.Fatal("Run did not return after render error")
	}
	assert.True(t, mock.cleanedUp)
	assert.Zero(t, timer.subscribers(), "handler is unsubscribed on exit")
}

func TestPipeline_InlineWhenTimerRunsInForeground(t *testing.T) {
	mock := &MockBackend{}
	timer := newFakeTimer(false)
	p := New(timer, mock, Options{MaxFrames: 3, Logger: quietLogger()})

	result := make(chan error, 1)
	go func() { result <- p.Run(context.Background()) }()

	require.Eventually(t, func() bool { return timer.subscribers() == 1 }, time.Second, time.Millisecond)
	for i := 1; i <= 5; i++ {
		timer.fire(time.Duration(i) * time.Millisecond)
		// Rendered synchronously inside the handler.
		assert.Equal(t, min(i, 3), mock.frameCount())
	}

	select {
	case err := <-result:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Run did not stop at MaxFrames")
	}
	assert.Equal(t, uint64(3), p.Frames())
	assert.Equal(t, 3, timer.actions)
}

func TestPipeline_TimerStopped(t *testing.T) {
	timer := newFakeTimer(true)
	close(timer.done)

	err := New(timer, &MockBackend{}, Options{Logger: quietLogger()}).Run(context.Background())
	assert.ErrorIs(t, err, timing.ErrTimerStopped)
}

func TestPipeline_ForwardCoalesces(t *testing.T) {
	p := New(newFakeTimer(true), &MockBackend{}, Options{Logger: quietLogger()})

	p.forward(1 * time.Millisecond)
	p.forward(2 * time.Millisecond)
	p.forward(3 * time.Millisecond)

	assert.Equal(t, uint64(2), p.Coalesced())
	assert.Equal(t, 3*time.Millisecond, <-p.ticks, "the newest tick wins")
}

// cancellingBackend cancels the run from inside Render and keeps rendering
// long enough for the timer to observe the cancellation too.
type cancellingBackend struct {
	MockBackend
	cancel context.CancelFunc
	at     uint64
}

func (c *cancellingBackend) Render(frame backend.Frame) (timing.FenceWaitAction, error) {
	if frame.Number == c.at {
		c.cancel()
		time.Sleep(20 * time.Millisecond)
	}
	return c.MockBackend.Render(frame)
}

func TestPipeline_CancelDuringRenderReturnsNil(t *testing.T) {
	for i := 0; i < 20; i++ {
		ctx, cancel := context.WithCancel(context.Background())
		timer, err := timing.New(ctx, timing.Options{
			BootstrapInterval: time.Millisecond,
			IdleInterval:      time.Millisecond,
			Logger:            quietLogger(),
		})
		require.NoError(t, err)

		b := &cancellingBackend{cancel: cancel, at: 3}
		err = New(timer, b, Options{Logger: quietLogger()}).Run(ctx)
		timer.Stop()
		cancel()

		require.NoError(t, err, "run %d", i)
		assert.True(t, b.cleanedUp)
	}
}

func TestPipeline_TimerStoppedWithContextCancelled(t *testing.T) {
	for i := 0; i < 50; i++ {
		timer := newFakeTimer(true)
		close(timer.done)
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		err := New(timer, &MockBackend{}, Options{Logger: quietLogger()}).Run(ctx)
		require.NoError(t, err, "run %d", i)
	}
}
