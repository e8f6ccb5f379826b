package timing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/valerio/go-framepace/framepace/stats"
)

// FenceWaitAction blocks until the GPU has finished presenting the most
// recently submitted frame. A non-nil error means the presentation state is
// unknown.
type FenceWaitAction func() error

// Phase is the lifecycle stage of a FrameTimer worker.
type Phase int32

const (
	PhaseNotStarted Phase = iota
	PhaseWaitingForSubscriber
	PhaseBootstrapping
	PhaseSteadyState
	PhaseStopped
)

func (p Phase) String() string {
	switch p {
	case PhaseNotStarted:
		return "not-started"
	case PhaseWaitingForSubscriber:
		return "waiting-for-subscriber"
	case PhaseBootstrapping:
		return "bootstrapping"
	case PhaseSteadyState:
		return "steady-state"
	case PhaseStopped:
		return "stopped"
	default:
		return fmt.Sprintf("Phase(%d)", int32(p))
	}
}

// Options configures a FrameTimer. Zero values select the defaults.
type Options struct {
	// BootstrapInterval paces ticks until the first fence wait action is set.
	BootstrapInterval time.Duration
	// IdleInterval paces ticks when no fence wait action is pending.
	IdleInterval time.Duration
	// FenceTimeout bounds each fence wait. Zero selects DefaultFenceTimeout;
	// a negative value waits without bound on the worker goroutine.
	FenceTimeout time.Duration
	Pacing       Pacing
	Logger       *slog.Logger

	// OnFenceFault is called once, from the worker goroutine, with the first
	// *FenceFault. The timer keeps ticking at idle cadence afterwards.
	OnFenceFault func(err error)
	// OnSubscriberFault is called for every tick handler panic.
	OnSubscriberFault func(fault *SubscriberFault)
}

func (o Options) withDefaults() Options {
	if o.BootstrapInterval <= 0 {
		o.BootstrapInterval = DefaultBootstrapInterval
	}
	if o.IdleInterval <= 0 {
		o.IdleInterval = DefaultIdleInterval
	}
	if o.FenceTimeout == 0 {
		o.FenceTimeout = DefaultFenceTimeout
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	return o
}

// FrameTimer produces render ticks on a dedicated goroutine. Until the
// rendering pipeline submits its first frame it ticks at the bootstrap
// cadence; afterwards each tick waits for the presentation fence installed
// by the pipeline, or for the idle cadence when none is pending.
//
// Ticks are delivered off the caller's goroutine (see RunsInBackground).
// If no subscriber ever registers, or no frame is ever submitted, the worker
// waits indefinitely in the corresponding phase.
type FrameTimer struct {
	opts      Options
	log       *slog.Logger
	ticks     *Broadcast
	stats     *stats.Counter
	bootstrap Limiter
	idle      Limiter

	mu      sync.Mutex
	pending FenceWaitAction
	fault   error

	phase       atomic.Int32
	start       time.Time
	lastElapsed time.Duration // worker only

	cancel context.CancelFunc
	done   chan struct{}
}

// New creates a FrameTimer and starts its worker. The worker exits when ctx
// is cancelled or Stop is called.
func New(ctx context.Context, opts Options) (*FrameTimer, error) {
	opts = opts.withDefaults()

	bootstrap, err := NewLimiter(opts.Pacing, opts.BootstrapInterval)
	if err != nil {
		return nil, fmt.Errorf("bootstrap limiter: %w", err)
	}
	idle, err := NewLimiter(opts.Pacing, opts.IdleInterval)
	if err != nil {
		stopLimiter(bootstrap)
		return nil, fmt.Errorf("idle limiter: %w", err)
	}

	ctx, cancel := context.WithCancel(ctx)
	t := &FrameTimer{
		opts:      opts,
		log:       opts.Logger,
		stats:     stats.New(),
		bootstrap: bootstrap,
		idle:      idle,
		start:     time.Now(),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	t.ticks = NewBroadcast(t.subscriberFault)

	t.log.Debug("Frame timer created",
		"bootstrap_interval", opts.BootstrapInterval,
		"idle_interval", opts.IdleInterval,
		"fence_timeout", opts.FenceTimeout,
		"pacing", opts.Pacing)

	go t.run(ctx)
	return t, nil
}

// Subscribe registers h to be called on every tick, starting with the next one.
func (t *FrameTimer) Subscribe(h TickHandler) SubscriptionID {
	return t.ticks.Subscribe(h)
}

// Unsubscribe removes a handler. It reports whether id was registered.
func (t *FrameTimer) Unsubscribe(id SubscriptionID) bool {
	return t.ticks.Unsubscribe(id)
}

// SetPresentFenceWaitAction installs the wait for the frame just submitted.
// It replaces any action the worker has not consumed yet. After a fence
// fault, actions are discarded.
func (t *FrameTimer) SetPresentFenceWaitAction(action FenceWaitAction) {
	t.mu.Lock()
	if t.fault != nil {
		t.mu.Unlock()
		if action != nil {
			t.stats.RecordDroppedAction()
		}
		t.log.Debug("Fence wait action discarded", "reason", "degraded")
		return
	}
	replaced := t.pending != nil && action != nil
	t.pending = action
	t.mu.Unlock()

	if replaced {
		t.stats.RecordDroppedAction()
	}
	t.log.Debug("Fence wait action set", "replaced", replaced)
}

// RunsInBackground reports that ticks are delivered on the timer's own
// goroutine; subscribers with thread affinity must redispatch.
func (t *FrameTimer) RunsInBackground() bool {
	return true
}

// Stop cancels the worker and waits for it to exit. It must not be called
// from a tick handler.
func (t *FrameTimer) Stop() {
	t.cancel()
	<-t.done
}

// Done is closed once the worker has exited.
func (t *FrameTimer) Done() <-chan struct{} {
	return t.done
}

func (t *FrameTimer) Phase() Phase {
	return Phase(t.phase.Load())
}

// Err returns the first fence fault, or nil.
func (t *FrameTimer) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.fault
}

func (t *FrameTimer) Stats() stats.Snapshot {
	return t.stats.Snapshot()
}

// Elapsed returns the time since the timer was created.
func (t *FrameTimer) Elapsed() time.Duration {
	return time.Since(t.start)
}

func (t *FrameTimer) run(ctx context.Context) {
	defer close(t.done)
	defer t.shutdown()

	t.log.Info("Frame timer loop started")

	if !t.waitForSubscriber(ctx) {
		return
	}
	if !t.runBootstrap(ctx) {
		return
	}

	t.setPhase(PhaseSteadyState)
	t.idle.Reset()
	for ctx.Err() == nil {
		src := stats.SourceIdle
		if action := t.takeAction(); action != nil {
			t.waitFence(action)
			t.idle.Reset()
			src = stats.SourceFence
		} else if err := t.idle.Wait(ctx); err != nil {
			return
		}

		if ctx.Err() != nil {
			return
		}
		t.tick(src)
	}
}

func (t *FrameTimer) waitForSubscriber(ctx context.Context) bool {
	t.setPhase(PhaseWaitingForSubscriber)
	for t.ticks.Len() == 0 {
		select {
		case <-ctx.Done():
			return false
		case <-t.ticks.Ready():
		}
	}
	return true
}

func (t *FrameTimer) runBootstrap(ctx context.Context) bool {
	t.setPhase(PhaseBootstrapping)
	t.bootstrap.Reset()
	for !t.hasPendingAction() {
		if err := t.bootstrap.Wait(ctx); err != nil || ctx.Err() != nil {
			return false
		}
		t.tick(stats.SourceBootstrap)
	}
	return ctx.Err() == nil
}

func (t *FrameTimer) hasPendingAction() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.pending != nil
}

func (t *FrameTimer) takeAction() FenceWaitAction {
	t.mu.Lock()
	defer t.mu.Unlock()
	action := t.pending
	t.pending = nil
	return action
}

func (t *FrameTimer) waitFence(action FenceWaitAction) {
	began := time.Now()
	err := t.invokeFence(action)
	t.stats.RecordFenceWait(time.Since(began))
	if err != nil {
		t.fenceFault(err)
	}
}

// invokeFence runs action, bounded by FenceTimeout when positive. A timed
// out action keeps running on its own goroutine until it returns.
func (t *FrameTimer) invokeFence(action FenceWaitAction) error {
	if t.opts.FenceTimeout < 0 {
		return callFence(action)
	}

	result := make(chan error, 1)
	go func() {
		result <- callFence(action)
	}()

	timeout := time.NewTimer(t.opts.FenceTimeout)
	defer timeout.Stop()

	select {
	case err := <-result:
		return err
	case <-timeout.C:
		return fmt.Errorf("%w after %v", ErrFenceTimeout, t.opts.FenceTimeout)
	}
}

func callFence(action FenceWaitAction) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("fence wait panicked: %v", r)
		}
	}()
	return action()
}

func (t *FrameTimer) fenceFault(err error) {
	fault := &FenceFault{Err: err}

	t.mu.Lock()
	first := t.fault == nil
	if first {
		t.fault = fault
	}
	discarded := t.pending != nil
	t.pending = nil
	t.mu.Unlock()

	t.stats.RecordFenceFault()
	if discarded {
		t.stats.RecordDroppedAction()
	}
	if !first {
		return
	}

	t.log.Error("Presentation fence wait failed, falling back to idle cadence", "error", err)
	if t.opts.OnFenceFault != nil {
		t.opts.OnFenceFault(fault)
	}
}

func (t *FrameTimer) subscriberFault(f *SubscriberFault) {
	t.stats.RecordSubscriberFault()
	t.log.Error("Tick subscriber panicked", "subscription", f.ID, "panic", f.Value)
	if t.opts.OnSubscriberFault != nil {
		t.opts.OnSubscriberFault(f)
	}
}

// tick snapshots the subscribers before reading the clock, so a handler
// never receives a tick stamped earlier than its registration.
func (t *FrameTimer) tick(src stats.Source) {
	subs := t.ticks.snapshot()
	elapsed := time.Since(t.start)
	if elapsed < t.lastElapsed {
		elapsed = t.lastElapsed
	}
	t.lastElapsed = elapsed

	t.stats.RecordTick(src, elapsed)
	t.ticks.fire(subs, elapsed)
}

func (t *FrameTimer) setPhase(p Phase) {
	t.phase.Store(int32(p))
	t.log.Debug("Frame timer phase", "phase", p)
}

func (t *FrameTimer) shutdown() {
	t.setPhase(PhaseStopped)
	stopLimiter(t.bootstrap)
	stopLimiter(t.idle)
	t.log.Info("Frame timer stopped", "ticks", t.stats.Snapshot().Ticks)
}

func stopLimiter(l Limiter) {
	if s, ok := l.(interface{ Stop() }); ok {
		s.Stop()
	}
}
