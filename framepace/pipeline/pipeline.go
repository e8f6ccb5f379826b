// Package pipeline drives a presentation backend from a FrameTimer.
//
// Ticks arrive on the timer's goroutine; the pipeline redispatches them to
// the goroutine calling Run, renders there, and hands the backend's fence
// wait back to the timer, which closes the loop:
//
//	tick -> Render -> SetPresentFenceWaitAction -> fence wait -> tick
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/valerio/go-framepace/framepace/backend"
	"github.com/valerio/go-framepace/framepace/stats"
	"github.com/valerio/go-framepace/framepace/timing"
)

// Timer is the part of timing.FrameTimer the pipeline depends on.
type Timer interface {
	Subscribe(h timing.TickHandler) timing.SubscriptionID
	Unsubscribe(id timing.SubscriptionID) bool
	SetPresentFenceWaitAction(action timing.FenceWaitAction)
	RunsInBackground() bool
	Done() <-chan struct{}
	Stats() stats.Snapshot
}

type Options struct {
	Title     string
	RefreshHz float64
	MaxFrames uint64 // 0 = unlimited
	Logger    *slog.Logger
}

type Pipeline struct {
	timer   Timer
	backend backend.Backend
	opts    Options
	log     *slog.Logger

	ticks  chan time.Duration
	quit   chan struct{}
	faults chan error

	frames    atomic.Uint64
	coalesced atomic.Uint64
}

// New wires b to timer. Pass OnFenceFault of the timer's options to
// Pipeline.FenceFault so that a broken fence ends Run with an error.
func New(timer Timer, b backend.Backend, opts Options) *Pipeline {
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Pipeline{
		timer:   timer,
		backend: b,
		opts:    opts,
		log:     opts.Logger,
		ticks:   make(chan time.Duration, 1),
		quit:    make(chan struct{}, 1),
		faults:  make(chan error, 1),
	}
}

// FenceFault reports a fence fault from the timer. Safe to call from any goroutine.
func (p *Pipeline) FenceFault(err error) {
	select {
	case p.faults <- err:
	default:
	}
}

// Run initialises the backend and renders one frame per tick until ctx is
// done, the backend quits, MaxFrames frames were rendered, or a fence
// fault is reported. It must be called from the goroutine the backend
// expects to render on.
func (p *Pipeline) Run(ctx context.Context) (err error) {
	err = p.backend.Init(backend.BackendConfig{
		Title:     p.opts.Title,
		RefreshHz: p.opts.RefreshHz,
		Callbacks: backend.BackendCallbacks{
			OnQuit:         p.requestQuit,
			OnDebugMessage: func(msg string) { p.log.Debug("Backend message", "message", msg) },
		},
	})
	if err != nil {
		return fmt.Errorf("init backend: %w", err)
	}
	defer func() {
		if cerr := p.backend.Cleanup(); cerr != nil {
			err = errors.Join(err, fmt.Errorf("cleanup backend: %w", cerr))
		}
	}()

	handler := p.forward
	if !p.timer.RunsInBackground() {
		// Ticks already arrive on the rendering goroutine.
		handler = p.renderInline
	}
	id := p.timer.Subscribe(handler)
	defer p.timer.Unsubscribe(id)

	p.log.Info("Render pipeline started", "max_frames", p.opts.MaxFrames)

	for {
		select {
		case <-ctx.Done():
			p.log.Info("Render pipeline cancelled", "frames", p.frames.Load())
			return nil
		case <-p.quit:
			p.log.Info("Render pipeline finished", "frames", p.frames.Load(), "coalesced", p.coalesced.Load())
			return nil
		case ferr := <-p.faults:
			return fmt.Errorf("presentation failed after %d frames: %w", p.frames.Load(), ferr)
		case <-p.timer.Done():
			// A timer sharing ctx stops together with it.
			if ctx.Err() != nil {
				p.log.Info("Render pipeline cancelled", "frames", p.frames.Load())
				return nil
			}
			return timing.ErrTimerStopped
		case elapsed := <-p.ticks:
			done, err := p.renderFrame(elapsed)
			if err != nil {
				return err
			}
			if done {
				p.log.Info("Render pipeline finished", "frames", p.frames.Load(), "coalesced", p.coalesced.Load())
				return nil
			}
		}
	}
}

// renderFrame renders one frame and reports whether MaxFrames was reached.
func (p *Pipeline) renderFrame(elapsed time.Duration) (bool, error) {
	if p.maxReached() {
		return true, nil
	}
	n := p.frames.Add(1)
	frame := backend.Frame{Number: n, Elapsed: elapsed, Stats: p.timer.Stats()}

	wait, err := p.backend.Render(frame)
	if err != nil {
		return false, fmt.Errorf("render frame %d: %w", n, err)
	}
	if wait != nil {
		p.timer.SetPresentFenceWaitAction(wait)
	}
	return p.maxReached(), nil
}

func (p *Pipeline) maxReached() bool {
	return p.opts.MaxFrames > 0 && p.frames.Load() >= p.opts.MaxFrames
}

// forward runs on the timer goroutine. A tick arriving while the previous
// one has not been rendered yet is coalesced into it.
func (p *Pipeline) forward(elapsed time.Duration) {
	select {
	case p.ticks <- elapsed:
		return
	default:
	}

	select {
	case <-p.ticks:
		p.coalesced.Add(1)
	default:
	}
	select {
	case p.ticks <- elapsed:
	default:
	}
}

func (p *Pipeline) renderInline(elapsed time.Duration) {
	done, err := p.renderFrame(elapsed)
	if err != nil {
		p.FenceFault(err)
		return
	}
	if done {
		p.requestQuit()
	}
}

func (p *Pipeline) requestQuit() {
	select {
	case p.quit <- struct{}{}:
	default:
	}
}

// Frames returns the number of frames rendered.
func (p *Pipeline) Frames() uint64 {
	return p.frames.Load()
}

// Coalesced returns the number of ticks merged into a later one because
// rendering had not caught up.
func (p *Pipeline) Coalesced() uint64 {
	return p.coalesced.Load()
}
