// Package reactor implements the single-threaded I/O reactor and fixed-size
// worker pool described by the concurrency model: all node mutation and
// signal emission happen on the reactor goroutine, while pure data
// transforms (deinterleave, FFT, compression) run on the worker pool.
//
// The discipline mirrors dastard's AnySource.Start/ProcessSegments pattern:
// a single owning goroutine drains work, and fan-out work is joined with a
// sync.WaitGroup rather than shared mutable state.
package reactor

import (
	"context"
	"sync"
	"time"
)

// Reactor is a single-goroutine cooperative scheduler. Every call that
// touches node state or fires a signal must go through Post or PostSync.
type Reactor struct {
	tasks    chan func()
	stopped  chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// New creates a Reactor with the given task queue depth and starts its loop.
func New(queueDepth int) *Reactor {
	r := &Reactor{
		tasks:   make(chan func(), queueDepth),
		stopped: make(chan struct{}),
	}
	r.wg.Add(1)
	go r.loop()
	return r
}

func (r *Reactor) loop() {
	defer r.wg.Done()
	for {
		select {
		case fn := <-r.tasks:
			fn()
		case <-r.stopped:
			// Drain anything already queued before exiting so posted
			// cleanup (buffer revokes, signal disconnects) still runs.
			for {
				select {
				case fn := <-r.tasks:
					fn()
				default:
					return
				}
			}
		}
	}
}

// Post enqueues fn to run on the reactor goroutine and returns immediately.
// Safe to call from any goroutine, including vendor callback threads, which
// per the concurrency model must never touch node state directly.
func (r *Reactor) Post(fn func()) {
	select {
	case r.tasks <- fn:
	case <-r.stopped:
	}
}

// PostSync enqueues fn and blocks until it has run. Used by callers (such as
// InjectAnalog) that must observe the mutation's effect before proceeding.
func (r *Reactor) PostSync(fn func()) {
	done := make(chan struct{})
	r.Post(func() {
		defer close(done)
		fn()
	})
	select {
	case <-done:
	case <-r.stopped:
	}
}

// Stopped reports the global soft-stop signal that subscriptions observe in
// order to emit a final last_message and return cleanly.
func (r *Reactor) Stopped() bool {
	select {
	case <-r.stopped:
		return true
	default:
		return false
	}
}

// StopSignal exposes the stop channel for select-based cancellation loops.
func (r *Reactor) StopSignal() <-chan struct{} {
	return r.stopped
}

// Stop requests the reactor to stop after draining queued work, and waits
// for the loop goroutine to exit.
func (r *Reactor) Stop() {
	r.stopOnce.Do(func() { close(r.stopped) })
	r.wg.Wait()
}

// Sleep1sOrCancel implements the 1-second resolution-loop poll shared by
// every subscription RPC: it waits one second, waking early if ctx is
// cancelled or the reactor is stopping. Returns true if the wait completed
// (i.e. the caller should retry resolution), false if it should give up.
func Sleep1sOrCancel(ctx context.Context, r *Reactor) bool {
	t := time.NewTimer(time.Second)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-r.StopSignal():
		return false
	}
}
