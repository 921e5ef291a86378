// Package adapters implements the reference hardware adapters named in
// §4.6: DAQ analog input/output, UDP motion-capture ingest, and a neural
// acquisition TCP client, each a graph.Node feeding its modality frames
// through the reactor the way the GenICam device does.
package adapters

import "sync"

// Turnstile is a monotonic ticket queue that serializes concurrent callers
// onto one resource (a shared TCP socket's command/response protocol) in
// strict FIFO order, the Go equivalent of
// `original_source/src/spikeglx_node.cpp`'s `CoTurnstile`: each caller
// draws a ticket and blocks until it is the current one, releasing the
// next ticket when its Turn ends. Factored out as a standalone primitive
// since alpha_omega/spikeglx/hexascope/ceci all need the same shape even
// though only one leaf driver is in scope here (§4.6 supplement).
type Turnstile struct {
	mu      sync.Mutex
	cond    *sync.Cond
	next    uint64
	current uint64
}

// NewTurnstile creates a ready-to-use turnstile.
func NewTurnstile() *Turnstile {
	t := &Turnstile{}
	t.cond = sync.NewCond(&t.mu)
	return t
}

// Turn represents one caller's exclusive slot. Done must be called exactly
// once to advance the turnstile and wake the next waiter.
type Turn struct {
	t      *Turnstile
	ticket uint64
	done   bool
}

// Wait draws a ticket and blocks until it is this caller's turn.
func (t *Turnstile) Wait() *Turn {
	t.mu.Lock()
	ticket := t.next
	t.next++
	for ticket != t.current {
		t.cond.Wait()
	}
	t.mu.Unlock()
	return &Turn{t: t, ticket: ticket}
}

// Done releases the turn, advancing the turnstile so the next ticket holder
// proceeds. Safe to call via defer; a second call is a no-op.
func (turn *Turn) Done() {
	if turn.done {
		return
	}
	turn.done = true
	t := turn.t
	t.mu.Lock()
	t.current++
	t.cond.Broadcast()
	t.mu.Unlock()
}
