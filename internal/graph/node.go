// Package graph implements the node graph (§4.2): it owns node instances
// keyed by name, resolves late references, dispatches ready signals when a
// node publishes a frame, and tracks each node's declared modality bitmask.
package graph

import (
	"sync"
	"time"

	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// Node is the minimal contract every acquisition or processing node
// satisfies. Concrete nodes additionally implement one or more of
// modality.Analog, modality.MoCap, modality.Image, modality.Text.
type Node interface {
	Name() string
	Modalities() modality.Mask
	// Time is the reactor steady-clock timestamp of this node's most
	// recent publish.
	Time() time.Time
	// Request optionally processes an opaque JSON request, returning an
	// opaque JSON response. Nodes that don't accept requests return
	// (nil, false).
	Request(req []byte) ([]byte, bool)
}

// readySignal fans a node's ready event out to subscribers. Each slot is
// backed by a try-lock so a slow writer drops the next frame instead of
// queuing (the in-process backpressure rule, §4.4).
type readySignal struct {
	mu   sync.Mutex
	next int
	subs map[int]*readySlot
}

type readySlot struct {
	writing sync.Mutex
	fn      func(Node)
}

func newReadySignal() *readySignal {
	return &readySignal{subs: make(map[int]*readySlot)}
}

// Connect attaches fn to fire on every ready emission. The returned
// disconnect func is idempotent and deterministic, per the scoped-connection
// RAII design note (§9).
func (s *readySignal) Connect(fn func(Node)) (disconnect func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	slot := &readySlot{fn: fn}
	s.subs[id] = slot
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

// Emit fires every connected slot. A slot whose writer has not returned
// from the previous frame (try_lock fails) silently drops this frame —
// this is the in-process backpressure rule (§4.4).
func (s *readySignal) Emit(n Node) {
	s.mu.Lock()
	slots := make([]*readySlot, 0, len(s.subs))
	for _, sl := range s.subs {
		slots = append(slots, sl)
	}
	s.mu.Unlock()
	for _, sl := range slots {
		if sl.writing.TryLock() {
			func() {
				defer sl.writing.Unlock()
				sl.fn(n)
			}()
		}
	}
}

// channelsChangedSignal is a simpler fan-out used for the infrequent
// channel-layout-change notification.
type channelsChangedSignal struct {
	mu   sync.Mutex
	next int
	subs map[int]func(Node)
}

func newChannelsChangedSignal() *channelsChangedSignal {
	return &channelsChangedSignal{subs: make(map[int]func(Node))}
}

func (s *channelsChangedSignal) Connect(fn func(Node)) (disconnect func()) {
	s.mu.Lock()
	id := s.next
	s.next++
	s.subs[id] = fn
	s.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subs, id)
			s.mu.Unlock()
		})
	}
}

func (s *channelsChangedSignal) Emit(n Node) {
	s.mu.Lock()
	fns := make([]func(Node), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(n)
	}
}

// Base is embedded by concrete node implementations to get ready/
// channels_changed signal plumbing and Time() bookkeeping for free, the way
// dastard's AnySource is embedded by every concrete DataSource.
type Base struct {
	NodeName   string
	Mask       modality.Mask
	ready      *readySignal
	chChanged  *channelsChangedSignal
	mu         sync.Mutex
	lastPublish time.Time
}

// NewBase constructs the embeddable node base.
func NewBase(name string, mask modality.Mask) *Base {
	return &Base{NodeName: name, Mask: mask, ready: newReadySignal(), chChanged: newChannelsChangedSignal()}
}

func (b *Base) Name() string                { return b.NodeName }
func (b *Base) Modalities() modality.Mask   { return b.Mask }
func (b *Base) Request([]byte) ([]byte, bool) { return nil, false }

func (b *Base) Time() time.Time {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lastPublish
}

// Publish records the publish timestamp and fires ready. Must be called
// from the reactor goroutine.
func (b *Base) Publish(self Node, now time.Time) {
	b.mu.Lock()
	b.lastPublish = now
	b.mu.Unlock()
	b.ready.Emit(self)
}

// OnReady attaches a ready-signal listener.
func (b *Base) OnReady(fn func(Node)) (disconnect func()) { return b.ready.Connect(fn) }

// OnChannelsChanged attaches a channels_changed listener.
func (b *Base) OnChannelsChanged(fn func(Node)) (disconnect func()) { return b.chChanged.Connect(fn) }

// EmitChannelsChanged fires the channels_changed signal. Must be called
// from the reactor goroutine, concurrently with the channel layout actually
// changing (§3 invariant).
func (b *Base) EmitChannelsChanged(self Node) { b.chChanged.Emit(self) }
