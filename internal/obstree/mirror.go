package obstree

import (
	"log"
	"sync"
	"sync/atomic"

	"github.com/davecgh/go-spew/spew"
)

// MirrorState is the state machine of the mirror stream (§4.1).
type MirrorState int

const (
	StateDisconnected MirrorState = iota
	StateConnecting
	StateOpen
	StateClosed
)

// OutboundChange is what the mirror writes to the peer for a locally
// initiated mutation.
type OutboundChange struct {
	ID      uint64
	Action  Action
	Address string
	Value   interface{} // serialized JSON value, nil for Delete
}

// InboundChange is what the mirror receives from the peer, either an ack
// for a prior outbound id or a fresh peer-initiated mutation.
type InboundChange struct {
	ID           uint64
	Acknowledged bool
	Action       Action
	Address      string
	Value        interface{}
}

// Mirror drives the bidirectional mirror protocol for a Tree: outbound
// writes are deferred until acknowledged, inbound changes are applied with
// FromRemote() so they do not re-echo.
type Mirror struct {
	tree      *Tree
	send      func(OutboundChange)
	nextID    uint64
	mu        sync.Mutex
	pending   map[uint64]func()
	state     atomic.Int32
	mirrorTID atomic.Int64 // goroutine-ish identity of the pinned mirror reader
}

// NewMirror attaches a mirror to tree. send is called for every locally
// initiated mutation once it has been assigned an id; the caller is
// responsible for actually writing it to the wire.
func NewMirror(tree *Tree, send func(OutboundChange)) *Mirror {
	m := &Mirror{tree: tree, send: send, pending: make(map[uint64]func())}
	m.state.Store(int32(StateDisconnected))
	SetHook(tree.Root, m.hook, m.onMirrorThread)
	return m
}

func (m *Mirror) State() MirrorState { return MirrorState(m.state.Load()) }

func (m *Mirror) SetState(s MirrorState) { m.state.Store(int32(s)) }

// BindThread records a per-connection token for the goroutine driving
// inbound reads. The token is only stored: onMirrorThread does not consult
// it, and ApplyInbound keeps its writes off the hook by passing
// FromRemote() instead.
func (m *Mirror) BindThread(token int64) {
	m.mirrorTID.Store(token)
}

func (m *Mirror) onMirrorThread() bool {
	// A goroutine cannot introspect "is this me"; inbound application
	// always happens through ApplyInbound which passes FromRemote()
	// explicitly, so this check always reports false, including for
	// writes made after BindThread.
	return false
}

func (m *Mirror) hook(action Action, address string, value Value, done func()) {
	id := atomic.AddUint64(&m.nextID, 1)
	m.mu.Lock()
	m.pending[id] = done
	m.mu.Unlock()

	var jv interface{}
	if action == ActionSet {
		jv = value.ToJSON()
	}
	m.send(OutboundChange{ID: id, Action: action, Address: address, Value: jv})
}

// ApplyInbound applies a change received from the peer. Acks resolve a
// pending local Set/Erase's done callback; fresh mutations are applied to
// the tree with FromRemote() so they do not re-enter the hook.
func (m *Mirror) ApplyInbound(in InboundChange) error {
	if in.Acknowledged {
		m.mu.Lock()
		done, ok := m.pending[in.ID]
		delete(m.pending, in.ID)
		m.mu.Unlock()
		if ok && done != nil {
			done()
		}
		return nil
	}

	var err error
	switch in.Action {
	case ActionSet:
		err = m.tree.Set(in.Address, FromJSON(in.Value), nil, FromRemote())
	case ActionDelete:
		err = m.tree.Erase(in.Address, nil, FromRemote())
	}
	if err != nil {
		log.Printf("obstree: mirror failed to apply inbound change: %v\n%s", err, spew.Sdump(in))
	}
	return err
}

// Ack is called by the peer-facing transport once it has durably applied an
// outbound change, producing the InboundChange the local side should feed
// back into ApplyInbound.
func Ack(id uint64) InboundChange {
	return InboundChange{ID: id, Acknowledged: true}
}
