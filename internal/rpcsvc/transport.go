// Package rpcsvc implements the bidirectional streaming RPC service (§4.4):
// analog/image/motion-capture subscriptions, the min/max downsampler, a
// spectrogram stream, injection endpoints, the state-mirror channel, the
// evaluation channel, notifications, replay, and the unary node-request
// surface. Every handler interacts with nodes only by posting to the
// reactor, following the discipline dastard's rpc_server.go already uses
// for its control RPCs.
package rpcsvc

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"sync/atomic"

	"github.com/gorilla/websocket"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/obstree"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

// Envelope is the newline-delimited JSON frame every websocket RPC speaks:
// {type, id, payload}. type names the RPC ("AnalogSubscribe", "Eval", ...);
// id multiplexes independent logical streams over one connection the same
// way the Eval promise table keys responses to requests (§4.4).
type Envelope struct {
	Type    string          `json:"type"`
	ID      uint64          `json:"id"`
	Payload json.RawMessage `json:"payload"`
}

// Conn wraps one websocket connection with a write mutex (gorilla/websocket
// connections are not safe for concurrent writers) and a dispatch table of
// per-id response channels, mirroring dastard's rpc_server.go single
// net/rpc codec per connection but generalized to many concurrent streams.
type Conn struct {
	ws *websocket.Conn

	writeMu sync.Mutex

	mu      sync.Mutex
	waiters map[uint64]chan Envelope

	nextID atomic.Uint64
}

// NewConn wraps an already-upgraded websocket connection.
func NewConn(ws *websocket.Conn) *Conn {
	return &Conn{ws: ws, waiters: make(map[uint64]chan Envelope)}
}

// Send writes one envelope. Safe for concurrent callers.
func (c *Conn) Send(e Envelope) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.ws.WriteJSON(e)
}

// NextID allocates a fresh, connection-unique stream id.
func (c *Conn) NextID() uint64 { return c.nextID.Add(1) }

// awaitResponse registers a one-shot waiter for id and blocks until either a
// matching envelope arrives, ctx is cancelled, or the connection's read loop
// shuts down.
func (c *Conn) awaitResponse(ctx context.Context, id uint64) (Envelope, error) {
	ch := make(chan Envelope, 1)
	c.mu.Lock()
	c.waiters[id] = ch
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiters, id)
		c.mu.Unlock()
	}()
	select {
	case e := <-ch:
		return e, nil
	case <-ctx.Done():
		return Envelope{}, ctx.Err()
	}
}

func (c *Conn) deliver(e Envelope) bool {
	c.mu.Lock()
	ch, ok := c.waiters[e.ID]
	c.mu.Unlock()
	if !ok {
		return false
	}
	select {
	case ch <- e:
	default:
	}
	return true
}

// ReadLoop drains incoming envelopes, routing each either to a registered
// waiter (client frames on an open inject-analog, events, notification or
// state-mirror stream's id) or to dispatch, which starts a new
// server-initiated stream for subscribe-style RPCs keyed by Type and hands
// EvalResponse envelopes to the Service's eval waiters.
func (c *Conn) ReadLoop(dispatch func(*Conn, Envelope)) {
	defer c.ws.Close()
	for {
		var e Envelope
		if err := c.ws.ReadJSON(&e); err != nil {
			return
		}
		if c.deliver(e) {
			continue
		}
		dispatch(c, e)
	}
}

// Publisher is the narrow interface internal/bus.Bus satisfies, kept local
// to rpcsvc so this package depends only on a method shape rather than the
// zeromq-backed bus package directly. A nil Publisher (the default) simply
// means no external collaborator is listening.
type Publisher interface {
	Publish(topic string, payload []byte)
}

// Service bundles the shared dependencies every RPC handler needs: the node
// graph, the reactor to post mutations onto, and the observable state tree
// mirrored over StateMirror. Bus, if set, receives a copy of every
// AnalogResponse this service sends to an AnalogSubscribe subscriber,
// topic-tagged by node name, so an external collaborator (the storage-writer process named in
// §1) can consume the same frames without its own subscription.
type Service struct {
	Graph   *graph.Graph
	Reactor *reactor.Reactor
	Tree    *obstree.Tree
	Bus     Publisher

	evalMu      sync.Mutex
	evalWaiters map[uint64]chan EvalResponse
	evalNext    atomic.Uint64

	eventMu        sync.Mutex
	eventObservers []EventObserver

	notifyMu  sync.Mutex
	notifySubs map[uint64]*Conn
}

// New constructs a Service bound to the given graph/reactor/state tree.
func New(g *graph.Graph, r *reactor.Reactor, tree *obstree.Tree) *Service {
	return &Service{Graph: g, Reactor: r, Tree: tree, evalWaiters: make(map[uint64]chan EvalResponse)}
}

// Dispatch is the Service's ReadLoop callback: it starts the appropriate
// handler goroutine for envelope e's Type.
func (s *Service) Dispatch(c *Conn, e Envelope) {
	switch e.Type {
	case "AnalogSubscribe":
		go s.handleAnalogSubscribe(c, e)
	case "Graph":
		go s.handleGraphDownsample(c, e)
	case "ChannelInfo":
		go s.handleChannelInfo(c, e)
	case "Spectrogram":
		go s.handleSpectrogram(c, e)
	case "ImageSubscribe":
		go s.handleImageSubscribe(c, e)
	case "MotionSubscribe":
		go s.handleMotionSubscribe(c, e)
	case "InjectAnalog":
		go s.handleInjectAnalog(c, e)
	case "Events":
		go s.handleEvents(c, e)
	case "StateMirror":
		go s.handleStateMirror(c, e)
	case "Eval":
		go s.handleEvalStart(c, e)
	case "EvalResponse":
		s.handleEvalResponse(e)
	case "Notification":
		go s.handleNotification(c, e)
	case "RemoteNode":
		go s.handleRemoteNode(c, e)
	case "Replay":
		go s.handleReplay(c, e)
	case "NodeRequest":
		go s.handleNodeRequest(c, e)
	default:
		log.Printf("rpcsvc: unknown request type %q", e.Type)
	}
}

// publishBus forwards payload to s.Bus under topic, if a bus is attached.
func (s *Service) publishBus(topic string, payload []byte) {
	if s.Bus != nil {
		s.Bus.Publish(topic, payload)
	}
}

// sendError writes a terminal envelope carrying {error: msg} on id.
func sendError(c *Conn, typ string, id uint64, err error) {
	payload, _ := json.Marshal(map[string]string{"error": err.Error()})
	_ = c.Send(Envelope{Type: typ, ID: id, Payload: payload})
}

func marshalOrNil(v interface{}) json.RawMessage {
	b, err := json.Marshal(v)
	if err != nil {
		return json.RawMessage("null")
	}
	return b
}

// NodeSelector is the common request shape naming a source node plus an
// optional channel filter (by index or by name), per §4.4/§6.
type NodeSelector struct {
	Node     string   `json:"node"`
	Channels []int    `json:"channels,omitempty"`
	Names    []string `json:"names,omitempty"`
}

func (sel NodeSelector) String() string {
	return fmt.Sprintf("NodeSelector{Node:%s}", sel.Node)
}
