package graph

import (
	"sync"

	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

// Graph owns name -> node and name -> pending-resolution queue. All
// operations must execute on the reactor goroutine; off-thread callers must
// Post (§4.2).
type Graph struct {
	r        *reactor.Reactor
	mu       sync.Mutex
	nodes    map[string]Node
	typeName map[string]string
	pending  map[string][]func(Node)
}

// New creates an empty graph bound to the given reactor.
func New(r *reactor.Reactor) *Graph {
	return &Graph{
		r:        r,
		nodes:    make(map[string]Node),
		typeName: make(map[string]string),
		pending:  make(map[string][]func(Node)),
	}
}

// Insert adds (or replaces) a node under name, firing any queued
// get_node callbacks waiting on that name. Must run on the reactor.
func (g *Graph) Insert(typeName string, n Node) {
	name := n.Name()
	g.mu.Lock()
	g.nodes[name] = n
	g.typeName[name] = typeName
	waiters := g.pending[name]
	delete(g.pending, name)
	g.mu.Unlock()
	for _, cb := range waiters {
		cb(n)
	}
}

// Remove drops a node from the graph. Subsequent weak Refs to it resolve to
// nil (the node "expired between frames").
func (g *Graph) Remove(name string) {
	g.mu.Lock()
	delete(g.nodes, name)
	delete(g.typeName, name)
	g.mu.Unlock()
}

// GetNode invokes cb immediately with the node if present; otherwise it
// queues cb to fire once a node of that name is later inserted.
func (g *Graph) GetNode(name string, cb func(Node)) {
	g.mu.Lock()
	if n, ok := g.nodes[name]; ok {
		g.mu.Unlock()
		cb(n)
		return
	}
	g.pending[name] = append(g.pending[name], cb)
	g.mu.Unlock()
}

// TryGetNode is the non-queuing variant used by code that already knows it
// is willing to poll (e.g. the RPC resolution loop).
func (g *Graph) TryGetNode(name string) (Node, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	n, ok := g.nodes[name]
	return n, ok
}

// GetTypeName returns the registered type tag for name.
func (g *Graph) GetTypeName(name string) (string, bool) {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.typeName[name]
	return t, ok
}

// Modalities returns the modality bitmask for name, or 0 if absent.
func (g *Graph) Modalities(name string) modality.Mask {
	g.mu.Lock()
	defer g.mu.Unlock()
	if n, ok := g.nodes[name]; ok {
		return n.Modalities()
	}
	return 0
}

// Names returns a snapshot of every node name currently in the graph.
func (g *Graph) Names() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make([]string, 0, len(g.nodes))
	for name := range g.nodes {
		out = append(out, name)
	}
	return out
}

// Ref is a weak reference to a named node: it re-resolves against the graph
// on every use rather than pinning a pointer, matching the spec's "weak
// reference that may expire between frames" (§3) without relying on a
// runtime weak-pointer facility.
type Ref struct {
	g    *Graph
	name string
}

// NewRef creates a weak reference to name, valid whether or not the node
// currently exists.
func (g *Graph) NewRef(name string) Ref { return Ref{g: g, name: name} }

// Resolve returns the live node, or (nil, false) if it has expired.
func (r Ref) Resolve() (Node, bool) { return r.g.TryGetNode(r.name) }

func (r Ref) Name() string { return r.name }
