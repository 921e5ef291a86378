package rpcsvc

import (
	"context"
	"log"

	"github.com/google/uuid"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

// resolveNode implements the shared resolution loop (§4.4): poll once per
// second for a node named name with the required modality, giving up if ctx
// is cancelled or the reactor is stopping. Each call is tagged with a fresh
// subscription id so its resolve/give-up outcome can be correlated in logs
// across the (possibly many) 1s polling attempts a slow-to-appear producer
// causes.
func resolveNode(ctx context.Context, r *reactor.Reactor, g *graph.Graph, name string, want modality.Mask) (graph.Node, bool) {
	subID := uuid.NewString()
	for {
		if n, ok := g.TryGetNode(name); ok && n.Modalities().Has(want) {
			return n, true
		}
		if !reactor.Sleep1sOrCancel(ctx, r) {
			log.Printf("rpcsvc: subscription %s gave up resolving node %q", subID, name)
			return nil, false
		}
	}
}

// attachReady connects fn to node n's ready signal if n exposes OnReady
// (every graph.Base-embedding node does), returning a disconnect func.
// The listener is attached to n itself; removing n from the graph does not
// disconnect it.
func attachReady(n graph.Node, fn func(graph.Node)) (disconnect func()) {
	type readyAttacher interface {
		OnReady(func(graph.Node)) func()
	}
	if ra, ok := n.(readyAttacher); ok {
		return ra.OnReady(fn)
	}
	return func() {}
}

// attachChannelsChanged connects fn to node n's channels_changed signal, if
// exposed.
func attachChannelsChanged(n graph.Node, fn func(graph.Node)) (disconnect func()) {
	type chAttacher interface {
		OnChannelsChanged(func(graph.Node)) func()
	}
	if ca, ok := n.(chAttacher); ok {
		return ca.OnChannelsChanged(fn)
	}
	return func() {}
}
