package adapters

import (
	"sync"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
	"github.com/cajigaslab/Thalamus-sub000/internal/obstree"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

// AnalogOutputBackend is the vendor-specific task the output node drives,
// the AO-side counterpart of AnalogInputBackend.
type AnalogOutputBackend interface {
	ConfigureChannels(channels []ChannelSpec, sampleRate float64) error
	Start() error
	Stop() error
	// Write pushes one batch of channel-major samples to the task.
	Write(data [][]float64) error
}

// OutputNode is the analog-output adapter (§4.6 "DAQ analog output"). It
// implements modality.AnalogSink so capture replay (internal/rpcsvc/replay.go)
// and live RPC injection can drive it identically.
type OutputNode struct {
	*graph.Base
	r       *reactor.Reactor
	backend AnalogOutputBackend

	mu      sync.Mutex
	started bool
}

// NewOutputNode constructs an output node over backend, configuring
// channels and mirroring the per-channel mode into the observable tree at
// /nodes/<name>/channel_mode, mirroring NewInputNode.
func NewOutputNode(r *reactor.Reactor, name string, backend AnalogOutputBackend, channels []ChannelSpec, sampleRate float64, state *obstree.Dict) (*OutputNode, error) {
	if err := backend.ConfigureChannels(channels, sampleRate); err != nil {
		return nil, err
	}
	if state != nil {
		modes := obstree.NewList()
		for _, ch := range channels {
			d := obstree.NewDict()
			d.Set("name", obstree.String(ch.Name))
			d.Set("mode", obstree.String(channelModeString(ch.Mode)))
			modes.Append(obstree.FromDict(d))
		}
		state.Set("channel_mode", obstree.FromList(modes))
	}
	n := &OutputNode{r: r, backend: backend}
	n.Base = graph.NewBase(name, 0)
	return n, nil
}

// Start opens the output task.
func (n *OutputNode) Start() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.started {
		return nil
	}
	if err := n.backend.Start(); err != nil {
		return err
	}
	n.started = true
	return nil
}

// Stop closes the output task.
func (n *OutputNode) Stop() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if !n.started {
		return nil
	}
	n.started = false
	return n.backend.Stop()
}

// InjectAnalog satisfies modality.AnalogSink: it runs on the reactor
// goroutine per the concurrency model, so Write is only ever called
// single-threaded relative to Start/Stop.
func (n *OutputNode) InjectAnalog(f *modality.AnalogFrame) {
	if f == nil {
		return
	}
	_ = n.backend.Write(f.Data)
}
