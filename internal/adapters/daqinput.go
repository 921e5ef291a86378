package adapters

import (
	"context"
	"sync"
	"time"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
	"github.com/cajigaslab/Thalamus-sub000/internal/obstree"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

// ChannelMode selects whether a channel is created as a voltage or current
// input/output, mirroring `original_source/src/nidaq_node_windows.cpp`'s
// choice between `DAQmxCreateAIVoltageChan`/`DAQmxCreateAICurrentChan`
// (and the AO equivalents on the output side).
type ChannelMode int

const (
	ModeVoltage ChannelMode = iota
	ModeCurrent
)

// ChannelSpec names one physical channel and its mode.
type ChannelSpec struct {
	Name string
	Mode ChannelMode
}

// AnalogInputBackend is the vendor-specific task the input node drives.
// The real implementation loads the vendor's procedural ABI the same way
// internal/genicam/transport.go loads GenTL; that binding is out of scope
// here (§1: "vendor SDK kernels themselves" are an opaque external
// collaborator), so this interface is the seam a concrete backend plugs
// into.
type AnalogInputBackend interface {
	ConfigureChannels(channels []ChannelSpec, sampleRate float64) error
	Start() error
	Stop() error
	// Read blocks until one batch of samplesPerChannel samples has been
	// acquired for every configured channel, channel-major.
	Read(ctx context.Context, samplesPerChannel int) ([][]float64, error)
}

// InputNode is the analog-input adapter (§4.6 "DAQ analog input").
type InputNode struct {
	*graph.Base
	r        *reactor.Reactor
	backend  AnalogInputBackend
	channels []ChannelSpec
	sampleRate float64
	batchSize  int

	mu    sync.Mutex
	frame *modality.AnalogFrame

	cancel context.CancelFunc
	done   chan struct{}
}

// NewInputNode constructs an input node over backend, configuring channels
// and mirroring the per-channel mode into the observable tree at
// /nodes/<name>/channel_mode (§4.6 supplement).
func NewInputNode(r *reactor.Reactor, name string, backend AnalogInputBackend, channels []ChannelSpec, sampleRate float64, batchSize int, state *obstree.Dict) (*InputNode, error) {
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
	n := &InputNode{
		r: r, backend: backend, channels: channels, sampleRate: sampleRate, batchSize: batchSize,
		done: make(chan struct{}),
	}
	n.Base = graph.NewBase(name, modality.Analog)
	return n, nil
}

func channelModeString(m ChannelMode) string {
	if m == ModeCurrent {
		return "current"
	}
	return "voltage"
}

// Start launches the acquisition loop: block on backend.Read, then post the
// decoded frame to the reactor, following the same vendor-thread-never-
// touches-node-state discipline as internal/genicam.Device.eventPump.
func (n *InputNode) Start() {
	ctx, cancel := context.WithCancel(context.Background())
	n.cancel = cancel
	if err := n.backend.Start(); err != nil {
		close(n.done)
		return
	}
	go n.acquireLoop(ctx)
}

func (n *InputNode) acquireLoop(ctx context.Context) {
	defer close(n.done)
	intervalNs := int64(1e9 / n.sampleRate)
	for {
		data, err := n.backend.Read(ctx, n.batchSize)
		if err != nil {
			return
		}
		frame := &modality.AnalogFrame{
			ChannelNames:     channelNames(n.channels),
			Data:             data,
			SampleIntervalNs: repeatInterval(intervalNs, len(n.channels)),
		}
		n.r.Post(func() {
			n.mu.Lock()
			n.frame = frame
			n.mu.Unlock()
			n.Publish(n, time.Now())
		})
		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// Stop cancels acquisition and stops the backend task.
func (n *InputNode) Stop() {
	if n.cancel != nil {
		n.cancel()
	}
	<-n.done
	_ = n.backend.Stop()
}

// AnalogFrame satisfies modality.Analog.
func (n *InputNode) AnalogFrame() *modality.AnalogFrame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frame
}

func channelNames(channels []ChannelSpec) []string {
	names := make([]string, len(channels))
	for i, c := range channels {
		names[i] = c.Name
	}
	return names
}

func repeatInterval(intervalNs int64, n int) []int64 {
	out := make([]int64, n)
	for i := range out {
		out[i] = intervalNs
	}
	return out
}
