package genicam

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
	"github.com/cajigaslab/Thalamus-sub000/internal/obstree"
	"github.com/cajigaslab/Thalamus-sub000/internal/reactor"
)

// Node is a graph.Node wrapping one opened GenICam device: it publishes
// modality.Image frames and, alongside them, a one-channel modality.Analog
// stream carrying the measured framerate (§4.3 "Framerate observation"), and
// exposes register read/write over Request, matching dastard's pattern of a
// single concrete DataSource per hardware family embedding a shared base
// (§4.2, §4.3).
type Node struct {
	*graph.Base

	dev *Device

	mu          sync.Mutex
	frame       *modality.ImageFrame
	fpsInterval int64 // declared AcquisitionFrameRate period, nanoseconds

	state *obstree.Dict
}

// NewNode constructs a GenICam acquisition node named name, backed by dev,
// publishing through r. state is the node's subtree under /nodes/<name>,
// used to mirror register reads to connected UIs (§4.1 supplement).
func NewNode(r *reactor.Reactor, name string, dev *Device, state *obstree.Dict) *Node {
	n := &Node{
		Base:  graph.NewBase(name, modality.Image|modality.Analog),
		dev:   dev,
		state: state,
	}
	if rate, err := dev.Table().Get("AcquisitionFrameRate"); err == nil && rate > 0 {
		n.fpsInterval = int64(1e9 / rate)
	}
	return n
}

// Start wires the device's frame delivery into this node's publish/ready
// cycle. Must run on the reactor goroutine (the same one Device.eventPump
// posts its callback onto).
func (n *Node) Start() {
	n.dev.onFrame = func(f *modality.ImageFrame, arrived time.Time) {
		n.mu.Lock()
		n.frame = f
		n.mu.Unlock()
		n.state.Set("fps", obstree.Double(n.dev.FPS()))
		n.Publish(n, arrived)
	}
}

// ImageFrame satisfies modality.Image: the most recently delivered frame.
func (n *Node) ImageFrame() *modality.ImageFrame {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.frame
}

// AnalogFrame satisfies modality.Analog: a single "framerate" channel whose
// sample interval is the declared AcquisitionFrameRate period and whose
// value is the measured framerate over the trailing one-second window of
// frame arrivals (§4.3 "Framerate observation").
func (n *Node) AnalogFrame() *modality.AnalogFrame {
	n.mu.Lock()
	interval := n.fpsInterval
	n.mu.Unlock()
	return &modality.AnalogFrame{
		ChannelNames:     []string{"framerate"},
		Data:             [][]float64{{n.dev.FPS()}},
		SampleIntervalNs: []int64{interval},
	}
}

// registerRequest is the JSON shape accepted by Request for register get/set.
type registerRequest struct {
	Op     string  `json:"op"` // "get" | "set" | "set_symbolic"
	Name   string  `json:"name"`
	Value  float64 `json:"value,omitempty"`
	Symbol string  `json:"symbol,omitempty"`
}

type registerResponse struct {
	Value float64 `json:"value,omitempty"`
	Error string  `json:"error,omitempty"`
}

// Request implements graph.Node's opaque request hook for direct register
// access (§4.3 step 3), the shape the RPC service's NodeRequest forwards
// into. Must run on the reactor goroutine since it touches the register
// table's formula cache.
func (n *Node) Request(req []byte) ([]byte, bool) {
	var r registerRequest
	if err := json.Unmarshal(req, &r); err != nil {
		return mustJSON(registerResponse{Error: err.Error()}), true
	}
	switch r.Op {
	case "get":
		v, err := n.dev.Table().Get(r.Name)
		if err != nil {
			return mustJSON(registerResponse{Error: err.Error()}), true
		}
		return mustJSON(registerResponse{Value: v}), true
	case "set":
		if err := n.dev.Table().Set(r.Name, r.Value); err != nil {
			return mustJSON(registerResponse{Error: err.Error()}), true
		}
		return mustJSON(registerResponse{}), true
	case "set_symbolic":
		if err := n.dev.Table().SetSymbolic(r.Name, r.Symbol); err != nil {
			return mustJSON(registerResponse{Error: err.Error()}), true
		}
		return mustJSON(registerResponse{}), true
	default:
		return mustJSON(registerResponse{Error: "unknown op " + r.Op}), true
	}
}

func mustJSON(v interface{}) []byte {
	b, _ := json.Marshal(v)
	return b
}
