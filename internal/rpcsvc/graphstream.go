package rpcsvc

import (
	"context"
	"encoding/json"
	"math"
	"sync"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// GraphRequest is AnalogSubscribe's selector plus a bin width (§4.4 "Graph
// (min/max downsampler)").
type GraphRequest struct {
	NodeSelector
	BinNs int64 `json:"bin_ns"`
}

// GraphResponse carries one min/max pair per completed bin, per channel.
type GraphResponse struct {
	Channel string    `json:"channel"`
	Begin   int       `json:"begin"`
	End     int       `json:"end"`
	Min     []float64 `json:"min"`
	Max     []float64 `json:"max"`
	Last    bool      `json:"last,omitempty"`
}

// binState tracks one channel's in-progress bin (§4.4): current time, bin
// end, and running min/max.
type binState struct {
	curTime int64
	binEnd  int64
	min     float64
	max     float64
	started bool
}

func (b *binState) reset(start, binNs int64) {
	b.curTime = start
	b.binEnd = start + binNs
	b.min = math.Inf(1)
	b.max = math.Inf(-1)
	b.started = false
}

// feed advances the bin state by one sample, returning a completed
// (min,max) pair and true when the bin closes.
func (b *binState) feed(v float64, intervalNs, binNs int64) (min, max float64, closed bool) {
	if !b.started {
		b.min, b.max = v, v
		b.started = true
	} else {
		if v < b.min {
			b.min = v
		}
		if v > b.max {
			b.max = v
		}
	}
	b.curTime += intervalNs
	if b.curTime >= b.binEnd {
		min, max = b.min, b.max
		b.binEnd += binNs
		b.min, b.max = math.Inf(1), math.Inf(-1)
		b.started = false
		return min, max, true
	}
	return 0, 0, false
}

// handleGraphDownsample implements the Graph RPC (§4.4, §8 scenario 6): per
// channel, maintain a running bin and emit (min,max) once enough samples
// have accumulated to close it.
func (s *Service) handleGraphDownsample(c *Conn, e Envelope) {
	var req GraphRequest
	if err := json.Unmarshal(e.Payload, &req); err != nil {
		sendError(c, "GraphResponse", e.ID, err)
		return
	}
	if req.BinNs <= 0 {
		sendError(c, "GraphResponse", e.ID, errInvalidBin)
		return
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n, ok := resolveNode(ctx, s.Reactor, s.Graph, req.Node, modality.Analog)
	if !ok {
		s.emitGraphLast(c, e.ID)
		return
	}
	an, ok := n.(modality.Analog)
	if !ok {
		s.emitGraphLast(c, e.ID)
		return
	}

	states := map[int]*binState{}
	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }
	disconnect := attachReady(n, func(graph.Node) {
		frame := an.AnalogFrame()
		if frame == nil {
			return
		}
		idx, ready := selectChannels(req.NodeSelector, frame)
		if !ready {
			return
		}
		for _, i := range idx {
			st, ok := states[i]
			if !ok {
				st = &binState{}
				st.reset(0, req.BinNs)
				states[i] = st
			}
			var mins, maxs []float64
			for _, v := range frame.Data[i] {
				if min, max, closed := st.feed(v, frame.SampleIntervalNs[i], req.BinNs); closed {
					mins = append(mins, min)
					maxs = append(maxs, max)
				}
			}
			if len(mins) == 0 {
				continue
			}
			resp := GraphResponse{Channel: frame.ChannelNames[i], Min: mins, Max: maxs}
			if err := c.Send(Envelope{Type: "GraphResponse", ID: e.ID, Payload: marshalOrNil(resp)}); err != nil {
				closeDone()
				return
			}
		}
	})
	defer disconnect()

	select {
	case <-done:
	case <-s.Reactor.StopSignal():
	}
	s.emitGraphLast(c, e.ID)
}

func (s *Service) emitGraphLast(c *Conn, id uint64) {
	_ = c.Send(Envelope{Type: "GraphResponse", ID: id, Payload: marshalOrNil(GraphResponse{Last: true})})
}

var errInvalidBin = errBinNs{}

type errBinNs struct{}

func (errBinNs) Error() string { return "bin_ns must be positive" }
