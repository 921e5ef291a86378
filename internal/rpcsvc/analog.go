package rpcsvc

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// Span is a non-owning view over a contiguous range of samples in a
// flattened AnalogResponse.Data vector (§3, §6).
type Span struct {
	Name  string `json:"name"`
	Begin int    `json:"begin"`
	End   int    `json:"end"`
}

// AnalogResponse is the wire shape for AnalogSubscribe, Graph, and
// ChannelInfo (§4.4).
type AnalogResponse struct {
	Data            []float64 `json:"data,omitempty"`
	Spans           []Span    `json:"spans"`
	SampleIntervals []int64   `json:"sample_intervals"`
	Last            bool      `json:"last,omitempty"`
}

// selectChannels resolves sel against frame's channel names, honoring
// "Channels" (index-based), "Names" (name-based), or neither (all
// channels). Per §9 Open Questions, an out-of-range index is silently
// skipped rather than erroring.
func selectChannels(sel NodeSelector, frame *modality.AnalogFrame) ([]int, bool) {
	if len(sel.Channels) == 0 && len(sel.Names) == 0 {
		idx := make([]int, frame.Nchan())
		for i := range idx {
			idx[i] = i
		}
		return idx, true
	}
	var idx []int
	if len(sel.Channels) > 0 {
		for _, c := range sel.Channels {
			if c >= 0 && c < frame.Nchan() {
				idx = append(idx, c)
			}
		}
		return idx, true
	}
	byName := make(map[string]int, len(frame.ChannelNames))
	for i, n := range frame.ChannelNames {
		byName[n] = i
	}
	for _, name := range sel.Names {
		i, ok := byName[name]
		if !ok {
			// Named channels not all resolved yet; defer this emission
			// (§4.4 "Analog subscribe").
			return nil, false
		}
		idx = append(idx, i)
	}
	return idx, true
}

func buildAnalogResponse(frame *modality.AnalogFrame, idx []int) AnalogResponse {
	resp := AnalogResponse{Spans: make([]Span, 0, len(idx)), SampleIntervals: make([]int64, 0, len(idx))}
	for _, i := range idx {
		begin := len(resp.Data)
		resp.Data = append(resp.Data, frame.Data[i]...)
		resp.Spans = append(resp.Spans, Span{Name: frame.ChannelNames[i], Begin: begin, End: len(resp.Data)})
		resp.SampleIntervals = append(resp.SampleIntervals, frame.SampleIntervalNs[i])
	}
	return resp
}

// handleAnalogSubscribe implements AnalogSubscribe (§4.4, §4.3 step "Analog
// subscribe"): resolve the source node, attach to ready, emit one
// AnalogResponse per frame, stream until cancellation.
func (s *Service) handleAnalogSubscribe(c *Conn, e Envelope) {
	var sel NodeSelector
	if err := json.Unmarshal(e.Payload, &sel); err != nil {
		sendError(c, "AnalogResponse", e.ID, err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, ok := resolveNode(ctx, s.Reactor, s.Graph, sel.Node, modality.Analog)
	if !ok {
		s.emitLast(c, "AnalogResponse", e.ID)
		return
	}
	an, ok := n.(modality.Analog)
	if !ok {
		s.emitLast(c, "AnalogResponse", e.ID)
		return
	}

	done := make(chan struct{})
	var closeOnce sync.Once
	closeDone := func() { closeOnce.Do(func() { close(done) }) }
	disconnect := attachReady(n, func(graph.Node) {
		frame := an.AnalogFrame()
		if frame == nil {
			return
		}
		idx, ready := selectChannels(sel, frame)
		if !ready {
			return
		}
		resp := buildAnalogResponse(frame, idx)
		payload := marshalOrNil(resp)
		s.publishBus(sel.Node, payload)
		if err := c.Send(Envelope{Type: "AnalogResponse", ID: e.ID, Payload: payload}); err != nil {
			closeDone()
		}
	})
	defer disconnect()

	select {
	case <-done:
	case <-s.Reactor.StopSignal():
	}
	s.emitLast(c, "AnalogResponse", e.ID)
}

func (s *Service) emitLast(c *Conn, typ string, id uint64) {
	resp := AnalogResponse{Last: true}
	_ = c.Send(Envelope{Type: typ, ID: id, Payload: marshalOrNil(resp)})
}

// handleChannelInfo implements ChannelInfo (§4.4): emits only when
// channels_changed fires, listing names and sample intervals.
func (s *Service) handleChannelInfo(c *Conn, e Envelope) {
	var sel NodeSelector
	if err := json.Unmarshal(e.Payload, &sel); err != nil {
		sendError(c, "AnalogResponse", e.ID, err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	n, ok := resolveNode(ctx, s.Reactor, s.Graph, sel.Node, modality.Analog)
	if !ok {
		s.emitLast(c, "AnalogResponse", e.ID)
		return
	}
	an, ok := n.(modality.Analog)
	if !ok {
		s.emitLast(c, "AnalogResponse", e.ID)
		return
	}

	emit := func(graph.Node) {
		frame := an.AnalogFrame()
		if frame == nil {
			return
		}
		idx := make([]int, frame.Nchan())
		for i := range idx {
			idx[i] = i
		}
		resp := buildAnalogResponse(frame, idx)
		resp.Data = nil
		_ = c.Send(Envelope{Type: "AnalogResponse", ID: e.ID, Payload: marshalOrNil(resp)})
	}

	disconnect := attachChannelsChanged(n, emit)
	defer disconnect()
	// Recap the current layout once at attach time.
	emit(n)

	<-s.Reactor.StopSignal()
	s.emitLast(c, "AnalogResponse", e.ID)
}
