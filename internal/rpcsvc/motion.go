package rpcsvc

import (
	"context"
	"encoding/json"

	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// MotionResponse is the wire shape for MotionSubscribe (§4.4): per segment,
// id/position/quaternion, plus the frame's pose name.
type MotionResponse struct {
	PoseName string            `json:"pose_name"`
	Segments []modality.Segment `json:"segments"`
	Last     bool              `json:"last,omitempty"`
}

// handleMotionSubscribe implements MotionSubscribe (§4.4).
func (s *Service) handleMotionSubscribe(c *Conn, e Envelope) {
	var sel NodeSelector
	if err := json.Unmarshal(e.Payload, &sel); err != nil {
		sendError(c, "MotionResponse", e.ID, err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n, ok := resolveNode(ctx, s.Reactor, s.Graph, sel.Node, modality.MotionCapture)
	if !ok {
		s.emitMotionLast(c, e.ID)
		return
	}
	mc, ok := n.(modality.MoCap)
	if !ok {
		s.emitMotionLast(c, e.ID)
		return
	}

	done := make(chan struct{})
	disconnect := attachReady(n, func(graph.Node) {
		frame := mc.MotionFrame()
		if frame == nil {
			return
		}
		resp := MotionResponse{PoseName: frame.PoseName, Segments: frame.Segments}
		if err := c.Send(Envelope{Type: "MotionResponse", ID: e.ID, Payload: marshalOrNil(resp)}); err != nil {
			select {
			case <-done:
			default:
				close(done)
			}
		}
	})
	defer disconnect()

	select {
	case <-done:
	case <-s.Reactor.StopSignal():
	}
	s.emitMotionLast(c, e.ID)
}

func (s *Service) emitMotionLast(c *Conn, id uint64) {
	_ = c.Send(Envelope{Type: "MotionResponse", ID: id, Payload: marshalOrNil(MotionResponse{Last: true})})
}
