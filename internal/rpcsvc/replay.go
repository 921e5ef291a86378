package rpcsvc

import (
	"context"
	"encoding/json"
	"os"

	"github.com/cajigaslab/Thalamus-sub000/internal/capture"
	"github.com/cajigaslab/Thalamus-sub000/internal/graph"
	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// ReplayRequest names the capture file to open and, optionally, the subset
// of recorded node names to replay (§6: "Replay(ReplayRequest{filename,
// nodes}) -> Empty"). An empty Nodes list replays every stream the file
// contains a matching live node for.
type ReplayRequest struct {
	Filename string   `json:"filename"`
	Nodes    []string `json:"nodes,omitempty"`
	Deflate  bool     `json:"deflate,omitempty"`
}

// handleReplay implements Replay (§4.4, §4.5): open the named capture
// file, build an injector per node present both in the file and in the
// live graph, then drive capture.Replay to step a virtual clock across
// every recorded slab in wire-time order.
func (s *Service) handleReplay(c *Conn, e Envelope) {
	var req ReplayRequest
	if err := json.Unmarshal(e.Payload, &req); err != nil {
		sendError(c, "Replay", e.ID, err)
		return
	}

	f, err := os.Open(req.Filename)
	if err != nil {
		sendError(c, "Replay", e.ID, err)
		return
	}
	defer f.Close()

	reader, err := capture.OpenReader(f, req.Deflate)
	if err != nil {
		sendError(c, "Replay", e.ID, err)
		return
	}

	wanted := make(map[string]bool, len(req.Nodes))
	for _, n := range req.Nodes {
		wanted[n] = true
	}

	injectors := make(map[string]capture.Injector)
	for _, slab := range reader.Slabs() {
		if _, done := injectors[slab.Node]; done {
			continue
		}
		if len(wanted) > 0 && !wanted[slab.Node] {
			continue
		}
		name := replayNodeName(slab.Node)
		n, ok := s.Graph.TryGetNode(name)
		if !ok {
			continue
		}
		injectors[slab.Node] = buildInjector(s, n)
	}

	if err := capture.Replay(context.Background(), reader, injectors); err != nil {
		sendError(c, "Replay", e.ID, err)
		return
	}
	_ = c.Send(Envelope{Type: "Replay", ID: e.ID, Payload: marshalOrNil(map[string]bool{"ok": true})})
}

// replayNodeName strips the "analog/" or "xsens/" group prefix a capture
// file stores node streams under (§4.4 "Replay") to recover the live graph
// node name.
func replayNodeName(streamName string) string {
	for _, prefix := range []string{"analog/", "xsens/"} {
		if len(streamName) > len(prefix) && streamName[:len(prefix)] == prefix {
			return streamName[len(prefix):]
		}
	}
	return streamName
}

// buildInjector returns the capture.Injector for n, dispatching to
// whichever sink interface n implements. A node implementing none is
// silently skipped, same as an out-of-range channel selection (§9).
func buildInjector(s *Service, n graph.Node) capture.Injector {
	if sink, ok := n.(modality.AnalogSink); ok {
		return func(slab capture.Slab) {
			s.Reactor.PostSync(func() {
				sink.InjectAnalog(&modality.AnalogFrame{Data: [][]float64{slab.Data}})
			})
		}
	}
	if sink, ok := n.(modality.MotionSink); ok {
		return func(slab capture.Slab) {
			segs := make([]modality.Segment, 0, len(slab.Data)/3)
			for i := 0; i+2 < len(slab.Data); i += 3 {
				segs = append(segs, modality.Segment{
					Position: modality.Vec3{X: slab.Data[i], Y: slab.Data[i+1], Z: slab.Data[i+2]},
				})
			}
			s.Reactor.PostSync(func() {
				sink.InjectMotion(&modality.MotionFrame{Segments: segs})
			})
		}
	}
	return func(capture.Slab) {}
}
