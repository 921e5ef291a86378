package rpcsvc

import (
	"context"
	"encoding/json"

	"github.com/cajigaslab/Thalamus-sub000/internal/modality"
)

// injectFrame is the wire shape for one InjectAnalog message after the
// initial node-naming message (§4.4 "Inject-analog").
type injectFrame struct {
	Node             string      `json:"node,omitempty"`
	ChannelNames     []string    `json:"channel_names,omitempty"`
	Data             [][]float64 `json:"data,omitempty"`
	SampleIntervalNs []int64     `json:"sample_interval_ns,omitempty"`
	Close            bool        `json:"close,omitempty"`
}

// handleInjectAnalog implements InjectAnalog (§4.4): the first client
// message names the target node; each subsequent message is posted to the
// reactor, which calls the node's InjectAnalog synchronously before the
// server reads the next client message (back-pressure via half-duplex
// read/ack).
func (s *Service) handleInjectAnalog(c *Conn, e Envelope) {
	var first injectFrame
	if err := json.Unmarshal(e.Payload, &first); err != nil {
		sendError(c, "InjectAnalogAck", e.ID, err)
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	n, ok := resolveNode(ctx, s.Reactor, s.Graph, first.Node, modality.Analog)
	if !ok {
		return
	}
	sink, ok := n.(modality.AnalogSink)
	if !ok {
		sendError(c, "InjectAnalogAck", e.ID, errNotASink)
		return
	}

	for {
		resp, err := c.awaitResponse(ctx, e.ID)
		if err != nil {
			return
		}
		var fr injectFrame
		if err := json.Unmarshal(resp.Payload, &fr); err != nil {
			sendError(c, "InjectAnalogAck", e.ID, err)
			return
		}
		if fr.Close {
			return
		}
		s.Reactor.PostSync(func() {
			sink.InjectAnalog(&modality.AnalogFrame{
				ChannelNames:     fr.ChannelNames,
				Data:             fr.Data,
				SampleIntervalNs: fr.SampleIntervalNs,
			})
		})
		_ = c.Send(Envelope{Type: "InjectAnalogAck", ID: e.ID, Payload: marshalOrNil(map[string]bool{"ok": true})})
	}
}

var errNotASink = errNotSink{}

type errNotSink struct{}

func (errNotSink) Error() string { return "node does not accept injected analog frames" }
