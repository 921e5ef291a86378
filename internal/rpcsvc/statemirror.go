package rpcsvc

import (
	"context"
	"encoding/json"

	"github.com/cajigaslab/Thalamus-sub000/internal/obstree"
)

// mirrorWire is the JSON shape for an OutboundChange/InboundChange crossing
// the StateMirror stream (§4.1, §6 "StateMirror(stream ObservableChange) ->
// stream ObservableChange").
type mirrorWire struct {
	ID           uint64      `json:"id"`
	Acknowledged bool        `json:"acknowledged,omitempty"`
	Action       string      `json:"action,omitempty"`
	Address      string      `json:"address,omitempty"`
	Value        interface{} `json:"value,omitempty"`
}

func parseAction(s string) obstree.Action {
	if s == "Delete" {
		return obstree.ActionDelete
	}
	return obstree.ActionSet
}

// handleStateMirror implements StateMirror (§4.1, §4.4, §8 scenario 4): it
// attaches an obstree.Mirror to the service's tree, forwarding every
// locally initiated mutation as an outbound envelope and applying every
// inbound envelope (ack or peer-originated mutation) back into the mirror.
func (s *Service) handleStateMirror(c *Conn, e Envelope) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirror := obstree.NewMirror(s.Tree, func(oc obstree.OutboundChange) {
		wire := mirrorWire{ID: oc.ID, Action: oc.Action.String(), Address: oc.Address, Value: oc.Value}
		_ = c.Send(Envelope{Type: "StateMirror", ID: e.ID, Payload: marshalOrNil(wire)})
	})
	mirror.SetState(obstree.StateOpen)
	defer mirror.SetState(obstree.StateClosed)

	s.Tree.Recap(func(ev obstree.ChangeEvent) {
		wire := mirrorWire{Action: ev.Action.String(), Address: "['" + ev.Key + "']", Value: ev.Value.ToJSON()}
		_ = c.Send(Envelope{Type: "StateMirror", ID: e.ID, Payload: marshalOrNil(wire)})
	})

	for {
		resp, err := c.awaitResponse(ctx, e.ID)
		if err != nil {
			return
		}
		var wire mirrorWire
		if err := json.Unmarshal(resp.Payload, &wire); err != nil {
			continue
		}
		in := obstree.InboundChange{
			ID:           wire.ID,
			Acknowledged: wire.Acknowledged,
			Action:       parseAction(wire.Action),
			Address:      wire.Address,
			Value:        wire.Value,
		}
		_ = mirror.ApplyInbound(in)
	}
}
