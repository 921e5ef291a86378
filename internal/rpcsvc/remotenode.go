package rpcsvc

import (
	"context"
	"encoding/json"
	"time"
)

// remoteNodeRequest is the single request shape the RemoteNode umbrella
// stream accepts: a NodeSelector naming the source, plus an optional ping
// used purely for liveness.
type remoteNodeRequest struct {
	NodeSelector
	Ping bool `json:"ping,omitempty"`
}

type remoteNodeResponse struct {
	AnalogResponse
	Pong bool `json:"pong,omitempty"`
}

// handleRemoteNode implements RemoteNode (§4.4): a convenience stream that
// wraps AnalogSubscribe with an application-level ping/pong so a client can
// detect a stalled connection without a dedicated heartbeat RPC. It shares
// subscription setup with handleAnalogSubscribe rather than duplicating the
// resolve/attach/select pipeline.
func (s *Service) handleRemoteNode(c *Conn, e Envelope) {
	var first remoteNodeRequest
	if err := json.Unmarshal(e.Payload, &first); err != nil {
		sendError(c, "RemoteNode", e.ID, err)
		return
	}
	if first.Ping {
		_ = c.Send(Envelope{Type: "RemoteNode", ID: e.ID, Payload: marshalOrNil(remoteNodeResponse{Pong: true})})
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if c.Send(Envelope{Type: "RemoteNode", ID: e.ID, Payload: marshalOrNil(remoteNodeResponse{Pong: true})}) != nil {
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	s.handleAnalogSubscribe(c, Envelope{Type: "AnalogSubscribe", ID: e.ID, Payload: marshalOrNil(first.NodeSelector)})
}
