package rpcsvc

import (
	"context"
	"encoding/json"
)

// eventMsg is one client->server event (§4.4 "Events"): a timestamp plus an
// opaque payload, published on a local signal once posted to the reactor.
type eventMsg struct {
	TimeNs  int64  `json:"time_ns"`
	Payload []byte `json:"payload"`
	Close   bool   `json:"close,omitempty"`
}

// EventObserver is notified of every posted event; Service.OnEvent
// registers one (used by capture recording and test harnesses).
type EventObserver func(timeNs int64, payload []byte)

// handleEvents implements the Events RPC (§4.4): a client->server unary
// stream of events, each posted to the reactor and published locally.
func (s *Service) handleEvents(c *Conn, e Envelope) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	for {
		resp, err := c.awaitResponse(ctx, e.ID)
		if err != nil {
			return
		}
		var ev eventMsg
		if err := json.Unmarshal(resp.Payload, &ev); err != nil {
			sendError(c, "EventAck", e.ID, err)
			continue
		}
		if ev.Close {
			return
		}
		s.Reactor.Post(func() {
			s.emitEvent(ev.TimeNs, ev.Payload)
		})
		_ = c.Send(Envelope{Type: "EventAck", ID: e.ID, Payload: marshalOrNil(map[string]bool{"ok": true})})
	}
}

func (s *Service) emitEvent(timeNs int64, payload []byte) {
	s.eventMu.Lock()
	obs := append([]EventObserver(nil), s.eventObservers...)
	s.eventMu.Unlock()
	for _, o := range obs {
		o(timeNs, payload)
	}
}

// OnEvent registers fn to be called, on the reactor goroutine, for every
// event posted through the Events RPC.
func (s *Service) OnEvent(fn EventObserver) {
	s.eventMu.Lock()
	s.eventObservers = append(s.eventObservers, fn)
	s.eventMu.Unlock()
}
