package rpcsvc

import (
	"context"
)

// Notification is a server->client advisory message (§4.4, §6): Info
// notifications are logged only, Warning and Error notifications are
// pushed to every attached Notification stream.
type Notification struct {
	Severity string `json:"severity"` // "Info", "Warning", "Error"
	Title    string `json:"title"`
	Message  string `json:"message"`
}

// handleNotification implements the Notification stream (§4.4): the
// connection registers interest by opening the stream, and receives every
// Warning/Error notification raised anywhere in the process until the
// client closes the connection. Per §4.1's state-machine note, a peer is
// only considered "ready" once both this stream and StateMirror are
// attached; callers coordinating that readiness do so by waiting on both
// handlers having run at least once, which is left to the client driving
// connection setup rather than enforced here.
func (s *Service) handleNotification(c *Conn, e Envelope) {
	s.notifyMu.Lock()
	s.notifySubs[e.ID] = c
	s.notifyMu.Unlock()
	defer func() {
		s.notifyMu.Lock()
		delete(s.notifySubs, e.ID)
		s.notifyMu.Unlock()
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// The stream is otherwise server-initiated only; block here until the
	// client closes so the deferred unsubscribe above runs at the right
	// time. A client that ever sends on this stream can use it to
	// acknowledge receipt, though nothing currently requires it.
	for {
		if _, err := c.awaitResponse(ctx, e.ID); err != nil {
			return
		}
	}
}

// Notify broadcasts n to every attached Notification stream. Info-severity
// notifications are dropped on the wire (log-only, §6); callers wanting
// those logged should do so themselves before calling Notify.
func (s *Service) Notify(n Notification) {
	if n.Severity != "Warning" && n.Severity != "Error" {
		return
	}
	s.notifyMu.Lock()
	subs := make([]*Conn, 0, len(s.notifySubs))
	ids := make([]uint64, 0, len(s.notifySubs))
	for id, c := range s.notifySubs {
		subs = append(subs, c)
		ids = append(ids, id)
	}
	s.notifyMu.Unlock()
	for i, c := range subs {
		_ = c.Send(Envelope{Type: "Notification", ID: ids[i], Payload: marshalOrNil(n)})
	}
}
