package rpcsvc

import (
	"context"
	"encoding/json"
	"errors"
)

// EvalRequest is one server->client expression to evaluate (§4.4 "Eval"):
// the client embeds a scripting engine and returns the result keyed by ID.
type EvalRequest struct {
	ID   uint64 `json:"id"`
	Code string `json:"code"`
}

// EvalResponse is the client's reply to an EvalRequest, keyed by the same
// ID, delivered back through Service.evalWaiters the way a connection's
// awaitResponse table delivers any other keyed reply.
type EvalResponse struct {
	ID     uint64          `json:"id"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  string          `json:"error,omitempty"`
}

var errEvalClosed = errEval{}

type errEval struct{}

func (errEval) Error() string { return "eval stream closed before response arrived" }

// handleEvalStart implements the Eval stream (§4.4): the opening client
// message carries {code}; the server sends one EvalRequest for that code on
// the same connection, waits for the client's "EvalResponse" with the
// matching id (routed by Service.handleEvalResponse into the waiter callEval
// registers), and answers the opening message once with that response.
func (s *Service) handleEvalStart(c *Conn, e Envelope) {
	var first struct {
		Code string `json:"code"`
	}
	if err := json.Unmarshal(e.Payload, &first); err != nil {
		sendError(c, "Eval", e.ID, err)
		return
	}

	resp, err := s.callEval(context.Background(), c, first.Code)
	if err != nil {
		sendError(c, "Eval", e.ID, err)
		return
	}
	_ = c.Send(Envelope{Type: "Eval", ID: e.ID, Payload: marshalOrNil(resp)})
}

// callEval posts one EvalRequest to conn c and blocks for the matching
// EvalResponse, mirroring the promise-table pattern every other keyed
// stream in this package uses via Conn.awaitResponse, but keyed on the
// Service-wide evalWaiters map since eval calls aren't tied to one
// client-initiated envelope id.
func (s *Service) callEval(ctx context.Context, c *Conn, code string) (EvalResponse, error) {
	id := s.evalNext.Add(1)
	ch := make(chan EvalResponse, 1)
	s.evalMu.Lock()
	s.evalWaiters[id] = ch
	s.evalMu.Unlock()
	defer func() {
		s.evalMu.Lock()
		delete(s.evalWaiters, id)
		s.evalMu.Unlock()
	}()

	if err := c.Send(Envelope{Type: "EvalRequest", ID: id, Payload: marshalOrNil(EvalRequest{ID: id, Code: code})}); err != nil {
		return EvalResponse{}, err
	}

	select {
	case resp := <-ch:
		if resp.Error != "" {
			return resp, errors.New(resp.Error)
		}
		return resp, nil
	case <-ctx.Done():
		return EvalResponse{}, ctx.Err()
	}
}

// handleEvalResponse delivers an inbound EvalResponse to the waiter
// callEval registered for its ID. Unlike every other handler it is called
// synchronously from Dispatch, not spawned as a goroutine, since delivery
// itself never blocks.
func (s *Service) handleEvalResponse(e Envelope) {
	var resp EvalResponse
	if err := json.Unmarshal(e.Payload, &resp); err != nil {
		return
	}
	s.evalMu.Lock()
	ch, ok := s.evalWaiters[resp.ID]
	s.evalMu.Unlock()
	if !ok {
		return
	}
	select {
	case ch <- resp:
	default:
	}
}
