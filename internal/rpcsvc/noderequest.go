package rpcsvc

import (
	"encoding/json"
	"fmt"
	"log"
	"net"
	"net/rpc"
	"net/rpc/jsonrpc"

	"github.com/davecgh/go-spew/spew"
)

// NodeRequestPayload names the target node and carries an opaque,
// node-defined request body (§6: "NodeRequest(NodeRequest{node, request})
// -> NodeResponse"). The body is forwarded verbatim to the node's
// Request method.
type NodeRequestPayload struct {
	Node    string          `json:"node"`
	Request json.RawMessage `json:"request"`
}

// NodeResponsePayload wraps a node's raw response, or an error if the node
// was not found or rejected the request.
type NodeResponsePayload struct {
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
}

// handleNodeRequest implements the unary NodeRequest RPC over the
// websocket transport: resolve the named node and forward its payload to
// graph.Node.Request, replying once.
func (s *Service) handleNodeRequest(c *Conn, e Envelope) {
	var req NodeRequestPayload
	if err := json.Unmarshal(e.Payload, &req); err != nil {
		log.Printf("rpcsvc: malformed NodeRequest payload: %v\n%s", err, spew.Sdump(e))
		sendError(c, "NodeRequest", e.ID, err)
		return
	}
	n, ok := s.Graph.TryGetNode(req.Node)
	if !ok {
		_ = c.Send(Envelope{Type: "NodeRequest", ID: e.ID, Payload: marshalOrNil(NodeResponsePayload{Error: fmt.Sprintf("no such node %q", req.Node)})})
		return
	}
	var resp NodeResponsePayload
	s.Reactor.PostSync(func() {
		body, ok := n.Request(req.Request)
		if !ok {
			resp.Error = fmt.Sprintf("node %q does not accept requests", req.Node)
			return
		}
		resp.Response = body
	})
	_ = c.Send(Envelope{Type: "NodeRequest", ID: e.ID, Payload: marshalOrNil(resp)})
}

// Control is the net/rpc-registered object exposing NodeRequest over a
// unary net/rpc/jsonrpc control port, for parity with dastard's own
// rpc_server.go SourceControl surface alongside the websocket transport.
type Control struct {
	svc *Service
}

// NewControl wraps svc for net/rpc registration.
func NewControl(svc *Service) *Control { return &Control{svc: svc} }

// NodeRequest is the net/rpc method signature: args carry the node name and
// opaque request, reply receives the opaque response.
func (ctl *Control) NodeRequest(args *NodeRequestPayload, reply *NodeResponsePayload) error {
	n, ok := ctl.svc.Graph.TryGetNode(args.Node)
	if !ok {
		reply.Error = fmt.Sprintf("no such node %q", args.Node)
		return nil
	}
	ctl.svc.Reactor.PostSync(func() {
		body, ok := n.Request(args.Request)
		if !ok {
			reply.Error = fmt.Sprintf("node %q does not accept requests", args.Node)
			return
		}
		reply.Response = body
	})
	return nil
}

// RunControlServer serves Control over net/rpc/jsonrpc on addr, handling
// each connection's requests synchronously the same way dastard's
// RunRPCServer does so SourceControl never needs its own lock.
func RunControlServer(addr string, svc *Service) error {
	server := rpc.NewServer()
	if err := server.Register(NewControl(svc)); err != nil {
		return err
	}
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	go func() {
		for {
			conn, err := listener.Accept()
			if err != nil {
				log.Printf("rpcsvc: control listener stopped: %v", err)
				return
			}
			go func() {
				codec := jsonrpc.NewServerCodec(conn)
				for {
					if err := server.ServeRequest(codec); err != nil {
						log.Printf("rpcsvc: control connection closed: %v", err)
						return
					}
				}
			}()
		}
	}()
	return nil
}
