package rpcsvc

import (
	"log"
	"net/http"

	"github.com/gorilla/websocket"
)

// upgrader accepts any origin: thalamus's streaming transport is consumed
// by trusted in-process and same-host UI clients, not arbitrary browsers,
// mirroring dastard's rpc_server.go which likewise does not gate callers by
// origin.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Handler upgrades every incoming HTTP request on the streaming listen
// address to a websocket connection and runs its ReadLoop against s until
// the peer disconnects, one goroutine per connection.
func (s *Service) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ws, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Printf("rpcsvc: upgrade failed: %v", err)
			return
		}
		conn := NewConn(ws)
		conn.ReadLoop(s.Dispatch)
	})
}

// ListenAndServe binds addr and serves the websocket RPC surface until the
// process exits or the listener fails, the streaming counterpart to
// RunControlServer's unary net/rpc/jsonrpc port.
func (s *Service) ListenAndServe(addr string) error {
	return http.ListenAndServe(addr, s.Handler())
}
