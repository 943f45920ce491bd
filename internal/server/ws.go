package server

import (
	"log/slog"
	"net/http"

	"github.com/coder/websocket"
)

// WSHandler serves the event protocol over a WebSocket. Each binary message
// stream carries the same framed events as the TCP transport, so the handler
// adapts the socket to net.Conn and reuses ServeConn.
func (s *Server) WSHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := websocket.Accept(w, r, nil)
		if err != nil {
			slog.Debug("websocket accept failed", "remote", r.RemoteAddr, "err", err)
			return
		}
		ctx := r.Context()
		s.ServeConn(ctx, websocket.NetConn(ctx, c, websocket.MessageBinary))
	})
}
