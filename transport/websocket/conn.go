// Package websocket adapts gorilla/websocket connections to the
// transport.Conn/Hub model, grounded on the teacher's
// pkg/agent/transport/websocket/server.go (same Upgrader, read/write
// deadline and connections-map idiom), generalized from a request/response
// RPC frame to a server-push envelope feed keyed by authenticated userID.
package websocket

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/e2ee-core/relay/envelope"
	"github.com/e2ee-core/relay/transport"
)

// Server upgrades HTTP connections to WebSocket, authenticates the caller,
// registers the connection in a Hub, and pumps inbound envelopes to a
// handler. It never decrypts or interprets envelope contents itself.
type Server struct {
	hub          *transport.Hub
	upgrader     websocket.Upgrader
	readTimeout  time.Duration
	writeTimeout time.Duration
	authenticate func(r *http.Request) (string, error)
	handle       func(ctx context.Context, callerID string, env *envelope.Envelope)
}

// NewServer constructs a Server. authenticate extracts and verifies the
// caller's identity from the upgrade request (typically a bearer token);
// handle is invoked for every envelope read off the connection.
func NewServer(hub *transport.Hub, authenticate func(r *http.Request) (string, error), handle func(ctx context.Context, callerID string, env *envelope.Envelope)) *Server {
	return &Server{
		hub: hub,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  4096,
			WriteBufferSize: 4096,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		readTimeout:  60 * time.Second,
		writeTimeout: 30 * time.Second,
		authenticate: authenticate,
		handle:       handle,
	}
}

// Handler returns the http.Handler to mount at the WebSocket endpoint.
func (s *Server) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.authenticate(r)
		if err != nil {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}

		raw, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		conn := &Conn{ws: raw, writeTimeout: s.writeTimeout}
		s.hub.Register(userID, conn)
		defer s.hub.Unregister(userID, conn)
		defer raw.Close()

		s.pump(r.Context(), userID, conn)
	})
}

func (s *Server) pump(ctx context.Context, userID string, conn *Conn) {
	for {
		if err := conn.ws.SetReadDeadline(time.Now().Add(s.readTimeout)); err != nil {
			return
		}
		var env envelope.Envelope
		if err := conn.ws.ReadJSON(&env); err != nil {
			return
		}
		s.handle(ctx, userID, &env)
	}
}

// Conn adapts *websocket.Conn to transport.Conn.
type Conn struct {
	ws           *websocket.Conn
	writeTimeout time.Duration
}

// Push implements transport.Conn.
func (c *Conn) Push(ctx context.Context, env *envelope.Envelope) error {
	if err := c.ws.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
		return fmt.Errorf("websocket: set write deadline: %w", err)
	}
	return c.ws.WriteJSON(env)
}
