// Package transport abstracts how a relay pushes an accepted envelope to
// a receiver's live connections, generalized from the teacher's
// pkg/agent/transport.MessageTransport single-shot RPC abstraction to a
// server-push fanout: a receiver may hold zero or more simultaneously
// live connections (multiple devices, tabs, reconnects-in-flight), and
// §4.8 step 6 only requires that at least one of them accept the push.
package transport

import (
	"context"
	"sync"

	"github.com/e2ee-core/relay/envelope"
)

// Conn is one live, addressable connection a relay can push an envelope
// over. Implementations (websocket.Conn, a future SSE/long-poll adapter)
// wrap the wire-specific send and surface only this.
type Conn interface {
	// Push delivers env to this connection. An error means this
	// particular connection is no longer usable; the Hub treats it as a
	// delivery failure for this connection only, not for the receiver as
	// a whole.
	Push(ctx context.Context, env *envelope.Envelope) error
}

// Hub tracks every live Conn per userID and fans an envelope out to all
// of them, grounded on the teacher's WSServer connections map
// (pkg/agent/transport/websocket/server.go) generalized from one global
// set to one set per user so forwarding can target the receiver
// specifically instead of broadcasting.
type Hub struct {
	mu    sync.RWMutex
	byUser map[string]map[Conn]struct{}
}

// NewHub constructs an empty Hub.
func NewHub() *Hub {
	return &Hub{byUser: make(map[string]map[Conn]struct{})}
}

// Register adds c to userID's live connection set.
func (h *Hub) Register(userID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byUser[userID]
	if !ok {
		set = make(map[Conn]struct{})
		h.byUser[userID] = set
	}
	set[c] = struct{}{}
}

// Unregister removes c from userID's live connection set.
func (h *Hub) Unregister(userID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.byUser[userID]
	if !ok {
		return
	}
	delete(set, c)
	if len(set) == 0 {
		delete(h.byUser, userID)
	}
}

// Forward pushes env to every live connection belonging to userID and
// reports whether at least one of them accepted it (§4.8 step 6: "marks
// delivered when at least one transport accepts"). A connection whose
// Push fails is skipped, not removed — eviction is the caller's concern.
func (h *Hub) Forward(ctx context.Context, userID string, env *envelope.Envelope) bool {
	h.mu.RLock()
	conns := make([]Conn, 0, len(h.byUser[userID]))
	for c := range h.byUser[userID] {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	delivered := false
	for _, c := range conns {
		if err := c.Push(ctx, env); err == nil {
			delivered = true
		}
	}
	return delivered
}

// LiveCount reports how many connections userID currently has registered.
func (h *Hub) LiveCount(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byUser[userID])
}
