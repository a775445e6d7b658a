package relay

import (
	"context"
	"sync"

	"github.com/rs/zerolog"
)

// Conn is one live client connection.
type Conn interface {
	Send(ctx context.Context, v any) error
	Close(reason string) error
}

// Registry tracks the live connection of each chat session.
type Registry interface {
	Register(sessionID string, c Conn)
	Unregister(sessionID string, c Conn)
	Lookup(sessionID string) (Conn, bool)
	Len() int
}

// Hub is the in-process Registry. A session has at most one connection; a new
// one replaces and closes the old.
type Hub struct {
	mu     sync.RWMutex
	active map[string]Conn
	log    zerolog.Logger
}

func NewHub(log zerolog.Logger) *Hub {
	return &Hub{
		active: make(map[string]Conn),
		log:    log.With().Str("component", "hub").Logger(),
	}
}

var _ Registry = (*Hub)(nil)

func (h *Hub) Register(sessionID string, c Conn) {
	h.mu.Lock()
	existing, ok := h.active[sessionID]
	h.active[sessionID] = c
	h.mu.Unlock()

	if ok && existing != c {
		_ = existing.Close("session replaced")
	}
	h.log.Debug().Str("session_id", sessionID).Msg("session registered")
}

// Unregister removes c only if it is still the session's current connection.
func (h *Hub) Unregister(sessionID string, c Conn) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if current, ok := h.active[sessionID]; ok && current == c {
		delete(h.active, sessionID)
		h.log.Debug().Str("session_id", sessionID).Msg("session unregistered")
	}
}

func (h *Hub) Lookup(sessionID string) (Conn, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.active[sessionID]
	return c, ok
}

func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.active)
}
