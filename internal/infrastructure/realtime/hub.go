package realtime

import (
	"sync"

	"github.com/gorilla/websocket"

	"mkvr-chat/internal/metrics"
)

// Hub tracks live sessions. A user may hold any number of sessions (tabs, devices).
type Hub struct {
	mu       sync.RWMutex
	sessions map[string]*Connection            // sessionID -> connection
	byUser   map[string]map[string]*Connection // userID -> sessionID -> connection
}

func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*Connection),
		byUser:   make(map[string]map[string]*Connection),
	}
}

// Attach registers conn and starts its write loop.
func (h *Hub) Attach(conn *Connection) {
	h.mu.Lock()
	h.sessions[conn.ID] = conn
	set := h.byUser[conn.UserID]
	if set == nil {
		set = make(map[string]*Connection)
		h.byUser[conn.UserID] = set
	}
	set[conn.ID] = conn
	h.mu.Unlock()

	metrics.SessionOpened()
	conn.Start()
}

// Detach removes conn and reports whether it was still tracked.
func (h *Hub) Detach(conn *Connection) bool {
	h.mu.Lock()
	_, ok := h.sessions[conn.ID]
	if ok {
		delete(h.sessions, conn.ID)
		if set := h.byUser[conn.UserID]; set != nil {
			delete(set, conn.ID)
			if len(set) == 0 {
				delete(h.byUser, conn.UserID)
			}
		}
	}
	h.mu.Unlock()

	if ok {
		metrics.SessionClosed()
	}
	return ok
}

// SessionsOf returns a snapshot of the user's sessions; callers send without holding the lock.
func (h *Hub) SessionsOf(userID string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()

	set := h.byUser[userID]
	out := make([]*Connection, 0, len(set))
	for _, c := range set {
		out = append(out, c)
	}
	return out
}

// Count returns the number of tracked sessions.
func (h *Hub) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.sessions)
}

// Close terminates all tracked connections and clears hub state.
func (h *Hub) Close() {
	h.mu.Lock()
	conns := make([]*Connection, 0, len(h.sessions))
	for _, c := range h.sessions {
		conns = append(conns, c)
	}
	h.sessions = make(map[string]*Connection)
	h.byUser = make(map[string]map[string]*Connection)
	h.mu.Unlock()

	for _, c := range conns {
		metrics.SessionClosed()
		c.Close(websocket.CloseGoingAway, "server shutdown")
	}
}
