package ws

import (
	"sync"
)

// Hub is the per-process half of the room registry: it maps conversation ids
// to the local sessions that have joined them. Cluster-wide fan-out happens
// through a Broadcaster that republishes into every process's hub.
type Hub struct {
	mu sync.RWMutex

	// rooms maps conversation id -> sessions joined on this process.
	rooms map[int64]map[*Session]struct{}
	// joined maps session -> its owned set of room ids, released atomically
	// on disconnect.
	joined map[*Session]map[int64]struct{}
}

func NewHub() *Hub {
	return &Hub{
		rooms:  make(map[int64]map[*Session]struct{}),
		joined: make(map[*Session]map[int64]struct{}),
	}
}

// Join adds the session to the conversation's room. Idempotent: joining a
// room twice is a no-op. Membership authorization happens in the handler
// before this is called.
func (h *Hub) Join(s *Session, conversationID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.rooms[conversationID] == nil {
		h.rooms[conversationID] = make(map[*Session]struct{})
	}
	h.rooms[conversationID][s] = struct{}{}

	if h.joined[s] == nil {
		h.joined[s] = make(map[int64]struct{})
	}
	h.joined[s][conversationID] = struct{}{}
}

// Leave removes the session from the room. Idempotent, never errors.
func (h *Hub) Leave(s *Session, conversationID int64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.leaveLocked(s, conversationID)
}

func (h *Hub) leaveLocked(s *Session, conversationID int64) {
	if sessions, ok := h.rooms[conversationID]; ok {
		delete(sessions, s)
		if len(sessions) == 0 {
			delete(h.rooms, conversationID)
		}
	}
	if rooms, ok := h.joined[s]; ok {
		delete(rooms, conversationID)
	}
}

// Disconnect atomically releases every room membership the session holds.
// Best-effort: it never blocks transport teardown.
func (h *Hub) Disconnect(s *Session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for conversationID := range h.joined[s] {
		h.leaveLocked(s, conversationID)
	}
	delete(h.joined, s)
}

// inRoom reports whether the session currently holds a membership in the room.
func (h *Hub) inRoom(s *Session, conversationID int64) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.joined[s][conversationID]
	return ok
}

// roomSize returns the number of local sessions joined to the conversation.
func (h *Hub) roomSize(conversationID int64) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.rooms[conversationID])
}

// Deliver writes the payload to every local session joined to the
// conversation, and only those. Failed connections are closed by Send and
// cleaned up when their read loops exit.
func (h *Hub) Deliver(conversationID int64, payload []byte) {
	h.mu.RLock()
	sessions := make([]*Session, 0, len(h.rooms[conversationID]))
	for s := range h.rooms[conversationID] {
		sessions = append(sessions, s)
	}
	h.mu.RUnlock()

	for _, s := range sessions {
		_ = s.SendRaw(payload)
	}
}
