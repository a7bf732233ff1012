package ws

import (
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stagelink/backend/internal/domain"
)

// Session is one live connection. It owns the caller's cached identity and the
// set of rooms it has joined; the hub destroys it, memberships and all, on
// disconnect. Never persisted.
type Session struct {
	ID       string
	Identity domain.Identity

	conn *websocket.Conn

	// writeMu serializes writes; the read loop, the hub and the pub/sub
	// delivery goroutine may all write to the same connection.
	writeMu sync.Mutex
}

func NewSession(identity domain.Identity, conn *websocket.Conn) *Session {
	return &Session{
		ID:       uuid.NewString(),
		Identity: identity,
		conn:     conn,
	}
}

// Send writes v as a JSON frame. A write failure closes the connection; the
// read loop notices and tears the session down.
func (s *Session) Send(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteJSON(v); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}

// SendRaw writes a pre-marshalled JSON frame.
func (s *Session) SendRaw(payload []byte) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if err := s.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		s.conn.Close()
		return err
	}
	return nil
}
