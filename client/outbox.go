package client

import (
	"encoding/json"
	"sync"
	"time"
)

// QueuedSend is one user-authored message waiting for delivery. ClientMsgID is
// minted when the message is composed, so a send delivered twice (stale retry
// plus queue flush) is deduplicated server-side.
type QueuedSend struct {
	ConversationID int64           `json:"conversation_id"`
	ClientMsgID    string          `json:"client_msg_id"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	QueuedAt       time.Time       `json:"queued_at"`
}

// Outbox is the durable FIFO queue of sends composed while offline. The
// in-memory implementation below suits tests and short-lived processes; a
// device app supplies a disk-backed one.
type Outbox interface {
	Enqueue(s QueuedSend) error
	// Next returns the oldest queued send without removing it.
	Next() (QueuedSend, bool)
	Remove(clientMsgID string) error
	Len() int
}

// MemoryOutbox is a mutex-guarded FIFO Outbox.
type MemoryOutbox struct {
	mu    sync.Mutex
	queue []QueuedSend
}

func NewMemoryOutbox() *MemoryOutbox {
	return &MemoryOutbox{}
}

var _ Outbox = (*MemoryOutbox)(nil)

func (o *MemoryOutbox) Enqueue(s QueuedSend) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.queue = append(o.queue, s)
	return nil
}

func (o *MemoryOutbox) Next() (QueuedSend, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.queue) == 0 {
		return QueuedSend{}, false
	}
	return o.queue[0], true
}

func (o *MemoryOutbox) Remove(clientMsgID string) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i, s := range o.queue {
		if s.ClientMsgID == clientMsgID {
			o.queue = append(o.queue[:i], o.queue[i+1:]...)
			return nil
		}
	}
	return nil
}

func (o *MemoryOutbox) Len() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.queue)
}
