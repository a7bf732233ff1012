// Package client is the device-side chat transport: it keeps one logical
// connection to the gateway alive across drops, queues outbound messages
// while offline, and reconciles optimistic sends against server acks.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/stagelink/backend/internal/ws"
)

// ErrNotConnected is returned by operations that need a live connection.
// Sends never fail with it; they queue instead.
var ErrNotConnected = errors.New("client: not connected")

// Handlers are the UI-facing callbacks. They run on the client's read
// goroutine; long work belongs elsewhere.
type Handlers struct {
	OnConnect    func()
	OnDisconnect func(err error)
	OnMessage    func(ev ws.MessageEvent)
	OnAck        func(ev ws.AckEvent)
	OnReceipt    func(ev ws.ReceiptEvent)
	OnTyping     func(ev ws.TypingEvent)
	OnError      func(ev ws.ErrorEvent)
}

type Options struct {
	// URL is the gateway websocket endpoint, e.g. ws://host:8000/ws.
	URL   string
	Token string

	// ReconnectDelay is the fixed backoff between reconnect attempts.
	ReconnectDelay time.Duration
	// TypingDebounce is the coalescing window for outbound typing changes.
	TypingDebounce time.Duration
	// TypingStaleAfter auto-clears a received typing-true signal that sees no
	// refresh.
	TypingStaleAfter time.Duration

	// Outbox holds sends composed while offline. Defaults to an in-memory
	// queue.
	Outbox   Outbox
	Handlers Handlers
}

const (
	defaultReconnectDelay   = 2 * time.Second
	defaultTypingDebounce   = 1 * time.Second
	defaultTypingStaleAfter = 5 * time.Second
)

type Client struct {
	opts      Options
	outbox    Outbox
	debouncer *typingDebouncer
	tracker   *typingTracker

	mu       sync.Mutex
	conn     *websocket.Conn
	online   bool
	flushing bool
	pending  map[string]QueuedSend
	inflight map[string]QueuedSend

	writeMu sync.Mutex
}

func New(opts Options) *Client {
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = defaultReconnectDelay
	}
	if opts.TypingDebounce <= 0 {
		opts.TypingDebounce = defaultTypingDebounce
	}
	if opts.TypingStaleAfter <= 0 {
		opts.TypingStaleAfter = defaultTypingStaleAfter
	}
	if opts.Outbox == nil {
		opts.Outbox = NewMemoryOutbox()
	}

	c := &Client{
		opts:     opts,
		outbox:   opts.Outbox,
		pending:  make(map[string]QueuedSend),
		inflight: make(map[string]QueuedSend),
	}
	c.debouncer = newTypingDebouncer(opts.TypingDebounce, c.emitTyping)
	c.tracker = newTypingTracker(opts.TypingStaleAfter, c.expireTyping)
	return c
}

// Run maintains the connection until ctx is cancelled: dial, flush the
// outbox, pump events, and on any drop retry forever at a fixed backoff.
// Previously joined rooms are NOT rejoined automatically; the UI layer
// rejoins the rooms it still cares about from OnConnect.
func (c *Client) Run(ctx context.Context) {
	defer c.debouncer.stop()
	defer c.tracker.stop()

	for {
		if ctx.Err() != nil {
			return
		}

		err := c.runOnce(ctx)
		if c.opts.Handlers.OnDisconnect != nil {
			c.opts.Handlers.OnDisconnect(err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(c.opts.ReconnectDelay):
		}
	}
}

func (c *Client) runOnce(ctx context.Context) error {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.opts.Token)

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.opts.URL, header)
	if err != nil {
		return err
	}

	// flushing goes up in the same critical section that marks us online,
	// so a send composed from OnConnect queues behind the backlog instead
	// of jumping it.
	c.mu.Lock()
	c.conn = conn
	c.online = true
	c.flushing = true
	c.mu.Unlock()

	// Close the transport when ctx ends so the read loop unblocks.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-done:
		}
	}()

	if c.opts.Handlers.OnConnect != nil {
		c.opts.Handlers.OnConnect()
	}

	c.flushOutbox()

	err = c.readLoop(conn)

	c.mu.Lock()
	c.online = false
	c.conn = nil
	sent := make([]QueuedSend, 0, len(c.inflight))
	for _, q := range c.inflight {
		sent = append(sent, q)
	}
	c.inflight = make(map[string]QueuedSend)
	c.mu.Unlock()
	conn.Close()

	// Anything written but never acked goes back in the queue; the server
	// deduplicates on client_msg_id, so a retry of a send that did land is
	// harmless.
	sort.Slice(sent, func(i, j int) bool {
		if sent[i].QueuedAt.Equal(sent[j].QueuedAt) {
			return sent[i].ClientMsgID < sent[j].ClientMsgID
		}
		return sent[i].QueuedAt.Before(sent[j].QueuedAt)
	})
	for _, q := range sent {
		if err := c.outbox.Enqueue(q); err != nil {
			log.Printf("client: requeue %s: %v", q.ClientMsgID, err)
		}
	}
	return err
}

// Join subscribes this connection to a conversation's room. The server
// re-checks membership; a forbidden join surfaces through OnError.
func (c *Client) Join(conversationID int64) error {
	return c.writeEvent(ws.ClientEvent{Type: ws.EventJoin, ConversationID: conversationID})
}

// Leave drops the room subscription. Always succeeds server-side.
func (c *Client) Leave(conversationID int64) error {
	return c.writeEvent(ws.ClientEvent{Type: ws.EventLeave, ConversationID: conversationID})
}

// Send transmits a message, or queues it when offline. The returned
// client_msg_id identifies the optimistic local message until the matching
// ack arrives; a send retried after a dropped ack is deduplicated server-side
// under the same id.
func (c *Client) Send(conversationID int64, content string, metadata json.RawMessage) string {
	q := QueuedSend{
		ConversationID: conversationID,
		ClientMsgID:    uuid.NewString(),
		Content:        content,
		Metadata:       metadata,
		QueuedAt:       time.Now(),
	}

	c.mu.Lock()
	c.pending[q.ClientMsgID] = q
	deliverNow := c.online && !c.flushing
	if deliverNow {
		c.inflight[q.ClientMsgID] = q
	}
	c.mu.Unlock()

	if deliverNow {
		if err := c.writeEvent(sendEvent(q)); err == nil {
			return q.ClientMsgID
		}
		c.mu.Lock()
		delete(c.inflight, q.ClientMsgID)
		c.mu.Unlock()
	}
	if err := c.outbox.Enqueue(q); err != nil {
		log.Printf("client: enqueue %s: %v", q.ClientMsgID, err)
	}
	return q.ClientMsgID
}

// MarkRead advances the read watermark for the conversation.
func (c *Client) MarkRead(conversationID, lastMessageID int64) error {
	return c.writeEvent(ws.ClientEvent{
		Type:           ws.EventMarkRead,
		ConversationID: conversationID,
		LastMessageID:  lastMessageID,
	})
}

// SetTyping records the local typing state; transmissions are debounced so
// only the most recent state within the window goes out.
func (c *Client) SetTyping(conversationID int64, isTyping bool) {
	c.debouncer.set(conversationID, isTyping)
}

// Heartbeat refreshes this profile's presence. Best-effort.
func (c *Client) Heartbeat(conversationID int64) {
	_ = c.writeEvent(ws.ClientEvent{Type: ws.EventPresence, ConversationID: conversationID})
}

// Pending returns the sends still awaiting acknowledgment, the UI's "sending…"
// set.
func (c *Client) Pending() []QueuedSend {
	c.mu.Lock()
	defer c.mu.Unlock()
	res := make([]QueuedSend, 0, len(c.pending))
	for _, q := range c.pending {
		res = append(res, q)
	}
	return res
}

// Online reports whether the transport currently holds a live connection.
func (c *Client) Online() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.online
}

// ── internals ────────────────────────────────────────────────────────────────

// flushOutbox drains the offline queue FIFO. New sends composed during the
// flush are enqueued behind it rather than interleaved, so composition order
// survives the reconnect.
func (c *Client) flushOutbox() {
	for {
		c.mu.Lock()
		c.flushing = true
		c.mu.Unlock()

		for {
			q, ok := c.outbox.Next()
			if !ok {
				break
			}
			// Marked in-flight before the write; the ack that removes the
			// mark cannot arrive earlier than the frame it answers.
			c.mu.Lock()
			c.pending[q.ClientMsgID] = q
			c.inflight[q.ClientMsgID] = q
			c.mu.Unlock()
			if err := c.writeEvent(sendEvent(q)); err != nil {
				// Still queued; the next reconnect retries it.
				c.mu.Lock()
				delete(c.inflight, q.ClientMsgID)
				c.flushing = false
				c.mu.Unlock()
				return
			}
			if err := c.outbox.Remove(q.ClientMsgID); err != nil {
				log.Printf("client: remove %s from outbox: %v", q.ClientMsgID, err)
			}
		}

		// A send composed mid-flush lands in the queue rather than on the
		// wire; re-check under the same lock that re-opens direct delivery.
		c.mu.Lock()
		c.flushing = false
		empty := c.outbox.Len() == 0
		c.mu.Unlock()
		if empty {
			return
		}
	}
}

func sendEvent(q QueuedSend) ws.ClientEvent {
	return ws.ClientEvent{
		Type:           ws.EventSend,
		ConversationID: q.ConversationID,
		ClientMsgID:    q.ClientMsgID,
		Content:        q.Content,
		Metadata:       q.Metadata,
	}
}

func (c *Client) writeEvent(ev ws.ClientEvent) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return conn.WriteJSON(ev)
}

func (c *Client) emitTyping(conversationID int64, isTyping bool) {
	// Dropped typing signals are not worth retrying.
	_ = c.writeEvent(ws.ClientEvent{
		Type:           ws.EventTyping,
		ConversationID: conversationID,
		IsTyping:       isTyping,
	})
}

func (c *Client) expireTyping(conversationID, userID int64) {
	if c.opts.Handlers.OnTyping != nil {
		c.opts.Handlers.OnTyping(ws.TypingEvent{
			Type:           ws.EventUserTyping,
			ConversationID: conversationID,
			UserID:         userID,
			IsTyping:       false,
		})
	}
}

func (c *Client) readLoop(conn *websocket.Conn) error {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.dispatch(data)
	}
}

func (c *Client) dispatch(data []byte) {
	var envelope struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		log.Printf("client: bad frame: %v", err)
		return
	}

	switch envelope.Type {
	case ws.EventMessage:
		var ev ws.MessageEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if c.opts.Handlers.OnMessage != nil {
			c.opts.Handlers.OnMessage(ev)
		}

	case ws.EventMessageAck:
		var ev ws.AckEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.mu.Lock()
		delete(c.pending, ev.ClientMsgID)
		delete(c.inflight, ev.ClientMsgID)
		c.mu.Unlock()
		// An ack may race a queued duplicate of the same send; dropping the
		// queue entry here keeps the stale retry from going out at all.
		_ = c.outbox.Remove(ev.ClientMsgID)
		if c.opts.Handlers.OnAck != nil {
			c.opts.Handlers.OnAck(ev)
		}

	case ws.EventReceiptUpdate:
		var ev ws.ReceiptEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if c.opts.Handlers.OnReceipt != nil {
			c.opts.Handlers.OnReceipt(ev)
		}

	case ws.EventUserTyping:
		var ev ws.TypingEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		c.tracker.observe(ev.ConversationID, ev.UserID, ev.IsTyping)
		if c.opts.Handlers.OnTyping != nil {
			c.opts.Handlers.OnTyping(ev)
		}

	case ws.EventError:
		var ev ws.ErrorEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			return
		}
		if c.opts.Handlers.OnError != nil {
			c.opts.Handlers.OnError(ev)
		}

	default:
		log.Printf("client: unknown event type %q", envelope.Type)
	}
}
