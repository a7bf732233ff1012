package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stagelink/backend/client"
	"github.com/stagelink/backend/internal/ws"
)

// gateway is a minimal server double: it records every inbound event and
// exposes the server side of each accepted connection.
type gateway struct {
	srv    *httptest.Server
	events chan ws.ClientEvent
	conns  chan *websocket.Conn
}

func newGateway(t *testing.T) *gateway {
	t.Helper()
	g := &gateway{
		events: make(chan ws.ClientEvent, 64),
		conns:  make(chan *websocket.Conn, 4),
	}
	upgrader := websocket.Upgrader{}
	g.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		g.conns <- c
		for {
			var ev ws.ClientEvent
			if err := c.ReadJSON(&ev); err != nil {
				return
			}
			g.events <- ev
		}
	}))
	t.Cleanup(g.srv.Close)
	return g
}

func (g *gateway) url() string {
	return "ws" + strings.TrimPrefix(g.srv.URL, "http")
}

func (g *gateway) nextEvent(t *testing.T) ws.ClientEvent {
	t.Helper()
	select {
	case ev := <-g.events:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("no event from client")
		return ws.ClientEvent{}
	}
}

func (g *gateway) nextConn(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case c := <-g.conns:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("client never connected")
		return nil
	}
}

func waitSignal(t *testing.T, ch <-chan struct{}, what string) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for " + what)
	}
}

func TestOfflineQueueFlushesInOrder(t *testing.T) {
	g := newGateway(t)

	connected := make(chan struct{}, 4)
	c := client.New(client.Options{
		URL:   g.url(),
		Token: "t",
		Handlers: client.Handlers{
			OnConnect: func() { connected <- struct{}{} },
		},
	})

	// Composed before any connection exists: both land in the outbox.
	id1 := c.Send(7, "first", nil)
	id2 := c.Send(7, "second", nil)
	assert.Len(t, c.Pending(), 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitSignal(t, connected, "connect")

	ev := g.nextEvent(t)
	assert.Equal(t, ws.EventSend, ev.Type)
	assert.Equal(t, id1, ev.ClientMsgID)
	assert.Equal(t, "first", ev.Content)

	ev = g.nextEvent(t)
	assert.Equal(t, id2, ev.ClientMsgID)
	assert.Equal(t, "second", ev.Content)
}

func TestAckReconciliation(t *testing.T) {
	g := newGateway(t)

	connected := make(chan struct{}, 4)
	acked := make(chan ws.AckEvent, 4)
	c := client.New(client.Options{
		URL:   g.url(),
		Token: "t",
		Handlers: client.Handlers{
			OnConnect: func() { connected <- struct{}{} },
			OnAck:     func(ev ws.AckEvent) { acked <- ev },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitSignal(t, connected, "connect")
	conn := g.nextConn(t)

	id := c.Send(7, "hello", nil)
	require.Len(t, c.Pending(), 1)

	ev := g.nextEvent(t)
	assert.Equal(t, id, ev.ClientMsgID)

	require.NoError(t, conn.WriteJSON(ws.AckEvent{
		Type:        ws.EventMessageAck,
		ClientMsgID: id,
		MessageID:   101,
		CreatedAt:   time.Now().UTC(),
	}))

	select {
	case got := <-acked:
		assert.Equal(t, int64(101), got.MessageID)
	case <-time.After(2 * time.Second):
		t.Fatal("ack never surfaced")
	}
	assert.Empty(t, c.Pending())
}

func TestJoinAndMarkRead(t *testing.T) {
	g := newGateway(t)

	connected := make(chan struct{}, 4)
	c := client.New(client.Options{
		URL:   g.url(),
		Token: "t",
		Handlers: client.Handlers{
			OnConnect: func() { connected <- struct{}{} },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitSignal(t, connected, "connect")

	require.NoError(t, c.Join(7))
	ev := g.nextEvent(t)
	assert.Equal(t, ws.EventJoin, ev.Type)
	assert.Equal(t, int64(7), ev.ConversationID)

	require.NoError(t, c.MarkRead(7, 101))
	ev = g.nextEvent(t)
	assert.Equal(t, ws.EventMarkRead, ev.Type)
	assert.Equal(t, int64(101), ev.LastMessageID)

	require.NoError(t, c.Leave(7))
	ev = g.nextEvent(t)
	assert.Equal(t, ws.EventLeave, ev.Type)
}

func TestJoinWhileOffline(t *testing.T) {
	c := client.New(client.Options{URL: "ws://127.0.0.1:1/ws", Token: "t"})
	assert.ErrorIs(t, c.Join(7), client.ErrNotConnected)
	assert.ErrorIs(t, c.MarkRead(7, 1), client.ErrNotConnected)
}

func TestInboundDispatch(t *testing.T) {
	g := newGateway(t)

	connected := make(chan struct{}, 4)
	messages := make(chan ws.MessageEvent, 4)
	receipts := make(chan ws.ReceiptEvent, 4)
	errs := make(chan ws.ErrorEvent, 4)
	c := client.New(client.Options{
		URL:   g.url(),
		Token: "t",
		Handlers: client.Handlers{
			OnConnect: func() { connected <- struct{}{} },
			OnMessage: func(ev ws.MessageEvent) { messages <- ev },
			OnReceipt: func(ev ws.ReceiptEvent) { receipts <- ev },
			OnError:   func(ev ws.ErrorEvent) { errs <- ev },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitSignal(t, connected, "connect")
	conn := g.nextConn(t)

	require.NoError(t, conn.WriteJSON(ws.MessageEvent{
		Type: ws.EventMessage, ConversationID: 7, MessageID: 101, SenderID: 43, Content: "hi",
	}))
	require.NoError(t, conn.WriteJSON(ws.ReceiptEvent{
		Type: ws.EventReceiptUpdate, ConversationID: 7, MessageID: 101, Status: "read", ReaderID: 42,
	}))
	require.NoError(t, conn.WriteJSON(ws.ErrorEvent{
		Type: ws.EventError, Code: ws.CodeForbidden, Message: "not a member",
	}))

	select {
	case ev := <-messages:
		assert.Equal(t, "hi", ev.Content)
	case <-time.After(2 * time.Second):
		t.Fatal("message never dispatched")
	}
	select {
	case ev := <-receipts:
		assert.Equal(t, int64(42), ev.ReaderID)
	case <-time.After(2 * time.Second):
		t.Fatal("receipt never dispatched")
	}
	select {
	case ev := <-errs:
		assert.Equal(t, ws.CodeForbidden, ev.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("error never dispatched")
	}
}

func TestTypingStalenessAutoClear(t *testing.T) {
	g := newGateway(t)

	connected := make(chan struct{}, 4)
	typing := make(chan ws.TypingEvent, 4)
	c := client.New(client.Options{
		URL:              g.url(),
		Token:            "t",
		TypingStaleAfter: 100 * time.Millisecond,
		Handlers: client.Handlers{
			OnConnect: func() { connected <- struct{}{} },
			OnTyping:  func(ev ws.TypingEvent) { typing <- ev },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitSignal(t, connected, "connect")
	conn := g.nextConn(t)

	require.NoError(t, conn.WriteJSON(ws.TypingEvent{
		Type: ws.EventUserTyping, ConversationID: 7, UserID: 43, IsTyping: true,
	}))

	select {
	case ev := <-typing:
		assert.True(t, ev.IsTyping)
	case <-time.After(2 * time.Second):
		t.Fatal("typing signal never dispatched")
	}

	// No typing-false ever arrives; the tracker synthesizes one.
	select {
	case ev := <-typing:
		assert.False(t, ev.IsTyping)
		assert.Equal(t, int64(43), ev.UserID)
	case <-time.After(2 * time.Second):
		t.Fatal("stale typing never cleared")
	}
}

func TestUnackedSendRetransmitsAfterReconnect(t *testing.T) {
	g := newGateway(t)

	connected := make(chan struct{}, 4)
	c := client.New(client.Options{
		URL:            g.url(),
		Token:          "t",
		ReconnectDelay: 20 * time.Millisecond,
		Handlers: client.Handlers{
			OnConnect: func() { connected <- struct{}{} },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitSignal(t, connected, "connect")
	conn := g.nextConn(t)

	id := c.Send(7, "must arrive", nil)
	ev := g.nextEvent(t)
	require.Equal(t, id, ev.ClientMsgID)

	// The gateway dies holding the write but before the ack goes out.
	conn.Close()
	waitSignal(t, connected, "reconnect")

	ev = g.nextEvent(t)
	assert.Equal(t, ws.EventSend, ev.Type)
	assert.Equal(t, id, ev.ClientMsgID)
	assert.Equal(t, "must arrive", ev.Content)
	assert.Len(t, c.Pending(), 1)
}

func TestSendFromConnectCallbackKeepsQueueOrder(t *testing.T) {
	g := newGateway(t)

	connected := make(chan struct{}, 4)
	var c *client.Client
	c = client.New(client.Options{
		URL:   g.url(),
		Token: "t",
		Handlers: client.Handlers{
			OnConnect: func() {
				c.Send(7, "composed at connect", nil)
				connected <- struct{}{}
			},
		},
	})

	queuedID := c.Send(7, "queued offline", nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)
	waitSignal(t, connected, "connect")

	ev := g.nextEvent(t)
	assert.Equal(t, queuedID, ev.ClientMsgID)
	assert.Equal(t, "queued offline", ev.Content)

	ev = g.nextEvent(t)
	assert.Equal(t, "composed at connect", ev.Content)
}

func TestReconnectAfterDrop(t *testing.T) {
	g := newGateway(t)

	connected := make(chan struct{}, 4)
	dropped := make(chan struct{}, 4)
	c := client.New(client.Options{
		URL:            g.url(),
		Token:          "t",
		ReconnectDelay: 20 * time.Millisecond,
		Handlers: client.Handlers{
			OnConnect:    func() { connected <- struct{}{} },
			OnDisconnect: func(error) { dropped <- struct{}{} },
		},
	})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go c.Run(ctx)

	waitSignal(t, connected, "first connect")
	conn := g.nextConn(t)
	conn.Close()

	waitSignal(t, dropped, "disconnect")
	waitSignal(t, connected, "reconnect")
	assert.True(t, c.Online())
}
