package ws

import (
	"encoding/json"
	"time"
)

// Client-to-server event types.
const (
	EventJoin     = "join"
	EventLeave    = "leave"
	EventSend     = "send"
	EventMarkRead = "mark_read"
	EventTyping   = "typing"
	EventPresence = "presence"
)

// Server-to-client event types.
const (
	EventMessage       = "message"
	EventMessageAck    = "message_ack"
	EventReceiptUpdate = "receipt_update"
	EventUserTyping    = "user_typing"
	EventError         = "error"
)

// Error codes carried by error events.
const (
	CodeUnauthorized = "unauthorized"
	CodeBadRequest   = "bad_request"
	CodeForbidden    = "forbidden"
)

// ClientEvent is the inbound event union. Type selects which fields matter.
type ClientEvent struct {
	Type           string          `json:"type"`
	ConversationID int64           `json:"conversation_id"`
	ClientMsgID    string          `json:"client_msg_id,omitempty"`
	Content        string          `json:"content,omitempty"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	LastMessageID  int64           `json:"last_message_id,omitempty"`
	IsTyping       bool            `json:"is_typing,omitempty"`
}

// MessageEvent fans out a newly persisted message to a room.
type MessageEvent struct {
	Type           string          `json:"type"`
	ConversationID int64           `json:"conversation_id"`
	MessageID      int64           `json:"message_id"`
	SenderID       int64           `json:"sender_id"`
	Content        string          `json:"content"`
	Metadata       json.RawMessage `json:"metadata,omitempty"`
	CreatedAt      time.Time       `json:"created_at"`
}

// AckEvent confirms a send to the originating connection only.
type AckEvent struct {
	Type        string    `json:"type"`
	ClientMsgID string    `json:"client_msg_id"`
	MessageID   int64     `json:"message_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// ReceiptEvent fans out a read-watermark change, one per updated message.
type ReceiptEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	MessageID      int64  `json:"message_id"`
	Status         string `json:"status"`
	ReaderID       int64  `json:"reader_id"`
}

// TypingEvent fans out an ephemeral typing change.
type TypingEvent struct {
	Type           string `json:"type"`
	ConversationID int64  `json:"conversation_id"`
	UserID         int64  `json:"user_id"`
	IsTyping       bool   `json:"is_typing"`
}

// ErrorEvent reports a recoverable failure to the originating connection.
type ErrorEvent struct {
	Type    string `json:"type"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
