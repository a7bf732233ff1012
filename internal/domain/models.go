package domain

import (
	"encoding/json"
	"time"
)

// Identity is the resolved caller of a connection or request: the platform
// account plus the acting profile (an account can own an artist profile and a
// recruiter profile at once).
type Identity struct {
	UserID    int64
	ProfileID int64
}

// Conversation represents a chat conversation (direct or group).
type Conversation struct {
	ID        int64     `db:"id" json:"id"`
	Name      *string   `db:"name" json:"name,omitempty"`
	IsGroup   bool      `db:"is_group" json:"is_group"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}

// ConversationMember represents the membership of a profile in a conversation.
// Membership is the sole authorization boundary for every room operation.
type ConversationMember struct {
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	ProfileID      int64     `db:"profile_id" json:"profile_id"`
	JoinedAt       time.Time `db:"joined_at" json:"joined_at"`
}

// Message represents a single chat message. The persistence-assigned ID is the
// ordering and read-receipt watermark for its conversation.
type Message struct {
	ID              int64           `db:"id" json:"id"`
	ConversationID  int64           `db:"conversation_id" json:"conversation_id"`
	SenderProfileID int64           `db:"sender_profile_id" json:"sender_profile_id"`
	Content         string          `db:"content" json:"content"`
	Metadata        json.RawMessage `db:"metadata" json:"metadata,omitempty"`
	ClientMsgID     string          `db:"client_msg_id" json:"client_msg_id"`
	ReadBy          []int64         `db:"-" json:"read_by,omitempty"`
	CreatedAt       time.Time       `db:"created_at" json:"created_at"`
}

// Presence is the ephemeral per (conversation, profile) state. Each write
// overwrites the previous record; staleness, not deletion, ends it.
type Presence struct {
	ConversationID int64     `db:"conversation_id" json:"conversation_id"`
	ProfileID      int64     `db:"profile_id" json:"profile_id"`
	IsTyping       bool      `db:"is_typing" json:"is_typing"`
	LastSeenAt     time.Time `db:"last_seen_at" json:"last_seen_at"`
}

// Online reports whether the presence record is fresh relative to the given
// window at time now.
func (p *Presence) Online(now time.Time, window time.Duration) bool {
	return now.Sub(p.LastSeenAt) <= window
}
