package domain

import (
	"context"
	"time"
)

// IdentityProvider resolves a bearer credential to the caller's identity.
// Implementations must return ErrUnauthenticated for anything they cannot
// resolve; callers terminate the connection on failure.
type IdentityProvider interface {
	Authenticate(ctx context.Context, bearer string) (Identity, error)
}

// ConversationRepository defines persistence operations for conversations.
type ConversationRepository interface {
	Create(ctx context.Context, c *Conversation, memberProfileIDs []int64) error
	GetByID(ctx context.Context, id int64) (*Conversation, error)
	ListForProfile(ctx context.Context, profileID int64) ([]*Conversation, error)
}

// MemberRepository defines operations around conversation membership.
type MemberRepository interface {
	IsMember(ctx context.Context, conversationID, profileID int64) (bool, error)
	ListMemberIDs(ctx context.Context, conversationID int64) ([]int64, error)
}

// MessageRepository defines persistence operations for messages.
type MessageRepository interface {
	// Insert persists m, assigning ID and CreatedAt. When a row with the same
	// (conversation_id, client_msg_id) already exists, it loads that row into m
	// instead and reports duplicate=true.
	Insert(ctx context.Context, m *Message) (duplicate bool, err error)

	// ListAfter returns up to limit messages of the conversation strictly after
	// the (afterCreatedAt, afterID) position, ascending by (created_at, id).
	// A zero afterCreatedAt means "from the beginning".
	ListAfter(ctx context.Context, conversationID int64, afterCreatedAt time.Time, afterID int64, limit int) ([]*Message, error)

	// MarkReadUpTo records profileID as having read every message of the
	// conversation with id <= lastMessageID, skipping messages already marked.
	// It returns the ids of messages actually updated, ascending.
	MarkReadUpTo(ctx context.Context, conversationID, profileID, lastMessageID int64) ([]int64, error)

	// ListReaders returns the profile ids that have read the given message.
	ListReaders(ctx context.Context, messageID int64) ([]int64, error)
}

// PresenceRepository defines upsert/read operations for ephemeral presence rows.
type PresenceRepository interface {
	Upsert(ctx context.Context, p *Presence) error
	ListForConversation(ctx context.Context, conversationID int64) ([]*Presence, error)
}
