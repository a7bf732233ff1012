package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/stagelink/backend/internal/domain"
)

const maxContentRunes = 5000

type MessageService struct {
	conversations domain.ConversationRepository
	members       domain.MemberRepository
	messages      domain.MessageRepository

	DefaultPageSize int
	MaxPageSize     int
}

func NewMessageService(
	conversations domain.ConversationRepository,
	members domain.MemberRepository,
	messages domain.MessageRepository,
	defaultPageSize, maxPageSize int,
) *MessageService {
	return &MessageService{
		conversations:   conversations,
		members:         members,
		messages:        messages,
		DefaultPageSize: defaultPageSize,
		MaxPageSize:     maxPageSize,
	}
}

type SendInput struct {
	ConversationID int64
	Content        string
	ClientMsgID    string
	Metadata       json.RawMessage
}

// SendResult carries the persisted message plus whether this send was a
// duplicate of an earlier one with the same idempotency key. Duplicates are
// acked to the sender but never re-broadcast.
type SendResult struct {
	Message   *domain.Message
	Duplicate bool
}

// Send persists a message on behalf of senderProfileID. The membership check
// runs in the caller's own scope; the idempotency key makes retries after a
// dropped ack safe.
func (s *MessageService) Send(ctx context.Context, in SendInput, senderProfileID int64) (*SendResult, error) {
	if in.ClientMsgID == "" {
		return nil, fmt.Errorf("%w: client_msg_id is required", domain.ErrBadRequest)
	}
	if in.Content == "" {
		return nil, fmt.Errorf("%w: message content cannot be empty", domain.ErrBadRequest)
	}
	if len([]rune(in.Content)) > maxContentRunes {
		return nil, fmt.Errorf("%w: message content exceeds %d characters", domain.ErrBadRequest, maxContentRunes)
	}

	isMember, err := s.members.IsMember(ctx, in.ConversationID, senderProfileID)
	if err != nil {
		return nil, fmt.Errorf("%w: check member: %v", domain.ErrStorage, err)
	}
	if !isMember {
		return nil, domain.ErrNotAMember
	}

	msg := &domain.Message{
		ConversationID:  in.ConversationID,
		SenderProfileID: senderProfileID,
		Content:         in.Content,
		Metadata:        in.Metadata,
		ClientMsgID:     in.ClientMsgID,
	}
	duplicate, err := s.messages.Insert(ctx, msg)
	if err != nil {
		return nil, fmt.Errorf("%w: insert message: %v", domain.ErrStorage, err)
	}
	return &SendResult{Message: msg, Duplicate: duplicate}, nil
}

// HistoryPage is one page of conversation history, oldest first. NextCursor is
// empty when the page reaches the end of the conversation.
type HistoryPage struct {
	Messages   []*domain.Message `json:"messages"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// History returns messages after the position encoded by cur, ascending by
// (created_at, id).
func (s *MessageService) History(ctx context.Context, conversationID, profileID int64, cur string, limit int) (*HistoryPage, error) {
	isMember, err := s.members.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return nil, fmt.Errorf("%w: check member: %v", domain.ErrStorage, err)
	}
	if !isMember {
		return nil, domain.ErrNotAMember
	}

	if limit <= 0 {
		limit = s.DefaultPageSize
	}
	if s.MaxPageSize > 0 && limit > s.MaxPageSize {
		limit = s.MaxPageSize
	}

	pos, err := decodeCursor(cur)
	if err != nil {
		return nil, err
	}

	// Fetch one extra row to learn whether another page exists.
	msgs, err := s.messages.ListAfter(ctx, conversationID, pos.CreatedAt, pos.ID, limit+1)
	if err != nil {
		return nil, fmt.Errorf("%w: list messages: %v", domain.ErrStorage, err)
	}

	page := &HistoryPage{}
	if len(msgs) > limit {
		msgs = msgs[:limit]
		last := msgs[len(msgs)-1]
		page.NextCursor = encodeCursor(last.CreatedAt, last.ID)
	}
	page.Messages = msgs
	return page, nil
}

// MarkRead advances profileID's read watermark to lastMessageID and returns
// the ids of messages whose read set actually changed, for receipt fan-out.
// Re-marking the same or a lower watermark is a no-op.
func (s *MessageService) MarkRead(ctx context.Context, conversationID, profileID, lastMessageID int64) ([]int64, error) {
	if lastMessageID <= 0 {
		return nil, fmt.Errorf("%w: last_message_id is required", domain.ErrBadRequest)
	}
	isMember, err := s.members.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return nil, fmt.Errorf("%w: check member: %v", domain.ErrStorage, err)
	}
	if !isMember {
		return nil, domain.ErrNotAMember
	}

	updated, err := s.messages.MarkReadUpTo(ctx, conversationID, profileID, lastMessageID)
	if err != nil {
		return nil, fmt.Errorf("%w: mark read: %v", domain.ErrStorage, err)
	}
	return updated, nil
}

// IsMember reports whether profileID belongs to the conversation.
func (s *MessageService) IsMember(ctx context.Context, conversationID, profileID int64) (bool, error) {
	return s.members.IsMember(ctx, conversationID, profileID)
}
