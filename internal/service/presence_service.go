package service

import (
	"context"
	"fmt"
	"time"

	"github.com/stagelink/backend/internal/domain"
)

// PresenceService owns the ephemeral typing/last-seen state. Heartbeat writes
// are best-effort: callers that treat presence as a side signal swallow the
// returned error.
type PresenceService struct {
	members  domain.MemberRepository
	presence domain.PresenceRepository

	// Window after which a last_seen timestamp counts as offline.
	FreshnessWindow time.Duration
}

func NewPresenceService(
	members domain.MemberRepository,
	presence domain.PresenceRepository,
	freshnessWindow time.Duration,
) *PresenceService {
	return &PresenceService{
		members:         members,
		presence:        presence,
		FreshnessWindow: freshnessWindow,
	}
}

// SetTyping overwrites the typing flag for (conversation, profile) and
// refreshes last_seen.
func (s *PresenceService) SetTyping(ctx context.Context, conversationID, profileID int64, isTyping bool) error {
	isMember, err := s.members.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return fmt.Errorf("%w: check member: %v", domain.ErrStorage, err)
	}
	if !isMember {
		return domain.ErrNotAMember
	}
	return s.upsert(ctx, conversationID, profileID, isTyping)
}

// Heartbeat refreshes last_seen without touching the typing flag's meaning;
// a heartbeat always reports not-typing, matching an idle client.
func (s *PresenceService) Heartbeat(ctx context.Context, conversationID, profileID int64) error {
	isMember, err := s.members.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return fmt.Errorf("%w: check member: %v", domain.ErrStorage, err)
	}
	if !isMember {
		return domain.ErrNotAMember
	}
	return s.upsert(ctx, conversationID, profileID, false)
}

func (s *PresenceService) upsert(ctx context.Context, conversationID, profileID int64, isTyping bool) error {
	p := &domain.Presence{
		ConversationID: conversationID,
		ProfileID:      profileID,
		IsTyping:       isTyping,
		LastSeenAt:     time.Now().UTC(),
	}
	if err := s.presence.Upsert(ctx, p); err != nil {
		return fmt.Errorf("%w: upsert presence: %v", domain.ErrStorage, err)
	}
	return nil
}

// PresenceView is a presence row with the online flag computed against the
// freshness window.
type PresenceView struct {
	ProfileID  int64     `json:"profile_id"`
	IsTyping   bool      `json:"is_typing"`
	IsOnline   bool      `json:"is_online"`
	LastSeenAt time.Time `json:"last_seen_at"`
}

// Snapshot returns the current presence state of every profile that has ever
// signalled in the conversation.
func (s *PresenceService) Snapshot(ctx context.Context, conversationID, callerProfileID int64) ([]*PresenceView, error) {
	isMember, err := s.members.IsMember(ctx, conversationID, callerProfileID)
	if err != nil {
		return nil, fmt.Errorf("%w: check member: %v", domain.ErrStorage, err)
	}
	if !isMember {
		return nil, domain.ErrNotAMember
	}

	rows, err := s.presence.ListForConversation(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list presence: %v", domain.ErrStorage, err)
	}

	now := time.Now().UTC()
	views := make([]*PresenceView, 0, len(rows))
	for _, p := range rows {
		views = append(views, &PresenceView{
			ProfileID:  p.ProfileID,
			IsTyping:   p.IsTyping && p.Online(now, s.FreshnessWindow),
			IsOnline:   p.Online(now, s.FreshnessWindow),
			LastSeenAt: p.LastSeenAt,
		})
	}
	return views, nil
}
