package service

import (
	"context"
	"fmt"

	"github.com/stagelink/backend/internal/domain"
)

type ConversationService struct {
	conversations domain.ConversationRepository
	members       domain.MemberRepository
}

func NewConversationService(
	conversations domain.ConversationRepository,
	members domain.MemberRepository,
) *ConversationService {
	return &ConversationService{
		conversations: conversations,
		members:       members,
	}
}

type ConversationCreateInput struct {
	Name             *string
	IsGroup          bool
	MemberProfileIDs []int64
}

func (s *ConversationService) Create(
	ctx context.Context,
	in ConversationCreateInput,
	creatorProfileID int64,
) (*domain.Conversation, error) {
	if len(in.MemberProfileIDs) == 0 {
		return nil, fmt.Errorf("%w: at least one member is required", domain.ErrBadRequest)
	}
	if in.IsGroup && (in.Name == nil || *in.Name == "") {
		return nil, fmt.Errorf("%w: group conversations require a name", domain.ErrBadRequest)
	}

	// Include creator, dedupe
	uniqueIDs := make([]int64, 0, len(in.MemberProfileIDs)+1)
	seen := map[int64]struct{}{creatorProfileID: {}}
	uniqueIDs = append(uniqueIDs, creatorProfileID)
	for _, id := range in.MemberProfileIDs {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		uniqueIDs = append(uniqueIDs, id)
	}

	if !in.IsGroup && len(uniqueIDs) != 2 {
		return nil, fmt.Errorf("%w: a direct conversation has exactly two members", domain.ErrBadRequest)
	}

	conv := &domain.Conversation{
		Name:    in.Name,
		IsGroup: in.IsGroup,
	}
	if err := s.conversations.Create(ctx, conv, uniqueIDs); err != nil {
		return nil, fmt.Errorf("%w: create conversation: %v", domain.ErrStorage, err)
	}
	return conv, nil
}

func (s *ConversationService) ListForProfile(ctx context.Context, profileID int64) ([]*domain.Conversation, error) {
	return s.conversations.ListForProfile(ctx, profileID)
}

func (s *ConversationService) Get(
	ctx context.Context,
	conversationID int64,
	profileID int64,
) (*domain.Conversation, error) {
	conv, err := s.conversations.GetByID(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		return nil, domain.ErrNotFound
	}
	isMember, err := s.members.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return nil, fmt.Errorf("%w: check member: %v", domain.ErrStorage, err)
	}
	if !isMember {
		return nil, domain.ErrNotAMember
	}
	return conv, nil
}

// MemberIDs returns the profile ids of every member of a conversation the
// caller belongs to.
func (s *ConversationService) MemberIDs(
	ctx context.Context,
	conversationID int64,
	profileID int64,
) ([]int64, error) {
	isMember, err := s.members.IsMember(ctx, conversationID, profileID)
	if err != nil {
		return nil, fmt.Errorf("%w: check member: %v", domain.ErrStorage, err)
	}
	if !isMember {
		return nil, domain.ErrNotAMember
	}
	ids, err := s.members.ListMemberIDs(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("%w: list members: %v", domain.ErrStorage, err)
	}
	return ids, nil
}
