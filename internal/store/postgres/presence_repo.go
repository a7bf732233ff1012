package postgres

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/stagelink/backend/internal/domain"
)

type PresenceRepo struct {
	db *sql.DB
}

func NewPresenceRepo(db *sql.DB) *PresenceRepo {
	return &PresenceRepo{db: db}
}

var _ domain.PresenceRepository = (*PresenceRepo)(nil)

// Upsert overwrites the presence row for (conversation, profile).
func (r *PresenceRepo) Upsert(ctx context.Context, p *domain.Presence) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO presence (conversation_id, profile_id, is_typing, last_seen_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (conversation_id, profile_id)
		DO UPDATE SET is_typing = EXCLUDED.is_typing, last_seen_at = EXCLUDED.last_seen_at
	`, p.ConversationID, p.ProfileID, p.IsTyping, p.LastSeenAt)
	if err != nil {
		return fmt.Errorf("upsert presence: %w", err)
	}
	return nil
}

func (r *PresenceRepo) ListForConversation(ctx context.Context, conversationID int64) ([]*domain.Presence, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT conversation_id, profile_id, is_typing, last_seen_at
		FROM presence
		WHERE conversation_id = $1
		ORDER BY profile_id
	`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("list presence: %w", err)
	}
	defer rows.Close()

	var res []*domain.Presence
	for rows.Next() {
		p := &domain.Presence{}
		if err := rows.Scan(&p.ConversationID, &p.ProfileID, &p.IsTyping, &p.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan presence: %w", err)
		}
		res = append(res, p)
	}
	return res, rows.Err()
}
