package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/stagelink/backend/internal/domain"
)

type ConversationRepo struct {
	db *sql.DB
}

func NewConversationRepo(db *sql.DB) *ConversationRepo {
	return &ConversationRepo{db: db}
}

var _ domain.ConversationRepository = (*ConversationRepo)(nil)

// Create inserts the conversation and its member rows in one transaction.
func (r *ConversationRepo) Create(ctx context.Context, c *domain.Conversation, memberProfileIDs []int64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin create tx: %w", err)
	}
	defer tx.Rollback()

	if err := tx.QueryRowContext(ctx, `
		INSERT INTO conversations (name, is_group, created_at)
		VALUES ($1, $2, NOW())
		RETURNING id, created_at
	`, c.Name, c.IsGroup).Scan(&c.ID, &c.CreatedAt); err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}

	for _, profileID := range memberProfileIDs {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO conversation_members (conversation_id, profile_id, joined_at)
			VALUES ($1, $2, NOW())
			ON CONFLICT DO NOTHING
		`, c.ID, profileID); err != nil {
			return fmt.Errorf("insert member %d: %w", profileID, err)
		}
	}

	return tx.Commit()
}

func (r *ConversationRepo) GetByID(ctx context.Context, id int64) (*domain.Conversation, error) {
	c := &domain.Conversation{}
	err := r.db.QueryRowContext(ctx, `
		SELECT id, name, is_group, created_at FROM conversations WHERE id = $1
	`, id).Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get conversation: %w", err)
	}
	return c, nil
}

func (r *ConversationRepo) ListForProfile(ctx context.Context, profileID int64) ([]*domain.Conversation, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT c.id, c.name, c.is_group, c.created_at
		FROM conversations c
		JOIN conversation_members cm ON cm.conversation_id = c.id
		WHERE cm.profile_id = $1
		ORDER BY c.created_at DESC
	`, profileID)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}
	defer rows.Close()

	var res []*domain.Conversation
	for rows.Next() {
		c := &domain.Conversation{}
		if err := rows.Scan(&c.ID, &c.Name, &c.IsGroup, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan conversation: %w", err)
		}
		res = append(res, c)
	}
	return res, rows.Err()
}
