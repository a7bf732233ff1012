package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/stagelink/backend/internal/domain"
)

type MessageRepo struct {
	db *sql.DB
}

func NewMessageRepo(db *sql.DB) *MessageRepo {
	return &MessageRepo{db: db}
}

var _ domain.MessageRepository = (*MessageRepo)(nil)

// Insert persists m idempotently. A second insert with the same
// (conversation_id, client_msg_id) leaves the table untouched and loads the
// first persisted row into m instead.
func (r *MessageRepo) Insert(ctx context.Context, m *domain.Message) (bool, error) {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO messages
			(conversation_id, sender_profile_id, content, metadata, client_msg_id, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (conversation_id, client_msg_id) DO NOTHING
		RETURNING id, created_at
	`, m.ConversationID, m.SenderProfileID, m.Content, m.Metadata, m.ClientMsgID,
	).Scan(&m.ID, &m.CreatedAt)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("insert message: %w", err)
	}

	// Conflict: return the existing row, content and all.
	var metadata []byte
	err = r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_profile_id, content, metadata, client_msg_id, created_at
		FROM messages
		WHERE conversation_id = $1 AND client_msg_id = $2
	`, m.ConversationID, m.ClientMsgID).Scan(
		&m.ID, &m.ConversationID, &m.SenderProfileID, &m.Content, &metadata, &m.ClientMsgID, &m.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("load duplicate message: %w", err)
	}
	m.Metadata = metadata
	return true, nil
}

func (r *MessageRepo) ListAfter(ctx context.Context, conversationID int64, afterCreatedAt time.Time, afterID int64, limit int) ([]*domain.Message, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, conversation_id, sender_profile_id, content, metadata, client_msg_id, created_at
		FROM messages
		WHERE conversation_id = $1
		  AND (created_at > $2 OR (created_at = $2 AND id > $3))
		ORDER BY created_at ASC, id ASC
		LIMIT $4
	`, conversationID, afterCreatedAt, afterID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	msgs, err := scanMessages(rows)
	if err != nil {
		return nil, err
	}
	if err := r.loadReaders(ctx, msgs); err != nil {
		return nil, err
	}
	return msgs, nil
}

// MarkReadUpTo set-unions profileID into the read set of every message with
// id <= lastMessageID. The primary-key conflict clause keeps concurrent
// markers from the same profile idempotent.
func (r *MessageRepo) MarkReadUpTo(ctx context.Context, conversationID, profileID, lastMessageID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		INSERT INTO message_reads (message_id, profile_id, read_at)
		SELECT id, $2, NOW()
		FROM messages
		WHERE conversation_id = $1 AND id <= $3
		ON CONFLICT DO NOTHING
		RETURNING message_id
	`, conversationID, profileID, lastMessageID)
	if err != nil {
		return nil, fmt.Errorf("mark read: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan read id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *MessageRepo) ListReaders(ctx context.Context, messageID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT profile_id FROM message_reads WHERE message_id = $1 ORDER BY profile_id
	`, messageID)
	if err != nil {
		return nil, fmt.Errorf("list readers: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan reader: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ── helpers ──────────────────────────────────────────────────────────────────

func scanMessages(rows *sql.Rows) ([]*domain.Message, error) {
	defer rows.Close()
	var res []*domain.Message
	for rows.Next() {
		m := &domain.Message{}
		var metadata []byte
		if err := rows.Scan(
			&m.ID, &m.ConversationID, &m.SenderProfileID, &m.Content, &metadata, &m.ClientMsgID, &m.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.Metadata = metadata
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r *MessageRepo) loadReaders(ctx context.Context, msgs []*domain.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	byID := make(map[int64]*domain.Message, len(msgs))
	placeholders := make([]string, len(msgs))
	args := make([]any, len(msgs))
	for i, m := range msgs {
		byID[m.ID] = m
		placeholders[i] = fmt.Sprintf("$%d", i+1)
		args[i] = m.ID
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT message_id, profile_id
		FROM message_reads
		WHERE message_id IN (`+strings.Join(placeholders, ",")+`)
		ORDER BY message_id, profile_id
	`, args...)
	if err != nil {
		return fmt.Errorf("load readers: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var msgID, profileID int64
		if err := rows.Scan(&msgID, &profileID); err != nil {
			return fmt.Errorf("scan reader: %w", err)
		}
		if m, ok := byID[msgID]; ok {
			m.ReadBy = append(m.ReadBy, profileID)
		}
	}
	return rows.Err()
}
