package sqlite

import (
	"context"
	"database/sql"
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

// Insert persists m idempotently; on a (conversation_id, client_msg_id)
// conflict the existing row is loaded into m instead.
func (r *MessageRepo) Insert(ctx context.Context, m *domain.Message) (bool, error) {
	now := time.Now().UTC()
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO messages
			(conversation_id, sender_profile_id, content, metadata, client_msg_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, client_msg_id) DO NOTHING
	`, m.ConversationID, m.SenderProfileID, m.Content, nullableBlob(m.Metadata), m.ClientMsgID, now)
	if err != nil {
		return false, fmt.Errorf("insert message: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	if n > 0 {
		id, err := res.LastInsertId()
		if err != nil {
			return false, fmt.Errorf("last insert id: %w", err)
		}
		m.ID = id
		m.CreatedAt = now
		return false, nil
	}

	// Conflict: return the existing row, content and all.
	var metadata []byte
	err = r.db.QueryRowContext(ctx, `
		SELECT id, conversation_id, sender_profile_id, content, metadata, client_msg_id, created_at
		FROM messages
		WHERE conversation_id = ? AND client_msg_id = ?
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
		WHERE conversation_id = ?
		  AND (created_at > ? OR (created_at = ? AND id > ?))
		ORDER BY created_at ASC, id ASC
		LIMIT ?
	`, conversationID, afterCreatedAt, afterCreatedAt, afterID, limit)
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

func (r *MessageRepo) MarkReadUpTo(ctx context.Context, conversationID, profileID, lastMessageID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `
		INSERT INTO message_reads (message_id, profile_id, read_at)
		SELECT id, ?, ?
		FROM messages
		WHERE conversation_id = ? AND id <= ?
		ON CONFLICT DO NOTHING
		RETURNING message_id
	`, profileID, time.Now().UTC(), conversationID, lastMessageID)
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
		SELECT profile_id FROM message_reads WHERE message_id = ? ORDER BY profile_id
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

func nullableBlob(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return b
}

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
	args := make([]any, len(msgs))
	for i, m := range msgs {
		byID[m.ID] = m
		args[i] = m.ID
	}

	query := `SELECT message_id, profile_id FROM message_reads WHERE message_id IN (?` +
		strings.Repeat(",?", len(msgs)-1) + `) ORDER BY message_id, profile_id`
	rows, err := r.db.QueryContext(ctx, query, args...)
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
