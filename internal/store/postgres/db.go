package postgres

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Open opens a PostgreSQL database using the pgx stdlib driver.
func Open(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// Migrate runs idempotent DDL migrations for the chat schema on PostgreSQL.
// Profiles live in the platform's identity service; only their ids appear here.
func Migrate(db *sql.DB) error {
	stmts := []string{
		// Conversations
		`CREATE TABLE IF NOT EXISTS conversations (
			id         BIGSERIAL    PRIMARY KEY,
			name       VARCHAR(100),
			is_group   BOOLEAN      NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		)`,

		// Conversation members
		`CREATE TABLE IF NOT EXISTS conversation_members (
			conversation_id BIGINT      NOT NULL REFERENCES conversations(id),
			profile_id      BIGINT      NOT NULL,
			joined_at       TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (conversation_id, profile_id)
		)`,

		// Messages; (conversation_id, client_msg_id) is the idempotency boundary
		`CREATE TABLE IF NOT EXISTS messages (
			id                BIGSERIAL    PRIMARY KEY,
			conversation_id   BIGINT       NOT NULL REFERENCES conversations(id),
			sender_profile_id BIGINT       NOT NULL,
			content           TEXT         NOT NULL,
			metadata          JSONB,
			client_msg_id     VARCHAR(64)  NOT NULL,
			created_at        TIMESTAMPTZ  NOT NULL DEFAULT NOW(),
			UNIQUE (conversation_id, client_msg_id)
		)`,

		// Read receipts as a set: one row per (message, reader)
		`CREATE TABLE IF NOT EXISTS message_reads (
			message_id BIGINT      NOT NULL REFERENCES messages(id) ON DELETE CASCADE,
			profile_id BIGINT      NOT NULL,
			read_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (message_id, profile_id)
		)`,

		// Ephemeral presence, overwritten in place
		`CREATE TABLE IF NOT EXISTS presence (
			conversation_id BIGINT      NOT NULL REFERENCES conversations(id),
			profile_id      BIGINT      NOT NULL,
			is_typing       BOOLEAN     NOT NULL DEFAULT FALSE,
			last_seen_at    TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (conversation_id, profile_id)
		)`,

		// Indexes
		`CREATE INDEX IF NOT EXISTS idx_conv_members_profile ON conversation_members(profile_id)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_conv_created ON messages(conversation_id, created_at, id)`,
		`CREATE INDEX IF NOT EXISTS idx_message_reads_profile ON message_reads(profile_id)`,
	}

	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			return fmt.Errorf("migrate: %w\nSQL: %s", err, stmt)
		}
	}
	return nil
}
