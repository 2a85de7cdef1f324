package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// schema is applied idempotently on startup when auto-migrate is enabled.
var schema = []string{
	`CREATE SCHEMA IF NOT EXISTS chat`,
	`CREATE TABLE IF NOT EXISTS chat.conversation (
		id           uuid PRIMARY KEY,
		requester_id text NOT NULL,
		staff_id     text NOT NULL,
		last_seq     bigint NOT NULL DEFAULT 0,
		created_at   timestamptz NOT NULL,
		updated_at   timestamptz NOT NULL,
		CONSTRAINT conversation_pair_uq UNIQUE (requester_id, staff_id)
	)`,
	`CREATE INDEX IF NOT EXISTS conversation_staff_idx ON chat.conversation (staff_id)`,
	`CREATE TABLE IF NOT EXISTS chat.message (
		id              uuid PRIMARY KEY,
		conversation_id uuid NOT NULL REFERENCES chat.conversation (id),
		seq             bigint NOT NULL,
		sender_id       text NOT NULL,
		content         text NOT NULL,
		kind            text NOT NULL DEFAULT 'message',
		created_at      timestamptz NOT NULL,
		is_read         boolean NOT NULL DEFAULT false,
		dedupe_key      text,
		CONSTRAINT message_conversation_seq_uq UNIQUE (conversation_id, seq)
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS message_dedupe_uq
		ON chat.message (conversation_id, sender_id, dedupe_key)
		WHERE dedupe_key IS NOT NULL`,
	`CREATE INDEX IF NOT EXISTS message_unread_idx
		ON chat.message (conversation_id)
		WHERE is_read = false`,
	`CREATE TABLE IF NOT EXISTS chat.push_endpoint (
		user_id    text PRIMARY KEY,
		endpoint   text NOT NULL,
		key_a      text NOT NULL,
		key_b      text NOT NULL,
		created_at timestamptz NOT NULL,
		updated_at timestamptz NOT NULL
	)`,
}

// Migrate creates the chat schema if it does not exist yet.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	for i, stmt := range schema {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres: migrate step %d: %w", i+1, err)
		}
	}
	return nil
}
