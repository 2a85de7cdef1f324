package adapter

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

const (
	conversationColumns = "id::text, requester_id, staff_id, last_seq, created_at, updated_at"
	messageColumns      = "id::text, conversation_id::text, seq, sender_id, content, kind, created_at, is_read, dedupe_key"
)

type PgChatRepository struct {
	pool *pgxpool.Pool
}

func NewPgChatRepository(pool *pgxpool.Pool) *PgChatRepository {
	return &PgChatRepository{pool: pool}
}

var _ repository.ChatRepository = (*PgChatRepository)(nil)

func (r *PgChatRepository) GetOrCreateConversation(ctx context.Context, requesterID, staffID string) (chat.Conversation, bool, error) {
	if r == nil || r.pool == nil {
		return chat.Conversation{}, false, errNilPool
	}
	var (
		conv    chat.Conversation
		created bool
	)
	err := withRetry(ctx, "get_or_create_conversation", func(ctx context.Context) error {
		now := time.Now().UTC()
		c, err := scanConversation(r.pool.QueryRow(ctx, `
			INSERT INTO chat.conversation (id, requester_id, staff_id, last_seq, created_at, updated_at)
			VALUES ($1::uuid, $2, $3, 0, $4, $4)
			ON CONFLICT (requester_id, staff_id) DO NOTHING
			RETURNING `+conversationColumns,
			uuid.NewString(), requesterID, staffID, now,
		))
		if err == nil {
			conv, created = c, true
			return nil
		}
		if !errors.Is(err, pgx.ErrNoRows) {
			return err
		}
		// Lost the race or the pair already existed: the stored row wins.
		c, err = scanConversation(r.pool.QueryRow(ctx,
			"SELECT "+conversationColumns+" FROM chat.conversation WHERE requester_id = $1 AND staff_id = $2",
			requesterID, staffID,
		))
		if err != nil {
			return err
		}
		conv, created = c, false
		return nil
	})
	return conv, created, err
}

func (r *PgChatRepository) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return chat.Conversation{}, errNilPool
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	var conv chat.Conversation
	err := withRetry(ctx, "get_conversation", func(ctx context.Context) error {
		c, err := scanConversation(r.pool.QueryRow(ctx,
			"SELECT "+conversationColumns+" FROM chat.conversation WHERE id = $1::uuid", conversationID))
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.ErrConversationNotFound
		}
		conv = c
		return err
	})
	return conv, err
}

func (r *PgChatRepository) ListConversationsByParticipant(ctx context.Context, userID string) ([]chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	var convs []chat.Conversation
	err := withRetry(ctx, "list_conversations_by_participant", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `
			SELECT `+conversationColumns+`
			FROM chat.conversation
			WHERE requester_id = $1 OR staff_id = $1
			ORDER BY updated_at DESC, id
		`, userID)
		if err != nil {
			return err
		}
		convs, err = collectConversations(rows)
		return err
	})
	return convs, err
}

func (r *PgChatRepository) ListConversations(ctx context.Context, afterID string, limit int) ([]chat.Conversation, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	if limit <= 0 {
		limit = 100
	}
	var convs []chat.Conversation
	err := withRetry(ctx, "list_conversations", func(ctx context.Context) error {
		var (
			rows pgx.Rows
			err  error
		)
		if afterID == "" {
			rows, err = r.pool.Query(ctx,
				"SELECT "+conversationColumns+" FROM chat.conversation ORDER BY id LIMIT $1", limit)
		} else {
			rows, err = r.pool.Query(ctx,
				"SELECT "+conversationColumns+" FROM chat.conversation WHERE id > $1::uuid ORDER BY id LIMIT $2", afterID, limit)
		}
		if err != nil {
			return err
		}
		convs, err = collectConversations(rows)
		return err
	})
	return convs, err
}

func (r *PgChatRepository) AppendMessage(ctx context.Context, in repository.AppendMessageInput) (repository.AppendResult, error) {
	if r == nil || r.pool == nil {
		return repository.AppendResult{}, errNilPool
	}
	if _, err := uuid.Parse(in.ConversationID); err != nil {
		return repository.AppendResult{}, chat.ErrConversationNotFound
	}

	var res repository.AppendResult
	err := withRetry(ctx, "append_message", func(ctx context.Context) error {
		tx, err := r.pool.Begin(ctx)
		if err != nil {
			return err
		}
		defer func() { _ = tx.Rollback(ctx) }()

		// The row lock serializes appends per conversation; seq comes from last_seq.
		conv, err := scanConversation(tx.QueryRow(ctx,
			"SELECT "+conversationColumns+" FROM chat.conversation WHERE id = $1::uuid FOR UPDATE", in.ConversationID))
		if errors.Is(err, pgx.ErrNoRows) {
			return chat.ErrConversationNotFound
		}
		if err != nil {
			return err
		}

		if in.DedupeKey != nil {
			if key := strings.TrimSpace(*in.DedupeKey); key != "" {
				existing, err := scanMessage(tx.QueryRow(ctx, `
					SELECT `+messageColumns+`
					FROM chat.message
					WHERE conversation_id = $1::uuid AND sender_id = $2 AND dedupe_key = $3
				`, conv.ID, in.SenderID, key))
				if err == nil {
					res = repository.AppendResult{Message: existing, Conversation: conv, Duplicate: true}
					return nil
				}
				if !errors.Is(err, pgx.ErrNoRows) {
					return err
				}
			}
		}

		agg := chat.Chat{Conversation: conv}
		msg, err := agg.PostMessage(chat.Message{
			ID:             uuid.NewString(),
			ConversationID: conv.ID,
			SenderID:       in.SenderID,
			Content:        in.Content,
			Kind:           in.Kind,
			DedupeKey:      in.DedupeKey,
		}, time.Now())
		if err != nil {
			return err
		}

		if _, err := tx.Exec(ctx, `
			INSERT INTO chat.message (id, conversation_id, seq, sender_id, content, kind, created_at, is_read, dedupe_key)
			VALUES ($1::uuid, $2::uuid, $3, $4, $5, $6, $7, false, $8)
		`, msg.ID, msg.ConversationID, msg.Seq, msg.SenderID, msg.Content, string(msg.Kind), msg.CreatedAt, msg.DedupeKey); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx,
			"UPDATE chat.conversation SET last_seq = $2, updated_at = $3 WHERE id = $1::uuid",
			conv.ID, agg.Conversation.LastSeq, agg.Conversation.UpdatedAt,
		); err != nil {
			return err
		}
		if err := tx.Commit(ctx); err != nil {
			return err
		}
		res = repository.AppendResult{Message: msg, Conversation: agg.Conversation}
		return nil
	})
	return res, err
}

func (r *PgChatRepository) ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]chat.Message, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return nil, chat.ErrConversationNotFound
	}
	if limit <= 0 {
		limit = 50
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	var msgs []chat.Message
	err := withRetry(ctx, "list_messages", func(ctx context.Context) error {
		rows, err := r.pool.Query(ctx, `
			SELECT `+messageColumns+`
			FROM chat.message
			WHERE conversation_id = $1::uuid AND seq > $2
			ORDER BY seq ASC
			LIMIT $3
		`, conversationID, afterSeq, limit)
		if err != nil {
			return err
		}
		defer rows.Close()

		msgs = msgs[:0]
		for rows.Next() {
			m, err := scanMessage(rows)
			if err != nil {
				return err
			}
			msgs = append(msgs, m)
		}
		if err := rows.Err(); err != nil {
			return err
		}
		if len(msgs) > 0 {
			return nil
		}
		var exists bool
		if err := r.pool.QueryRow(ctx,
			"SELECT EXISTS (SELECT 1 FROM chat.conversation WHERE id = $1::uuid)", conversationID,
		).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return chat.ErrConversationNotFound
		}
		return nil
	})
	return msgs, err
}

func (r *PgChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errNilPool
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return 0, chat.ErrConversationNotFound
	}
	var updated int64
	err := withRetry(ctx, "mark_read", func(ctx context.Context) error {
		ct, err := r.pool.Exec(ctx, `
			UPDATE chat.message
			SET is_read = true
			WHERE conversation_id = $1::uuid AND sender_id <> $2 AND is_read = false
		`, conversationID, readerID)
		if err != nil {
			return err
		}
		updated = ct.RowsAffected()
		return nil
	})
	return updated, err
}

func (r *PgChatRepository) CountUnread(ctx context.Context, conversationID, readerID string) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errNilPool
	}
	if _, err := uuid.Parse(conversationID); err != nil {
		return 0, chat.ErrConversationNotFound
	}
	var n int64
	err := withRetry(ctx, "count_unread", func(ctx context.Context) error {
		var exists bool
		if err := r.pool.QueryRow(ctx, `
			SELECT EXISTS (SELECT 1 FROM chat.conversation WHERE id = $1::uuid),
			       (SELECT count(*)
			        FROM chat.message
			        WHERE conversation_id = $1::uuid AND is_read = false AND sender_id <> $2)
		`, conversationID, readerID).Scan(&exists, &n); err != nil {
			return err
		}
		if !exists {
			return chat.ErrConversationNotFound
		}
		return nil
	})
	return n, err
}

func (r *PgChatRepository) CountUnreadForUser(ctx context.Context, userID string) (int64, error) {
	if r == nil || r.pool == nil {
		return 0, errNilPool
	}
	var n int64
	err := withRetry(ctx, "count_unread_for_user", func(ctx context.Context) error {
		return r.pool.QueryRow(ctx, `
			SELECT count(*)
			FROM chat.message m
			JOIN chat.conversation c ON c.id = m.conversation_id
			WHERE (c.requester_id = $1 OR c.staff_id = $1)
			  AND m.is_read = false
			  AND m.sender_id <> $1
		`, userID).Scan(&n)
	})
	return n, err
}

func scanConversation(row pgx.Row) (chat.Conversation, error) {
	var c chat.Conversation
	err := row.Scan(&c.ID, &c.RequesterID, &c.StaffID, &c.LastSeq, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

func scanMessage(row pgx.Row) (chat.Message, error) {
	var (
		m    chat.Message
		kind string
	)
	if err := row.Scan(&m.ID, &m.ConversationID, &m.Seq, &m.SenderID, &m.Content, &kind, &m.CreatedAt, &m.IsRead, &m.DedupeKey); err != nil {
		return chat.Message{}, err
	}
	m.Kind = chat.MessageKind(kind)
	return m, nil
}

func collectConversations(rows pgx.Rows) ([]chat.Conversation, error) {
	defer rows.Close()
	var convs []chat.Conversation
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, err
		}
		convs = append(convs, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return convs, nil
}
