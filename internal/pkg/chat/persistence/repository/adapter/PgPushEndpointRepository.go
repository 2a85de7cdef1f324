package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

type PgPushEndpointRepository struct {
	pool *pgxpool.Pool
}

func NewPgPushEndpointRepository(pool *pgxpool.Pool) *PgPushEndpointRepository {
	return &PgPushEndpointRepository{pool: pool}
}

var _ repository.PushEndpointRepository = (*PgPushEndpointRepository)(nil)

func (r *PgPushEndpointRepository) Upsert(ctx context.Context, e chat.PushEndpoint) error {
	if r == nil || r.pool == nil {
		return errNilPool
	}
	now := time.Now().UTC()
	return withRetry(ctx, "upsert_push_endpoint", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, `
			INSERT INTO chat.push_endpoint (user_id, endpoint, key_a, key_b, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $5)
			ON CONFLICT (user_id) DO UPDATE
			SET endpoint = EXCLUDED.endpoint,
			    key_a = EXCLUDED.key_a,
			    key_b = EXCLUDED.key_b,
			    updated_at = EXCLUDED.updated_at
		`, e.UserID, e.Endpoint, e.KeyA, e.KeyB, now)
		return err
	})
}

func (r *PgPushEndpointRepository) Get(ctx context.Context, userID string) (*chat.PushEndpoint, error) {
	if r == nil || r.pool == nil {
		return nil, errNilPool
	}
	var out *chat.PushEndpoint
	err := withRetry(ctx, "get_push_endpoint", func(ctx context.Context) error {
		var e chat.PushEndpoint
		err := r.pool.QueryRow(ctx, `
			SELECT user_id, endpoint, key_a, key_b, created_at, updated_at
			FROM chat.push_endpoint
			WHERE user_id = $1
		`, userID).Scan(&e.UserID, &e.Endpoint, &e.KeyA, &e.KeyB, &e.CreatedAt, &e.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			out = nil
			return nil
		}
		if err != nil {
			return err
		}
		out = &e
		return nil
	})
	return out, err
}

func (r *PgPushEndpointRepository) Delete(ctx context.Context, userID string) error {
	if r == nil || r.pool == nil {
		return errNilPool
	}
	return withRetry(ctx, "delete_push_endpoint", func(ctx context.Context) error {
		_, err := r.pool.Exec(ctx, "DELETE FROM chat.push_endpoint WHERE user_id = $1", userID)
		return err
	})
}
