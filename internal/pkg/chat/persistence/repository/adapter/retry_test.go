package adapter

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"
)

func TestIsTransient(t *testing.T) {
	require.True(t, isTransient(&pgconn.PgError{Code: "40001"}))
	require.True(t, isTransient(&pgconn.PgError{Code: "40P01"}))
	require.False(t, isTransient(&pgconn.PgError{Code: "23505"}))
	require.False(t, isTransient(context.DeadlineExceeded))
	require.False(t, isTransient(errors.New("boom")))
	require.False(t, isTransient(nil))
}

func TestWithRetry(t *testing.T) {
	oldBackoff := storeBaseBackoff
	storeBaseBackoff = time.Millisecond
	t.Cleanup(func() { storeBaseBackoff = oldBackoff })

	t.Run("recovers from transient failure", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), "test", func(context.Context) error {
			calls++
			if calls < 2 {
				return &pgconn.PgError{Code: "40001"}
			}
			return nil
		})
		require.NoError(t, err)
		require.Equal(t, 2, calls)
	})

	t.Run("gives up after max attempts", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), "test", func(context.Context) error {
			calls++
			return &pgconn.PgError{Code: "40P01"}
		})
		require.Error(t, err)
		require.Equal(t, storeMaxAttempts, calls)
	})

	t.Run("does not retry permanent failure", func(t *testing.T) {
		calls := 0
		err := withRetry(context.Background(), "test", func(context.Context) error {
			calls++
			return &pgconn.PgError{Code: "23505"}
		})
		require.Error(t, err)
		require.Equal(t, 1, calls)
	})

	t.Run("stops on cancelled context", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		calls := 0
		err := withRetry(ctx, "test", func(context.Context) error {
			calls++
			cancel()
			return &pgconn.PgError{Code: "40001"}
		})
		require.ErrorIs(t, err, context.Canceled)
		require.Equal(t, 1, calls)
	})
}
