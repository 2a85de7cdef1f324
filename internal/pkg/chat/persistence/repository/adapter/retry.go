package adapter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgconn"

	"mkvr-chat/internal/logging"
)

// Store retry settings (tuned in tests)
var (
	storeMaxAttempts = 3
	storeBaseBackoff = 50 * time.Millisecond
)

var errNilPool = errors.New("PgChatRepository: nil pool")

// transientCodes are SQLSTATEs after which the whole unit of work can be replayed.
var transientCodes = map[string]struct{}{
	"40001": {}, // serialization_failure
	"40P01": {}, // deadlock_detected
	"08000": {}, // connection_exception
	"08003": {}, // connection_does_not_exist
	"08006": {}, // connection_failure
	"53300": {}, // too_many_connections
	"57P01": {}, // admin_shutdown
}

func isTransient(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		_, ok := transientCodes[pgErr.Code]
		return ok
	}
	return pgconn.SafeToRetry(err)
}

// withRetry runs fn until it succeeds, fails permanently, or storeMaxAttempts is reached.
func withRetry(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !isTransient(err) || attempt >= storeMaxAttempts {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		logging.Get().Warn().Err(err).Str("op", op).Int("attempt", attempt).Msg("transient store failure, retrying")

		backoff := storeBaseBackoff * time.Duration(1<<uint(attempt-1))
		timer := time.NewTimer(backoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		}
	}
}
