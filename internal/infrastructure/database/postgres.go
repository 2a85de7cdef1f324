package database

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"mkvr-chat/internal/logging"
)

const applicationName = "mkvr-chat"

// driverPrefixes maps driver-qualified schemes found in shared .env files onto plain pgx schemes.
var driverPrefixes = []struct{ from, to string }{
	{"postgresql+asyncpg://", "postgresql://"},
	{"postgres+asyncpg://", "postgres://"},
	{"postgresql+pgx://", "postgresql://"},
	{"postgres+pgx://", "postgres://"},
}

// PoolOption tunes the pool config before the pool is created.
type PoolOption func(*pgxpool.Config)

// WithMaxConns caps the pool size.
func WithMaxConns(n int32) PoolOption {
	return func(c *pgxpool.Config) {
		if n > 0 {
			c.MaxConns = n
		}
	}
}

// Connect opens a pgx pool for dsn and pings it. Both postgres:// and
// postgresql:// are accepted, as are the "+asyncpg" and "+pgx" variants.
func Connect(ctx context.Context, dsn string, opts ...PoolOption) (*pgxpool.Pool, error) {
	normalized := normalizeDSN(dsn)
	if normalized == "" {
		return nil, errors.New("postgres: DB_URL is not set")
	}

	cfg, err := pgxpool.ParseConfig(normalized)
	if err != nil {
		return nil, fmt.Errorf("postgres: parse config: %w", err)
	}
	applyPoolDefaults(cfg)
	for _, opt := range opts {
		if opt != nil {
			opt(cfg)
		}
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres: new pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres: ping: %w", err)
	}

	logging.Get().Info().
		Str("host", cfg.ConnConfig.Host).
		Str("database", cfg.ConnConfig.Database).
		Int32("max_conns", cfg.MaxConns).
		Msg("postgres pool ready")
	return pool, nil
}

// applyPoolDefaults fills what the DSN left unset. Appends hold a row lock for
// the length of one transaction, so the pool is sized above pgx's CPU-based default.
func applyPoolDefaults(cfg *pgxpool.Config) {
	if cfg.MaxConns < 8 {
		cfg.MaxConns = 8
	}
	if cfg.MaxConnIdleTime == 0 {
		cfg.MaxConnIdleTime = 5 * time.Minute
	}
	if cfg.MaxConnLifetime == 0 {
		cfg.MaxConnLifetime = time.Hour
	}
	if cfg.HealthCheckPeriod == 0 {
		cfg.HealthCheckPeriod = time.Minute
	}
	if cfg.ConnConfig.RuntimeParams == nil {
		cfg.ConnConfig.RuntimeParams = map[string]string{}
	}
	if _, ok := cfg.ConnConfig.RuntimeParams["application_name"]; !ok {
		cfg.ConnConfig.RuntimeParams["application_name"] = applicationName
	}
}

func normalizeDSN(dsn string) string {
	s := strings.TrimSpace(dsn)
	for _, p := range driverPrefixes {
		if strings.HasPrefix(s, p.from) {
			return p.to + strings.TrimPrefix(s, p.from)
		}
	}
	return s
}
