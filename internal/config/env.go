package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// ApplyEnvOverrides reads configuration values from environment variables and
// overrides fields in the provided Config. Returns an error if parsing fails.
//
// Connection strings keep the names used across deployments:
// - DB_URL, REDIS_URL, NATS_URL
//
// Everything else is prefixed with CHAT_, e.g.
// - CHAT_HTTP_ADDR (string, e.g. ":8080")
// - CHAT_STORE_DRIVER ("postgres" or "memory")
// - CHAT_DEFAULT_STAFF_ID (string)
// - CHAT_LIVE_SEND_TIMEOUT (duration, e.g. "2s")
// - CHAT_PUSH_MAX_RETRY (int)
// - CHAT_VAPID_PUBLIC_KEY / CHAT_VAPID_PRIVATE_KEY / CHAT_VAPID_SUBJECT
// - CHAT_BROADCAST_CONCURRENCY (int)
// - CHAT_LOG_LEVEL / CHAT_LOG_FILE
func ApplyEnvOverrides(cfg *Config) error {
	setString("DB_URL", &cfg.DatabaseURL)
	setString("REDIS_URL", &cfg.RedisURL)
	setString("NATS_URL", &cfg.NatsURL)
	setString("CHAT_QUEUE_WEIGHTS", &cfg.QueueWeights)

	setString("CHAT_HTTP_ADDR", &cfg.HTTPAddr)
	setString("CHAT_STORE_DRIVER", &cfg.StoreDriver)
	setString("CHAT_STREAM_NAME", &cfg.StreamName)
	setString("CHAT_SUBJECT_PREFIX", &cfg.SubjectPrefix)
	setString("CHAT_DEFAULT_STAFF_ID", &cfg.DefaultStaffID)
	setString("CHAT_PUSH_QUEUE", &cfg.PushQueue)
	setString("CHAT_VAPID_PUBLIC_KEY", &cfg.VAPIDPublicKey)
	setString("CHAT_VAPID_PRIVATE_KEY", &cfg.VAPIDPrivateKey)
	setString("CHAT_VAPID_SUBJECT", &cfg.VAPIDSubject)
	setString("CHAT_LOG_LEVEL", &cfg.LogLevel)
	setString("CHAT_LOG_FILE", &cfg.LogFile)

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CHAT_REQUEST_TIMEOUT", &cfg.RequestTimeout},
		{"CHAT_ENDPOINT_CACHE_TTL", &cfg.EndpointCacheTTL},
		{"CHAT_LIVE_SEND_TIMEOUT", &cfg.LiveSendTimeout},
		{"CHAT_PUSH_BASE_BACKOFF", &cfg.PushBaseBackoff},
		{"CHAT_PUSH_TIMEOUT", &cfg.PushTimeout},
	}
	for _, d := range durations {
		if err := setDurationEnv(d.key, d.dst); err != nil {
			return err
		}
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"CHAT_DB_MAX_CONNS", &cfg.DBMaxConns},
		{"CHAT_QUEUE_CONCURRENCY", &cfg.QueueConcurrency},
		{"CHAT_HISTORY_PAGE_SIZE", &cfg.HistoryPageSize},
		{"CHAT_MAX_PAGE_SIZE", &cfg.MaxPageSize},
		{"CHAT_PUSH_MAX_RETRY", &cfg.PushMaxRetry},
		{"CHAT_PUSH_TTL", &cfg.PushTTL},
		{"CHAT_BROADCAST_CONCURRENCY", &cfg.BroadcastConcurrency},
	}
	for _, i := range ints {
		if err := setIntEnv(i.key, i.dst); err != nil {
			return err
		}
	}

	if err := setBoolEnv("CHAT_AUTO_MIGRATE", func(b bool) { cfg.AutoMigrate = b }); err != nil {
		return err
	}
	if err := setBoolEnv("CHAT_METRICS_ENABLED", func(b bool) { cfg.MetricsEnabled = b }); err != nil {
		return err
	}
	return nil
}

func setString(key string, dst *string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setDurationEnv(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = d
	return nil
}

func setIntEnv(key string, dst *int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = i
	return nil
}

func setBoolEnv(key string, set func(bool)) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	set(b)
	return nil
}
