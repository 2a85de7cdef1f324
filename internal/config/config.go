package config

import (
	"fmt"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Store drivers
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config holds runtime configuration for the chat service
type Config struct {
	HTTPAddr       string        `json:"http_addr" yaml:"http_addr"`
	RequestTimeout time.Duration `json:"request_timeout" yaml:"request_timeout"`

	// Store
	StoreDriver string `json:"store_driver" yaml:"store_driver"`
	DatabaseURL string `json:"database_url" yaml:"database_url"`
	AutoMigrate bool   `json:"auto_migrate" yaml:"auto_migrate"`
	DBMaxConns  int    `json:"db_max_conns" yaml:"db_max_conns"` // 0 keeps the pool default

	// Redis backs the push endpoint cache and the asynq queue. Empty means in-process fallbacks.
	RedisURL         string        `json:"redis_url" yaml:"redis_url"`
	EndpointCacheTTL time.Duration `json:"endpoint_cache_ttl" yaml:"endpoint_cache_ttl"`
	QueueConcurrency int           `json:"queue_concurrency" yaml:"queue_concurrency"`
	QueueWeights     string        `json:"queue_weights" yaml:"queue_weights"` // "push=6,default=1"; empty serves PushQueue only

	// NATS JetStream event stream (optional)
	NatsURL       string `json:"nats_url" yaml:"nats_url"`
	StreamName    string `json:"stream_name" yaml:"stream_name"`
	SubjectPrefix string `json:"subject_prefix" yaml:"subject_prefix"`

	// Conversations
	DefaultStaffID  string `json:"default_staff_id" yaml:"default_staff_id"`
	HistoryPageSize int    `json:"history_page_size" yaml:"history_page_size"`
	MaxPageSize     int    `json:"max_page_size" yaml:"max_page_size"`

	// Live delivery
	LiveSendTimeout time.Duration `json:"live_send_timeout" yaml:"live_send_timeout"`

	// Push delivery
	PushQueue       string        `json:"push_queue" yaml:"push_queue"`
	PushMaxRetry    int           `json:"push_max_retry" yaml:"push_max_retry"`
	PushBaseBackoff time.Duration `json:"push_base_backoff" yaml:"push_base_backoff"`
	PushTimeout     time.Duration `json:"push_timeout" yaml:"push_timeout"`
	PushTTL         int           `json:"push_ttl" yaml:"push_ttl"`
	VAPIDPublicKey  string        `json:"vapid_public_key" yaml:"vapid_public_key"`
	VAPIDPrivateKey string        `json:"vapid_private_key" yaml:"vapid_private_key"`
	VAPIDSubject    string        `json:"vapid_subject" yaml:"vapid_subject"`

	// Broadcast
	BroadcastConcurrency int `json:"broadcast_concurrency" yaml:"broadcast_concurrency"`

	// Logging
	LogLevel string `json:"log_level" yaml:"log_level"`
	LogFile  string `json:"log_file" yaml:"log_file"`

	MetricsEnabled bool `json:"metrics_enabled" yaml:"metrics_enabled"`
}

// DefaultConfig returns a sane default configuration
func DefaultConfig() *Config {
	return &Config{
		HTTPAddr:       ":8080",
		RequestTimeout: 3 * time.Second,

		StoreDriver: StoreDriverPostgres,
		AutoMigrate: true,

		EndpointCacheTTL: 10 * time.Minute,
		QueueConcurrency: 10,

		StreamName:    "CHAT_EVENTS",
		SubjectPrefix: "chat.messages",

		HistoryPageSize: 50,
		MaxPageSize:     200,

		LiveSendTimeout: 2 * time.Second,

		PushQueue:       "push",
		PushMaxRetry:    2, // three attempts in total
		PushBaseBackoff: 1 * time.Second,
		PushTimeout:     10 * time.Second,
		PushTTL:         24 * 60 * 60,
		VAPIDSubject:    "mailto:support@example.com",

		BroadcastConcurrency: 4,

		LogLevel:       "info",
		MetricsEnabled: true,
	}
}

// Load builds the configuration: defaults, then the optional YAML file named by
// CHAT_CONFIG_FILE, then environment overrides (a .env file is loaded first when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := DefaultConfig()
	if path := strings.TrimSpace(os.Getenv("CHAT_CONFIG_FILE")); path != "" {
		fromFile, err := LoadConfigFromFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: load %s: %w", path, err)
		}
		cfg = fromFile
	}
	if err := ApplyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadConfigFromFile loads config from a YAML/JSON file on top of the defaults
func LoadConfigFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if err := yaml.Unmarshal(b, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate returns a list of non-fatal configuration warnings.
func (c *Config) Validate() []string {
	var warnings []string
	checks := []struct {
		cond bool
		msg  string
	}{
		{c.StoreDriver == StoreDriverPostgres && c.DatabaseURL == "", "store driver is postgres but DB_URL is empty"},
		{c.StoreDriver != StoreDriverPostgres && c.StoreDriver != StoreDriverMemory, fmt.Sprintf("unknown store driver %q", c.StoreDriver)},
		{c.DefaultStaffID == "", "default staff id is empty; conversations must name a staff participant"},
		{c.VAPIDPublicKey == "" || c.VAPIDPrivateKey == "", "VAPID keys missing; ephemeral keys will be generated and browser subscriptions will not survive restarts"},
		{c.PushMaxRetry < 0 || c.PushMaxRetry > 5, "push max retry should stay between 0 and 5"},
		{c.LiveSendTimeout <= 0, "live send timeout must be positive"},
		{c.BroadcastConcurrency <= 0, "broadcast concurrency must be positive"},
		{c.RedisURL == "", "REDIS_URL not set; push jobs and endpoint cache run in-process"},
	}
	for _, ch := range checks {
		if ch.cond {
			warnings = append(warnings, ch.msg)
		}
	}
	if c.VAPIDSubject != "" {
		if u, err := url.Parse(c.VAPIDSubject); err != nil || (u.Scheme != "mailto" && u.Scheme != "https") {
			warnings = append(warnings, fmt.Sprintf("invalid VAPID subject %q (expected mailto: or https:)", c.VAPIDSubject))
		}
	}
	return warnings
}
