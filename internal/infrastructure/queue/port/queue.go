package port

import (
	"context"
	"errors"
	"time"
)

// Task is a background job: a stable type name plus opaque payload bytes.
type Task struct {
	Type    string
	Payload []byte
}

// Handler processes a Task. A non-nil error schedules a retry per the adapter's
// policy unless it wraps ErrSkipRetry. Handlers must be idempotent.
type Handler func(ctx context.Context, task Task) error

// ErrSkipRetry tells the adapter to drop the task without further attempts.
var ErrSkipRetry = errors.New("queue: skip retry")

// EnqueueOption controls enqueue behavior. Zero values mean "unspecified",
// except MaxRetry: once an option is passed, 0 means a single attempt.
type EnqueueOption struct {
	Queue     string        // logical queue name
	ProcessIn time.Duration // delay before the first attempt
	MaxRetry  int           // retries after the first attempt
	Timeout   time.Duration // per-attempt budget
	UniqueTTL time.Duration // reject duplicates within this window (if supported)
}

// Client enqueues tasks for background processing.
type Client interface {
	Enqueue(ctx context.Context, t Task, opts ...EnqueueOption) (id string, err error)
	Close() error
}

// Server runs workers. Run blocks until ctx is canceled or Stop is called.
type Server interface {
	Register(taskType string, h Handler)
	Run(ctx context.Context) error
	Stop(ctx context.Context) error
}

// RetryDelay is the backoff before retry n (1-based): base * 2^(n-1).
func RetryDelay(base time.Duration, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	if n > 16 {
		n = 16
	}
	return base * time.Duration(1<<uint(n-1))
}
