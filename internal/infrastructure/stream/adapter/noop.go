package adapter

import (
	"context"

	"mkvr-chat/internal/infrastructure/stream/port"
)

// NoopPublisher discards events; used when NATS is not configured.
type NoopPublisher struct{}

var _ port.Publisher = NoopPublisher{}

func (NoopPublisher) Publish(context.Context, port.Event) error { return nil }

func (NoopPublisher) Close() error { return nil }
