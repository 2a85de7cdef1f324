package port

import "context"

// Event is one record on the message event stream. ID lets the broker and
// consumers drop duplicates.
type Event struct {
	Subject string
	ID      string
	Data    []byte
}

// Publisher appends events to the stream.
type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}
