package adapter

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"mkvr-chat/internal/infrastructure/stream/port"
	"mkvr-chat/internal/logging"
)

// NatsPublisher publishes chat events to a JetStream stream.
type NatsPublisher struct {
	nc *nats.Conn
	js jetstream.JetStream
}

// NatsConfig names the stream and the subject prefix it captures (prefix.*).
type NatsConfig struct {
	URL           string
	StreamName    string
	SubjectPrefix string
	MaxAge        time.Duration
}

// NewNatsPublisher connects and makes sure the stream exists.
func NewNatsPublisher(ctx context.Context, cfg NatsConfig) (*NatsPublisher, error) {
	if cfg.URL == "" {
		return nil, errors.New("nats: NATS_URL is not set")
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	nc, err := nats.Connect(cfg.URL, nats.Name("chat-delivery"), nats.Timeout(3*time.Second))
	if err != nil {
		return nil, fmt.Errorf("nats: connect: %w", err)
	}
	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("nats: jetstream: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if _, err := js.Stream(ctx, cfg.StreamName); err != nil {
		if !errors.Is(err, jetstream.ErrStreamNotFound) {
			nc.Close()
			return nil, fmt.Errorf("nats: lookup stream %q: %w", cfg.StreamName, err)
		}
		_, err = js.CreateStream(ctx, jetstream.StreamConfig{
			Name:        cfg.StreamName,
			Description: "Chat message events",
			Subjects:    []string{cfg.SubjectPrefix + ".*"},
			MaxAge:      cfg.MaxAge,
			Storage:     jetstream.FileStorage,
			Duplicates:  2 * time.Minute,
		})
		if err != nil {
			nc.Close()
			return nil, fmt.Errorf("nats: create stream %q: %w", cfg.StreamName, err)
		}
		logging.Get().Info().Str("stream", cfg.StreamName).Msg("created event stream")
	}
	return &NatsPublisher{nc: nc, js: js}, nil
}

var _ port.Publisher = (*NatsPublisher)(nil)

func (p *NatsPublisher) Publish(ctx context.Context, e port.Event) error {
	var opts []jetstream.PublishOpt
	if e.ID != "" {
		opts = append(opts, jetstream.WithMsgID(e.ID))
	}
	if _, err := p.js.Publish(ctx, e.Subject, e.Data, opts...); err != nil {
		return fmt.Errorf("nats: publish %s: %w", e.Subject, err)
	}
	return nil
}

func (p *NatsPublisher) Close() error {
	if p.nc != nil {
		return p.nc.Drain()
	}
	return nil
}
