// Package delivery routes a freshly appended message to the recipient's live
// sessions and falls back to a queued push notification.
package delivery

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"github.com/rs/zerolog"

	qport "mkvr-chat/internal/infrastructure/queue/port"
	"mkvr-chat/internal/infrastructure/realtime"
	streamport "mkvr-chat/internal/infrastructure/stream/port"
	"mkvr-chat/internal/logging"
	"mkvr-chat/internal/metrics"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	"mkvr-chat/internal/pkg/chat/application/task"
)

// Event types sent over the live channel.
const (
	EventMessageNew = "message:new"
	EventConnected  = "connected"
)

// SummaryMaxRunes bounds the push body preview.
const SummaryMaxRunes = 120

// Event is one frame on the live channel.
type Event struct {
	Type           string        `json:"type"`
	ConversationID string        `json:"conversationId,omitempty"`
	Message        *chat.Message `json:"message,omitempty"`
}

// Registry is the part of the subscription registry the router needs.
type Registry interface {
	LiveSessionsOf(userID string) []*realtime.Connection
	UnregisterSession(conn *realtime.Connection)
	PushEndpointOf(ctx context.Context, userID string) (*chat.PushEndpoint, error)
}

type Config struct {
	LiveSendTimeout time.Duration
	PushQueue       string
	PushMaxRetry    int
	PushTimeout     time.Duration
	SubjectPrefix   string
}

// Outcome reports where a message went.
type Outcome struct {
	Recipient     string
	LiveDelivered int
	LiveDropped   int
	Echoed        int
	PushEnqueued  bool
	Published     bool
}

// Stored reports that the message reached no session and no push job was queued.
func (o Outcome) Stored() bool {
	return o.LiveDelivered == 0 && !o.PushEnqueued
}

type Router struct {
	registry  Registry
	queue     qport.Client
	publisher streamport.Publisher
	cfg       Config
}

func NewRouter(registry Registry, queue qport.Client, publisher streamport.Publisher, cfg Config) *Router {
	if cfg.LiveSendTimeout <= 0 {
		cfg.LiveSendTimeout = 2 * time.Second
	}
	if cfg.SubjectPrefix == "" {
		cfg.SubjectPrefix = "chat.messages"
	}
	return &Router{registry: registry, queue: queue, publisher: publisher, cfg: cfg}
}

// Deliver never fails: delivery problems are logged and reflected in the Outcome.
func (r *Router) Deliver(ctx context.Context, conv chat.Conversation, msg chat.Message) Outcome {
	log := logging.Get().With().
		Str("conversation_id", conv.ID).
		Str("message_id", msg.ID).
		Int64("seq", msg.Seq).
		Logger()

	out := Outcome{Recipient: conv.RecipientOf(msg.SenderID)}
	payload, err := json.Marshal(Event{Type: EventMessageNew, ConversationID: conv.ID, Message: &msg})
	if err != nil {
		log.Error().Err(err).Msg("encode live event")
		return out
	}

	out.LiveDelivered, out.LiveDropped = r.fanOut(r.registry.LiveSessionsOf(out.Recipient), payload)

	if msg.Kind != chat.MessageKindBroadcast && msg.SenderID != out.Recipient {
		out.Echoed, _ = r.fanOut(r.registry.LiveSessionsOf(msg.SenderID), payload)
	}

	if out.LiveDelivered == 0 {
		out.PushEnqueued = r.enqueuePush(ctx, &log, conv, out.Recipient, msg)
	}

	out.Published = r.publish(ctx, &log, payload, conv.ID, msg.ID)

	log.Debug().
		Str("recipient", out.Recipient).
		Int("live", out.LiveDelivered).
		Int("dropped", out.LiveDropped).
		Bool("push", out.PushEnqueued).
		Msg("message routed")
	return out
}

// fanOut sends payload to every session concurrently. Sessions that cannot
// accept within LiveSendTimeout are unregistered.
func (r *Router) fanOut(sessions []*realtime.Connection, payload []byte) (delivered, dropped int) {
	if len(sessions) == 0 {
		return 0, 0
	}
	var ok, failed int64
	var wg sync.WaitGroup
	for _, conn := range sessions {
		wg.Add(1)
		go func(conn *realtime.Connection) {
			defer wg.Done()
			if err := conn.Send(payload, r.cfg.LiveSendTimeout); err != nil {
				atomic.AddInt64(&failed, 1)
				metrics.IncLive(metrics.LiveDropped)
				logging.Get().Info().Err(err).
					Str("user_id", conn.UserID).
					Str("session_id", conn.ID).
					Msg("dropping unresponsive session")
				r.registry.UnregisterSession(conn)
				return
			}
			atomic.AddInt64(&ok, 1)
			metrics.IncLive(metrics.LiveDelivered)
		}(conn)
	}
	wg.Wait()
	return int(ok), int(failed)
}

func (r *Router) enqueuePush(ctx context.Context, log *zerolog.Logger, conv chat.Conversation, recipient string, msg chat.Message) bool {
	if r.queue == nil {
		return false
	}
	ep, err := r.registry.PushEndpointOf(ctx, recipient)
	if err != nil {
		log.Warn().Err(err).Str("user_id", recipient).Msg("push endpoint lookup failed")
		return false
	}
	if ep == nil {
		return false
	}

	p := PushSummary(conv, msg)
	p.UserID = recipient
	body, err := p.Encode()
	if err != nil {
		log.Error().Err(err).Msg("encode push payload")
		return false
	}

	_, err = r.queue.Enqueue(ctx, qport.Task{Type: task.PushNotificationTaskType, Payload: body}, qport.EnqueueOption{
		Queue:    r.cfg.PushQueue,
		MaxRetry: r.cfg.PushMaxRetry,
		Timeout:  r.cfg.PushTimeout,
	})
	if err != nil {
		metrics.IncPush(metrics.PushEnqueueFailed)
		log.Warn().Err(err).Str("user_id", recipient).Msg("push enqueue failed")
		return false
	}
	metrics.IncPush(metrics.PushEnqueued)
	return true
}

func (r *Router) publish(ctx context.Context, log *zerolog.Logger, payload []byte, conversationID, messageID string) bool {
	if r.publisher == nil {
		return false
	}
	err := r.publisher.Publish(ctx, streamport.Event{
		Subject: r.cfg.SubjectPrefix + "." + conversationID,
		ID:      messageID,
		Data:    payload,
	})
	if err != nil {
		log.Warn().Err(err).Msg("event stream publish failed")
		return false
	}
	return true
}

// PushSummary builds the push job for msg; the caller sets the recipient.
func PushSummary(conv chat.Conversation, msg chat.Message) task.PushNotificationPayload {
	title := "New message"
	switch {
	case msg.Kind == chat.MessageKindBroadcast:
		title = "Announcement"
	case msg.SenderID == conv.StaffID:
		title = "New message from support"
	}
	return task.PushNotificationPayload{
		ConversationID: msg.ConversationID,
		MessageID:      msg.ID,
		Seq:            msg.Seq,
		Kind:           string(msg.Kind),
		Title:          title,
		Body:           truncateRunes(msg.Content, SummaryMaxRunes),
	}
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}
