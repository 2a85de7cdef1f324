package task

import (
	"context"
	"errors"
	"fmt"

	qport "mkvr-chat/internal/infrastructure/queue/port"
	"mkvr-chat/internal/infrastructure/webpush"
	"mkvr-chat/internal/logging"
	"mkvr-chat/internal/metrics"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
)

// Notifier delivers one push notification.
type Notifier interface {
	Notify(ctx context.Context, t webpush.Target, p webpush.Payload) error
}

// EndpointRegistry resolves and prunes push endpoints.
type EndpointRegistry interface {
	PushEndpointOf(ctx context.Context, userID string) (*chat.PushEndpoint, error)
	UnregisterPush(ctx context.Context, userID string) error
}

// PushNotificationTask sends the push fallback for one message.
type PushNotificationTask struct {
	Registry EndpointRegistry
	Notifier Notifier
}

func NewPushNotificationTask(registry EndpointRegistry, notifier Notifier) *PushNotificationTask {
	return &PushNotificationTask{Registry: registry, Notifier: notifier}
}

// Handle returns an error only when the attempt should be retried.
func (h *PushNotificationTask) Handle(ctx context.Context, t qport.Task) error {
	p, err := DecodePushNotificationPayload(t.Payload)
	if err != nil {
		return fmt.Errorf("push task: decode payload: %v: %w", err, qport.ErrSkipRetry)
	}
	log := logging.Get().With().
		Str("user_id", p.UserID).
		Str("conversation_id", p.ConversationID).
		Str("message_id", p.MessageID).
		Logger()

	ep, err := h.Registry.PushEndpointOf(ctx, p.UserID)
	if err != nil {
		return fmt.Errorf("push task: resolve endpoint: %w", err)
	}
	if ep == nil {
		log.Debug().Msg("push endpoint removed before delivery")
		return nil
	}

	err = h.Notifier.Notify(ctx, webpush.Target{Endpoint: ep.Endpoint, KeyA: ep.KeyA, KeyB: ep.KeyB}, webpush.Payload{
		Title:          p.Title,
		Body:           p.Body,
		ConversationID: p.ConversationID,
		MessageID:      p.MessageID,
		Seq:            p.Seq,
		Kind:           p.Kind,
	})
	switch {
	case err == nil:
		metrics.IncPush(metrics.PushSent)
		return nil
	case errors.Is(err, webpush.ErrEndpointGone):
		metrics.IncPush(metrics.PushGone)
		log.Info().Err(err).Msg("push endpoint gone, unregistering")
		if uerr := h.Registry.UnregisterPush(ctx, p.UserID); uerr != nil {
			log.Warn().Err(uerr).Msg("unregister gone endpoint")
		}
		return nil
	case errors.Is(err, webpush.ErrPayloadTooLarge):
		metrics.IncPush(metrics.PushTooLarge)
		log.Warn().Err(err).Msg("push payload too large, dropping")
		return nil
	default:
		metrics.IncPush(metrics.PushTransient)
		log.Warn().Err(err).Msg("push delivery failed")
		return err
	}
}

// RegisterPushNotificationTask binds the handler to srv.
func RegisterPushNotificationTask(srv qport.Server, h *PushNotificationTask) {
	srv.Register(PushNotificationTaskType, h.Handle)
}
