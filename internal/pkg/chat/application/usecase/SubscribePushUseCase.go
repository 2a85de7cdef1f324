package usecase

import (
	"context"
	"errors"
	"fmt"

	"mkvr-chat/internal/identity"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	"mkvr-chat/internal/pkg/subscription"
)

// PushRegistry is the push half of the subscription registry.
type PushRegistry interface {
	RegisterPush(ctx context.Context, e chat.PushEndpoint) error
	UnregisterPush(ctx context.Context, userID string) error
}

type SubscribePushInput struct {
	Actor    identity.User
	Endpoint string
	KeyA     string
	KeyB     string
}

// SubscribePushUseCase stores the actor's push endpoint, replacing any earlier one.
type SubscribePushUseCase struct {
	Registry PushRegistry
}

func NewSubscribePushUseCase(registry PushRegistry) *SubscribePushUseCase {
	return &SubscribePushUseCase{Registry: registry}
}

func (uc *SubscribePushUseCase) Execute(ctx context.Context, in SubscribePushInput) error {
	err := uc.Registry.RegisterPush(ctx, chat.PushEndpoint{
		UserID:   in.Actor.ID,
		Endpoint: in.Endpoint,
		KeyA:     in.KeyA,
		KeyB:     in.KeyB,
	})
	switch {
	case err == nil:
		return nil
	case errors.Is(err, subscription.ErrInvalidEndpoint):
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	default:
		return storeError(err)
	}
}
