package usecase

import (
	"context"

	"mkvr-chat/internal/identity"
)

// UnsubscribePushUseCase removes the actor's push endpoint. Nothing registered is not an error.
type UnsubscribePushUseCase struct {
	Registry PushRegistry
}

func NewUnsubscribePushUseCase(registry PushRegistry) *UnsubscribePushUseCase {
	return &UnsubscribePushUseCase{Registry: registry}
}

func (uc *UnsubscribePushUseCase) Execute(ctx context.Context, actor identity.User) error {
	return storeError(uc.Registry.UnregisterPush(ctx, actor.ID))
}
