package repository

import (
	"context"

	chat "mkvr-chat/internal/pkg/chat/application/domain"
)

// PushEndpointRepository persists at most one push endpoint per user.
type PushEndpointRepository interface {
	// Upsert stores the endpoint, replacing any previous one for the same user.
	Upsert(ctx context.Context, e chat.PushEndpoint) error
	// Get returns nil without error when the user has no endpoint.
	Get(ctx context.Context, userID string) (*chat.PushEndpoint, error)
	// Delete is a no-op when nothing is registered.
	Delete(ctx context.Context, userID string) error
}
