package adapter

import (
	"context"
	"sync"
	"time"

	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

type MemoryPushEndpointRepository struct {
	mu        sync.RWMutex
	endpoints map[string]chat.PushEndpoint
}

func NewMemoryPushEndpointRepository() *MemoryPushEndpointRepository {
	return &MemoryPushEndpointRepository{endpoints: make(map[string]chat.PushEndpoint)}
}

var _ repository.PushEndpointRepository = (*MemoryPushEndpointRepository)(nil)

func (r *MemoryPushEndpointRepository) Upsert(ctx context.Context, e chat.PushEndpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.endpoints[e.UserID]; ok {
		e.CreatedAt = prev.CreatedAt
	} else {
		e.CreatedAt = now
	}
	e.UpdatedAt = now
	r.endpoints[e.UserID] = e
	return nil
}

func (r *MemoryPushEndpointRepository) Get(ctx context.Context, userID string) (*chat.PushEndpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.endpoints[userID]
	if !ok {
		return nil, nil
	}
	return &e, nil
}

func (r *MemoryPushEndpointRepository) Delete(ctx context.Context, userID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	delete(r.endpoints, userID)
	r.mu.Unlock()
	return nil
}
