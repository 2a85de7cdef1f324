package usecase

import (
	"context"

	"mkvr-chat/internal/identity"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

type MarkReadInput struct {
	Actor          identity.User
	ConversationID string
}

// MarkReadUseCase marks everything the other side sent as read.
type MarkReadUseCase struct {
	Repo repository.ChatRepository
}

func NewMarkReadUseCase(repo repository.ChatRepository) *MarkReadUseCase {
	return &MarkReadUseCase{Repo: repo}
}

// Execute returns how many messages changed; repeating it returns 0.
func (uc *MarkReadUseCase) Execute(ctx context.Context, in MarkReadInput) (int64, error) {
	_, reader, err := loadReadable(ctx, uc.Repo, in.Actor, in.ConversationID)
	if err != nil {
		return 0, err
	}
	n, err := uc.Repo.MarkRead(ctx, in.ConversationID, reader)
	if err != nil {
		return 0, storeError(err)
	}
	return n, nil
}
