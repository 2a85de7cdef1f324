package usecase

import (
	"context"

	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

// UnreadUseCase answers unread questions straight from the message log;
// there are no stored counters to drift.
type UnreadUseCase struct {
	Repo repository.ChatRepository
}

func NewUnreadUseCase(repo repository.ChatRepository) *UnreadUseCase {
	return &UnreadUseCase{Repo: repo}
}

// UnreadCount counts unread messages in one conversation not sent by readerID.
func (uc *UnreadUseCase) UnreadCount(ctx context.Context, conversationID, readerID string) (int64, error) {
	n, err := uc.Repo.CountUnread(ctx, conversationID, readerID)
	return n, storeError(err)
}

// TotalUnread sums UnreadCount over every conversation userID takes part in.
func (uc *UnreadUseCase) TotalUnread(ctx context.Context, userID string) (int64, error) {
	n, err := uc.Repo.CountUnreadForUser(ctx, userID)
	return n, storeError(err)
}
