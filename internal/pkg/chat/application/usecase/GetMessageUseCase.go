package usecase

import (
	"context"

	"mkvr-chat/internal/identity"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

// GetMessageInput selects one page of history. After is the seq cursor
// (0 starts from the beginning); Limit <= 0 means the default page size.
type GetMessageInput struct {
	Actor          identity.User
	ConversationID string
	After          int64
	Limit          int
}

// GetMessageOutput carries the page. NextCursor is nil once the history is exhausted.
type GetMessageOutput struct {
	Messages   []chat.Message
	NextCursor *int64
}

// GetMessageUseCase pages through a conversation's messages in seq order.
type GetMessageUseCase struct {
	Repo         repository.ChatRepository
	DefaultLimit int
	MaxLimit     int
}

func NewGetMessageUseCase(repo repository.ChatRepository, defaultLimit, maxLimit int) *GetMessageUseCase {
	if defaultLimit <= 0 {
		defaultLimit = 50
	}
	if maxLimit < defaultLimit {
		maxLimit = defaultLimit
	}
	return &GetMessageUseCase{Repo: repo, DefaultLimit: defaultLimit, MaxLimit: maxLimit}
}

func (uc *GetMessageUseCase) Execute(ctx context.Context, in GetMessageInput) (GetMessageOutput, error) {
	if in.After < 0 {
		return GetMessageOutput{}, ErrInvalidInput
	}
	if _, _, err := loadReadable(ctx, uc.Repo, in.Actor, in.ConversationID); err != nil {
		return GetMessageOutput{}, err
	}

	limit := in.Limit
	if limit <= 0 {
		limit = uc.DefaultLimit
	}
	if limit > uc.MaxLimit {
		limit = uc.MaxLimit
	}

	msgs, err := uc.Repo.ListMessages(ctx, in.ConversationID, in.After, limit)
	if err != nil {
		return GetMessageOutput{}, storeError(err)
	}
	if msgs == nil {
		msgs = []chat.Message{}
	}
	out := GetMessageOutput{Messages: msgs}
	if len(msgs) == limit {
		next := msgs[len(msgs)-1].Seq
		out.NextCursor = &next
	}
	return out, nil
}
