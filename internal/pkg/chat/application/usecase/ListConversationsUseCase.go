package usecase

import (
	"context"

	"mkvr-chat/internal/identity"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

// ConversationSummary is a conversation with the actor's unread count.
type ConversationSummary struct {
	chat.Conversation
	Unread int64 `json:"unread"`
}

// ListConversationsUseCase lists what the actor can see: their own threads,
// or every thread for admins.
type ListConversationsUseCase struct {
	Repo     repository.ChatRepository
	Unread   *UnreadUseCase
	PageSize int
}

func NewListConversationsUseCase(repo repository.ChatRepository, unread *UnreadUseCase) *ListConversationsUseCase {
	return &ListConversationsUseCase{Repo: repo, Unread: unread, PageSize: 200}
}

func (uc *ListConversationsUseCase) Execute(ctx context.Context, actor identity.User) ([]ConversationSummary, error) {
	var (
		convs []chat.Conversation
		err   error
	)
	if actor.IsAdmin() {
		convs, err = uc.all(ctx)
	} else {
		convs, err = uc.Repo.ListConversationsByParticipant(ctx, actor.ID)
	}
	if err != nil {
		return nil, storeError(err)
	}

	out := make([]ConversationSummary, 0, len(convs))
	for _, conv := range convs {
		reader, err := readerFor(actor, conv)
		if err != nil {
			continue
		}
		n, err := uc.Unread.UnreadCount(ctx, conv.ID, reader)
		if err != nil {
			return nil, err
		}
		out = append(out, ConversationSummary{Conversation: conv, Unread: n})
	}
	return out, nil
}

func (uc *ListConversationsUseCase) all(ctx context.Context) ([]chat.Conversation, error) {
	var (
		out   []chat.Conversation
		after string
	)
	for {
		page, err := uc.Repo.ListConversations(ctx, after, uc.PageSize)
		if err != nil {
			return nil, err
		}
		out = append(out, page...)
		if len(page) < uc.PageSize {
			return out, nil
		}
		after = page[len(page)-1].ID
	}
}
