package usecase

import (
	"context"

	"mkvr-chat/internal/identity"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

// readerFor returns the identity whose read state actor sees in conv.
// Admins outside the conversation act on behalf of its staff side.
func readerFor(actor identity.User, conv chat.Conversation) (string, error) {
	if conv.HasParticipant(actor.ID) {
		return actor.ID, nil
	}
	if actor.IsAdmin() {
		return conv.StaffID, nil
	}
	return "", chat.ErrNotParticipant
}

// loadReadable fetches the conversation and checks actor may read it.
func loadReadable(ctx context.Context, repo repository.ChatRepository, actor identity.User, conversationID string) (chat.Conversation, string, error) {
	if conversationID == "" {
		return chat.Conversation{}, "", chat.ErrConversationNotFound
	}
	conv, err := repo.GetConversation(ctx, conversationID)
	if err != nil {
		return chat.Conversation{}, "", storeError(err)
	}
	reader, err := readerFor(actor, conv)
	if err != nil {
		return chat.Conversation{}, "", err
	}
	return conv, reader, nil
}
