package usecase

import (
	"context"
	"strings"

	"mkvr-chat/internal/identity"
	"mkvr-chat/internal/logging"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

// StartConversationInput opens (or reopens) the actor's thread with a staff member.
// An empty StaffID means the configured default staff account.
type StartConversationInput struct {
	Actor   identity.User
	StaffID string
}

// StartConversationUseCase returns the single conversation for a requester/staff pair.
type StartConversationUseCase struct {
	Repo           repository.ChatRepository
	DefaultStaffID string
}

func NewStartConversationUseCase(repo repository.ChatRepository, defaultStaffID string) *StartConversationUseCase {
	return &StartConversationUseCase{Repo: repo, DefaultStaffID: defaultStaffID}
}

// Execute is idempotent: repeated calls return the same conversation.
func (uc *StartConversationUseCase) Execute(ctx context.Context, in StartConversationInput) (chat.Conversation, error) {
	if !in.Actor.CanStartConversation() {
		return chat.Conversation{}, ErrForbidden
	}
	staffID := strings.TrimSpace(in.StaffID)
	if staffID == "" {
		staffID = uc.DefaultStaffID
	}
	if staffID == "" {
		return chat.Conversation{}, ErrInvalidInput
	}
	if staffID == in.Actor.ID {
		return chat.Conversation{}, chat.ErrSameParticipant
	}

	conv, created, err := uc.Repo.GetOrCreateConversation(ctx, in.Actor.ID, staffID)
	if err != nil {
		return chat.Conversation{}, storeError(err)
	}
	if created {
		logging.Get().Info().
			Str("conversation_id", conv.ID).
			Str("user_id", in.Actor.ID).
			Str("staff_id", staffID).
			Msg("conversation started")
	}
	return conv, nil
}
