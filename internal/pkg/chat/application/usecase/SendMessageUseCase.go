package usecase

import (
	"context"

	"mkvr-chat/internal/identity"
	"mkvr-chat/internal/metrics"
	"mkvr-chat/internal/pkg/chat/application/delivery"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

// Deliverer routes an appended message to its recipient.
type Deliverer interface {
	Deliver(ctx context.Context, conv chat.Conversation, msg chat.Message) delivery.Outcome
}

// SendMessageInput carries the data needed to send a new message.
// DedupeKey makes resubmission after a failed response safe.
type SendMessageInput struct {
	Actor          identity.User
	ConversationID string
	Content        string
	DedupeKey      *string
}

type SendMessageOutput struct {
	Message   chat.Message
	Duplicate bool
	Outcome   delivery.Outcome
}

// SendMessageUseCase appends a message and hands it to the delivery router.
type SendMessageUseCase struct {
	Repo   repository.ChatRepository
	Router Deliverer
}

func NewSendMessageUseCase(repo repository.ChatRepository, router Deliverer) *SendMessageUseCase {
	return &SendMessageUseCase{Repo: repo, Router: router}
}

// Execute persists the message before any delivery is attempted. A duplicate
// returns the stored message and is not delivered again.
func (uc *SendMessageUseCase) Execute(ctx context.Context, in SendMessageInput) (SendMessageOutput, error) {
	if in.ConversationID == "" {
		return SendMessageOutput{}, chat.ErrConversationNotFound
	}
	if in.Actor.ID == "" {
		return SendMessageOutput{}, ErrInvalidInput
	}

	res, err := uc.Repo.AppendMessage(ctx, repository.AppendMessageInput{
		ConversationID: in.ConversationID,
		SenderID:       in.Actor.ID,
		Content:        in.Content,
		Kind:           chat.MessageKindText,
		DedupeKey:      in.DedupeKey,
	})
	if err != nil {
		return SendMessageOutput{}, storeError(err)
	}
	out := SendMessageOutput{Message: res.Message, Duplicate: res.Duplicate}
	if res.Duplicate {
		return out, nil
	}

	metrics.IncMessageAppended(string(res.Message.Kind))
	if uc.Router != nil {
		out.Outcome = uc.Router.Deliver(ctx, res.Conversation, res.Message)
	}
	return out, nil
}
