package usecase

import (
	"errors"
	"fmt"

	chat "mkvr-chat/internal/pkg/chat/application/domain"
)

var (
	// ErrPersistence indicates an infrastructure/repository failure inside a use case
	ErrPersistence = errors.New("chat use case persistence error")
	// ErrForbidden is returned when the actor's role does not allow the operation
	ErrForbidden = errors.New("chat: operation not allowed for this role")
	// ErrInvalidInput covers malformed request parameters
	ErrInvalidInput = errors.New("chat: invalid input")
)

// domainErrors pass through use cases untouched; everything else from the store is a persistence failure.
var domainErrors = []error{
	chat.ErrConversationNotFound,
	chat.ErrNotParticipant,
	chat.ErrSameParticipant,
	chat.ErrEmptyMessage,
	chat.ErrMessageTooLong,
	chat.ErrInvalidConversation,
}

func storeError(err error) error {
	if err == nil {
		return nil
	}
	for _, d := range domainErrors {
		if errors.Is(err, d) {
			return err
		}
	}
	return fmt.Errorf("%w: %v", ErrPersistence, err)
}
