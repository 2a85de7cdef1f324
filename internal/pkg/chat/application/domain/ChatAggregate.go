package chat

import (
	"errors"
	"time"
)

// Domain-level errors for chat behaviors
var (
	ErrInvalidConversation  = errors.New("chat: conversation/message mismatch")
	ErrConversationNotFound = errors.New("chat: conversation not found")
	ErrNotParticipant       = errors.New("chat: sender is not a participant in the conversation")
	ErrSameParticipant      = errors.New("chat: requester and staff must be different users")
	ErrEmptyMessage         = errors.New("chat: empty message")
	ErrMessageTooLong       = errors.New("chat: message exceeds maximum length")
)

// Chat is the domain aggregate for a conversation and its append-only log.
//
// The store hydrates it with the conversation row (locked for the duration of
// the append) and persists whatever PostMessage returns together with the
// advanced conversation watermark.
type Chat struct {
	Conversation Conversation
}

// PostMessage applies domain rules and returns a validated message ready to persist.
//
// Validations:
//   - Conversation/message identity must match
//   - Sender must be a participant, except for broadcasts which are authorized upstream
//   - Content must be present (see NewMessage)
//
// Behavior:
//   - Seq is assigned as LastSeq+1 and the conversation watermark is advanced.
//   - CreatedAt never goes backwards within a conversation, so (CreatedAt, ID)
//     order agrees with Seq even if the wall clock steps back.
func (c *Chat) PostMessage(m Message, now time.Time) (Message, error) {
	if m.ConversationID == "" || c.Conversation.ID == "" || m.ConversationID != c.Conversation.ID {
		return Message{}, ErrInvalidConversation
	}

	validated, err := NewMessage(m)
	if err != nil {
		return Message{}, err
	}

	if validated.Kind != MessageKindBroadcast && !c.Conversation.HasParticipant(validated.SenderID) {
		return Message{}, ErrNotParticipant
	}

	if now.IsZero() {
		now = time.Now()
	}
	ts := now.UTC()
	if c.Conversation.LastSeq > 0 && ts.Before(c.Conversation.UpdatedAt) {
		ts = c.Conversation.UpdatedAt.UTC()
	}

	validated.CreatedAt = ts
	validated.Seq = c.Conversation.LastSeq + 1

	c.Conversation.LastSeq = validated.Seq
	c.Conversation.UpdatedAt = ts

	return *validated, nil
}
