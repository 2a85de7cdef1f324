package chat

import (
	"strings"
	"time"
	"unicode/utf8"
)

// MessageKind distinguishes regular thread messages from admin announcements.
type MessageKind string

const (
	MessageKindText      MessageKind = "message"
	MessageKindBroadcast MessageKind = "broadcast"
)

// MaxContentLength bounds message content in runes.
const MaxContentLength = 4000

// Message is an immutable log entry in a conversation. IsRead is the only
// mutable field and only ever moves from false to true.
type Message struct {
	ID             string      `db:"id" json:"id"`
	ConversationID string      `db:"conversation_id" json:"conversationId"`
	Seq            int64       `db:"seq" json:"seq"`
	SenderID       string      `db:"sender_id" json:"senderId"`
	Content        string      `db:"content" json:"content"`
	Kind           MessageKind `db:"kind" json:"kind"`
	CreatedAt      time.Time   `db:"created_at" json:"createdAt"`
	IsRead         bool        `db:"is_read" json:"isRead"`
	DedupeKey      *string     `db:"dedupe_key" json:"dedupeKey,omitempty"`
}

// NewMessage validates and normalizes a message before it is posted.
func NewMessage(m Message) (*Message, error) {
	if m.ConversationID == "" || m.SenderID == "" {
		return nil, ErrInvalidConversation
	}

	m.Content = strings.TrimSpace(m.Content)
	if m.Content == "" {
		return nil, ErrEmptyMessage
	}
	if utf8.RuneCountInString(m.Content) > MaxContentLength {
		return nil, ErrMessageTooLong
	}

	if m.DedupeKey != nil {
		key := strings.TrimSpace(*m.DedupeKey)
		if key == "" {
			m.DedupeKey = nil
		} else {
			m.DedupeKey = &key
		}
	}

	if m.Kind == "" {
		m.Kind = MessageKindText
	}
	m.IsRead = false

	return &m, nil
}
