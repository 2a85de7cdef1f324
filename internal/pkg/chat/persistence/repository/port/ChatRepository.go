package repository

import (
	"context"

	chat "mkvr-chat/internal/pkg/chat/application/domain"
)

// AppendMessageInput carries everything the store needs to append one message.
type AppendMessageInput struct {
	ConversationID string
	SenderID       string
	Content        string
	Kind           chat.MessageKind
	DedupeKey      *string
}

// AppendResult is the outcome of an append. Duplicate is set when DedupeKey
// matched an earlier message from the same sender; Message is then the stored one.
type AppendResult struct {
	Message      chat.Message
	Conversation chat.Conversation
	Duplicate    bool
}

// ChatRepository defines persistence operations for conversations and their message log.
// It is the single writer of both. Domain errors (chat.ErrConversationNotFound,
// chat.ErrNotParticipant, chat.ErrEmptyMessage, ...) are returned as-is; anything
// else is an infrastructure failure.
type ChatRepository interface {
	// GetOrCreateConversation returns the conversation for the pair, creating it when absent.
	// created reports whether this call inserted the row.
	GetOrCreateConversation(ctx context.Context, requesterID, staffID string) (conv chat.Conversation, created bool, err error)
	GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error)
	// ListConversationsByParticipant returns conversations where userID is requester or staff, newest activity first.
	ListConversationsByParticipant(ctx context.Context, userID string) ([]chat.Conversation, error)
	// ListConversations pages through every conversation ordered by ID, starting after afterID.
	ListConversations(ctx context.Context, afterID string, limit int) ([]chat.Conversation, error)

	AppendMessage(ctx context.Context, in AppendMessageInput) (AppendResult, error)
	// ListMessages returns up to limit messages with Seq > afterSeq in ascending Seq order.
	ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]chat.Message, error)
	// MarkRead flags every unread message not sent by readerID and returns how many changed.
	MarkRead(ctx context.Context, conversationID, readerID string) (int64, error)

	CountUnread(ctx context.Context, conversationID, readerID string) (int64, error)
	CountUnreadForUser(ctx context.Context, userID string) (int64, error)
}
