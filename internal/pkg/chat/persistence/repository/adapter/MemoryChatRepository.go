package adapter

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

type pairKey struct {
	requesterID string
	staffID     string
}

type dedupeKey struct {
	senderID string
	key      string
}

// memoryThread is one conversation plus its log; messages[i].Seq == i+1.
type memoryThread struct {
	conv     chat.Conversation
	messages []chat.Message
	dedupe   map[dedupeKey]int
}

// MemoryChatRepository keeps conversations in process memory. It backs the
// "memory" store driver and the tests of everything above the store.
type MemoryChatRepository struct {
	mu      sync.RWMutex
	threads map[string]*memoryThread
	byPair  map[pairKey]string

	now func() time.Time
}

func NewMemoryChatRepository() *MemoryChatRepository {
	return &MemoryChatRepository{
		threads: make(map[string]*memoryThread),
		byPair:  make(map[pairKey]string),
		now:     time.Now,
	}
}

var _ repository.ChatRepository = (*MemoryChatRepository)(nil)

func (r *MemoryChatRepository) GetOrCreateConversation(ctx context.Context, requesterID, staffID string) (chat.Conversation, bool, error) {
	if err := ctx.Err(); err != nil {
		return chat.Conversation{}, false, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	key := pairKey{requesterID: requesterID, staffID: staffID}
	if id, ok := r.byPair[key]; ok {
		return r.threads[id].conv, false, nil
	}
	now := r.now().UTC()
	conv := chat.Conversation{
		ID:          uuid.NewString(),
		RequesterID: requesterID,
		StaffID:     staffID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	r.threads[conv.ID] = &memoryThread{conv: conv, dedupe: make(map[dedupeKey]int)}
	r.byPair[key] = conv.ID
	return conv, true, nil
}

func (r *MemoryChatRepository) GetConversation(ctx context.Context, conversationID string) (chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return chat.Conversation{}, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.threads[conversationID]
	if !ok {
		return chat.Conversation{}, chat.ErrConversationNotFound
	}
	return t.conv, nil
}

func (r *MemoryChatRepository) ListConversationsByParticipant(ctx context.Context, userID string) ([]chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	var out []chat.Conversation
	for _, t := range r.threads {
		if t.conv.HasParticipant(userID) {
			out = append(out, t.conv)
		}
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.After(out[j].UpdatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (r *MemoryChatRepository) ListConversations(ctx context.Context, afterID string, limit int) ([]chat.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 100
	}
	r.mu.RLock()
	all := make([]chat.Conversation, 0, len(r.threads))
	for _, t := range r.threads {
		if afterID == "" || t.conv.ID > afterID {
			all = append(all, t.conv)
		}
	}
	r.mu.RUnlock()

	sort.Slice(all, func(i, j int) bool { return all[i].ID < all[j].ID })
	if len(all) > limit {
		all = all[:limit]
	}
	return all, nil
}

func (r *MemoryChatRepository) AppendMessage(ctx context.Context, in repository.AppendMessageInput) (repository.AppendResult, error) {
	if err := ctx.Err(); err != nil {
		return repository.AppendResult{}, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads[in.ConversationID]
	if !ok {
		return repository.AppendResult{}, chat.ErrConversationNotFound
	}

	var dk *dedupeKey
	if in.DedupeKey != nil {
		if key := strings.TrimSpace(*in.DedupeKey); key != "" {
			dk = &dedupeKey{senderID: in.SenderID, key: key}
			if idx, ok := t.dedupe[*dk]; ok {
				return repository.AppendResult{Message: t.messages[idx], Conversation: t.conv, Duplicate: true}, nil
			}
		}
	}

	agg := chat.Chat{Conversation: t.conv}
	msg, err := agg.PostMessage(chat.Message{
		ID:             uuid.NewString(),
		ConversationID: in.ConversationID,
		SenderID:       in.SenderID,
		Content:        in.Content,
		Kind:           in.Kind,
		DedupeKey:      in.DedupeKey,
	}, r.now())
	if err != nil {
		return repository.AppendResult{}, err
	}

	t.messages = append(t.messages, msg)
	t.conv = agg.Conversation
	if dk != nil {
		t.dedupe[*dk] = len(t.messages) - 1
	}
	return repository.AppendResult{Message: msg, Conversation: t.conv}, nil
}

func (r *MemoryChatRepository) ListMessages(ctx context.Context, conversationID string, afterSeq int64, limit int) ([]chat.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 50
	}
	if afterSeq < 0 {
		afterSeq = 0
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.threads[conversationID]
	if !ok {
		return nil, chat.ErrConversationNotFound
	}
	if afterSeq >= int64(len(t.messages)) {
		return []chat.Message{}, nil
	}
	page := t.messages[afterSeq:]
	if len(page) > limit {
		page = page[:limit]
	}
	out := make([]chat.Message, len(page))
	copy(out, page)
	return out, nil
}

func (r *MemoryChatRepository) MarkRead(ctx context.Context, conversationID, readerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	t, ok := r.threads[conversationID]
	if !ok {
		return 0, chat.ErrConversationNotFound
	}
	var updated int64
	for i := range t.messages {
		m := &t.messages[i]
		if !m.IsRead && m.SenderID != readerID {
			m.IsRead = true
			updated++
		}
	}
	return updated, nil
}

func (r *MemoryChatRepository) CountUnread(ctx context.Context, conversationID, readerID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	t, ok := r.threads[conversationID]
	if !ok {
		return 0, chat.ErrConversationNotFound
	}
	return countUnread(t.messages, readerID), nil
}

func (r *MemoryChatRepository) CountUnreadForUser(ctx context.Context, userID string) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var n int64
	for _, t := range r.threads {
		if t.conv.HasParticipant(userID) {
			n += countUnread(t.messages, userID)
		}
	}
	return n, nil
}

func countUnread(msgs []chat.Message, readerID string) int64 {
	var n int64
	for _, m := range msgs {
		if !m.IsRead && m.SenderID != readerID {
			n++
		}
	}
	return n
}
