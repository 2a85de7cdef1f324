package usecase

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"mkvr-chat/internal/identity"
	"mkvr-chat/internal/pkg/chat/application/delivery"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repoadapter "mkvr-chat/internal/pkg/chat/persistence/repository/adapter"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

var (
	requester = identity.User{ID: "parent-1", Role: identity.RoleRequester}
	dependent = identity.User{ID: "child-1", Role: identity.RoleDependent}
	staff     = identity.User{ID: "admin-1", Role: identity.RoleStaff}
	admin     = identity.User{ID: "root-admin", Role: identity.RoleAdmin}
	outsider  = identity.User{ID: "parent-9", Role: identity.RoleRequester}
)

type recordingDeliverer struct {
	mu   sync.Mutex
	msgs []chat.Message
}

func (d *recordingDeliverer) Deliver(_ context.Context, conv chat.Conversation, msg chat.Message) delivery.Outcome {
	d.mu.Lock()
	d.msgs = append(d.msgs, msg)
	d.mu.Unlock()
	return delivery.Outcome{Recipient: conv.RecipientOf(msg.SenderID)}
}

func (d *recordingDeliverer) Count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.msgs)
}

type services struct {
	repo      *repoadapter.MemoryChatRepository
	deliverer *recordingDeliverer
	start     *StartConversationUseCase
	send      *SendMessageUseCase
	history   *GetMessageUseCase
	markRead  *MarkReadUseCase
	unread    *UnreadUseCase
	list      *ListConversationsUseCase
	broadcast *BroadcastUseCase
}

func newServices() *services {
	repo := repoadapter.NewMemoryChatRepository()
	d := &recordingDeliverer{}
	unread := NewUnreadUseCase(repo)
	return &services{
		repo:      repo,
		deliverer: d,
		start:     NewStartConversationUseCase(repo, "admin-1"),
		send:      NewSendMessageUseCase(repo, d),
		history:   NewGetMessageUseCase(repo, 2, 3),
		markRead:  NewMarkReadUseCase(repo),
		unread:    unread,
		list:      NewListConversationsUseCase(repo, unread),
		broadcast: NewBroadcastUseCase(repo, d, 2),
	}
}

func TestFirstMessageFromRequester(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	conv, err := s.start.Execute(ctx, StartConversationInput{Actor: requester})
	require.NoError(t, err)
	require.Equal(t, "admin-1", conv.StaffID)

	out, err := s.send.Execute(ctx, SendMessageInput{Actor: requester, ConversationID: conv.ID, Content: "hello"})
	require.NoError(t, err)
	require.Equal(t, "hello", out.Message.Content)
	require.Equal(t, int64(1), out.Message.Seq)
	require.Equal(t, "admin-1", out.Outcome.Recipient)
	require.Equal(t, 1, s.deliverer.Count())

	n, err := s.unread.UnreadCount(ctx, conv.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)
	n, err = s.unread.UnreadCount(ctx, conv.ID, requester.ID)
	require.NoError(t, err)
	require.Zero(t, n)
}

func TestStartConversationConcurrentCallsShareOneRow(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	ids := make(chan string, 10)
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conv, err := s.start.Execute(ctx, StartConversationInput{Actor: requester})
			if err == nil {
				ids <- conv.ID
			}
		}()
	}
	wg.Wait()
	close(ids)

	seen := map[string]struct{}{}
	for id := range ids {
		seen[id] = struct{}{}
	}
	require.Len(t, seen, 1)
}

func TestStartConversationRules(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	_, err := s.start.Execute(ctx, StartConversationInput{Actor: staff})
	require.ErrorIs(t, err, ErrForbidden)

	_, err = s.start.Execute(ctx, StartConversationInput{Actor: dependent, StaffID: dependent.ID})
	require.ErrorIs(t, err, chat.ErrSameParticipant)

	conv, err := s.start.Execute(ctx, StartConversationInput{Actor: dependent, StaffID: "admin-2"})
	require.NoError(t, err)
	require.Equal(t, "admin-2", conv.StaffID)

	empty := NewStartConversationUseCase(s.repo, "")
	_, err = empty.Execute(ctx, StartConversationInput{Actor: requester})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestSendMessageRules(t *testing.T) {
	s := newServices()
	ctx := context.Background()
	conv, err := s.start.Execute(ctx, StartConversationInput{Actor: requester})
	require.NoError(t, err)

	_, err = s.send.Execute(ctx, SendMessageInput{Actor: outsider, ConversationID: conv.ID, Content: "hi"})
	require.ErrorIs(t, err, chat.ErrNotParticipant)

	_, err = s.send.Execute(ctx, SendMessageInput{Actor: requester, ConversationID: conv.ID, Content: "  "})
	require.ErrorIs(t, err, chat.ErrEmptyMessage)

	_, err = s.send.Execute(ctx, SendMessageInput{Actor: requester, ConversationID: "missing", Content: "hi"})
	require.ErrorIs(t, err, chat.ErrConversationNotFound)

	require.Zero(t, s.deliverer.Count())
}

func TestSendMessageDuplicateIsNotRedelivered(t *testing.T) {
	s := newServices()
	ctx := context.Background()
	conv, err := s.start.Execute(ctx, StartConversationInput{Actor: requester})
	require.NoError(t, err)

	key := "retry-1"
	in := SendMessageInput{Actor: requester, ConversationID: conv.ID, Content: "hello", DedupeKey: &key}
	first, err := s.send.Execute(ctx, in)
	require.NoError(t, err)
	second, err := s.send.Execute(ctx, in)
	require.NoError(t, err)

	require.True(t, second.Duplicate)
	require.Equal(t, first.Message.ID, second.Message.ID)
	require.Equal(t, 1, s.deliverer.Count())
}

func TestHistoryPaging(t *testing.T) {
	s := newServices()
	ctx := context.Background()
	conv, err := s.start.Execute(ctx, StartConversationInput{Actor: requester})
	require.NoError(t, err)
	for _, c := range []string{"a", "b", "c"} {
		_, err := s.send.Execute(ctx, SendMessageInput{Actor: requester, ConversationID: conv.ID, Content: c})
		require.NoError(t, err)
	}

	page, err := s.history.Execute(ctx, GetMessageInput{Actor: staff, ConversationID: conv.ID})
	require.NoError(t, err)
	require.Len(t, page.Messages, 2)
	require.NotNil(t, page.NextCursor)
	require.Equal(t, int64(2), *page.NextCursor)

	page, err = s.history.Execute(ctx, GetMessageInput{Actor: staff, ConversationID: conv.ID, After: *page.NextCursor})
	require.NoError(t, err)
	require.Len(t, page.Messages, 1)
	require.Equal(t, "c", page.Messages[0].Content)
	require.Nil(t, page.NextCursor)

	page, err = s.history.Execute(ctx, GetMessageInput{Actor: admin, ConversationID: conv.ID, Limit: 50})
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)

	_, err = s.history.Execute(ctx, GetMessageInput{Actor: outsider, ConversationID: conv.ID})
	require.ErrorIs(t, err, chat.ErrNotParticipant)

	_, err = s.history.Execute(ctx, GetMessageInput{Actor: staff, ConversationID: conv.ID, After: -1})
	require.ErrorIs(t, err, ErrInvalidInput)
}

func TestMarkReadAndList(t *testing.T) {
	s := newServices()
	ctx := context.Background()
	conv, err := s.start.Execute(ctx, StartConversationInput{Actor: requester})
	require.NoError(t, err)
	_, err = s.send.Execute(ctx, SendMessageInput{Actor: requester, ConversationID: conv.ID, Content: "one"})
	require.NoError(t, err)
	_, err = s.send.Execute(ctx, SendMessageInput{Actor: requester, ConversationID: conv.ID, Content: "two"})
	require.NoError(t, err)

	list, err := s.list.Execute(ctx, staff)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(2), list[0].Unread)

	list, err = s.list.Execute(ctx, admin)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, int64(2), list[0].Unread)

	list, err = s.list.Execute(ctx, outsider)
	require.NoError(t, err)
	require.Empty(t, list)

	n, err := s.markRead.Execute(ctx, MarkReadInput{Actor: staff, ConversationID: conv.ID})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	n, err = s.markRead.Execute(ctx, MarkReadInput{Actor: staff, ConversationID: conv.ID})
	require.NoError(t, err)
	require.Zero(t, n)

	total, err := s.unread.TotalUnread(ctx, staff.ID)
	require.NoError(t, err)
	require.Zero(t, total)

	_, err = s.markRead.Execute(ctx, MarkReadInput{Actor: outsider, ConversationID: conv.ID})
	require.ErrorIs(t, err, chat.ErrNotParticipant)
}

func TestBroadcastReachesEveryConversation(t *testing.T) {
	s := newServices()
	s.broadcast.PageSize = 2
	ctx := context.Background()

	var convs []chat.Conversation
	for _, id := range []string{"parent-1", "parent-2", "parent-3"} {
		conv, err := s.start.Execute(ctx, StartConversationInput{Actor: identity.User{ID: id, Role: identity.RoleRequester}})
		require.NoError(t, err)
		convs = append(convs, conv)
	}

	n, err := s.broadcast.Execute(ctx, admin, "Sale!")
	require.NoError(t, err)
	require.Equal(t, 3, n)
	require.Equal(t, 3, s.deliverer.Count())

	for _, conv := range convs {
		unread, err := s.unread.UnreadCount(ctx, conv.ID, conv.RequesterID)
		require.NoError(t, err)
		require.Equal(t, int64(1), unread)

		msgs, err := s.repo.ListMessages(ctx, conv.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1)
		require.Equal(t, chat.MessageKindBroadcast, msgs[0].Kind)
		require.Equal(t, admin.ID, msgs[0].SenderID)
	}
}

func TestBroadcastRules(t *testing.T) {
	s := newServices()
	ctx := context.Background()

	_, err := s.broadcast.Execute(ctx, staff, "Sale!")
	require.ErrorIs(t, err, ErrForbidden)

	_, err = s.broadcast.Execute(ctx, admin, " ")
	require.ErrorIs(t, err, chat.ErrEmptyMessage)

	n, err := s.broadcast.Execute(ctx, admin, "nobody home")
	require.NoError(t, err)
	require.Zero(t, n)
}

// failingRepo fails appends for one conversation.
type failingRepo struct {
	repository.ChatRepository
	failID string
}

func (f failingRepo) AppendMessage(ctx context.Context, in repository.AppendMessageInput) (repository.AppendResult, error) {
	if in.ConversationID == f.failID {
		return repository.AppendResult{}, errors.New("connection reset")
	}
	return f.ChatRepository.AppendMessage(ctx, in)
}

func TestBroadcastCountsOnlySuccessfulAppends(t *testing.T) {
	s := newServices()
	ctx := context.Background()
	a, err := s.start.Execute(ctx, StartConversationInput{Actor: requester})
	require.NoError(t, err)
	_, err = s.start.Execute(ctx, StartConversationInput{Actor: dependent})
	require.NoError(t, err)

	uc := NewBroadcastUseCase(failingRepo{ChatRepository: s.repo, failID: a.ID}, s.deliverer, 4)
	n, err := uc.Execute(ctx, admin, "Sale!")
	require.NoError(t, err)
	require.Equal(t, 1, n)
}

// cancelOnFirstDelivery cancels the caller's context as soon as one message is routed.
type cancelOnFirstDelivery struct {
	recordingDeliverer
	once   sync.Once
	cancel context.CancelFunc
}

func (d *cancelOnFirstDelivery) Deliver(ctx context.Context, conv chat.Conversation, msg chat.Message) delivery.Outcome {
	d.once.Do(d.cancel)
	return d.recordingDeliverer.Deliver(ctx, conv, msg)
}

func TestBroadcastSurvivesCallerCancellation(t *testing.T) {
	s := newServices()
	const conversations = 150
	for i := 0; i < conversations; i++ {
		_, _, err := s.repo.GetOrCreateConversation(context.Background(), fmt.Sprintf("parent-%03d", i), "admin-1")
		require.NoError(t, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := &cancelOnFirstDelivery{cancel: cancel}
	uc := NewBroadcastUseCase(s.repo, d, 4)
	uc.PageSize = 20

	n, err := uc.Execute(ctx, admin, "Closed on Friday")
	require.NoError(t, err)
	require.Equal(t, conversations, n)
	require.Equal(t, conversations, d.Count())
	require.Error(t, ctx.Err())

	all, err := s.repo.ListConversations(context.Background(), "", conversations+1)
	require.NoError(t, err)
	require.Len(t, all, conversations)
	for _, conv := range all {
		msgs, err := s.repo.ListMessages(context.Background(), conv.ID, 0, 10)
		require.NoError(t, err)
		require.Len(t, msgs, 1, conv.ID)
		require.Equal(t, chat.MessageKindBroadcast, msgs[0].Kind)
	}
}

func TestBroadcastFailsOnlyWhenNothingWasListed(t *testing.T) {
	s := newServices()
	_, err := s.start.Execute(context.Background(), StartConversationInput{Actor: requester})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	n, err := s.broadcast.Execute(ctx, admin, "late")
	require.ErrorIs(t, err, ErrPersistence)
	require.Zero(t, n)
	require.Zero(t, s.deliverer.Count())
}

func TestStoreErrorWrapping(t *testing.T) {
	require.NoError(t, storeError(nil))
	require.ErrorIs(t, storeError(chat.ErrNotParticipant), chat.ErrNotParticipant)
	err := storeError(errors.New("pool closed"))
	require.ErrorIs(t, err, ErrPersistence)
}
