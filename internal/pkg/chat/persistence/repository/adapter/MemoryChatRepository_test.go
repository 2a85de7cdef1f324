package adapter

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

func TestMemoryGetOrCreateConversationIsUnique(t *testing.T) {
	repo := NewMemoryChatRepository()
	ctx := context.Background()

	const workers = 16
	ids := make([]string, workers)
	created := make([]bool, workers)
	errs := make([]error, workers)
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			conv, c, err := repo.GetOrCreateConversation(ctx, "parent-1", "admin-1")
			ids[i], created[i], errs[i] = conv.ID, c, err
		}(i)
	}
	wg.Wait()

	nCreated := 0
	for i := range ids {
		require.NoError(t, errs[i])
		require.Equal(t, ids[0], ids[i])
		if created[i] {
			nCreated++
		}
	}
	require.Equal(t, 1, nCreated)

	all, err := repo.ListConversations(ctx, "", 10)
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestMemoryAppendAndPage(t *testing.T) {
	repo := NewMemoryChatRepository()
	ctx := context.Background()
	conv, _, err := repo.GetOrCreateConversation(ctx, "parent-1", "admin-1")
	require.NoError(t, err)

	for i := 0; i < 5; i++ {
		sender := "parent-1"
		if i%2 == 1 {
			sender = "admin-1"
		}
		res, err := repo.AppendMessage(ctx, repository.AppendMessageInput{
			ConversationID: conv.ID,
			SenderID:       sender,
			Content:        "m",
		})
		require.NoError(t, err)
		require.Equal(t, int64(i+1), res.Message.Seq)
		require.Equal(t, int64(i+1), res.Conversation.LastSeq)
	}

	first, err := repo.ListMessages(ctx, conv.ID, 0, 2)
	require.NoError(t, err)
	require.Len(t, first, 2)
	require.Equal(t, int64(1), first[0].Seq)

	rest, err := repo.ListMessages(ctx, conv.ID, first[1].Seq, 10)
	require.NoError(t, err)
	require.Len(t, rest, 3)
	require.Equal(t, int64(3), rest[0].Seq)
	require.Equal(t, int64(5), rest[2].Seq)

	empty, err := repo.ListMessages(ctx, conv.ID, 5, 10)
	require.NoError(t, err)
	require.Empty(t, empty)

	_, err = repo.ListMessages(ctx, "missing", 0, 10)
	require.ErrorIs(t, err, chat.ErrConversationNotFound)
}

func TestMemoryConcurrentAppendsFormGaplessOrder(t *testing.T) {
	repo := NewMemoryChatRepository()
	ctx := context.Background()
	conv, _, err := repo.GetOrCreateConversation(ctx, "parent-1", "admin-1")
	require.NoError(t, err)

	const perSender = 50
	senders := []string{"parent-1", "admin-1"}
	errs := make(chan error, perSender*len(senders))
	var wg sync.WaitGroup
	for _, sender := range senders {
		for i := 0; i < perSender; i++ {
			wg.Add(1)
			go func(sender string) {
				defer wg.Done()
				_, err := repo.AppendMessage(ctx, repository.AppendMessageInput{ConversationID: conv.ID, SenderID: sender, Content: "m"})
				errs <- err
			}(sender)
		}
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	total := perSender * len(senders)
	got, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Equal(t, int64(total), got.LastSeq)

	seen := make(map[string]bool, total)
	bySender := map[string]int{}
	var after int64
	for {
		page, err := repo.ListMessages(ctx, conv.ID, after, 7)
		require.NoError(t, err)
		if len(page) == 0 {
			break
		}
		for _, m := range page {
			require.Equal(t, after+1, m.Seq)
			require.False(t, seen[m.ID], m.ID)
			seen[m.ID] = true
			bySender[m.SenderID]++
			after = m.Seq
		}
	}
	require.Equal(t, int64(total), after)
	require.Len(t, seen, total)
	require.Equal(t, map[string]int{"parent-1": perSender, "admin-1": perSender}, bySender)
}

func TestMemoryCountUnreadUnknownConversation(t *testing.T) {
	repo := NewMemoryChatRepository()
	_, err := repo.CountUnread(context.Background(), "missing", "admin-1")
	require.ErrorIs(t, err, chat.ErrConversationNotFound)
}

func TestMemoryAppendRejectsOutsider(t *testing.T) {
	repo := NewMemoryChatRepository()
	ctx := context.Background()
	conv, _, err := repo.GetOrCreateConversation(ctx, "parent-1", "admin-1")
	require.NoError(t, err)

	_, err = repo.AppendMessage(ctx, repository.AppendMessageInput{ConversationID: conv.ID, SenderID: "stranger", Content: "hi"})
	require.ErrorIs(t, err, chat.ErrNotParticipant)

	_, err = repo.AppendMessage(ctx, repository.AppendMessageInput{ConversationID: conv.ID, SenderID: "parent-1", Content: " "})
	require.ErrorIs(t, err, chat.ErrEmptyMessage)

	_, err = repo.AppendMessage(ctx, repository.AppendMessageInput{ConversationID: "nope", SenderID: "parent-1", Content: "x"})
	require.ErrorIs(t, err, chat.ErrConversationNotFound)

	got, err := repo.GetConversation(ctx, conv.ID)
	require.NoError(t, err)
	require.Zero(t, got.LastSeq)
}

func TestMemoryAppendDedupe(t *testing.T) {
	repo := NewMemoryChatRepository()
	ctx := context.Background()
	conv, _, err := repo.GetOrCreateConversation(ctx, "parent-1", "admin-1")
	require.NoError(t, err)

	key := "client-42"
	in := repository.AppendMessageInput{ConversationID: conv.ID, SenderID: "parent-1", Content: "hello", DedupeKey: &key}

	first, err := repo.AppendMessage(ctx, in)
	require.NoError(t, err)
	require.False(t, first.Duplicate)

	second, err := repo.AppendMessage(ctx, in)
	require.NoError(t, err)
	require.True(t, second.Duplicate)
	require.Equal(t, first.Message.ID, second.Message.ID)

	// Same key from the other party is a different message.
	other := repository.AppendMessageInput{ConversationID: conv.ID, SenderID: "admin-1", Content: "hello", DedupeKey: &key}
	third, err := repo.AppendMessage(ctx, other)
	require.NoError(t, err)
	require.False(t, third.Duplicate)
	require.Equal(t, int64(2), third.Message.Seq)
}

func TestMemoryMarkReadAndUnread(t *testing.T) {
	repo := NewMemoryChatRepository()
	ctx := context.Background()
	conv, _, err := repo.GetOrCreateConversation(ctx, "parent-1", "admin-1")
	require.NoError(t, err)
	other, _, err := repo.GetOrCreateConversation(ctx, "parent-2", "admin-1")
	require.NoError(t, err)

	post := func(convID, sender string) {
		_, err := repo.AppendMessage(ctx, repository.AppendMessageInput{ConversationID: convID, SenderID: sender, Content: "x"})
		require.NoError(t, err)
	}
	post(conv.ID, "parent-1")
	post(conv.ID, "parent-1")
	post(conv.ID, "admin-1")
	post(other.ID, "parent-2")

	n, err := repo.CountUnread(ctx, conv.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	total, err := repo.CountUnreadForUser(ctx, "admin-1")
	require.NoError(t, err)
	require.Equal(t, int64(3), total)

	updated, err := repo.MarkRead(ctx, conv.ID, "admin-1")
	require.NoError(t, err)
	require.Equal(t, int64(2), updated)

	updated, err = repo.MarkRead(ctx, conv.ID, "admin-1")
	require.NoError(t, err)
	require.Zero(t, updated)

	// admin-1's reply is the only message parent-1 has not read.
	n, err = repo.CountUnread(ctx, conv.ID, "parent-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	total, err = repo.CountUnreadForUser(ctx, "admin-1")
	require.NoError(t, err)
	require.Equal(t, int64(1), total)
}

func TestMemoryListConversationsOrdering(t *testing.T) {
	repo := NewMemoryChatRepository()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	tick := 0
	repo.now = func() time.Time {
		tick++
		return base.Add(time.Duration(tick) * time.Minute)
	}

	a, _, err := repo.GetOrCreateConversation(ctx, "parent-1", "admin-1")
	require.NoError(t, err)
	b, _, err := repo.GetOrCreateConversation(ctx, "parent-2", "admin-1")
	require.NoError(t, err)
	_, _, err = repo.GetOrCreateConversation(ctx, "parent-3", "admin-2")
	require.NoError(t, err)

	_, err = repo.AppendMessage(ctx, repository.AppendMessageInput{ConversationID: a.ID, SenderID: "parent-1", Content: "bump"})
	require.NoError(t, err)

	mine, err := repo.ListConversationsByParticipant(ctx, "admin-1")
	require.NoError(t, err)
	require.Len(t, mine, 2)
	require.Equal(t, a.ID, mine[0].ID)
	require.Equal(t, b.ID, mine[1].ID)

	page1, err := repo.ListConversations(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, page1, 2)
	page2, err := repo.ListConversations(ctx, page1[1].ID, 2)
	require.NoError(t, err)
	require.Len(t, page2, 1)
	require.Greater(t, page2[0].ID, page1[1].ID)
}

func TestMemoryPushEndpointRepository(t *testing.T) {
	repo := NewMemoryPushEndpointRepository()
	ctx := context.Background()

	got, err := repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)

	require.NoError(t, repo.Upsert(ctx, chat.PushEndpoint{UserID: "u1", Endpoint: "https://push.example/a", KeyA: "p", KeyB: "a"}))
	require.NoError(t, repo.Upsert(ctx, chat.PushEndpoint{UserID: "u1", Endpoint: "https://push.example/b", KeyA: "p", KeyB: "a"}))

	got, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Equal(t, "https://push.example/b", got.Endpoint)
	require.False(t, got.CreatedAt.After(got.UpdatedAt))

	require.NoError(t, repo.Delete(ctx, "u1"))
	require.NoError(t, repo.Delete(ctx, "u1"))
	got, err = repo.Get(ctx, "u1")
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestPgRepositoryGuards(t *testing.T) {
	ctx := context.Background()

	var nilRepo *PgChatRepository
	_, err := nilRepo.GetConversation(ctx, "x")
	require.ErrorIs(t, err, errNilPool)

	_, err = NewPgPushEndpointRepository(nil).Get(ctx, "u1")
	require.ErrorIs(t, err, errNilPool)
}
