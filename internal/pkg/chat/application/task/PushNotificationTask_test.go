package task

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	cacheadapter "mkvr-chat/internal/infrastructure/cache/adapter"
	qadapter "mkvr-chat/internal/infrastructure/queue/adapter"
	qport "mkvr-chat/internal/infrastructure/queue/port"
	"mkvr-chat/internal/infrastructure/realtime"
	"mkvr-chat/internal/infrastructure/webpush"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repoadapter "mkvr-chat/internal/pkg/chat/persistence/repository/adapter"
	"mkvr-chat/internal/pkg/subscription"
)

type scriptedNotifier struct {
	mu      sync.Mutex
	results []error
	calls   []webpush.Payload
}

func (n *scriptedNotifier) Notify(_ context.Context, _ webpush.Target, p webpush.Payload) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.calls = append(n.calls, p)
	if len(n.results) == 0 {
		return nil
	}
	err := n.results[0]
	n.results = n.results[1:]
	return err
}

func (n *scriptedNotifier) Calls() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.calls)
}

func setup(t *testing.T, results ...error) (*subscription.Registry, *scriptedNotifier, *PushNotificationTask) {
	t.Helper()
	reg := subscription.NewRegistry(realtime.NewHub(), repoadapter.NewMemoryPushEndpointRepository(), cacheadapter.NewMemoryCache(), time.Minute)
	require.NoError(t, reg.RegisterPush(context.Background(), chat.PushEndpoint{
		UserID: "parent-1", Endpoint: "https://push.example/p", KeyA: "k", KeyB: "a",
	}))
	n := &scriptedNotifier{results: results}
	return reg, n, NewPushNotificationTask(reg, n)
}

func job(t *testing.T) qport.Task {
	t.Helper()
	b, err := PushNotificationPayload{UserID: "parent-1", ConversationID: "c1", MessageID: "m1", Seq: 3, Title: "New message", Body: "hi"}.Encode()
	require.NoError(t, err)
	return qport.Task{Type: PushNotificationTaskType, Payload: b}
}

func TestPushTaskSends(t *testing.T) {
	_, n, h := setup(t)
	require.NoError(t, h.Handle(context.Background(), job(t)))
	require.Equal(t, 1, n.Calls())
	require.Equal(t, "m1", n.calls[0].MessageID)
	require.Equal(t, int64(3), n.calls[0].Seq)
}

func TestPushTaskEndpointGoneUnregisters(t *testing.T) {
	reg, n, h := setup(t, fmt.Errorf("%w: status 410", webpush.ErrEndpointGone))
	ctx := context.Background()

	require.NoError(t, h.Handle(ctx, job(t)))
	ep, err := reg.PushEndpointOf(ctx, "parent-1")
	require.NoError(t, err)
	require.Nil(t, ep)

	// A later job for the same user finds nothing to do.
	require.NoError(t, h.Handle(ctx, job(t)))
	require.Equal(t, 1, n.Calls())
}

func TestPushTaskTooLargeDrops(t *testing.T) {
	reg, _, h := setup(t, webpush.ErrPayloadTooLarge)
	require.NoError(t, h.Handle(context.Background(), job(t)))
	ep, err := reg.PushEndpointOf(context.Background(), "parent-1")
	require.NoError(t, err)
	require.NotNil(t, ep)
}

func TestPushTaskTransientIsRetried(t *testing.T) {
	_, _, h := setup(t, webpush.ErrTransient)
	err := h.Handle(context.Background(), job(t))
	require.ErrorIs(t, err, webpush.ErrTransient)
}

func TestPushTaskMalformedPayloadSkipsRetry(t *testing.T) {
	_, n, h := setup(t)
	err := h.Handle(context.Background(), qport.Task{Type: PushNotificationTaskType, Payload: []byte("{")})
	require.ErrorIs(t, err, qport.ErrSkipRetry)

	err = h.Handle(context.Background(), qport.Task{Type: PushNotificationTaskType, Payload: []byte(`{"userId":"u"}`)})
	require.ErrorIs(t, err, qport.ErrSkipRetry)
	require.Zero(t, n.Calls())
}

// Three transient failures exhaust the job: initial attempt plus two retries.
func TestPushTaskRetriesThroughQueue(t *testing.T) {
	transient := errors.Join(webpush.ErrTransient, errors.New("503"))
	_, n, h := setup(t, transient, transient, transient, nil)

	q := qadapter.NewLocalQueue(1, time.Millisecond)
	defer func() { _ = q.Stop(context.Background()) }()
	RegisterPushNotificationTask(q, h)

	_, err := q.Enqueue(context.Background(), job(t), qport.EnqueueOption{MaxRetry: 2})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, q.Wait(ctx))
	require.Equal(t, 3, n.Calls())
}
