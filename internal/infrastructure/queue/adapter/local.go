package adapter

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"mkvr-chat/internal/infrastructure/queue/port"
	"mkvr-chat/internal/logging"
)

var (
	ErrQueueStopped  = errors.New("local queue: stopped")
	ErrNoTaskHandler = errors.New("local queue: no handler registered")
)

// defaultMaxRetry applies when Enqueue gets no option, on both adapters.
const defaultMaxRetry = 2

// LocalQueue runs tasks in-process with the same retry contract as the asynq
// adapter. It is both the Client and the Server; used when Redis is not configured.
// Pending retries are lost on restart.
type LocalQueue struct {
	mu       sync.RWMutex
	handlers map[string]port.Handler
	stopped  bool

	sem         chan struct{}
	wg          sync.WaitGroup
	baseBackoff time.Duration
	ctx         context.Context
	cancel      context.CancelFunc

	// sleep waits between attempts; replaced in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

func NewLocalQueue(concurrency int, baseBackoff time.Duration) *LocalQueue {
	if concurrency <= 0 {
		concurrency = 10
	}
	if baseBackoff <= 0 {
		baseBackoff = time.Second
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &LocalQueue{
		handlers:    make(map[string]port.Handler),
		sem:         make(chan struct{}, concurrency),
		baseBackoff: baseBackoff,
		ctx:         ctx,
		cancel:      cancel,
		sleep:       sleepCtx,
	}
}

var (
	_ port.Client = (*LocalQueue)(nil)
	_ port.Server = (*LocalQueue)(nil)
)

func (q *LocalQueue) Register(taskType string, h port.Handler) {
	q.mu.Lock()
	q.handlers[taskType] = h
	q.mu.Unlock()
}

func (q *LocalQueue) Enqueue(_ context.Context, t port.Task, opts ...port.EnqueueOption) (string, error) {
	if t.Type == "" {
		return "", errors.New("local queue: task type is required")
	}
	opt := port.EnqueueOption{MaxRetry: defaultMaxRetry}
	if len(opts) > 0 {
		opt = opts[0]
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.stopped {
		return "", ErrQueueStopped
	}
	h, ok := q.handlers[t.Type]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNoTaskHandler, t.Type)
	}

	id := uuid.NewString()
	q.wg.Add(1)
	go q.process(id, t, h, opt)
	return id, nil
}

func (q *LocalQueue) process(id string, t port.Task, h port.Handler, opt port.EnqueueOption) {
	defer q.wg.Done()
	log := logging.Get().With().Str("task_id", id).Str("task_type", t.Type).Logger()

	if opt.ProcessIn > 0 {
		if err := q.sleep(q.ctx, opt.ProcessIn); err != nil {
			return
		}
	}

	attempts := opt.MaxRetry + 1
	if attempts < 1 {
		attempts = 1
	}
	for attempt := 1; attempt <= attempts; attempt++ {
		select {
		case q.sem <- struct{}{}:
		case <-q.ctx.Done():
			return
		}
		err := q.runOnce(h, t, opt.Timeout)
		<-q.sem

		if err == nil {
			return
		}
		if errors.Is(err, port.ErrSkipRetry) {
			log.Warn().Err(err).Int("attempt", attempt).Msg("task dropped without retry")
			return
		}
		if attempt == attempts {
			log.Warn().Err(err).Int("attempt", attempt).Msg("task retries exhausted")
			return
		}
		log.Debug().Err(err).Int("attempt", attempt).Msg("task failed, retrying")
		if err := q.sleep(q.ctx, port.RetryDelay(q.baseBackoff, attempt)); err != nil {
			return
		}
	}
}

func (q *LocalQueue) runOnce(h port.Handler, t port.Task, timeout time.Duration) (err error) {
	ctx := q.ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("local queue: handler panic: %v", r)
		}
	}()
	return h(ctx, t)
}

// Run blocks until ctx is canceled or Stop is called.
func (q *LocalQueue) Run(ctx context.Context) error {
	select {
	case <-ctx.Done():
	case <-q.ctx.Done():
	}
	return q.Stop(context.Background())
}

// Stop rejects new tasks, cancels pending retries and waits for running handlers.
func (q *LocalQueue) Stop(ctx context.Context) error {
	q.mu.Lock()
	q.stopped = true
	q.mu.Unlock()
	q.cancel()
	return q.Wait(ctx)
}

// Wait blocks until every enqueued task has finished or ctx is done.
func (q *LocalQueue) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *LocalQueue) Close() error {
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
