package usecase

import (
	"context"
	"strings"
	"sync/atomic"
	"time"
	"unicode/utf8"

	"golang.org/x/sync/errgroup"

	"mkvr-chat/internal/identity"
	"mkvr-chat/internal/logging"
	"mkvr-chat/internal/metrics"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

const defaultBroadcastBudget = 5 * time.Minute

// BroadcastUseCase posts one admin announcement into every conversation.
type BroadcastUseCase struct {
	Repo        repository.ChatRepository
	Router      Deliverer
	Concurrency int
	PageSize    int
	// Budget bounds the whole fan-out, which runs detached from the caller's context.
	Budget time.Duration
}

func NewBroadcastUseCase(repo repository.ChatRepository, router Deliverer, concurrency int) *BroadcastUseCase {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &BroadcastUseCase{Repo: repo, Router: router, Concurrency: concurrency, PageSize: 100, Budget: defaultBroadcastBudget}
}

// Execute returns how many conversations durably received the message. A
// failed append for one conversation is logged and does not stop the rest.
// Only a failure to read the first page of conversations is returned as an
// error; once appends have started the count is always reported.
func (uc *BroadcastUseCase) Execute(ctx context.Context, actor identity.User, content string) (int, error) {
	if !actor.IsAdmin() {
		return 0, ErrForbidden
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return 0, chat.ErrEmptyMessage
	}
	if utf8.RuneCountInString(content) > chat.MaxContentLength {
		return 0, chat.ErrMessageTooLong
	}

	log := logging.Get().With().Str("user_id", actor.ID).Logger()

	first, err := uc.Repo.ListConversations(ctx, "", uc.PageSize)
	if err != nil {
		return 0, storeError(err)
	}

	budget := uc.Budget
	if budget <= 0 {
		budget = defaultBroadcastBudget
	}
	bctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), budget)
	defer cancel()

	var notified int64
	var g errgroup.Group
	g.SetLimit(uc.Concurrency)

	page := first
	for {
		for _, conv := range page {
			conv := conv
			g.Go(func() error {
				res, err := uc.Repo.AppendMessage(bctx, repository.AppendMessageInput{
					ConversationID: conv.ID,
					SenderID:       actor.ID,
					Content:        content,
					Kind:           chat.MessageKindBroadcast,
				})
				if err != nil {
					log.Warn().Err(err).Str("conversation_id", conv.ID).Msg("broadcast append failed")
					return nil
				}
				atomic.AddInt64(&notified, 1)
				metrics.IncMessageAppended(string(res.Message.Kind))
				if uc.Router != nil {
					uc.Router.Deliver(bctx, res.Conversation, res.Message)
				}
				return nil
			})
		}
		if len(page) < uc.PageSize {
			break
		}
		next, err := uc.Repo.ListConversations(bctx, page[len(page)-1].ID, uc.PageSize)
		if err != nil {
			log.Error().Err(err).Msg("broadcast enumeration stopped early")
			break
		}
		page = next
	}
	_ = g.Wait()

	n := int(atomic.LoadInt64(&notified))
	metrics.ObserveBroadcast(n)
	log.Info().Int("notified", n).Msg("broadcast complete")
	return n, nil
}
