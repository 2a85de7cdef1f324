package subscription

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	cacheport "mkvr-chat/internal/infrastructure/cache/port"
	"mkvr-chat/internal/infrastructure/realtime"
	"mkvr-chat/internal/logging"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	repository "mkvr-chat/internal/pkg/chat/persistence/repository/port"
)

// ErrInvalidEndpoint rejects subscriptions without an https endpoint or keys.
var ErrInvalidEndpoint = errors.New("subscription: invalid push endpoint")

// noEndpoint is cached for users known to have no push endpoint.
const noEndpoint = "-"

const (
	defaultNegativeTTL = 30 * time.Second
	defaultSettleDelay = time.Second
)

// Registry is the single place that knows where a user can be reached:
// live websocket sessions in the hub and the persisted push endpoint.
//
// Endpoint writes bump a per-user generation. A lookup only keeps what it
// cached if no write landed while it was reading the store, and every write
// invalidates the cache twice: at once and again after settleDelay, for
// lookups running on other nodes.
type Registry struct {
	hub         *realtime.Hub
	repo        repository.PushEndpointRepository
	cache       cacheport.Cache
	cacheTTL    time.Duration
	negativeTTL time.Duration
	settleDelay time.Duration

	mu  sync.Mutex
	gen map[string]uint64
}

func NewRegistry(hub *realtime.Hub, repo repository.PushEndpointRepository, cache cacheport.Cache, cacheTTL time.Duration) *Registry {
	negativeTTL := defaultNegativeTTL
	if cacheTTL > 0 && cacheTTL < negativeTTL {
		negativeTTL = cacheTTL
	}
	return &Registry{
		hub:         hub,
		repo:        repo,
		cache:       cache,
		cacheTTL:    cacheTTL,
		negativeTTL: negativeTTL,
		settleDelay: defaultSettleDelay,
		gen:         make(map[string]uint64),
	}
}

// RegisterSession wraps socket in a started Connection tracked for userID.
func (r *Registry) RegisterSession(userID string, socket realtime.Socket) *realtime.Connection {
	conn := realtime.NewConnection(userID, socket)
	r.hub.Attach(conn)
	logging.Get().Debug().Str("user_id", userID).Str("session_id", conn.ID).Msg("session registered")
	return conn
}

// UnregisterSession detaches conn and closes it. Detaching is immediate; the
// socket is torn down in the background so callers never wait on a stuck peer.
// Unknown sessions are ignored.
func (r *Registry) UnregisterSession(conn *realtime.Connection) {
	if conn == nil {
		return
	}
	if r.hub.Detach(conn) {
		logging.Get().Debug().Str("user_id", conn.UserID).Str("session_id", conn.ID).Msg("session unregistered")
	}
	conn.CloseAsync(websocket.CloseNormalClosure, "")
}

func (r *Registry) LiveSessionsOf(userID string) []*realtime.Connection {
	return r.hub.SessionsOf(userID)
}

// RegisterPush stores e as the user's only endpoint, replacing any previous one.
func (r *Registry) RegisterPush(ctx context.Context, e chat.PushEndpoint) error {
	e.Endpoint = strings.TrimSpace(e.Endpoint)
	e.KeyA = strings.TrimSpace(e.KeyA)
	e.KeyB = strings.TrimSpace(e.KeyB)
	if err := validateEndpoint(e); err != nil {
		return err
	}
	if err := r.repo.Upsert(ctx, e); err != nil {
		return err
	}
	r.endpointChanged(ctx, e.UserID)
	return nil
}

// UnregisterPush removes the user's endpoint; a missing one is not an error.
func (r *Registry) UnregisterPush(ctx context.Context, userID string) error {
	if err := r.repo.Delete(ctx, userID); err != nil {
		return err
	}
	r.endpointChanged(ctx, userID)
	return nil
}

// PushEndpointOf returns nil when the user has no endpoint. Cache failures fall back to the store.
func (r *Registry) PushEndpointOf(ctx context.Context, userID string) (*chat.PushEndpoint, error) {
	key := cacheKey(userID)
	if r.cache != nil {
		raw, err := r.cache.Get(ctx, key)
		switch {
		case err == nil && raw == noEndpoint:
			return nil, nil
		case err == nil:
			var e chat.PushEndpoint
			if jerr := json.Unmarshal([]byte(raw), &e); jerr == nil {
				return &e, nil
			}
		case !cacheport.IsMiss(err):
			logging.Get().Warn().Err(err).Str("user_id", userID).Msg("push endpoint cache read failed")
		}
	}

	seen := r.generation(userID)
	e, err := r.repo.Get(ctx, userID)
	if err != nil {
		return nil, err
	}
	if r.cache == nil || r.generation(userID) != seen {
		return e, nil
	}

	val, ttl := noEndpoint, r.negativeTTL
	if e != nil {
		b, _ := json.Marshal(e)
		val, ttl = string(b), r.cacheTTL
	}
	if err := r.cache.Set(ctx, key, val, ttl); err != nil {
		logging.Get().Warn().Err(err).Str("user_id", userID).Msg("push endpoint cache write failed")
	}
	// A write that landed between the check above and Set has already run its
	// invalidation, so the entry just written may be stale.
	if r.generation(userID) != seen {
		r.invalidate(ctx, userID)
	}
	return e, nil
}

func (r *Registry) generation(userID string) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.gen[userID]
}

// endpointChanged runs after every endpoint write.
func (r *Registry) endpointChanged(ctx context.Context, userID string) {
	r.mu.Lock()
	r.gen[userID]++
	r.mu.Unlock()

	r.invalidate(ctx, userID)
	if r.cache != nil && r.settleDelay > 0 {
		detached := context.WithoutCancel(ctx)
		time.AfterFunc(r.settleDelay, func() { r.invalidate(detached, userID) })
	}
}

func (r *Registry) invalidate(ctx context.Context, userID string) {
	if r.cache == nil {
		return
	}
	if _, err := r.cache.Del(ctx, cacheKey(userID)); err != nil {
		logging.Get().Warn().Err(err).Str("user_id", userID).Msg("push endpoint cache invalidation failed")
	}
}

func cacheKey(userID string) string {
	return "chat:push_endpoint:" + userID
}

func validateEndpoint(e chat.PushEndpoint) error {
	if e.UserID == "" {
		return fmt.Errorf("%w: user is required", ErrInvalidEndpoint)
	}
	if e.KeyA == "" || e.KeyB == "" {
		return fmt.Errorf("%w: keyA and keyB are required", ErrInvalidEndpoint)
	}
	u, err := url.Parse(e.Endpoint)
	if err != nil || u.Host == "" {
		return fmt.Errorf("%w: endpoint must be an absolute URL", ErrInvalidEndpoint)
	}
	if u.Scheme != "https" {
		return fmt.Errorf("%w: endpoint must use https", ErrInvalidEndpoint)
	}
	return nil
}
