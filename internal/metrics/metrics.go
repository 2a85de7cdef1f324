// Package metrics provides counters, Prometheus collectors, and HTTP
// handlers for exporting chat delivery metrics.
package metrics

import (
	"encoding/json"
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Live delivery results
const (
	LiveDelivered = "delivered"
	LiveDropped   = "dropped"
)

// Push delivery results
const (
	PushEnqueued      = "enqueued"
	PushEnqueueFailed = "enqueue_failed"
	PushSent          = "sent"
	PushGone          = "gone"
	PushTooLarge      = "too_large"
	PushTransient     = "transient"
)

var (
	messagesAppended       int64
	liveDelivered          int64
	liveDropped            int64
	pushSent               int64
	pushFailed             int64
	broadcasts             int64
	broadcastConversations int64
	activeSessions         int64
)

var (
	promMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_messages_appended_total",
			Help: "Messages durably appended to a conversation",
		},
		[]string{"kind"},
	)
	promLive = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_live_deliveries_total",
			Help: "Live channel writes per session",
		},
		[]string{"result"},
	)
	promPush = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chat_push_notifications_total",
			Help: "Push notification outcomes",
		},
		[]string{"result"},
	)
	promBroadcasts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcasts_total",
			Help: "Administrator broadcasts executed",
		},
	)
	promBroadcastConversations = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "chat_broadcast_conversations_total",
			Help: "Conversations that received a broadcast message",
		},
	)
	promSessions = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "chat_live_sessions",
			Help: "Currently attached live sessions",
		},
	)
)

func init() {
	prometheus.MustRegister(
		promMessages,
		promLive,
		promPush,
		promBroadcasts,
		promBroadcastConversations,
		promSessions,
	)
}

// IncMessageAppended counts one appended message of the given kind.
func IncMessageAppended(kind string) {
	atomic.AddInt64(&messagesAppended, 1)
	promMessages.WithLabelValues(kind).Inc()
}

// IncLive counts one live-channel write attempt.
func IncLive(result string) {
	if result == LiveDelivered {
		atomic.AddInt64(&liveDelivered, 1)
	} else {
		atomic.AddInt64(&liveDropped, 1)
	}
	promLive.WithLabelValues(result).Inc()
}

// IncPush counts one push pipeline outcome.
func IncPush(result string) {
	switch result {
	case PushSent:
		atomic.AddInt64(&pushSent, 1)
	case PushGone, PushTooLarge, PushTransient, PushEnqueueFailed:
		atomic.AddInt64(&pushFailed, 1)
	}
	promPush.WithLabelValues(result).Inc()
}

// ObserveBroadcast records one broadcast and the number of conversations it reached.
func ObserveBroadcast(notified int) {
	atomic.AddInt64(&broadcasts, 1)
	atomic.AddInt64(&broadcastConversations, int64(notified))
	promBroadcasts.Inc()
	promBroadcastConversations.Add(float64(notified))
}

// SessionOpened increments the live session gauge.
func SessionOpened() {
	atomic.AddInt64(&activeSessions, 1)
	promSessions.Inc()
}

// SessionClosed decrements the live session gauge.
func SessionClosed() {
	atomic.AddInt64(&activeSessions, -1)
	promSessions.Dec()
}

// StatsSnapshot is a snapshot of metrics for JSON encoding.
type StatsSnapshot struct {
	MessagesAppended       int64 `json:"messages_appended"`
	LiveDelivered          int64 `json:"live_delivered"`
	LiveDropped            int64 `json:"live_dropped"`
	PushSent               int64 `json:"push_sent"`
	PushFailed             int64 `json:"push_failed"`
	Broadcasts             int64 `json:"broadcasts"`
	BroadcastConversations int64 `json:"broadcast_conversations"`
	ActiveSessions         int64 `json:"active_sessions"`
}

// GetSnapshot returns the current values of all internal counters.
func GetSnapshot() StatsSnapshot {
	return StatsSnapshot{
		MessagesAppended:       atomic.LoadInt64(&messagesAppended),
		LiveDelivered:          atomic.LoadInt64(&liveDelivered),
		LiveDropped:            atomic.LoadInt64(&liveDropped),
		PushSent:               atomic.LoadInt64(&pushSent),
		PushFailed:             atomic.LoadInt64(&pushFailed),
		Broadcasts:             atomic.LoadInt64(&broadcasts),
		BroadcastConversations: atomic.LoadInt64(&broadcastConversations),
		ActiveSessions:         atomic.LoadInt64(&activeSessions),
	}
}

// PromHandler returns an HTTP handler that exposes Prometheus metrics.
func PromHandler() http.Handler { return promhttp.Handler() }

// JSONHandler serves the current StatsSnapshot as JSON.
func JSONHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(GetSnapshot())
	})
}
