package controller

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"mkvr-chat/internal/identity"
	"mkvr-chat/internal/infrastructure/realtime"
	"mkvr-chat/internal/logging"
	"mkvr-chat/internal/pkg/chat/application/delivery"
)

const (
	defaultReadTimeout = 60 * time.Second
	maxInboundFrame    = 4 << 10
)

// SessionRegistry is the session half of the subscription registry.
type SessionRegistry interface {
	RegisterSession(userID string, socket realtime.Socket) *realtime.Connection
	UnregisterSession(conn *realtime.Connection)
}

// ChatSocketController serves GET /ws, the server-to-client live channel.
type ChatSocketController struct {
	registry    SessionRegistry
	readTimeout time.Duration
	sendTimeout time.Duration
}

func NewChatSocketController(registry SessionRegistry, sendTimeout time.Duration) *ChatSocketController {
	if sendTimeout <= 0 {
		sendTimeout = 2 * time.Second
	}
	return &ChatSocketController{registry: registry, readTimeout: defaultReadTimeout, sendTimeout: sendTimeout}
}

var wsUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Identity comes from the trusted gateway, which also enforces origins.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Handle upgrades the request and keeps the session registered until the client goes away.
// Client frames carry no commands; reading them only services pings and close frames.
func (ctl *ChatSocketController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, err := identity.FromRequest(c.Request, true)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}

		ws, err := wsUpgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			// Upgrade already wrote the response.
			return
		}

		conn := ctl.registry.RegisterSession(user.ID, ws)
		log := logging.Get().With().Str("user_id", user.ID).Str("session_id", conn.ID).Logger()
		log.Debug().Msg("websocket connected")
		defer func() {
			ctl.registry.UnregisterSession(conn)
			log.Debug().Msg("websocket disconnected")
		}()

		ws.SetReadLimit(maxInboundFrame)
		_ = ws.SetReadDeadline(time.Now().Add(ctl.readTimeout))
		ws.SetPongHandler(func(string) error {
			return ws.SetReadDeadline(time.Now().Add(ctl.readTimeout))
		})

		if payload, err := json.Marshal(delivery.Event{Type: delivery.EventConnected}); err == nil {
			_ = conn.Send(payload, ctl.sendTimeout)
		}

		for {
			if _, _, err := ws.ReadMessage(); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived) &&
					!errors.Is(err, websocket.ErrCloseSent) {
					log.Debug().Err(err).Msg("websocket read ended")
				}
				return
			}
			_ = ws.SetReadDeadline(time.Now().Add(ctl.readTimeout))
		}
	}
}
