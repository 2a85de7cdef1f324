package http

import (
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/identity"
	"mkvr-chat/internal/pkg/chat/application/usecase"
	"mkvr-chat/internal/pkg/chat/presentation/controller"
)

// Dependencies are the application services the chat endpoints are built from.
type Dependencies struct {
	Start           *usecase.StartConversationUseCase
	List            *usecase.ListConversationsUseCase
	Unread          *usecase.UnreadUseCase
	History         *usecase.GetMessageUseCase
	Send            *usecase.SendMessageUseCase
	MarkRead        *usecase.MarkReadUseCase
	SubscribePush   *usecase.SubscribePushUseCase
	UnsubscribePush *usecase.UnsubscribePushUseCase
	Broadcast       *usecase.BroadcastUseCase
	Sessions        controller.SessionRegistry
	VAPIDPublicKey  string
	RequestTimeout  time.Duration
	LiveSendTimeout time.Duration
}

// RegisterRoutes registers chat-related HTTP endpoints under the given router group
// It constructs per-endpoint controllers and binds them directly to routes.
func RegisterRoutes(g *gin.RouterGroup, d Dependencies) {
	t := d.RequestTimeout

	// GET /api/v1/ws -> live channel; browsers pass identity as query params
	g.GET("/ws", controller.NewChatSocketController(d.Sessions, d.LiveSendTimeout).Handle())

	// GET /api/v1/push/vapid-public-key -> applicationServerKey for the browser
	g.GET("/push/vapid-public-key", controller.NewVAPIDKeyController(d.VAPIDPublicKey).Handle())

	authed := g.Group("", identity.Middleware(false))

	authed.POST("/conversations/start", controller.NewStartConversationController(d.Start, t).Handle())
	authed.GET("/conversations", controller.NewListConversationsController(d.List, t).Handle())
	authed.GET("/conversations/unread", controller.NewUnreadController(d.Unread, t).Handle())
	authed.GET("/conversations/:id/messages", controller.NewGetMessageController(d.History, t).Handle())
	authed.POST("/conversations/:id/messages", controller.NewSendMessageController(d.Send, t).Handle())
	authed.POST("/conversations/:id/read", controller.NewMarkReadController(d.MarkRead, t).Handle())

	authed.POST("/push/subscribe", controller.NewSubscribePushController(d.SubscribePush, t).Handle())
	authed.POST("/push/unsubscribe", controller.NewUnsubscribePushController(d.UnsubscribePush, t).Handle())

	authed.POST("/broadcast", controller.NewBroadcastController(d.Broadcast, t).Handle())
}
