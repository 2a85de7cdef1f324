package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/pkg/chat/application/usecase"
)

// UnreadController handles GET /conversations/unread.
type UnreadController struct {
	uc      *usecase.UnreadUseCase
	timeout time.Duration
}

func NewUnreadController(uc *usecase.UnreadUseCase, timeout time.Duration) *UnreadController {
	return &UnreadController{uc: uc, timeout: timeout}
}

func (h *UnreadController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c, h.timeout)
		defer cancel()

		n, err := h.uc.TotalUnread(ctx, user.ID)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"unread": n})
	}
}
