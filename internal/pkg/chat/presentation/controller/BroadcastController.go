package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/pkg/chat/application/usecase"
)

// BroadcastController handles POST /broadcast.
type BroadcastController struct {
	uc      *usecase.BroadcastUseCase
	timeout time.Duration
}

func NewBroadcastController(uc *usecase.BroadcastUseCase, timeout time.Duration) *BroadcastController {
	return &BroadcastController{uc: uc, timeout: timeout}
}

type broadcastRequest struct {
	Content string `json:"content"`
}

func (h *BroadcastController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := actor(c)
		if !ok {
			return
		}
		var req broadcastRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		// The request budget covers the first page only; the fan-out has its own.
		ctx, cancel := requestContext(c, h.timeout)
		defer cancel()

		n, err := h.uc.Execute(ctx, user, req.Content)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"notified": n})
	}
}
