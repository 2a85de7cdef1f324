package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/pkg/chat/application/usecase"
)

// SendMessageController handles POST /conversations/:id/messages.
type SendMessageController struct {
	uc      *usecase.SendMessageUseCase
	timeout time.Duration
}

func NewSendMessageController(uc *usecase.SendMessageUseCase, timeout time.Duration) *SendMessageController {
	return &SendMessageController{uc: uc, timeout: timeout}
}

// sendMessageRequest is the DTO for the HTTP request body
type sendMessageRequest struct {
	Content   string  `json:"content"`
	DedupeKey *string `json:"dedupeKey"`
}

// Handle persists the message, then routes it. The response carries the stored
// message: 201 when new, 200 when the dedupe key matched an earlier send.
func (h *SendMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := actor(c)
		if !ok {
			return
		}
		var req sendMessageRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c, h.timeout)
		defer cancel()

		out, err := h.uc.Execute(ctx, usecase.SendMessageInput{
			Actor:          user,
			ConversationID: c.Param("id"),
			Content:        req.Content,
			DedupeKey:      req.DedupeKey,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		status := http.StatusCreated
		if out.Duplicate {
			status = http.StatusOK
		}
		c.JSON(status, out.Message)
	}
}
