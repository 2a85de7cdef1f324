package controller

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/pkg/chat/application/usecase"
)

// GetMessageController handles GET /conversations/:id/messages?after=&limit=.
type GetMessageController struct {
	uc      *usecase.GetMessageUseCase
	timeout time.Duration
}

func NewGetMessageController(uc *usecase.GetMessageUseCase, timeout time.Duration) *GetMessageController {
	return &GetMessageController{uc: uc, timeout: timeout}
}

func (h *GetMessageController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := actor(c)
		if !ok {
			return
		}

		var after int64
		if v := c.Query("after"); v != "" {
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil || n < 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "after must be a non-negative integer"})
				return
			}
			after = n
		}
		var limit int
		if v := c.Query("limit"); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil || n <= 0 {
				c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
				return
			}
			limit = n
		}

		ctx, cancel := requestContext(c, h.timeout)
		defer cancel()

		page, err := h.uc.Execute(ctx, usecase.GetMessageInput{
			Actor:          user,
			ConversationID: c.Param("id"),
			After:          after,
			Limit:          limit,
		})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"messages": page.Messages, "next_cursor": page.NextCursor})
	}
}
