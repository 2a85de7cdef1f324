package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/pkg/chat/application/usecase"
)

// ListConversationsController handles GET /conversations.
type ListConversationsController struct {
	uc      *usecase.ListConversationsUseCase
	timeout time.Duration
}

func NewListConversationsController(uc *usecase.ListConversationsUseCase, timeout time.Duration) *ListConversationsController {
	return &ListConversationsController{uc: uc, timeout: timeout}
}

func (h *ListConversationsController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c, h.timeout)
		defer cancel()

		convs, err := h.uc.Execute(ctx, user)
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"conversations": convs})
	}
}
