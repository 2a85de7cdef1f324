package controller

import (
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/pkg/chat/application/usecase"
)

// StartConversationController handles POST /conversations/start.
type StartConversationController struct {
	uc      *usecase.StartConversationUseCase
	timeout time.Duration
}

func NewStartConversationController(uc *usecase.StartConversationUseCase, timeout time.Duration) *StartConversationController {
	return &StartConversationController{uc: uc, timeout: timeout}
}

type startConversationRequest struct {
	StaffID string `json:"staffId"`
}

func (h *StartConversationController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := actor(c)
		if !ok {
			return
		}
		// The body is optional.
		var req startConversationRequest
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c, h.timeout)
		defer cancel()

		conv, err := h.uc.Execute(ctx, usecase.StartConversationInput{Actor: user, StaffID: req.StaffID})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, conv)
	}
}
