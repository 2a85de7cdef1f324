package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/pkg/chat/application/usecase"
)

// MarkReadController handles POST /conversations/:id/read.
type MarkReadController struct {
	uc      *usecase.MarkReadUseCase
	timeout time.Duration
}

func NewMarkReadController(uc *usecase.MarkReadUseCase, timeout time.Duration) *MarkReadController {
	return &MarkReadController{uc: uc, timeout: timeout}
}

func (h *MarkReadController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c, h.timeout)
		defer cancel()

		n, err := h.uc.Execute(ctx, usecase.MarkReadInput{Actor: user, ConversationID: c.Param("id")})
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"updated": n})
	}
}
