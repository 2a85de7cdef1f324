package controller

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/pkg/chat/application/usecase"
)

// SubscribePushController handles POST /push/subscribe.
type SubscribePushController struct {
	uc      *usecase.SubscribePushUseCase
	timeout time.Duration
}

func NewSubscribePushController(uc *usecase.SubscribePushUseCase, timeout time.Duration) *SubscribePushController {
	return &SubscribePushController{uc: uc, timeout: timeout}
}

type subscribePushRequest struct {
	Endpoint string `json:"endpoint" binding:"required"`
	KeyA     string `json:"keyA" binding:"required"`
	KeyB     string `json:"keyB" binding:"required"`
}

func (h *SubscribePushController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := actor(c)
		if !ok {
			return
		}
		var req subscribePushRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		ctx, cancel := requestContext(c, h.timeout)
		defer cancel()

		err := h.uc.Execute(ctx, usecase.SubscribePushInput{Actor: user, Endpoint: req.Endpoint, KeyA: req.KeyA, KeyB: req.KeyB})
		if err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// UnsubscribePushController handles POST /push/unsubscribe.
type UnsubscribePushController struct {
	uc      *usecase.UnsubscribePushUseCase
	timeout time.Duration
}

func NewUnsubscribePushController(uc *usecase.UnsubscribePushUseCase, timeout time.Duration) *UnsubscribePushController {
	return &UnsubscribePushController{uc: uc, timeout: timeout}
}

func (h *UnsubscribePushController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		user, ok := actor(c)
		if !ok {
			return
		}
		ctx, cancel := requestContext(c, h.timeout)
		defer cancel()

		if err := h.uc.Execute(ctx, user); err != nil {
			writeError(c, err)
			return
		}
		c.Status(http.StatusNoContent)
	}
}

// VAPIDKeyController handles GET /push/vapid-public-key.
type VAPIDKeyController struct {
	publicKey string
}

func NewVAPIDKeyController(publicKey string) *VAPIDKeyController {
	return &VAPIDKeyController{publicKey: publicKey}
}

func (h *VAPIDKeyController) Handle() gin.HandlerFunc {
	return func(c *gin.Context) {
		if h.publicKey == "" {
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "push is not configured"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"key": h.publicKey})
	}
}
