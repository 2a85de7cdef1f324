package controller

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"mkvr-chat/internal/identity"
	"mkvr-chat/internal/logging"
	chat "mkvr-chat/internal/pkg/chat/application/domain"
	"mkvr-chat/internal/pkg/chat/application/usecase"
)

const defaultRequestTimeout = 5 * time.Second

// statusFor maps use case and domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, identity.ErrUnauthenticated):
		return http.StatusUnauthorized
	case errors.Is(err, chat.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, chat.ErrNotParticipant), errors.Is(err, usecase.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, chat.ErrEmptyMessage),
		errors.Is(err, chat.ErrMessageTooLong),
		errors.Is(err, chat.ErrSameParticipant),
		errors.Is(err, chat.ErrInvalidConversation),
		errors.Is(err, usecase.ErrInvalidInput):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func writeError(c *gin.Context, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		logging.Get().Error().Err(err).Str("path", c.FullPath()).Msg("request failed")
		c.JSON(status, gin.H{"error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"error": err.Error()})
}

// actor returns the authenticated user or writes 401.
func actor(c *gin.Context) (identity.User, bool) {
	u, ok := identity.Current(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": identity.ErrUnauthenticated.Error()})
		return identity.User{}, false
	}
	return u, true
}

func requestContext(c *gin.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = defaultRequestTimeout
	}
	return context.WithTimeout(c.Request.Context(), timeout)
}
