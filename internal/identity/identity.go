// Package identity adapts the upstream identity collaborator. The API gateway
// authenticates callers and forwards the resolved user id and role as trusted headers.
package identity

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

// Role is the closed set of user roles known to the back office.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleStaff     Role = "staff"
	RoleRequester Role = "requester"
	RoleDependent Role = "dependent"
)

const (
	HeaderUserID   = "X-User-ID"
	HeaderUserRole = "X-User-Role"

	contextKey = "identity.user"
)

var (
	ErrUnauthenticated = errors.New("identity: missing user identity")
	ErrUnknownRole     = errors.New("identity: unknown role")
)

// User is the caller as reported by the identity collaborator.
type User struct {
	ID   string `json:"id"`
	Role Role   `json:"role"`
}

// IsAdmin reports whether the user may act on every conversation.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// CanStartConversation reports whether the user sits on the requester side of a conversation.
func (u User) CanStartConversation() bool {
	return u.Role == RoleRequester || u.Role == RoleDependent
}

// ParseRole accepts the canonical names plus the back office aliases.
func ParseRole(s string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "admin":
		return RoleAdmin, nil
	case "staff", "executor":
		return RoleStaff, nil
	case "requester", "parent":
		return RoleRequester, nil
	case "dependent", "child":
		return RoleDependent, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
	}
}

// FromRequest resolves the caller from trusted headers. When allowQuery is set,
// user_id and role query parameters are accepted too (browsers cannot set
// headers on a websocket upgrade).
func FromRequest(r *http.Request, allowQuery bool) (User, error) {
	id := strings.TrimSpace(r.Header.Get(HeaderUserID))
	role := r.Header.Get(HeaderUserRole)
	if id == "" && allowQuery {
		q := r.URL.Query()
		id = strings.TrimSpace(q.Get("user_id"))
		role = q.Get("role")
	}
	if id == "" {
		return User{}, ErrUnauthenticated
	}
	parsed, err := ParseRole(role)
	if err != nil {
		return User{}, err
	}
	return User{ID: id, Role: parsed}, nil
}

// Middleware resolves the caller and stores it on the gin context, aborting with 401 otherwise.
func Middleware(allowQuery bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		u, err := FromRequest(c.Request, allowQuery)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		c.Set(contextKey, u)
		c.Next()
	}
}

// Current returns the caller resolved by Middleware.
func Current(c *gin.Context) (User, bool) {
	v, ok := c.Get(contextKey)
	if !ok {
		return User{}, false
	}
	u, ok := v.(User)
	return u, ok
}
