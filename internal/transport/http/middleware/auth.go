package middleware

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/usecase"
)

const (
	// SessionKey is the gin context key holding the validated *domain.Session.
	SessionKey = "auth_session"
	// SessionHandleKey is the gin context key holding the raw cookie value.
	SessionHandleKey = "auth_session_handle"
)

// SessionValidator resolves a raw session handle to its session record.
type SessionValidator interface {
	Validate(ctx context.Context, raw string) (*domain.Session, error)
}

// RequireSession authenticates the request from the session cookie. Requests
// without a live session are rejected with 401 before the handler runs.
func RequireSession(validator SessionValidator, cookieName string, log *zap.Logger) gin.HandlerFunc {
	if log == nil {
		log = zap.NewNop()
	}

	return func(c *gin.Context) {
		raw, err := c.Cookie(cookieName)
		if err != nil || raw == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		session, err := validator.Validate(c.Request.Context(), raw)
		if err != nil {
			if !errors.Is(err, usecase.ErrUnauthenticated) {
				log.Error("session validation failed", zap.Error(err))
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		c.Set(SessionKey, session)
		c.Set(SessionHandleKey, raw)
		c.Next()
	}
}

// RequireRole gates the handler on the session's role snapshot. It must run
// after RequireSession.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		session := SessionFromContext(c)
		if session == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}

		if !session.HasRole(role) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}

		c.Next()
	}
}

// SessionFromContext returns the session stored by RequireSession, or nil.
func SessionFromContext(c *gin.Context) *domain.Session {
	value, exists := c.Get(SessionKey)
	if !exists {
		return nil
	}
	session, ok := value.(*domain.Session)
	if !ok {
		return nil
	}
	return session
}

// SessionHandleFromContext returns the raw handle stored by RequireSession.
func SessionHandleFromContext(c *gin.Context) string {
	value, exists := c.Get(SessionHandleKey)
	if !exists {
		return ""
	}
	raw, _ := value.(string)
	return raw
}
