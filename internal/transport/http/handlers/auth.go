package handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	appLogger "github.com/avralex/authgate/internal/infra/logger"
	"github.com/avralex/authgate/internal/infra/security"
	"github.com/avralex/authgate/internal/transport/http/middleware"
	"github.com/avralex/authgate/internal/usecase"
)

// CookieSettings configures the session cookie issued on login.
type CookieSettings struct {
	Name          string
	Domain        string
	Secure        bool
	TTL           time.Duration
	PersistentTTL time.Duration
}

// AuthHandler serves the authentication endpoints.
type AuthHandler struct {
	auth    *usecase.AuthService
	cookies CookieSettings
	logger  *zap.Logger
}

// NewAuthHandler builds a handler around the auth service.
func NewAuthHandler(auth *usecase.AuthService, cookies CookieSettings, log *zap.Logger) *AuthHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthHandler{auth: auth, cookies: cookies, logger: log}
}

// Register creates an account and triggers the confirmation email.
func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email and password are required"))
		return
	}

	_, err := h.auth.Register(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		var validation *security.PasswordValidationError
		switch {
		case errors.As(err, &validation):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, validation.Message))
		case errors.Is(err, usecase.ErrDuplicateAccount):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "an account with this email already exists"))
		default:
			h.logger.Error("registration failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "registration failed"))
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{
		Message: "Registration successful. Check your email to confirm your account.",
	})
}

// Login verifies credentials and sets the session cookie.
func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "email and password are required"))
		return
	}

	raw, session, err := h.auth.Authenticate(c.Request.Context(), req.Email, req.Password, req.RememberMe)
	if err != nil {
		if locked, ok := usecase.IsLockedOut(err); ok {
			c.JSON(http.StatusUnauthorized, LockedResponse{
				Error:       "account temporarily locked",
				LockedUntil: locked.Until,
			})
			return
		}
		switch {
		case errors.Is(err, usecase.ErrNotConfirmed):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "confirm your email before logging in"))
		case errors.Is(err, usecase.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "invalid email or password"))
		default:
			h.logger.Error("login failed",
				zap.String("email", appLogger.MaskEmail(req.Email)),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "login failed"))
		}
		return
	}

	h.setSessionCookie(c, raw, session.Persistent)

	// Accounts store the lowercased email; echo that canonical form rather
	// than whatever casing the client typed.
	c.JSON(http.StatusOK, UserResponse{
		ID:    session.UserID,
		Email: strings.ToLower(strings.TrimSpace(req.Email)),
		Roles: session.Roles,
	})
}

// Logout revokes the current session and clears the cookie. It succeeds even
// without a live session.
func (h *AuthHandler) Logout(c *gin.Context) {
	raw, err := c.Cookie(h.cookies.Name)
	if err == nil && raw != "" {
		if err := h.auth.Logout(c.Request.Context(), raw); err != nil {
			h.logger.Error("logout failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "logout failed"))
			return
		}
	}

	h.clearSessionCookie(c)
	c.JSON(http.StatusOK, MessageResponse{Message: "Logged out."})
}

// ConfirmEmail redeems the confirmation link.
func (h *AuthHandler) ConfirmEmail(c *gin.Context) {
	userID := c.Query("userId")
	token := c.Query("token")

	if err := h.auth.ConfirmEmail(c.Request.Context(), userID, token); err != nil {
		switch {
		case errors.Is(err, usecase.ErrUnknownUser):
			c.JSON(http.StatusNotFound, NewErrorResponse(c, "unknown user"))
		case errors.Is(err, usecase.ErrTokenExpired):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "confirmation link expired"))
		case errors.Is(err, usecase.ErrTokenAlreadyUsed):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "confirmation link already used"))
		case errors.Is(err, usecase.ErrTokenInvalid):
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid confirmation link"))
		default:
			h.logger.Error("email confirmation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "confirmation failed"))
		}
		return
	}

	c.JSON(http.StatusOK, MessageResponse{Message: "Email confirmed. You can now log in."})
}

// Me returns the account behind the current session, with the session's role
// snapshot.
func (h *AuthHandler) Me(c *gin.Context) {
	raw := middleware.SessionHandleFromContext(c)

	account, session, err := h.auth.CurrentUser(c.Request.Context(), raw)
	if err != nil {
		if errors.Is(err, usecase.ErrUnauthenticated) {
			c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
			return
		}
		h.logger.Error("current user lookup failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, NewErrorResponse(c, "lookup failed"))
		return
	}

	c.JSON(http.StatusOK, UserResponse{
		ID:    account.ID,
		Email: account.Email,
		Roles: session.Roles,
	})
}

// AdminData serves the role-gated sample payload. RequireRole has already
// vetted the session by the time this runs.
func (h *AuthHandler) AdminData(c *gin.Context) {
	session := middleware.SessionFromContext(c)
	if session == nil {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"message": "sensitive admin payload",
		"user_id": session.UserID,
	})
}

func (h *AuthHandler) setSessionCookie(c *gin.Context, raw string, persistent bool) {
	// Session cookies carry no MaxAge so the browser drops them on exit;
	// persistent logins get the long TTL.
	maxAge := 0
	if persistent {
		maxAge = int(h.cookies.PersistentTTL.Seconds())
	}

	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    raw,
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   maxAge,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}

func (h *AuthHandler) clearSessionCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     h.cookies.Name,
		Value:    "",
		Path:     "/",
		Domain:   h.cookies.Domain,
		MaxAge:   -1,
		Secure:   h.cookies.Secure,
		HttpOnly: true,
		SameSite: http.SameSiteStrictMode,
	})
}
