package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/core/port"
	"github.com/avralex/authgate/internal/infra/security"
	"github.com/avralex/authgate/internal/repository"
)

const sessionHandleBytes = 32

// SessionManager issues and validates opaque session handles. A handle is a
// random value with no embedded claims; everything the server knows about a
// session lives in the store, which is why revocation takes effect on the
// very next validation.
type SessionManager struct {
	sessions      port.SessionRepository
	ttl           time.Duration
	persistentTTL time.Duration
	logger        *zap.Logger
	now           func() time.Time
}

// NewSessionManager constructs a manager with the given idle and persistent
// lifetimes.
func NewSessionManager(sessions port.SessionRepository, ttl, persistentTTL time.Duration, log *zap.Logger) *SessionManager {
	return &SessionManager{
		sessions:      sessions,
		ttl:           ttl,
		persistentTTL: persistentTTL,
		logger:        log,
		now:           time.Now,
	}
}

// Issue creates a session for the user, snapshotting the roles held at issue
// time, and returns the raw handle. Only the handle's hash is persisted.
func (m *SessionManager) Issue(ctx context.Context, userID string, roles []string, persistent bool) (string, *domain.Session, error) {
	raw, err := security.GenerateSecureToken(sessionHandleBytes)
	if err != nil {
		return "", nil, fmt.Errorf("generate session handle: %w", err)
	}

	now := m.now().UTC()
	ttl := m.ttl
	if persistent {
		ttl = m.persistentTTL
	}

	session := domain.Session{
		ID:         uuid.NewString(),
		UserID:     userID,
		TokenHash:  security.HashToken(raw),
		Roles:      append([]string(nil), roles...),
		Persistent: persistent,
		CreatedAt:  now,
		ExpiresAt:  now.Add(ttl),
	}

	if err := m.sessions.Create(ctx, session); err != nil {
		return "", nil, fmt.Errorf("persist session: %w", err)
	}

	return raw, &session, nil
}

// Validate resolves a raw handle to its session. Unknown, expired, and
// revoked handles all collapse into ErrUnauthenticated so callers cannot
// distinguish why a handle stopped working.
func (m *SessionManager) Validate(ctx context.Context, raw string) (*domain.Session, error) {
	if raw == "" {
		return nil, ErrUnauthenticated
	}

	session, err := m.sessions.GetByTokenHash(ctx, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrUnauthenticated
		}
		return nil, fmt.Errorf("lookup session: %w", err)
	}

	if !session.IsActive(m.now().UTC()) {
		return nil, ErrUnauthenticated
	}

	return session, nil
}

// Revoke invalidates the handle. Revoking an unknown or already-revoked
// handle succeeds, so logout is idempotent.
func (m *SessionManager) Revoke(ctx context.Context, raw string) error {
	if raw == "" {
		return nil
	}

	if err := m.sessions.Revoke(ctx, security.HashToken(raw), m.now().UTC()); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

// RevokeAllForUser invalidates every active session the user holds and
// returns how many were revoked.
func (m *SessionManager) RevokeAllForUser(ctx context.Context, userID string) (int64, error) {
	revoked, err := m.sessions.RevokeAllForUser(ctx, userID, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("revoke user sessions: %w", err)
	}

	if revoked > 0 {
		m.logger.Info("revoked user sessions",
			zap.String("user_id", userID),
			zap.Int64("count", revoked))
	}

	return revoked, nil
}

// SweepExpired deletes sessions that expired before now.
func (m *SessionManager) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := m.sessions.DeleteExpired(ctx, m.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep expired sessions: %w", err)
	}
	return deleted, nil
}
