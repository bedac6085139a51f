package port

import (
	"context"
	"time"

	"github.com/avralex/authgate/internal/core/domain"
)

// SessionRepository exposes persistence behavior for sessions.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	GetByTokenHash(ctx context.Context, hash string) (*domain.Session, error)
	// Revoke marks the session matching the handle hash as revoked. Revoking
	// an already-revoked or unknown handle is not an error; the write must be
	// visible to subsequent GetByTokenHash calls before Revoke returns.
	Revoke(ctx context.Context, hash string, at time.Time) error
	RevokeAllForUser(ctx context.Context, userID string, at time.Time) (int64, error)
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
