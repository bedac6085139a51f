package port

import (
	"context"
	"time"

	"github.com/avralex/authgate/internal/core/domain"
)

// TokenRepository exposes persistence behavior for confirmation tokens.
type TokenRepository interface {
	CreateConfirmation(ctx context.Context, token domain.ConfirmationToken) error
	GetConfirmationByHash(ctx context.Context, hash string) (*domain.ConfirmationToken, error)
	// ConsumeConfirmation marks the token used iff it is still unused. The
	// guard makes verify-and-mark a single atomic step; a concurrent consumer
	// that loses the race observes repository.ErrNotFound.
	ConsumeConfirmation(ctx context.Context, id string, at time.Time) error
	// DeleteExpired removes tokens whose expiry precedes the cutoff and
	// returns the number of rows removed.
	DeleteExpired(ctx context.Context, cutoff time.Time) (int64, error)
}
