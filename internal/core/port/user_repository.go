package port

import (
	"context"
	"time"

	"github.com/avralex/authgate/internal/core/domain"
)

// UserRepository exposes persistence behavior for accounts.
//
// RecordAuthFailure and RecordAuthSuccess must mutate the lockout bookkeeping
// atomically with respect to concurrent authentication attempts against the
// same account (single-statement update or equivalent). No cross-account lock
// is permitted.
type UserRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	// GetByEmail performs a case-insensitive lookup.
	GetByEmail(ctx context.Context, email string) (*domain.Account, error)
	ConfirmEmail(ctx context.Context, id string) error
	// RecordAuthFailure increments the failure counter and, when the
	// post-increment count reaches threshold, sets the lock deadline.
	// Returns the post-increment count and the lock deadline in effect.
	RecordAuthFailure(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, *time.Time, error)
	// RecordAuthSuccess zeroes the failure counter, clears any lock deadline,
	// and stamps the last successful login.
	RecordAuthSuccess(ctx context.Context, id string, at time.Time) error
	GetRoles(ctx context.Context, id string) ([]string, error)
	AssignRole(ctx context.Context, id string, role string) error
}
