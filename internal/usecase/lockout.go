package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/core/port"
)

// LockoutPolicy tracks consecutive authentication failures per account and
// arms a temporary lock once the threshold is reached. The counting is
// delegated to the repository's atomic increment, so racing failures against
// a single account serialize in the database rather than in process.
type LockoutPolicy struct {
	users     port.UserRepository
	threshold int
	duration  time.Duration
	now       func() time.Time
}

// NewLockoutPolicy constructs a policy with the given failure threshold and
// lock duration.
func NewLockoutPolicy(users port.UserRepository, threshold int, duration time.Duration) *LockoutPolicy {
	return &LockoutPolicy{
		users:     users,
		threshold: threshold,
		duration:  duration,
		now:       time.Now,
	}
}

// Threshold returns the configured failure threshold.
func (p *LockoutPolicy) Threshold() int { return p.threshold }

// Duration returns the configured lock duration.
func (p *LockoutPolicy) Duration() time.Duration { return p.duration }

// CheckLocked reports whether the account is currently locked. The deadline
// returned is the instant the lock lapses; a lapsed deadline is not cleared
// here, the next successful login clears it.
func (p *LockoutPolicy) CheckLocked(account *domain.Account) (time.Time, bool) {
	at := p.now()
	if account.IsLocked(at) {
		return *account.LockedUntil, true
	}
	return time.Time{}, false
}

// RecordFailure registers one failed attempt. The lock deadline is anchored
// at the failing attempt's time, so the lock covers duration from the attempt
// that crossed the threshold. It returns the post-increment count and, when
// the account just became (or already was) locked, the active deadline.
func (p *LockoutPolicy) RecordFailure(ctx context.Context, accountID string) (int, *time.Time, error) {
	lockUntil := p.now().Add(p.duration)

	count, lockedUntil, err := p.users.RecordAuthFailure(ctx, accountID, p.threshold, lockUntil)
	if err != nil {
		return 0, nil, fmt.Errorf("record auth failure: %w", err)
	}

	return count, lockedUntil, nil
}

// RecordSuccess resets the failure counter and clears any lock deadline.
func (p *LockoutPolicy) RecordSuccess(ctx context.Context, accountID string) error {
	if err := p.users.RecordAuthSuccess(ctx, accountID, p.now()); err != nil {
		return fmt.Errorf("record auth success: %w", err)
	}
	return nil
}
