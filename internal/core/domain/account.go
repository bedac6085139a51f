package domain

import "time"

// Account mirrors the persisted representation in the accounts table.
// Email is stored lowercased and compared case-insensitively.
type Account struct {
	ID                 string
	Email              string
	PasswordHash       string
	PasswordAlgo       string
	EmailConfirmed     bool
	FailedAttemptCount int
	LockedUntil        *time.Time
	RegisteredAt       time.Time
	LastLogin          *time.Time
}

// IsLocked reports whether the account is locked out at the supplied moment.
// An elapsed lock counts as unlocked; the stale failure counter is left in
// place until the next successful authentication resets it.
func (a Account) IsLocked(at time.Time) bool {
	return a.LockedUntil != nil && a.LockedUntil.After(at)
}
