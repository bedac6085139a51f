package domain

import "time"

// TokenPurposeEmailConfirmation marks tokens proving control of an email address.
const TokenPurposeEmailConfirmation = "email-confirmation"

// ConfirmationToken is a single-use verification artifact. Only the SHA-256
// hash of the raw token is ever persisted.
type ConfirmationToken struct {
	ID        string
	UserID    string
	TokenHash string
	Purpose   string
	CreatedAt time.Time
	ExpiresAt time.Time
	UsedAt    *time.Time
}

// IsExpired reports whether the token can still be redeemed.
func (t ConfirmationToken) IsExpired(at time.Time) bool {
	return !t.ExpiresAt.After(at)
}

// Consume marks the token as used.
// Returns true when the token transitions from unused to used.
func (t *ConfirmationToken) Consume(at time.Time) bool {
	if t.UsedAt != nil {
		return false
	}
	timeCopy := at
	t.UsedAt = &timeCopy
	return true
}
