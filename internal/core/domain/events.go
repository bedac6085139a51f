package domain

import "time"

// AccountRegisteredEvent is emitted after a new account row is created.
type AccountRegisteredEvent struct {
	EventID      string
	UserID       string
	Email        string
	RegisteredAt time.Time
}

// EmailConfirmedEvent is emitted when a confirmation token is redeemed.
type EmailConfirmedEvent struct {
	EventID     string
	UserID      string
	ConfirmedAt time.Time
}

// LoginSucceededEvent is emitted after a successful authentication.
type LoginSucceededEvent struct {
	EventID   string
	UserID    string
	SessionID string
	At        time.Time
}

// LoginFailedEvent is emitted after a failed authentication attempt.
// UserID is empty when the presented email matched no account.
type LoginFailedEvent struct {
	EventID      string
	UserID       string
	FailureCount int
	At           time.Time
}

// AccountLockedEvent is emitted when a failure crosses the lockout threshold.
type AccountLockedEvent struct {
	EventID     string
	UserID      string
	LockedUntil time.Time
	At          time.Time
}

// SessionRevokedEvent is emitted when a session stops validating.
type SessionRevokedEvent struct {
	EventID   string
	UserID    string
	SessionID string
	Reason    string
	At        time.Time
}
