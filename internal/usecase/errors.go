package usecase

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidCredentials indicates the provided email or password are incorrect.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNotConfirmed indicates the account exists but its email was never confirmed.
	ErrNotConfirmed = errors.New("email not confirmed")
	// ErrDuplicateAccount indicates registration collided with an existing email.
	ErrDuplicateAccount = errors.New("account already exists")
	// ErrUnauthenticated indicates no valid session backs the request.
	ErrUnauthenticated = errors.New("unauthenticated")
	// ErrUnknownUser indicates the stated user does not exist.
	ErrUnknownUser = errors.New("unknown user")
	// ErrTokenInvalid indicates the confirmation token does not exist or does
	// not belong to the stated user.
	ErrTokenInvalid = errors.New("confirmation token invalid")
	// ErrTokenExpired indicates the confirmation token passed its expiry.
	ErrTokenExpired = errors.New("confirmation token expired")
	// ErrTokenAlreadyUsed indicates the confirmation token was consumed before.
	ErrTokenAlreadyUsed = errors.New("confirmation token already used")
)

// LockedOutError indicates authentication was refused because the account is
// locked. Until carries the deadline after which attempts are accepted again.
type LockedOutError struct {
	Until time.Time
}

func (e *LockedOutError) Error() string {
	return fmt.Sprintf("account locked until %s", e.Until.Format(time.RFC3339))
}

// IsLockedOut reports whether err wraps a LockedOutError and returns it.
func IsLockedOut(err error) (*LockedOutError, bool) {
	var locked *LockedOutError
	if errors.As(err, &locked) {
		return locked, true
	}
	return nil, false
}
