package domain

import "time"

// Session represents a persisted login session. The opaque handle carried by
// the client is never stored; only its SHA-256 hash is.
//
// Roles is a snapshot captured at issue time. Role changes made after issuance
// are not reflected until the account re-authenticates; this staleness is the
// documented policy, not a defect.
type Session struct {
	ID         string
	UserID     string
	TokenHash  string
	Roles      []string
	Persistent bool
	CreatedAt  time.Time
	ExpiresAt  time.Time
	RevokedAt  *time.Time
}

// IsActive reports whether the session is still valid (not revoked and not
// expired at the supplied moment).
func (s Session) IsActive(at time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	return s.ExpiresAt.After(at)
}

// Revoke marks the session as revoked.
// Returns true when the session changed state.
func (s *Session) Revoke(at time.Time) bool {
	if s.RevokedAt != nil {
		return false
	}
	timeCopy := at
	s.RevokedAt = &timeCopy
	return true
}

// HasRole reports whether the role snapshot includes the given role name.
func (s Session) HasRole(role string) bool {
	for _, r := range s.Roles {
		if r == role {
			return true
		}
	}
	return false
}
