package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	uuid "github.com/google/uuid"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/core/port"
	"github.com/avralex/authgate/internal/infra/security"
	"github.com/avralex/authgate/internal/repository"
)

const confirmationTokenBytes = 32

// TokenIssuer mints and redeems single-use, expiring confirmation tokens.
// Only a SHA-256 digest of the token is persisted; the raw value travels to
// the user exactly once, inside the confirmation link.
type TokenIssuer struct {
	tokens port.TokenRepository
	ttl    time.Duration
	now    func() time.Time
}

// NewTokenIssuer constructs an issuer whose tokens expire after ttl.
func NewTokenIssuer(tokens port.TokenRepository, ttl time.Duration) *TokenIssuer {
	return &TokenIssuer{
		tokens: tokens,
		ttl:    ttl,
		now:    time.Now,
	}
}

// Issue creates a confirmation token bound to the user and returns the raw
// value for delivery. The stored row carries only the hash.
func (i *TokenIssuer) Issue(ctx context.Context, userID, purpose string) (string, error) {
	raw, err := security.GenerateSecureToken(confirmationTokenBytes)
	if err != nil {
		return "", fmt.Errorf("generate confirmation token: %w", err)
	}

	now := i.now().UTC()
	token := domain.ConfirmationToken{
		ID:        uuid.NewString(),
		UserID:    userID,
		TokenHash: security.HashToken(raw),
		Purpose:   purpose,
		CreatedAt: now,
		ExpiresAt: now.Add(i.ttl),
	}

	if err := i.tokens.CreateConfirmation(ctx, token); err != nil {
		return "", fmt.Errorf("persist confirmation token: %w", err)
	}

	return raw, nil
}

// Verify redeems a raw token for the given user and purpose. Redemption is
// all-or-nothing: the lookup finds the row by hash, and the consume step only
// succeeds while used_at is still null, so of two concurrent redeemers
// exactly one wins and the other sees ErrTokenAlreadyUsed.
func (i *TokenIssuer) Verify(ctx context.Context, userID, raw, purpose string) error {
	token, err := i.tokens.GetConfirmationByHash(ctx, security.HashToken(raw))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrTokenInvalid
		}
		return fmt.Errorf("lookup confirmation token: %w", err)
	}

	if !security.ConstantTimeEquals(token.TokenHash, security.HashToken(raw)) {
		return ErrTokenInvalid
	}
	if token.UserID != userID || token.Purpose != purpose {
		return ErrTokenInvalid
	}

	now := i.now().UTC()
	if token.UsedAt != nil {
		return ErrTokenAlreadyUsed
	}
	if token.IsExpired(now) {
		return ErrTokenExpired
	}

	if err := i.tokens.ConsumeConfirmation(ctx, token.ID, now); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			// Lost the race to a concurrent redeemer.
			return ErrTokenAlreadyUsed
		}
		return fmt.Errorf("consume confirmation token: %w", err)
	}

	return nil
}

// SweepExpired deletes tokens that expired before now and returns how many
// rows went away.
func (i *TokenIssuer) SweepExpired(ctx context.Context) (int64, error) {
	deleted, err := i.tokens.DeleteExpired(ctx, i.now().UTC())
	if err != nil {
		return 0, fmt.Errorf("sweep expired tokens: %w", err)
	}
	return deleted, nil
}
