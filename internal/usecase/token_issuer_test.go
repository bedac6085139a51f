package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/infra/security"
)

func TestTokenIssuerIssueAndVerify(t *testing.T) {
	tokens := newMemTokenRepository()
	issuer := NewTokenIssuer(tokens, time.Hour)

	raw, err := issuer.Issue(context.Background(), "acct-1", domain.TokenPurposeEmailConfirmation)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if raw == "" {
		t.Fatal("expected raw token")
	}

	// Only the hash is stored.
	stored, err := tokens.GetConfirmationByHash(context.Background(), security.HashToken(raw))
	if err != nil {
		t.Fatalf("GetConfirmationByHash: %v", err)
	}
	if stored.TokenHash == raw {
		t.Fatal("raw token leaked into storage")
	}

	if err := issuer.Verify(context.Background(), "acct-1", raw, domain.TokenPurposeEmailConfirmation); err != nil {
		t.Fatalf("Verify: %v", err)
	}
}

func TestTokenIssuerVerifyIsSingleUse(t *testing.T) {
	tokens := newMemTokenRepository()
	issuer := NewTokenIssuer(tokens, time.Hour)

	raw, err := issuer.Issue(context.Background(), "acct-1", domain.TokenPurposeEmailConfirmation)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := issuer.Verify(context.Background(), "acct-1", raw, domain.TokenPurposeEmailConfirmation); err != nil {
		t.Fatalf("first Verify: %v", err)
	}
	if err := issuer.Verify(context.Background(), "acct-1", raw, domain.TokenPurposeEmailConfirmation); !errors.Is(err, ErrTokenAlreadyUsed) {
		t.Fatalf("expected ErrTokenAlreadyUsed, got %v", err)
	}
}

func TestTokenIssuerVerifyRejectsWrongUserAndPurpose(t *testing.T) {
	tokens := newMemTokenRepository()
	issuer := NewTokenIssuer(tokens, time.Hour)

	raw, err := issuer.Issue(context.Background(), "acct-1", domain.TokenPurposeEmailConfirmation)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	if err := issuer.Verify(context.Background(), "acct-2", raw, domain.TokenPurposeEmailConfirmation); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong user, got %v", err)
	}
	if err := issuer.Verify(context.Background(), "acct-1", raw, "password-reset"); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid for wrong purpose, got %v", err)
	}

	// Both rejections leave the token unconsumed.
	if err := issuer.Verify(context.Background(), "acct-1", raw, domain.TokenPurposeEmailConfirmation); err != nil {
		t.Fatalf("Verify after rejections: %v", err)
	}
}

func TestTokenIssuerVerifyRejectsExpired(t *testing.T) {
	tokens := newMemTokenRepository()
	issuer := NewTokenIssuer(tokens, time.Hour)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return base }

	raw, err := issuer.Issue(context.Background(), "acct-1", domain.TokenPurposeEmailConfirmation)
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	issuer.now = func() time.Time { return base.Add(time.Hour + time.Second) }
	if err := issuer.Verify(context.Background(), "acct-1", raw, domain.TokenPurposeEmailConfirmation); !errors.Is(err, ErrTokenExpired) {
		t.Fatalf("expected ErrTokenExpired, got %v", err)
	}
}

func TestTokenIssuerVerifyUnknownToken(t *testing.T) {
	tokens := newMemTokenRepository()
	issuer := NewTokenIssuer(tokens, time.Hour)

	if err := issuer.Verify(context.Background(), "acct-1", "bogus", domain.TokenPurposeEmailConfirmation); !errors.Is(err, ErrTokenInvalid) {
		t.Fatalf("expected ErrTokenInvalid, got %v", err)
	}
}

func TestTokenIssuerSweepExpired(t *testing.T) {
	tokens := newMemTokenRepository()
	issuer := NewTokenIssuer(tokens, time.Hour)

	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	issuer.now = func() time.Time { return base }

	if _, err := issuer.Issue(context.Background(), "acct-1", domain.TokenPurposeEmailConfirmation); err != nil {
		t.Fatalf("Issue: %v", err)
	}
	if _, err := issuer.Issue(context.Background(), "acct-2", domain.TokenPurposeEmailConfirmation); err != nil {
		t.Fatalf("Issue: %v", err)
	}

	issuer.now = func() time.Time { return base.Add(2 * time.Hour) }
	deleted, err := issuer.SweepExpired(context.Background())
	if err != nil {
		t.Fatalf("SweepExpired: %v", err)
	}
	if deleted != 2 {
		t.Fatalf("expected 2 swept tokens, got %d", deleted)
	}
}
