package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/core/port"
	"github.com/avralex/authgate/internal/infra/logger"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for
// development environments without a broker.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(log *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: log}
}

func (p *StubPublisher) logEvent(eventType, userID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("stub event published",
		zap.String("event_type", eventType),
		zap.String("user_id", userID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs auth.account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent("auth.account.registered", event.UserID, event.RegisteredAt, map[string]any{
		"email": logger.MaskEmail(event.Email),
	})
	return nil
}

// PublishEmailConfirmed logs auth.account.email_confirmed events.
func (p *StubPublisher) PublishEmailConfirmed(_ context.Context, event domain.EmailConfirmedEvent) error {
	p.logEvent("auth.account.email_confirmed", event.UserID, event.ConfirmedAt, nil)
	return nil
}

// PublishLoginSucceeded logs auth.login.succeeded events.
func (p *StubPublisher) PublishLoginSucceeded(_ context.Context, event domain.LoginSucceededEvent) error {
	p.logEvent("auth.login.succeeded", event.UserID, event.At, map[string]any{
		"session_id": event.SessionID,
	})
	return nil
}

// PublishLoginFailed logs auth.login.failed events.
func (p *StubPublisher) PublishLoginFailed(_ context.Context, event domain.LoginFailedEvent) error {
	p.logEvent("auth.login.failed", event.UserID, event.At, map[string]any{
		"failure_count": event.FailureCount,
	})
	return nil
}

// PublishAccountLocked logs auth.account.locked events.
func (p *StubPublisher) PublishAccountLocked(_ context.Context, event domain.AccountLockedEvent) error {
	p.logEvent("auth.account.locked", event.UserID, event.At, map[string]any{
		"locked_until": event.LockedUntil,
	})
	return nil
}

// PublishSessionRevoked logs auth.session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent("auth.session.revoked", event.UserID, event.At, map[string]any{
		"session_id": event.SessionID,
		"reason":     event.Reason,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
