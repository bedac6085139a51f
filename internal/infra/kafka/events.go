package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/avralex/authgate/internal/core/domain"
	"github.com/avralex/authgate/internal/core/port"
	"github.com/avralex/authgate/internal/infra/config"
	"github.com/avralex/authgate/internal/infra/logger"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, log *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: log}
}

type eventEnvelope struct {
	EventID   string            `json:"event_id"`
	EventType string            `json:"event_type"`
	UserID    string            `json:"user_id,omitempty"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Payload   any               `json:"payload"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, userID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		UserID:    userID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata: map[string]string{
			"service":     p.appCfg.Name,
			"environment": p.appCfg.Env,
		},
	}

	bytes, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("marshal event envelope: %w", err)
	}

	message := &sarama.ProducerMessage{
		Topic: p.producer.TopicName(eventType),
		Value: sarama.ByteEncoder(bytes),
	}

	select {
	case p.producer.Producer().Input() <- message:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// PublishAccountRegistered publishes auth.account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		UserID       string    `json:"user_id"`
		Email        string    `json:"email"`
		RegisteredAt time.Time `json:"registered_at"`
	}{
		UserID:       event.UserID,
		Email:        logger.MaskEmail(event.Email),
		RegisteredAt: event.RegisteredAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.account.registered", event.UserID, event.RegisteredAt, payload)
}

// PublishEmailConfirmed publishes auth.account.email_confirmed events.
func (p *EventPublisher) PublishEmailConfirmed(ctx context.Context, event domain.EmailConfirmedEvent) error {
	payload := struct {
		UserID      string    `json:"user_id"`
		ConfirmedAt time.Time `json:"confirmed_at"`
	}{
		UserID:      event.UserID,
		ConfirmedAt: event.ConfirmedAt.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.account.email_confirmed", event.UserID, event.ConfirmedAt, payload)
}

// PublishLoginSucceeded publishes auth.login.succeeded events.
func (p *EventPublisher) PublishLoginSucceeded(ctx context.Context, event domain.LoginSucceededEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		SessionID string    `json:"session_id"`
		At        time.Time `json:"at"`
	}{
		UserID:    event.UserID,
		SessionID: event.SessionID,
		At:        event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.login.succeeded", event.UserID, event.At, payload)
}

// PublishLoginFailed publishes auth.login.failed events.
func (p *EventPublisher) PublishLoginFailed(ctx context.Context, event domain.LoginFailedEvent) error {
	payload := struct {
		UserID       string    `json:"user_id,omitempty"`
		FailureCount int       `json:"failure_count"`
		At           time.Time `json:"at"`
	}{
		UserID:       event.UserID,
		FailureCount: event.FailureCount,
		At:           event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.login.failed", event.UserID, event.At, payload)
}

// PublishAccountLocked publishes auth.account.locked events.
func (p *EventPublisher) PublishAccountLocked(ctx context.Context, event domain.AccountLockedEvent) error {
	payload := struct {
		UserID      string    `json:"user_id"`
		LockedUntil time.Time `json:"locked_until"`
		At          time.Time `json:"at"`
	}{
		UserID:      event.UserID,
		LockedUntil: event.LockedUntil.UTC(),
		At:          event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.account.locked", event.UserID, event.At, payload)
}

// PublishSessionRevoked publishes auth.session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		UserID    string    `json:"user_id"`
		SessionID string    `json:"session_id"`
		Reason    string    `json:"reason"`
		At        time.Time `json:"at"`
	}{
		UserID:    event.UserID,
		SessionID: event.SessionID,
		Reason:    event.Reason,
		At:        event.At.UTC(),
	}

	return p.publish(ctx, event.EventID, "auth.session.revoked", event.UserID, event.At, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
