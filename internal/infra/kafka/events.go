package kafka

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/IBM/sarama"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/infra/config"
)

const schemaVersion = "1.0"

// EventPublisher implements port.EventPublisher using Kafka.
type EventPublisher struct {
	producer *Producer
	logger   *zap.Logger
	appCfg   config.AppSettings
}

// NewEventPublisher constructs a Kafka-backed event publisher.
func NewEventPublisher(producer *Producer, appCfg config.AppSettings, logger *zap.Logger) *EventPublisher {
	return &EventPublisher{producer: producer, appCfg: appCfg, logger: logger}
}

type envelopeMetadata map[string]string

type eventEnvelope struct {
	EventID   string           `json:"event_id"`
	EventType string           `json:"event_type"`
	AccountID string           `json:"account_id,omitempty"`
	Timestamp time.Time        `json:"timestamp"`
	Version   string           `json:"version"`
	Payload   any              `json:"payload"`
	Metadata  envelopeMetadata `json:"metadata,omitempty"`
}

func (p *EventPublisher) publish(ctx context.Context, eventID, eventType, accountID string, ts time.Time, payload any) error {
	if ts.IsZero() {
		ts = time.Now().UTC()
	}

	id := eventID
	if id == "" {
		id = uuid.NewString()
	}

	metadata := envelopeMetadata{
		"service":     p.appCfg.Name,
		"environment": p.appCfg.Env,
	}

	envelope := eventEnvelope{
		EventID:   id,
		EventType: eventType,
		AccountID: accountID,
		Timestamp: ts.UTC(),
		Version:   schemaVersion,
		Payload:   payload,
		Metadata:  metadata,
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

// PublishAccountRegistered publishes account.registered events.
func (p *EventPublisher) PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error {
	payload := struct {
		AccountID    string         `json:"account_id"`
		Username     string         `json:"username"`
		Email        string         `json:"email"`
		Role         string         `json:"role"`
		Status       string         `json:"status"`
		RegisteredAt time.Time      `json:"registered_at"`
		CreatedBy    string         `json:"created_by,omitempty"`
		Metadata     map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:    event.AccountID,
		Username:     event.Username,
		Email:        event.Email,
		Role:         event.Role,
		Status:       event.Status,
		RegisteredAt: event.RegisteredAt.UTC(),
		CreatedBy:    event.CreatedBy,
		Metadata:     event.Metadata,
	}

	return p.publish(ctx, event.EventID, "account.registered", event.AccountID, event.RegisteredAt, payload)
}

// PublishAccountStatusChanged publishes account.status.changed events.
func (p *EventPublisher) PublishAccountStatusChanged(ctx context.Context, event domain.AccountStatusChangedEvent) error {
	payload := struct {
		AccountID        string         `json:"account_id"`
		PreviousStatus   string         `json:"previous_status"`
		NewStatus        string         `json:"new_status"`
		Reason           string         `json:"reason,omitempty"`
		Actor            string         `json:"actor,omitempty"`
		SuspensionEndsAt *time.Time     `json:"suspension_ends_at,omitempty"`
		ChangedAt        time.Time      `json:"changed_at"`
		Metadata         map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:        event.AccountID,
		PreviousStatus:   event.PreviousStatus,
		NewStatus:        event.NewStatus,
		Reason:           event.Reason,
		Actor:            event.Actor,
		SuspensionEndsAt: event.SuspensionEndsAt,
		ChangedAt:        event.ChangedAt.UTC(),
		Metadata:         event.Metadata,
	}

	return p.publish(ctx, event.EventID, "account.status.changed", event.AccountID, event.ChangedAt, payload)
}

// PublishAccountDeleted publishes account.deleted events.
func (p *EventPublisher) PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error {
	payload := struct {
		AccountID string         `json:"account_id"`
		Actor     string         `json:"actor,omitempty"`
		DeletedAt time.Time      `json:"deleted_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		AccountID: event.AccountID,
		Actor:     event.Actor,
		DeletedAt: event.DeletedAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "account.deleted", event.AccountID, event.DeletedAt, payload)
}

// PublishPasswordChanged publishes account.password.changed events.
func (p *EventPublisher) PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error {
	payload := struct {
		AccountID string         `json:"account_id"`
		ChangedAt time.Time      `json:"changed_at"`
		ChangedBy string         `json:"changed_by,omitempty"`
		Temporary bool           `json:"temporary"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		AccountID: event.AccountID,
		ChangedAt: event.ChangedAt.UTC(),
		ChangedBy: event.ChangedBy,
		Temporary: event.Temporary,
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "account.password.changed", event.AccountID, event.ChangedAt, payload)
}

// PublishPasswordResetRequested publishes account.password.reset_requested events.
func (p *EventPublisher) PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error {
	payload := struct {
		AccountID   string         `json:"account_id"`
		RequestedAt time.Time      `json:"requested_at"`
		ExpiresAt   time.Time      `json:"expires_at"`
		Metadata    map[string]any `json:"metadata,omitempty"`
	}{
		AccountID:   event.AccountID,
		RequestedAt: event.RequestedAt.UTC(),
		ExpiresAt:   event.ExpiresAt.UTC(),
		Metadata:    event.Metadata,
	}

	return p.publish(ctx, event.EventID, "account.password.reset_requested", event.AccountID, event.RequestedAt, payload)
}

// PublishPasswordExpired publishes account.password.expired events.
func (p *EventPublisher) PublishPasswordExpired(ctx context.Context, event domain.PasswordExpiredEvent) error {
	payload := struct {
		AccountID string         `json:"account_id"`
		ExpiredAt time.Time      `json:"expired_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		AccountID: event.AccountID,
		ExpiredAt: event.ExpiredAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "account.password.expired", event.AccountID, event.ExpiredAt, payload)
}

// PublishSessionIssued publishes session.issued events.
func (p *EventPublisher) PublishSessionIssued(ctx context.Context, event domain.SessionIssuedEvent) error {
	payload := struct {
		SessionID string         `json:"session_id"`
		AccountID string         `json:"account_id"`
		IssuedAt  time.Time      `json:"issued_at"`
		LogoutAt  time.Time      `json:"logout_at"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SessionID: event.SessionID,
		AccountID: event.AccountID,
		IssuedAt:  event.IssuedAt.UTC(),
		LogoutAt:  event.LogoutAt.UTC(),
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "session.issued", event.AccountID, event.IssuedAt, payload)
}

// PublishSessionRevoked publishes session.revoked events.
func (p *EventPublisher) PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error {
	payload := struct {
		SessionID string         `json:"session_id"`
		AccountID string         `json:"account_id"`
		RevokedAt time.Time      `json:"revoked_at"`
		Reason    string         `json:"reason,omitempty"`
		Metadata  map[string]any `json:"metadata,omitempty"`
	}{
		SessionID: event.SessionID,
		AccountID: event.AccountID,
		RevokedAt: event.RevokedAt.UTC(),
		Reason:    event.Reason,
		Metadata:  event.Metadata,
	}

	return p.publish(ctx, event.EventID, "session.revoked", event.AccountID, event.RevokedAt, payload)
}

var _ port.EventPublisher = (*EventPublisher)(nil)
