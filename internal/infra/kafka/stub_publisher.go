package kafka

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
)

// StubPublisher logs events instead of sending them to Kafka. Useful for development environments.
type StubPublisher struct {
	logger *zap.Logger
}

// NewStubPublisher constructs a development-friendly event publisher.
func NewStubPublisher(logger *zap.Logger) *StubPublisher {
	return &StubPublisher{logger: logger}
}

func (p *StubPublisher) logEvent(eventType, accountID string, at time.Time, payload any) {
	if at.IsZero() {
		at = time.Now().UTC()
	}

	p.logger.Info("Stub event published",
		zap.String("event_type", eventType),
		zap.String("account_id", accountID),
		zap.Time("timestamp", at.UTC()),
		zap.Any("payload", payload),
	)
}

// PublishAccountRegistered logs account.registered events.
func (p *StubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.logEvent("account.registered", event.AccountID, event.RegisteredAt, map[string]any{
		"username": event.Username,
		"role":     event.Role,
		"status":   event.Status,
	})
	return nil
}

// PublishAccountStatusChanged logs account.status.changed events.
func (p *StubPublisher) PublishAccountStatusChanged(_ context.Context, event domain.AccountStatusChangedEvent) error {
	p.logEvent("account.status.changed", event.AccountID, event.ChangedAt, map[string]any{
		"previous_status": event.PreviousStatus,
		"new_status":      event.NewStatus,
		"reason":          event.Reason,
	})
	return nil
}

// PublishAccountDeleted logs account.deleted events.
func (p *StubPublisher) PublishAccountDeleted(_ context.Context, event domain.AccountDeletedEvent) error {
	p.logEvent("account.deleted", event.AccountID, event.DeletedAt, map[string]any{
		"actor": event.Actor,
	})
	return nil
}

// PublishPasswordChanged logs account.password.changed events.
func (p *StubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.logEvent("account.password.changed", event.AccountID, event.ChangedAt, map[string]any{
		"changed_by": event.ChangedBy,
		"temporary":  event.Temporary,
	})
	return nil
}

// PublishPasswordResetRequested logs account.password.reset_requested events.
func (p *StubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.logEvent("account.password.reset_requested", event.AccountID, event.RequestedAt, map[string]any{
		"expires_at": event.ExpiresAt,
	})
	return nil
}

// PublishPasswordExpired logs account.password.expired events.
func (p *StubPublisher) PublishPasswordExpired(_ context.Context, event domain.PasswordExpiredEvent) error {
	p.logEvent("account.password.expired", event.AccountID, event.ExpiredAt, nil)
	return nil
}

// PublishSessionIssued logs session.issued events.
func (p *StubPublisher) PublishSessionIssued(_ context.Context, event domain.SessionIssuedEvent) error {
	p.logEvent("session.issued", event.AccountID, event.IssuedAt, map[string]any{
		"session_id": event.SessionID,
		"logout_at":  event.LogoutAt,
	})
	return nil
}

// PublishSessionRevoked logs session.revoked events.
func (p *StubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.logEvent("session.revoked", event.AccountID, event.RevokedAt, map[string]any{
		"session_id": event.SessionID,
		"reason":     event.Reason,
	})
	return nil
}

var _ port.EventPublisher = (*StubPublisher)(nil)
