package port

import (
	"context"

	"github.com/helmhq/identity-service/internal/core/domain"
)

// EventPublisher publishes domain events to the message bus.
type EventPublisher interface {
	PublishAccountRegistered(ctx context.Context, event domain.AccountRegisteredEvent) error
	PublishAccountStatusChanged(ctx context.Context, event domain.AccountStatusChangedEvent) error
	PublishAccountDeleted(ctx context.Context, event domain.AccountDeletedEvent) error
	PublishPasswordChanged(ctx context.Context, event domain.PasswordChangedEvent) error
	PublishPasswordResetRequested(ctx context.Context, event domain.PasswordResetRequestedEvent) error
	PublishPasswordExpired(ctx context.Context, event domain.PasswordExpiredEvent) error
	PublishSessionIssued(ctx context.Context, event domain.SessionIssuedEvent) error
	PublishSessionRevoked(ctx context.Context, event domain.SessionRevokedEvent) error
}
