package port

import (
	"context"
	"time"

	"github.com/helmhq/identity-service/internal/core/domain"
)

// SessionRepository deals with session storage.
type SessionRepository interface {
	Create(ctx context.Context, session domain.Session) error
	Get(ctx context.Context, accountID, token string) (*domain.Session, error)

	// Slide pushes logout_at forward for a still-live session in a single
	// conditional update; returns false when the pair is unknown or the
	// horizon already passed.
	Slide(ctx context.Context, accountID, token string, now, logoutAt time.Time) (bool, error)

	// Revoke closes the session by moving logout_at to now. Idempotent.
	Revoke(ctx context.Context, accountID, token string, at time.Time) error

	ListActive(ctx context.Context, at time.Time) ([]domain.Session, error)
	DeleteExpired(ctx context.Context, before time.Time) (int, error)
}
