package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/infra/security"
	"github.com/helmhq/identity-service/internal/infra/telemetry"
	"github.com/helmhq/identity-service/internal/repository"
)

const defaultSessionTTL = time.Hour

// ErrSessionNotFound indicates no session matched the account/token pair.
var ErrSessionNotFound = errors.New("session not found")

// SessionService issues, validates and revokes sessions. Validity lives
// entirely in the session row: every successful validation slides the
// logout horizon one TTL forward.
type SessionService struct {
	accounts  port.AccountRepository
	sessions  port.SessionRepository
	events    port.EventPublisher
	telemetry *telemetry.Provider
	signer    *security.SessionTokenSigner
	logger    *zap.Logger
	ttl       time.Duration
	now       func() time.Time
}

// NewSessionService constructs a SessionService.
func NewSessionService(accounts port.AccountRepository, sessions port.SessionRepository, events port.EventPublisher, signer *security.SessionTokenSigner, metrics *telemetry.Provider, log *zap.Logger) *SessionService {
	if log == nil {
		log = zap.NewNop()
	}
	return &SessionService{
		accounts:  accounts,
		sessions:  sessions,
		events:    events,
		telemetry: metrics,
		signer:    signer,
		logger:    log,
		ttl:       defaultSessionTTL,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *SessionService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTTL overrides the sliding-window duration.
func (s *SessionService) WithTTL(ttl time.Duration) {
	if ttl > 0 {
		s.ttl = ttl
	}
}

// TTL reports the configured sliding-window duration.
func (s *SessionService) TTL() time.Duration {
	return s.ttl
}

// Issue mints a token and persists the session together with the login
// bookkeeping on the account row.
func (s *SessionService) Issue(ctx context.Context, accountID string) (*domain.Session, error) {
	now := s.now()
	sessionID := uuid.NewString()

	token, err := s.signer.Mint(sessionID, accountID, now)
	if err != nil {
		return nil, fmt.Errorf("mint session token: %w", err)
	}

	session := domain.Session{
		ID:        sessionID,
		AccountID: accountID,
		Token:     token,
		IssuedAt:  now,
		LogoutAt:  now.Add(s.ttl),
	}

	if err := s.accounts.RecordLogin(ctx, accountID, now, session); err != nil {
		return nil, fmt.Errorf("record login: %w", err)
	}

	s.telemetry.RecordSession("issued")

	if s.events != nil {
		event := domain.SessionIssuedEvent{
			SessionID: session.ID,
			AccountID: accountID,
			IssuedAt:  session.IssuedAt,
			LogoutAt:  session.LogoutAt,
		}
		if err := s.events.PublishSessionIssued(ctx, event); err != nil {
			s.logger.Warn("publish session issued", zap.Error(err))
		}
	}

	return &session, nil
}

// Validate checks the account/token pair against the stored horizon and, on
// success, slides the horizon forward. Returns false for unknown tokens and
// for sessions whose window already lapsed.
func (s *SessionService) Validate(ctx context.Context, accountID, token string) (bool, error) {
	now := s.now()

	slid, err := s.sessions.Slide(ctx, accountID, token, now, now.Add(s.ttl))
	if err != nil {
		return false, fmt.Errorf("slide session: %w", err)
	}
	return slid, nil
}

// Invalidate closes the session so later validations fail.
func (s *SessionService) Invalidate(ctx context.Context, accountID, token string) error {
	now := s.now()

	session, err := s.sessions.Get(ctx, accountID, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrSessionNotFound
		}
		return fmt.Errorf("lookup session: %w", err)
	}

	if err := s.sessions.Revoke(ctx, accountID, token, now); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	s.telemetry.RecordSession("revoked")

	if s.events != nil {
		event := domain.SessionRevokedEvent{
			SessionID: session.ID,
			AccountID: accountID,
			RevokedAt: now,
			Reason:    "logout",
		}
		if err := s.events.PublishSessionRevoked(ctx, event); err != nil {
			s.logger.Warn("publish session revoked", zap.Error(err))
		}
	}

	return nil
}

// IsTempPasswordActive reports whether the account is still on an
// administrator-issued temporary credential.
func (s *SessionService) IsTempPasswordActive(ctx context.Context, accountID string) (bool, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return false, ErrAccountNotFound
		}
		return false, fmt.Errorf("lookup account: %w", err)
	}
	return account.TempPassword, nil
}

// ListActive returns every session whose horizon has not passed.
func (s *SessionService) ListActive(ctx context.Context) ([]domain.Session, error) {
	sessions, err := s.sessions.ListActive(ctx, s.now())
	if err != nil {
		return nil, fmt.Errorf("list active sessions: %w", err)
	}
	return sessions, nil
}
