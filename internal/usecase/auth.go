package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/infra/logger"
	"github.com/helmhq/identity-service/internal/infra/security"
	"github.com/helmhq/identity-service/internal/infra/telemetry"
	"github.com/helmhq/identity-service/internal/repository"
)

const (
	defaultLockoutThreshold = 3

	// lockoutYears pushes the suspension horizon effectively out of reach;
	// only an administrator reinstate clears it.
	lockoutYears = 100
)

var (
	// ErrInvalidCredentials indicates the username/password pair does not
	// resolve to an active account. Pending, rejected and suspended accounts
	// fail the same way so a caller cannot enumerate account state.
	ErrInvalidCredentials = errors.New("invalid username or password")
	// ErrAccountLocked indicates the account reached the failed-attempt threshold.
	ErrAccountLocked = errors.New("account locked after repeated failed logins")
)

// LoginResult is returned to the transport layer on successful authentication.
type LoginResult struct {
	Token              string
	AccountID          string
	Username           string
	MustChangePassword bool
}

// AuthService coordinates the login state machine: active-account gate,
// lockout gate, credential comparison, and session issuance.
type AuthService struct {
	accounts         port.AccountRepository
	sessions         *SessionService
	events           port.EventPublisher
	telemetry        *telemetry.Provider
	logger           *zap.Logger
	lockoutThreshold int
	now              func() time.Time
}

// NewAuthService constructs an AuthService.
func NewAuthService(accounts port.AccountRepository, sessions *SessionService, events port.EventPublisher, metrics *telemetry.Provider, log *zap.Logger) *AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &AuthService{
		accounts:         accounts,
		sessions:         sessions,
		events:           events,
		telemetry:        metrics,
		logger:           log,
		lockoutThreshold: defaultLockoutThreshold,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *AuthService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithLockoutThreshold overrides the failed-attempt threshold.
func (s *AuthService) WithLockoutThreshold(threshold int) {
	if threshold > 0 {
		s.lockoutThreshold = threshold
	}
}

// Login validates credentials and issues a session. The checks run in a
// fixed order: active-account lookup, lockout gate (before any credential
// comparison), then password verification with failed-attempt accounting.
func (s *AuthService) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return nil, fmt.Errorf("username is required")
	}
	if password == "" {
		return nil, fmt.Errorf("password is required")
	}

	account, err := s.accounts.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidCredentials
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}

	// Only active accounts may authenticate. Anything else fails exactly
	// like a bad password, and the failed-attempt counter is never touched
	// for an account that could not have logged in anyway.
	if account.Status != domain.AccountStatusActive {
		if account.Status == domain.AccountStatusSuspended {
			s.telemetry.RecordLogin("suspended")
		} else {
			s.telemetry.RecordLogin("inactive")
		}
		return nil, ErrInvalidCredentials
	}

	now := s.now()

	// An account already at the threshold is rejected before the password
	// is even compared, so the counter stops churning once locked.
	if account.Locked(s.lockoutThreshold) {
		s.telemetry.RecordLogin("locked")
		return nil, ErrAccountLocked
	}

	ok, err := security.VerifyPassword(password, account.PasswordHash)
	if err != nil {
		return nil, fmt.Errorf("verify password: %w", err)
	}
	if !ok {
		s.recordFailure(ctx, account, now)
		s.telemetry.RecordLogin("invalid_credentials")
		return nil, ErrInvalidCredentials
	}

	session, err := s.sessions.Issue(ctx, account.ID)
	if err != nil {
		return nil, fmt.Errorf("issue session: %w", err)
	}

	s.telemetry.RecordLogin("success")
	return &LoginResult{
		Token:              session.Token,
		AccountID:          account.ID,
		Username:           account.Username,
		MustChangePassword: account.TempPassword,
	}, nil
}

func (s *AuthService) recordFailure(ctx context.Context, account *domain.Account, now time.Time) {
	lockUntil := now.AddDate(lockoutYears, 0, 0)

	attempts, err := s.accounts.RecordFailedLogin(ctx, account.ID, s.lockoutThreshold, lockUntil)
	if err != nil {
		s.logger.Warn("record failed login",
			zap.String("account_id", account.ID),
			zap.Error(err),
		)
		return
	}

	if attempts != s.lockoutThreshold {
		return
	}

	s.telemetry.RecordLockout()
	s.logger.Warn("account locked out",
		zap.String("account_id", account.ID),
		zap.String("username", logger.MaskString(account.Username)),
		zap.Int("failed_attempts", attempts),
	)

	if s.events != nil {
		event := domain.AccountStatusChangedEvent{
			AccountID:        account.ID,
			PreviousStatus:   string(account.Status),
			NewStatus:        string(account.Status),
			Reason:           "lockout",
			SuspensionEndsAt: &lockUntil,
			ChangedAt:        now,
		}
		if err := s.events.PublishAccountStatusChanged(ctx, event); err != nil {
			s.logger.Warn("publish lockout event", zap.Error(err))
		}
	}
}
