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
	"github.com/helmhq/identity-service/internal/repository"
)

const defaultResetTokenTTL = time.Hour

var (
	// ErrInvalidOrExpiredToken indicates the reset token is unknown or aged out.
	ErrInvalidOrExpiredToken = errors.New("reset token is invalid or expired")
	// ErrSecurityAnswerMismatch indicates at least one recovery answer was wrong.
	ErrSecurityAnswerMismatch = errors.New("security answers do not match")
	// ErrSecurityQuestionCount indicates the enrolled set is not exactly three
	// complete question/answer pairs.
	ErrSecurityQuestionCount = errors.New("exactly three security questions with answers are required")
	// ErrNoSecurityQuestions indicates recovery cannot proceed because the
	// account never enrolled a question set.
	ErrNoSecurityQuestions = errors.New("account has no security questions on file")
)

// SecurityQuestionInput is a plaintext question/answer pair supplied during
// enrollment.
type SecurityQuestionInput struct {
	Question string
	Answer   string
}

// RecoveryService drives self-service password recovery: token issuance by
// email, the security-question challenge, and the final reset.
type RecoveryService struct {
	accounts  port.AccountRepository
	events    port.EventPublisher
	notifier  port.Notifier
	passwords *PasswordService
	logger    *zap.Logger
	resetTTL  time.Duration
	baseURL   string
	now       func() time.Time
}

// NewRecoveryService constructs a RecoveryService.
func NewRecoveryService(accounts port.AccountRepository, events port.EventPublisher, notifier port.Notifier, passwords *PasswordService, baseURL string, log *zap.Logger) *RecoveryService {
	if log == nil {
		log = zap.NewNop()
	}
	return &RecoveryService{
		accounts:  accounts,
		events:    events,
		notifier:  notifier,
		passwords: passwords,
		logger:    log,
		resetTTL:  defaultResetTokenTTL,
		baseURL:   strings.TrimRight(baseURL, "/"),
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *RecoveryService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithResetTTL overrides the reset-token lifetime.
func (s *RecoveryService) WithResetTTL(ttl time.Duration) {
	if ttl > 0 {
		s.resetTTL = ttl
	}
}

// EnrollSecurityQuestions stores a fresh question set for the account,
// replacing whatever was on file.
func (s *RecoveryService) EnrollSecurityQuestions(ctx context.Context, accountID string, questions []SecurityQuestionInput) error {
	hashed, err := hashQuestionSet(questions)
	if err != nil {
		return err
	}

	if err := s.accounts.SetSecurityQuestions(ctx, accountID, hashed); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("set security questions: %w", err)
	}

	s.logger.Info("security questions enrolled", zap.String("account_id", accountID))
	return nil
}

// RequestReset issues a recovery token when the username and email pair
// matches an account, and mails the reset link. The email comparison is
// case-insensitive.
func (s *RecoveryService) RequestReset(ctx context.Context, email, username string) error {
	account, err := s.accounts.GetByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("lookup account: %w", err)
	}
	if !strings.EqualFold(strings.TrimSpace(email), account.Email) {
		return ErrAccountNotFound
	}
	if !account.HasSecurityQuestions() {
		return ErrNoSecurityQuestions
	}

	token, err := security.GenerateAlphanumericToken(security.ResetTokenLength)
	if err != nil {
		return err
	}

	now := s.now()
	expiresAt := now.Add(s.resetTTL)
	if err := s.accounts.SetResetToken(ctx, account.ID, token, expiresAt); err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}

	if s.events != nil {
		event := domain.PasswordResetRequestedEvent{
			AccountID:   account.ID,
			RequestedAt: now,
			ExpiresAt:   expiresAt,
		}
		if err := s.events.PublishPasswordResetRequested(ctx, event); err != nil {
			s.logger.Warn("publish reset requested", zap.Error(err))
		}
	}

	body := fmt.Sprintf(
		"A password reset was requested for your account.\r\n\r\n"+
			"Open the link below within one hour to continue:\r\n%s/reset-password/%s\r\n\r\n"+
			"If you did not request this, you can ignore this message.",
		s.baseURL, token,
	)
	if _, err := s.notifier.Notify(ctx, account.Email, "Password reset request", body); err != nil {
		s.logger.Warn("send reset email",
			zap.String("recipient", logger.MaskEmail(account.Email)),
			zap.Error(err),
		)
		return fmt.Errorf("send reset email: %w", err)
	}

	s.logger.Info("password reset requested", zap.String("account_id", account.ID))
	return nil
}

// Questions returns the enrolled question prompts for a live reset token.
func (s *RecoveryService) Questions(ctx context.Context, token string) ([]string, error) {
	account, err := s.resolveToken(ctx, token)
	if err != nil {
		return nil, err
	}

	prompts := make([]string, 0, len(account.SecurityQuestions))
	for _, q := range account.SecurityQuestions {
		prompts = append(prompts, q.Question)
	}
	return prompts, nil
}

// VerifyAndReset checks every recovery answer against its stored hash and,
// when all match, writes the new password and clears the token in the same
// transaction. A failed challenge leaves the token untouched so the caller
// may retry within the token's lifetime.
func (s *RecoveryService) VerifyAndReset(ctx context.Context, token string, answers []string, newPassword string) error {
	account, err := s.resolveToken(ctx, token)
	if err != nil {
		return err
	}

	if len(answers) != len(account.SecurityQuestions) {
		return ErrSecurityAnswerMismatch
	}
	for i, q := range account.SecurityQuestions {
		ok, err := security.VerifyAnswer(answers[i], q.AnswerHash)
		if err != nil || !ok {
			return ErrSecurityAnswerMismatch
		}
	}

	if err := s.passwords.SetPassword(ctx, account, newPassword, false, true, account.ID); err != nil {
		return err
	}

	s.logger.Info("password reset completed", zap.String("account_id", account.ID))
	return nil
}

// resolveToken loads the account behind a reset token and enforces the
// token's lifetime.
func (s *RecoveryService) resolveToken(ctx context.Context, token string) (*domain.Account, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidOrExpiredToken
	}

	account, err := s.accounts.GetByResetToken(ctx, token)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrInvalidOrExpiredToken
		}
		return nil, fmt.Errorf("lookup reset token: %w", err)
	}

	if account.ResetTokenExpiresAt == nil || !account.ResetTokenExpiresAt.After(s.now()) {
		return nil, ErrInvalidOrExpiredToken
	}
	if !account.HasSecurityQuestions() {
		return nil, ErrNoSecurityQuestions
	}

	return account, nil
}
