package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/infra/security"
	"github.com/helmhq/identity-service/internal/repository"
)

const (
	defaultPasswordTTL         = 90 * 24 * time.Hour
	defaultTempPasswordTTL     = 15 * time.Minute
	defaultPasswordHistoryKept = 10
)

var (
	// ErrInvalidCurrentPassword indicates the supplied current password is wrong.
	ErrInvalidCurrentPassword = errors.New("current password is incorrect")
	// ErrPasswordReused indicates the candidate matches a recently used password.
	ErrPasswordReused = errors.New("password was used recently")
	// ErrNotTempPassword indicates the account is not on a temporary credential.
	ErrNotTempPassword = errors.New("account has no active temporary password")
)

// passwordChange bundles the knobs of a single credential rotation.
type passwordChange struct {
	account         *domain.Account
	newPassword     string
	temporary       bool
	questions       []domain.SecurityQuestion
	clearResetToken bool
	changedBy       string
}

// PasswordService owns credential rotation: policy enforcement, reuse
// checks against the history ledger, and the expiry bookkeeping written
// alongside each new hash.
type PasswordService struct {
	accounts        port.AccountRepository
	events          port.EventPublisher
	validator       *security.PasswordValidator
	logger          *zap.Logger
	historyLimit    int
	passwordTTL     time.Duration
	tempPasswordTTL time.Duration
	now             func() time.Time
}

// NewPasswordService constructs a PasswordService with the default policy.
func NewPasswordService(accounts port.AccountRepository, events port.EventPublisher, log *zap.Logger) *PasswordService {
	if log == nil {
		log = zap.NewNop()
	}
	return &PasswordService{
		accounts:        accounts,
		events:          events,
		validator:       security.DefaultPasswordValidator(),
		logger:          log,
		historyLimit:    defaultPasswordHistoryKept,
		passwordTTL:     defaultPasswordTTL,
		tempPasswordTTL: defaultTempPasswordTTL,
		now:             func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *PasswordService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithTTLs overrides the standard and temporary credential lifetimes.
func (s *PasswordService) WithTTLs(password, temp time.Duration) {
	if password > 0 {
		s.passwordTTL = password
	}
	if temp > 0 {
		s.tempPasswordTTL = temp
	}
}

// WithHistoryLimit overrides how many prior hashes the reuse check covers.
func (s *PasswordService) WithHistoryLimit(limit int) {
	if limit > 0 {
		s.historyLimit = limit
	}
}

// ChangePassword rotates the credential of a logged-in account after
// verifying the current password.
func (s *PasswordService) ChangePassword(ctx context.Context, accountID, currentPassword, newPassword string) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}

	ok, err := security.VerifyPassword(currentPassword, account.PasswordHash)
	if err != nil {
		return fmt.Errorf("verify current password: %w", err)
	}
	if !ok {
		return ErrInvalidCurrentPassword
	}

	return s.apply(ctx, passwordChange{
		account:     account,
		newPassword: newPassword,
		changedBy:   accountID,
	})
}

// ChangeTempPassword replaces an administrator-issued temporary credential
// with a permanent one and enrolls the security-question set in the same
// write. The account must actually be on a temporary credential; the session
// already proves the caller knows it, so it is not re-verified here.
func (s *PasswordService) ChangeTempPassword(ctx context.Context, accountID, newPassword string, questions []SecurityQuestionInput) error {
	account, err := s.getAccount(ctx, accountID)
	if err != nil {
		return err
	}
	if !account.TempPassword {
		return ErrNotTempPassword
	}

	hashed, err := hashQuestionSet(questions)
	if err != nil {
		return err
	}

	return s.apply(ctx, passwordChange{
		account:     account,
		newPassword: newPassword,
		questions:   hashed,
		changedBy:   accountID,
	})
}

// SetPassword rotates the credential without a current-password check; used
// by recovery and administrator resets, which carry their own authorization.
func (s *PasswordService) SetPassword(ctx context.Context, account *domain.Account, newPassword string, temporary, clearResetToken bool, changedBy string) error {
	return s.apply(ctx, passwordChange{
		account:         account,
		newPassword:     newPassword,
		temporary:       temporary,
		clearResetToken: clearResetToken,
		changedBy:       changedBy,
	})
}

// History returns the retained password-history entries for an account.
func (s *PasswordService) History(ctx context.Context, accountID string) ([]domain.PasswordHistoryEntry, error) {
	entries, err := s.accounts.ListPasswordHistory(ctx, accountID, s.historyLimit)
	if err != nil {
		return nil, fmt.Errorf("list password history: %w", err)
	}
	return entries, nil
}

func (s *PasswordService) getAccount(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}

func (s *PasswordService) apply(ctx context.Context, change passwordChange) error {
	if err := s.validator.Validate(change.newPassword); err != nil {
		return err
	}

	if err := s.checkNotReused(ctx, change.account, change.newPassword); err != nil {
		return err
	}

	hash, err := security.HashPassword(change.newPassword)
	if err != nil {
		return err
	}

	now := s.now()
	ttl := s.passwordTTL
	if change.temporary {
		ttl = s.tempPasswordTTL
	}

	update := port.PasswordUpdate{
		AccountID:         change.account.ID,
		PasswordHash:      hash,
		Temporary:         change.temporary,
		ChangedAt:         now,
		ExpiresAt:         now.Add(ttl),
		HistoryLimit:      s.historyLimit,
		SecurityQuestions: change.questions,
		ClearResetToken:   change.clearResetToken,
	}
	if err := s.accounts.UpdatePassword(ctx, update); err != nil {
		return fmt.Errorf("update password: %w", err)
	}

	s.logger.Info("password changed",
		zap.String("account_id", change.account.ID),
		zap.Bool("temporary", change.temporary),
	)

	if s.events != nil {
		event := domain.PasswordChangedEvent{
			AccountID: change.account.ID,
			ChangedAt: now,
			ChangedBy: change.changedBy,
			Temporary: change.temporary,
		}
		if err := s.events.PublishPasswordChanged(ctx, event); err != nil {
			s.logger.Warn("publish password changed", zap.Error(err))
		}
	}

	return nil
}

// checkNotReused compares the candidate against the current hash and the
// retained history. Comparison failures fail closed as a reuse rejection.
func (s *PasswordService) checkNotReused(ctx context.Context, account *domain.Account, candidate string) error {
	match, err := security.VerifyPassword(candidate, account.PasswordHash)
	if err != nil || match {
		return ErrPasswordReused
	}

	entries, err := s.accounts.ListPasswordHistory(ctx, account.ID, s.historyLimit)
	if err != nil {
		return fmt.Errorf("list password history: %w", err)
	}
	for _, entry := range entries {
		match, err := security.VerifyPassword(candidate, entry.PasswordHash)
		if err != nil || match {
			return ErrPasswordReused
		}
	}

	return nil
}

func hashQuestionSet(questions []SecurityQuestionInput) ([]domain.SecurityQuestion, error) {
	if len(questions) != domain.SecurityQuestionCount {
		return nil, ErrSecurityQuestionCount
	}

	hashed := make([]domain.SecurityQuestion, 0, len(questions))
	for _, q := range questions {
		if q.Question == "" || q.Answer == "" {
			return nil, ErrSecurityQuestionCount
		}
		answerHash, err := security.HashAnswer(q.Answer)
		if err != nil {
			return nil, err
		}
		hashed = append(hashed, domain.SecurityQuestion{
			Question:   q.Question,
			AnswerHash: answerHash,
		})
	}

	return hashed, nil
}
