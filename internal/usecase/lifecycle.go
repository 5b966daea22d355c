package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/infra/logger"
	"github.com/helmhq/identity-service/internal/infra/security"
	"github.com/helmhq/identity-service/internal/repository"
)

var (
	// ErrAccountNotFound indicates no account matched the identifier.
	ErrAccountNotFound = errors.New("account not found")
	// ErrInvalidStateTransition indicates the account is not in the expected
	// status for the requested transition.
	ErrInvalidStateTransition = errors.New("invalid account state transition")
	// ErrInvalidRole indicates a role outside the closed set.
	ErrInvalidRole = errors.New("invalid account role")
	// ErrUsernameRequired indicates a username could not be derived.
	ErrUsernameRequired = errors.New("username is required")
)

// CreateAccountInput carries the fields for registration and administrator
// account creation. Username and Password may be empty, in which case both
// are generated from the holder's name.
type CreateAccountInput struct {
	Username  string
	Email     string
	FirstName string
	LastName  string
	Role      domain.Role
	Password  string
	Questions []SecurityQuestionInput
	CreatedBy string
}

// CreateAccountResult reports the persisted account plus the generated
// temporary credential, when one was issued.
type CreateAccountResult struct {
	Account      *domain.Account
	TempPassword string
}

// LifecycleService owns the account state machine: registration, the
// approval workflow, suspensions, reinstatement and deletion.
type LifecycleService struct {
	accounts  port.AccountRepository
	events    port.EventPublisher
	notifier  port.Notifier
	passwords *PasswordService
	logger    *zap.Logger
	now       func() time.Time
}

// NewLifecycleService constructs a LifecycleService.
func NewLifecycleService(accounts port.AccountRepository, events port.EventPublisher, notifier port.Notifier, passwords *PasswordService, log *zap.Logger) *LifecycleService {
	if log == nil {
		log = zap.NewNop()
	}
	return &LifecycleService{
		accounts:  accounts,
		events:    events,
		notifier:  notifier,
		passwords: passwords,
		logger:    log,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *LifecycleService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// Register creates a pending account from a public self-registration. The
// caller supplies their own password and, optionally, the security-question
// set.
func (s *LifecycleService) Register(ctx context.Context, input CreateAccountInput) (*domain.Account, error) {
	input.CreatedBy = "self"
	result, err := s.create(ctx, input, false)
	if err != nil {
		return nil, err
	}
	return result.Account, nil
}

// CreateAccount creates an account on behalf of an administrator. When no
// password is supplied a temporary one is generated and returned so it can
// be handed to the holder.
func (s *LifecycleService) CreateAccount(ctx context.Context, input CreateAccountInput) (*CreateAccountResult, error) {
	return s.create(ctx, input, true)
}

func (s *LifecycleService) create(ctx context.Context, input CreateAccountInput, admin bool) (*CreateAccountResult, error) {
	input.FirstName = strings.TrimSpace(input.FirstName)
	input.LastName = strings.TrimSpace(input.LastName)
	input.Email = strings.TrimSpace(input.Email)
	input.Username = strings.TrimSpace(input.Username)

	if input.Role == "" {
		input.Role = domain.RoleViewer
	}
	if !domain.ValidRole(input.Role) {
		return nil, ErrInvalidRole
	}
	if input.Email == "" {
		return nil, fmt.Errorf("email is required")
	}

	now := s.now()

	if input.Username == "" {
		input.Username = generatedUsername(input.FirstName, input.LastName, now)
	}
	if input.Username == "" {
		return nil, ErrUsernameRequired
	}

	password := input.Password
	temporary := false
	var issuedTemp string
	if password == "" {
		if !admin {
			return nil, fmt.Errorf("password is required")
		}
		generated, err := generatedTempPassword(input.LastName, now)
		if err != nil {
			return nil, err
		}
		password = generated
		issuedTemp = generated
		temporary = true
	} else if err := s.passwords.validator.Validate(password); err != nil {
		return nil, err
	}

	hash, err := security.HashPassword(password)
	if err != nil {
		return nil, err
	}

	var questions []domain.SecurityQuestion
	if len(input.Questions) > 0 {
		questions, err = hashQuestionSet(input.Questions)
		if err != nil {
			return nil, err
		}
	}

	expiry := s.passwords.passwordTTL
	if temporary {
		expiry = s.passwords.tempPasswordTTL
	}

	account := domain.Account{
		ID:                uuid.NewString(),
		Username:          input.Username,
		Email:             input.Email,
		FirstName:         input.FirstName,
		LastName:          input.LastName,
		Role:              input.Role,
		Status:            domain.AccountStatusPending,
		PasswordHash:      hash,
		TempPassword:      temporary,
		PasswordChangedAt: now,
		PasswordExpiresAt: now.Add(expiry),
		SecurityQuestions: questions,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	if err := s.accounts.Create(ctx, account); err != nil {
		return nil, fmt.Errorf("create account: %w", err)
	}

	s.logger.Info("account created",
		zap.String("account_id", account.ID),
		zap.String("username", logger.MaskString(account.Username)),
		zap.String("role", string(account.Role)),
		zap.Bool("temp_password", temporary),
	)

	if s.events != nil {
		event := domain.AccountRegisteredEvent{
			AccountID:    account.ID,
			Username:     account.Username,
			Email:        account.Email,
			Role:         string(account.Role),
			Status:       string(account.Status),
			RegisteredAt: now,
			CreatedBy:    input.CreatedBy,
		}
		if err := s.events.PublishAccountRegistered(ctx, event); err != nil {
			s.logger.Warn("publish account registered", zap.Error(err))
		}
	}

	if temporary {
		body := fmt.Sprintf(
			"An account was created for you.\r\n\r\nUsername: %s\r\nTemporary password: %s\r\n\r\n"+
				"Sign in and change this password right away; it expires shortly after issue.",
			account.Username, issuedTemp,
		)
		s.notify(ctx, account.Email, "Your new account", body)
	} else if !admin {
		body := fmt.Sprintf(
			"Welcome to Helm, %s.\r\n\r\nYour username is %s. Your registration is pending review; "+
				"you will be notified once it is approved.",
			account.FirstName, account.Username,
		)
		s.notify(ctx, account.Email, "Welcome to Helm", body)
	}

	return &CreateAccountResult{Account: &account, TempPassword: issuedTemp}, nil
}

// Approve moves a pending account into active service.
func (s *LifecycleService) Approve(ctx context.Context, accountID, actor string) error {
	return s.transition(ctx, accountID, actor, domain.AccountStatusPending, domain.AccountStatusActive, nil, nil, "approved",
		"Your account was approved. You can now sign in.")
}

// Reject declines a pending account.
func (s *LifecycleService) Reject(ctx context.Context, accountID, actor string) error {
	return s.transition(ctx, accountID, actor, domain.AccountStatusPending, domain.AccountStatusRejected, nil, nil, "rejected",
		"Your account request was declined.")
}

// Suspend places an active account into a suspension window. A nil end
// means the suspension is indefinite.
func (s *LifecycleService) Suspend(ctx context.Context, accountID, actor string, end *time.Time) error {
	start := s.now()
	body := "Your account was suspended."
	if end != nil {
		body = fmt.Sprintf("Your account was suspended until %s.", end.UTC().Format(time.RFC3339))
	}
	return s.transition(ctx, accountID, actor, domain.AccountStatusActive, domain.AccountStatusSuspended, &start, end, "suspended", body)
}

// Reinstate returns a suspended account to active service, or clears a
// failed-login lockout on an account whose row status never left active.
func (s *LifecycleService) Reinstate(ctx context.Context, accountID, actor string) error {
	err := s.transition(ctx, accountID, actor, domain.AccountStatusSuspended, domain.AccountStatusActive, nil, nil, "reinstated",
		"Your account was reinstated. You can sign in again.")
	if !errors.Is(err, ErrInvalidStateTransition) {
		return err
	}

	// Lockouts leave the row status at active; clear them here so
	// reinstate is the single recovery path for both shapes.
	account, lookupErr := s.accounts.GetByID(ctx, accountID)
	if lookupErr != nil {
		return err
	}
	state := account.AccessState()
	if state.Kind != domain.AccessLockedOut || account.Status != domain.AccountStatusActive {
		return err
	}

	if clearErr := s.accounts.ClearLockout(ctx, accountID); clearErr != nil {
		return fmt.Errorf("clear lockout: %w", clearErr)
	}

	s.publishStatusChange(ctx, account, string(account.Status), actor, "reinstated", nil)
	s.notify(ctx, account.Email, "Account reinstated", "Your account was reinstated. You can sign in again.")
	return nil
}

// Delete removes the account and everything hanging off it.
func (s *LifecycleService) Delete(ctx context.Context, accountID, actor string) error {
	account, err := s.get(ctx, accountID)
	if err != nil {
		return err
	}

	if err := s.accounts.Delete(ctx, accountID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return fmt.Errorf("delete account: %w", err)
	}

	s.logger.Info("account deleted",
		zap.String("account_id", accountID),
		zap.String("actor", actor),
	)

	if s.events != nil {
		event := domain.AccountDeletedEvent{
			AccountID: account.ID,
			Actor:     actor,
			DeletedAt: s.now(),
		}
		if err := s.events.PublishAccountDeleted(ctx, event); err != nil {
			s.logger.Warn("publish account deleted", zap.Error(err))
		}
	}

	return nil
}

// AdminResetPassword issues a fresh temporary credential and mails it to
// the account holder.
func (s *LifecycleService) AdminResetPassword(ctx context.Context, accountID, actor string) (string, error) {
	account, err := s.get(ctx, accountID)
	if err != nil {
		return "", err
	}

	temp, err := security.GenerateTemporaryPassword()
	if err != nil {
		return "", err
	}

	if err := s.passwords.SetPassword(ctx, account, temp, true, false, actor); err != nil {
		return "", err
	}

	body := fmt.Sprintf(
		"An administrator reset your password.\r\n\r\nTemporary password: %s\r\n\r\n"+
			"Sign in and change this password right away; it expires shortly after issue.",
		temp,
	)
	s.notify(ctx, account.Email, "Password reset by administrator", body)

	return temp, nil
}

// Get returns a single account by id.
func (s *LifecycleService) Get(ctx context.Context, accountID string) (*domain.Account, error) {
	return s.get(ctx, accountID)
}

// ListAccounts returns accounts matching the filter.
func (s *LifecycleService) ListAccounts(ctx context.Context, filter port.AccountFilter) ([]domain.Account, error) {
	accounts, err := s.accounts.List(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list accounts: %w", err)
	}
	return accounts, nil
}

func (s *LifecycleService) get(ctx context.Context, accountID string) (*domain.Account, error) {
	account, err := s.accounts.GetByID(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, ErrAccountNotFound
		}
		return nil, fmt.Errorf("lookup account: %w", err)
	}
	return account, nil
}

func (s *LifecycleService) transition(ctx context.Context, accountID, actor string, from, to domain.AccountStatus, start, end *time.Time, reason, notice string) error {
	err := s.accounts.TransitionStatus(ctx, accountID, from, to, start, end)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			return fmt.Errorf("transition status: %w", err)
		}
		// Zero rows can mean a missing account or a stale precondition;
		// a second lookup tells them apart.
		if _, lookupErr := s.accounts.GetByID(ctx, accountID); errors.Is(lookupErr, repository.ErrNotFound) {
			return ErrAccountNotFound
		}
		return ErrInvalidStateTransition
	}

	s.logger.Info("account status changed",
		zap.String("account_id", accountID),
		zap.String("from", string(from)),
		zap.String("to", string(to)),
		zap.String("actor", actor),
	)

	account, lookupErr := s.accounts.GetByID(ctx, accountID)
	if lookupErr != nil {
		s.logger.Warn("lookup after transition", zap.Error(lookupErr))
		return nil
	}

	s.publishStatusChange(ctx, account, string(from), actor, reason, end)
	if notice != "" {
		subject := "Account " + reason
		s.notify(ctx, account.Email, subject, notice)
	}

	return nil
}

func (s *LifecycleService) publishStatusChange(ctx context.Context, account *domain.Account, previous, actor, reason string, end *time.Time) {
	if s.events == nil {
		return
	}
	event := domain.AccountStatusChangedEvent{
		AccountID:        account.ID,
		PreviousStatus:   previous,
		NewStatus:        string(account.Status),
		Reason:           reason,
		Actor:            actor,
		SuspensionEndsAt: end,
		ChangedAt:        s.now(),
	}
	if err := s.events.PublishAccountStatusChanged(ctx, event); err != nil {
		s.logger.Warn("publish status changed", zap.Error(err))
	}
}

func (s *LifecycleService) notify(ctx context.Context, recipient, subject, body string) {
	if s.notifier == nil {
		return
	}
	if _, err := s.notifier.Notify(ctx, recipient, subject, body); err != nil {
		s.logger.Warn("send notification",
			zap.String("recipient", logger.MaskEmail(recipient)),
			zap.Error(err),
		)
	}
}

// generatedUsername derives the default username shape: first initial plus
// last name plus the MMYY of the creation month, lower-cased.
func generatedUsername(firstName, lastName string, at time.Time) string {
	if firstName == "" || lastName == "" {
		return ""
	}
	initial := strings.ToLower(firstName[:1])
	return initial + strings.ToLower(strings.ReplaceAll(lastName, " ", "")) + at.Format("0106")
}

// generatedTempPassword derives a created-account temporary credential from
// the holder's last name, the creation month and a random numeric tail.
func generatedTempPassword(lastName string, at time.Time) (string, error) {
	digits, err := security.GenerateNumericCode(9)
	if err != nil {
		return "", err
	}
	name := lastName
	if name == "" {
		name = "user"
	}
	return fmt.Sprintf("%s_%s_%s", name, at.Format("0106"), digits), nil
}
