package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/infra/security"
)

func newTestLifecycleService(t *testing.T, accounts *stubAccountRepo, notifier *stubNotifier, events *stubPublisher) *LifecycleService {
	t.Helper()
	passwords := newTestPasswordService(t, accounts, events)
	service := NewLifecycleService(accounts, events, notifier, passwords, nil)
	service.WithClock(testClock)
	return service
}

func TestRegisterCreatesPendingAccount(t *testing.T) {
	accounts := newStubAccountRepo()
	events := &stubPublisher{}
	service := newTestLifecycleService(t, accounts, &stubNotifier{}, events)

	account, err := service.Register(context.Background(), CreateAccountInput{
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Smith",
		Role:      domain.RoleCoder,
		Password:  "Sup3r$ecret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if account.Status != domain.AccountStatusPending {
		t.Fatalf("status = %q, want pending", account.Status)
	}
	if account.Username != "jsmith0326" {
		t.Fatalf("generated username = %q, want jsmith0326", account.Username)
	}
	if account.TempPassword {
		t.Fatal("a self-chosen password is not temporary")
	}
	if len(events.registered) != 1 {
		t.Fatalf("registered events = %d, want 1", len(events.registered))
	}
}

func TestRegisterSendsWelcomeEmail(t *testing.T) {
	notifier := &stubNotifier{}
	service := newTestLifecycleService(t, newStubAccountRepo(), notifier, &stubPublisher{})

	_, err := service.Register(context.Background(), CreateAccountInput{
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Smith",
		Role:      domain.RoleCoder,
		Password:  "Sup3r$ecret",
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sent))
	}
	mail := notifier.sent[0]
	if mail.Recipient != "jane@example.com" {
		t.Fatalf("recipient = %q, want jane@example.com", mail.Recipient)
	}
	if mail.Subject != "Welcome to Helm" {
		t.Fatalf("subject = %q, want a welcome message", mail.Subject)
	}
	if !strings.Contains(mail.Body, "jsmith0326") {
		t.Fatal("welcome body must carry the generated username")
	}
}

func TestRegisterRejectsWeakPassword(t *testing.T) {
	service := newTestLifecycleService(t, newStubAccountRepo(), &stubNotifier{}, &stubPublisher{})

	_, err := service.Register(context.Background(), CreateAccountInput{
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Smith",
		Password:  "weak",
	})
	var violation *security.PasswordValidationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected a policy violation, got %v", err)
	}
}

func TestRegisterRejectsUnknownRole(t *testing.T) {
	service := newTestLifecycleService(t, newStubAccountRepo(), &stubNotifier{}, &stubPublisher{})

	_, err := service.Register(context.Background(), CreateAccountInput{
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Smith",
		Role:      domain.Role("superuser"),
		Password:  "Sup3r$ecret",
	})
	if !errors.Is(err, ErrInvalidRole) {
		t.Fatalf("expected ErrInvalidRole, got %v", err)
	}
}

func TestCreateAccountGeneratesTempPassword(t *testing.T) {
	accounts := newStubAccountRepo()
	notifier := &stubNotifier{}
	service := newTestLifecycleService(t, accounts, notifier, &stubPublisher{})

	result, err := service.CreateAccount(context.Background(), CreateAccountInput{
		Email:     "jane@example.com",
		FirstName: "Jane",
		LastName:  "Smith",
		Role:      domain.RoleManager,
		CreatedBy: "admin-1",
	})
	if err != nil {
		t.Fatalf("create account: %v", err)
	}
	if !result.Account.TempPassword {
		t.Fatal("a generated credential must be temporary")
	}
	if !strings.HasPrefix(result.TempPassword, "Smith_0326_") {
		t.Fatalf("temp password = %q, want Smith_0326_ prefix", result.TempPassword)
	}
	if len(result.TempPassword) != len("Smith_0326_")+9 {
		t.Fatalf("temp password %q must end in nine digits", result.TempPassword)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1 creation email", len(notifier.sent))
	}
	if !strings.Contains(notifier.sent[0].Body, result.TempPassword) {
		t.Fatal("creation email must carry the temporary credential")
	}
}

func TestApproveActivatesPendingAccount(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	account.Status = domain.AccountStatusPending
	accounts := newStubAccountRepo(account)
	notifier := &stubNotifier{}
	events := &stubPublisher{}
	service := newTestLifecycleService(t, accounts, notifier, events)

	if err := service.Approve(context.Background(), account.ID, "admin-1"); err != nil {
		t.Fatalf("approve: %v", err)
	}
	if accounts.accounts[account.ID].Status != domain.AccountStatusActive {
		t.Fatal("expected the account to be active")
	}
	if len(events.statusChanges) != 1 || events.statusChanges[0].Reason != "approved" {
		t.Fatalf("status events = %+v", events.statusChanges)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sent))
	}

	// A second approve hits a stale precondition.
	if err := service.Approve(context.Background(), account.ID, "admin-1"); !errors.Is(err, ErrInvalidStateTransition) {
		t.Fatalf("expected ErrInvalidStateTransition, got %v", err)
	}
}

func TestApproveMissingAccount(t *testing.T) {
	service := newTestLifecycleService(t, newStubAccountRepo(), &stubNotifier{}, &stubPublisher{})

	if err := service.Approve(context.Background(), "missing", "admin-1"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestSuspendAndReinstate(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	accounts := newStubAccountRepo(account)
	service := newTestLifecycleService(t, accounts, &stubNotifier{}, &stubPublisher{})

	end := testClock().Add(72 * time.Hour)
	if err := service.Suspend(context.Background(), account.ID, "admin-1", &end); err != nil {
		t.Fatalf("suspend: %v", err)
	}
	stored := accounts.accounts[account.ID]
	if stored.Status != domain.AccountStatusSuspended {
		t.Fatal("expected suspended status")
	}
	if stored.SuspensionStartAt == nil || !stored.SuspensionStartAt.Equal(testClock()) {
		t.Fatalf("suspension start = %v, want %v", stored.SuspensionStartAt, testClock())
	}

	if err := service.Reinstate(context.Background(), account.ID, "admin-1"); err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	stored = accounts.accounts[account.ID]
	if stored.Status != domain.AccountStatusActive {
		t.Fatal("expected active status after reinstate")
	}
	if stored.SuspensionStartAt != nil || stored.SuspensionEndAt != nil {
		t.Fatal("suspension fields must be cleared")
	}
}

func TestReinstateClearsLoginLockout(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	lockUntil := testClock().AddDate(100, 0, 0)
	account.FailedLoginAttempts = 3
	account.SuspensionEndAt = &lockUntil
	accounts := newStubAccountRepo(account)
	service := newTestLifecycleService(t, accounts, &stubNotifier{}, &stubPublisher{})

	if err := service.Reinstate(context.Background(), account.ID, "admin-1"); err != nil {
		t.Fatalf("reinstate: %v", err)
	}
	stored := accounts.accounts[account.ID]
	if stored.FailedLoginAttempts != 0 {
		t.Fatal("failed attempts must reset")
	}
	if stored.SuspensionEndAt != nil {
		t.Fatal("lockout horizon must be cleared")
	}
}

func TestDeleteAccount(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	accounts := newStubAccountRepo(account)
	events := &stubPublisher{}
	service := newTestLifecycleService(t, accounts, &stubNotifier{}, events)

	if err := service.Delete(context.Background(), account.ID, "admin-1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, ok := accounts.accounts[account.ID]; ok {
		t.Fatal("expected the account to be gone")
	}
	if len(events.deleted) != 1 {
		t.Fatalf("deleted events = %d, want 1", len(events.deleted))
	}

	if err := service.Delete(context.Background(), account.ID, "admin-1"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestAdminResetPasswordIssuesTempCredential(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	accounts := newStubAccountRepo(account)
	notifier := &stubNotifier{}
	service := newTestLifecycleService(t, accounts, notifier, &stubPublisher{})

	temp, err := service.AdminResetPassword(context.Background(), account.ID, "admin-1")
	if err != nil {
		t.Fatalf("admin reset: %v", err)
	}
	if len(temp) != 16 || !strings.HasSuffix(temp, "aA1!") {
		t.Fatalf("temp credential = %q, want 12 alphanumerics plus aA1! suffix", temp)
	}
	stored := accounts.accounts[account.ID]
	if !stored.TempPassword {
		t.Fatal("expected the account to be in temp-password state")
	}
	want := testClock().Add(15 * time.Minute)
	if !stored.PasswordExpiresAt.Equal(want) {
		t.Fatalf("temp expiry = %v, want %v", stored.PasswordExpiresAt, want)
	}
	if len(notifier.sent) != 1 || !strings.Contains(notifier.sent[0].Body, temp) {
		t.Fatal("holder must be mailed the temporary credential")
	}
}
