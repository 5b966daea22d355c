package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/infra/security"
)

func newTestPasswordService(t *testing.T, accounts *stubAccountRepo, events *stubPublisher) *PasswordService {
	t.Helper()
	service := NewPasswordService(accounts, events, nil)
	service.WithClock(testClock)
	return service
}

func TestChangePasswordSuccess(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	accounts := newStubAccountRepo(account)
	events := &stubPublisher{}
	service := newTestPasswordService(t, accounts, events)

	if err := service.ChangePassword(context.Background(), account.ID, "Sup3r$ecret", "N3w!Passw0rd"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	update := accounts.lastUpdate
	if update == nil {
		t.Fatal("expected a password update")
	}
	if update.Temporary {
		t.Fatal("a regular change must not mark the credential temporary")
	}
	want := testClock().Add(90 * 24 * time.Hour)
	if !update.ExpiresAt.Equal(want) {
		t.Fatalf("expires at = %v, want %v", update.ExpiresAt, want)
	}
	if len(events.passwords) != 1 {
		t.Fatalf("password events = %d, want 1", len(events.passwords))
	}

	ok, err := security.VerifyPassword("N3w!Passw0rd", accounts.accounts[account.ID].PasswordHash)
	if err != nil || !ok {
		t.Fatal("new password must verify against the stored hash")
	}
}

func TestChangePasswordWrongCurrent(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	service := newTestPasswordService(t, newStubAccountRepo(account), &stubPublisher{})

	err := service.ChangePassword(context.Background(), account.ID, "nope", "N3w!Passw0rd")
	if !errors.Is(err, ErrInvalidCurrentPassword) {
		t.Fatalf("expected ErrInvalidCurrentPassword, got %v", err)
	}
}

func TestChangePasswordRejectsPolicyViolation(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	service := newTestPasswordService(t, newStubAccountRepo(account), &stubPublisher{})

	err := service.ChangePassword(context.Background(), account.ID, "Sup3r$ecret", "weak")
	var violation *security.PasswordValidationError
	if !errors.As(err, &violation) {
		t.Fatalf("expected a policy violation, got %v", err)
	}
}

func TestChangePasswordRejectsCurrentReuse(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	service := newTestPasswordService(t, newStubAccountRepo(account), &stubPublisher{})

	err := service.ChangePassword(context.Background(), account.ID, "Sup3r$ecret", "Sup3r$ecret")
	if !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}
}

func TestChangePasswordRejectsHistoricalReuse(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	accounts := newStubAccountRepo(account)
	accounts.history[account.ID] = []domain.PasswordHistoryEntry{
		{AccountID: account.ID, PasswordHash: mustHash(t, "Old!Passw0rd1"), ChangedAt: testClock().Add(-48 * time.Hour)},
	}
	service := newTestPasswordService(t, accounts, &stubPublisher{})

	err := service.ChangePassword(context.Background(), account.ID, "Sup3r$ecret", "Old!Passw0rd1")
	if !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}
}

func TestChangePasswordRejectsCreationPasswordAfterRotation(t *testing.T) {
	account := activeAccount(t, "F1rst!Passw0rd")
	accounts := newStubAccountRepo()
	if err := accounts.Create(context.Background(), account); err != nil {
		t.Fatalf("create account: %v", err)
	}
	service := newTestPasswordService(t, accounts, &stubPublisher{})

	if err := service.ChangePassword(context.Background(), account.ID, "F1rst!Passw0rd", "S3cond!Passw0rd"); err != nil {
		t.Fatalf("rotate password: %v", err)
	}

	// The creation-time credential lives in the history from day one, so it
	// stays off limits even once it is no longer the current hash.
	err := service.ChangePassword(context.Background(), account.ID, "S3cond!Passw0rd", "F1rst!Passw0rd")
	if !errors.Is(err, ErrPasswordReused) {
		t.Fatalf("expected ErrPasswordReused, got %v", err)
	}
}

func TestChangeTempPassword(t *testing.T) {
	account := activeAccount(t, "Temp0!Pass")
	account.TempPassword = true
	accounts := newStubAccountRepo(account)
	service := newTestPasswordService(t, accounts, &stubPublisher{})

	questions := []SecurityQuestionInput{
		{Question: "First pet", Answer: "rex"},
		{Question: "Birth city", Answer: "lisbon"},
		{Question: "Favorite dish", Answer: "ramen"},
	}
	if err := service.ChangeTempPassword(context.Background(), account.ID, "N3w!Passw0rd", questions); err != nil {
		t.Fatalf("change temp password: %v", err)
	}

	update := accounts.lastUpdate
	if update == nil {
		t.Fatal("expected a password update")
	}
	if update.Temporary {
		t.Fatal("the replacement credential must not stay temporary")
	}
	if len(update.SecurityQuestions) != domain.SecurityQuestionCount {
		t.Fatalf("questions written = %d, want %d", len(update.SecurityQuestions), domain.SecurityQuestionCount)
	}
	// The question set rides the same write as the password.
	stored := accounts.accounts[account.ID]
	if !stored.HasSecurityQuestions() {
		t.Fatal("expected the enrolled question set on the account")
	}
	ok, err := security.VerifyAnswer("rex", stored.SecurityQuestions[0].AnswerHash)
	if err != nil || !ok {
		t.Fatal("first answer must verify against its hash")
	}
}

func TestChangeTempPasswordRequiresTempState(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	service := newTestPasswordService(t, newStubAccountRepo(account), &stubPublisher{})

	questions := []SecurityQuestionInput{
		{Question: "a", Answer: "1"},
		{Question: "b", Answer: "2"},
		{Question: "c", Answer: "3"},
	}
	err := service.ChangeTempPassword(context.Background(), account.ID, "N3w!Passw0rd", questions)
	if !errors.Is(err, ErrNotTempPassword) {
		t.Fatalf("expected ErrNotTempPassword, got %v", err)
	}
}

func TestChangeTempPasswordRequiresThreeQuestions(t *testing.T) {
	account := activeAccount(t, "Temp0!Pass")
	account.TempPassword = true
	service := newTestPasswordService(t, newStubAccountRepo(account), &stubPublisher{})

	questions := []SecurityQuestionInput{
		{Question: "a", Answer: "1"},
		{Question: "b", Answer: "2"},
	}
	err := service.ChangeTempPassword(context.Background(), account.ID, "N3w!Passw0rd", questions)
	if !errors.Is(err, ErrSecurityQuestionCount) {
		t.Fatalf("expected ErrSecurityQuestionCount, got %v", err)
	}
}

func TestSetPasswordTemporaryUsesShortExpiry(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	accounts := newStubAccountRepo(account)
	service := newTestPasswordService(t, accounts, &stubPublisher{})

	stored := accounts.accounts[account.ID]
	if err := service.SetPassword(context.Background(), &stored, "Temp0!Pass99", true, false, "admin-1"); err != nil {
		t.Fatalf("set password: %v", err)
	}

	update := accounts.lastUpdate
	if !update.Temporary {
		t.Fatal("expected a temporary credential")
	}
	want := testClock().Add(15 * time.Minute)
	if !update.ExpiresAt.Equal(want) {
		t.Fatalf("expires at = %v, want %v", update.ExpiresAt, want)
	}
}
