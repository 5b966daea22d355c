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

func newTestRecoveryService(t *testing.T, accounts *stubAccountRepo, notifier *stubNotifier, events *stubPublisher) *RecoveryService {
	t.Helper()
	passwords := newTestPasswordService(t, accounts, events)
	service := NewRecoveryService(accounts, events, notifier, passwords, "https://helm.example.com", nil)
	service.WithClock(testClock)
	return service
}

func enrolledAccount(t *testing.T, password string) domain.Account {
	t.Helper()
	account := activeAccount(t, password)
	account.SecurityQuestions = []domain.SecurityQuestion{
		{Question: "First pet", AnswerHash: mustHash(t, "rex")},
		{Question: "Birth city", AnswerHash: mustHash(t, "lisbon")},
		{Question: "Favorite dish", AnswerHash: mustHash(t, "ramen")},
	}
	return account
}

func withResetToken(account domain.Account, token string, expiresAt time.Time) domain.Account {
	account.ResetToken = &token
	account.ResetTokenExpiresAt = &expiresAt
	return account
}

func TestRequestResetIssuesTokenAndEmail(t *testing.T) {
	account := enrolledAccount(t, "Sup3r$ecret")
	accounts := newStubAccountRepo(account)
	notifier := &stubNotifier{}
	events := &stubPublisher{}
	service := newTestRecoveryService(t, accounts, notifier, events)

	if err := service.RequestReset(context.Background(), "JSmith@Example.com", "jsmith0326"); err != nil {
		t.Fatalf("request reset: %v", err)
	}

	stored := accounts.accounts[account.ID]
	if stored.ResetToken == nil {
		t.Fatal("expected a reset token on the account")
	}
	if len(*stored.ResetToken) != security.ResetTokenLength {
		t.Fatalf("token length = %d, want %d", len(*stored.ResetToken), security.ResetTokenLength)
	}
	want := testClock().Add(time.Hour)
	if stored.ResetTokenExpiresAt == nil || !stored.ResetTokenExpiresAt.Equal(want) {
		t.Fatalf("token expiry = %v, want %v", stored.ResetTokenExpiresAt, want)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(notifier.sent))
	}
	if !strings.Contains(notifier.sent[0].Body, *stored.ResetToken) {
		t.Fatal("reset email must carry the token link")
	}
	if len(events.resets) != 1 {
		t.Fatalf("reset events = %d, want 1", len(events.resets))
	}
}

func TestRequestResetEmailMismatch(t *testing.T) {
	account := enrolledAccount(t, "Sup3r$ecret")
	service := newTestRecoveryService(t, newStubAccountRepo(account), &stubNotifier{}, &stubPublisher{})

	err := service.RequestReset(context.Background(), "other@example.com", "jsmith0326")
	if !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}

func TestQuestionsForLiveToken(t *testing.T) {
	account := withResetToken(enrolledAccount(t, "Sup3r$ecret"), "live-token", testClock().Add(30*time.Minute))
	service := newTestRecoveryService(t, newStubAccountRepo(account), &stubNotifier{}, &stubPublisher{})

	questions, err := service.Questions(context.Background(), "live-token")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(questions) != domain.SecurityQuestionCount {
		t.Fatalf("questions = %d, want %d", len(questions), domain.SecurityQuestionCount)
	}
	if questions[0] != "First pet" {
		t.Fatalf("first question = %q", questions[0])
	}
}

func TestQuestionsForExpiredToken(t *testing.T) {
	account := withResetToken(enrolledAccount(t, "Sup3r$ecret"), "stale-token", testClock().Add(-time.Minute))
	service := newTestRecoveryService(t, newStubAccountRepo(account), &stubNotifier{}, &stubPublisher{})

	if _, err := service.Questions(context.Background(), "stale-token"); !errors.Is(err, ErrInvalidOrExpiredToken) {
		t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
	}
}

func TestVerifyAndResetSuccessClearsToken(t *testing.T) {
	account := withResetToken(enrolledAccount(t, "Sup3r$ecret"), "live-token", testClock().Add(30*time.Minute))
	accounts := newStubAccountRepo(account)
	service := newTestRecoveryService(t, accounts, &stubNotifier{}, &stubPublisher{})

	answers := []string{"rex", "lisbon", "ramen"}
	if err := service.VerifyAndReset(context.Background(), "live-token", answers, "N3w!Passw0rd"); err != nil {
		t.Fatalf("verify and reset: %v", err)
	}

	stored := accounts.accounts[account.ID]
	if stored.ResetToken != nil || stored.ResetTokenExpiresAt != nil {
		t.Fatal("token must be cleared with the password write")
	}
	ok, err := security.VerifyPassword("N3w!Passw0rd", stored.PasswordHash)
	if err != nil || !ok {
		t.Fatal("new password must verify against the stored hash")
	}
	if accounts.lastUpdate == nil || !accounts.lastUpdate.ClearResetToken {
		t.Fatal("token clear must ride the password update")
	}
}

func TestVerifyAndResetWrongAnswerKeepsToken(t *testing.T) {
	account := withResetToken(enrolledAccount(t, "Sup3r$ecret"), "live-token", testClock().Add(30*time.Minute))
	accounts := newStubAccountRepo(account)
	service := newTestRecoveryService(t, accounts, &stubNotifier{}, &stubPublisher{})

	answers := []string{"rex", "lisbon", "pizza"}
	err := service.VerifyAndReset(context.Background(), "live-token", answers, "N3w!Passw0rd")
	if !errors.Is(err, ErrSecurityAnswerMismatch) {
		t.Fatalf("expected ErrSecurityAnswerMismatch, got %v", err)
	}

	// The token survives a failed challenge so the holder can retry.
	stored := accounts.accounts[account.ID]
	if stored.ResetToken == nil || *stored.ResetToken != "live-token" {
		t.Fatal("token must remain valid after a mismatch")
	}
	if _, err := service.Questions(context.Background(), "live-token"); err != nil {
		t.Fatalf("token should still resolve, got %v", err)
	}
}

func TestEnrollSecurityQuestions(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	accounts := newStubAccountRepo(account)
	service := newTestRecoveryService(t, accounts, &stubNotifier{}, &stubPublisher{})

	questions := []SecurityQuestionInput{
		{Question: "First pet", Answer: "rex"},
		{Question: "Birth city", Answer: "lisbon"},
		{Question: "Favorite dish", Answer: "ramen"},
	}
	if err := service.EnrollSecurityQuestions(context.Background(), account.ID, questions); err != nil {
		t.Fatalf("enroll: %v", err)
	}
	if !accounts.accounts[account.ID].HasSecurityQuestions() {
		t.Fatal("expected the full question set on the account")
	}
}

func TestEnrollSecurityQuestionsRejectsPartialSets(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	service := newTestRecoveryService(t, newStubAccountRepo(account), &stubNotifier{}, &stubPublisher{})

	cases := map[string][]SecurityQuestionInput{
		"two pairs": {
			{Question: "a", Answer: "1"},
			{Question: "b", Answer: "2"},
		},
		"empty answer": {
			{Question: "a", Answer: "1"},
			{Question: "b", Answer: "2"},
			{Question: "c", Answer: ""},
		},
		"empty question": {
			{Question: "a", Answer: "1"},
			{Question: "", Answer: "2"},
			{Question: "c", Answer: "3"},
		},
	}
	for name, questions := range cases {
		if err := service.EnrollSecurityQuestions(context.Background(), account.ID, questions); !errors.Is(err, ErrSecurityQuestionCount) {
			t.Errorf("%s: expected ErrSecurityQuestionCount, got %v", name, err)
		}
	}
}
