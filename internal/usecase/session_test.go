package usecase

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/helmhq/identity-service/internal/core/domain"
)

func TestSessionIssuePersistsSlidingHorizon(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	accounts := newStubAccountRepo(account)
	events := &stubPublisher{}
	service := newTestSessionService(t, accounts, newStubSessionRepo(), events)

	session, err := service.Issue(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if session.Token == "" {
		t.Fatal("expected a signed token")
	}
	want := testClock().Add(time.Hour)
	if !session.LogoutAt.Equal(want) {
		t.Fatalf("logout horizon = %v, want %v", session.LogoutAt, want)
	}
	if len(events.issued) != 1 {
		t.Fatalf("issued events = %d, want 1", len(events.issued))
	}
}

func TestSessionValidateSlidesWindow(t *testing.T) {
	base := testClock()
	session := domain.Session{
		ID:        "sess-1",
		AccountID: "acct-1",
		Token:     "tok-1",
		IssuedAt:  base,
		LogoutAt:  base.Add(time.Hour),
	}
	sessions := newStubSessionRepo(session)
	service := newTestSessionService(t, newStubAccountRepo(), sessions, &stubPublisher{})

	// Validate 50 minutes in: still inside the window, horizon renews.
	now := base.Add(50 * time.Minute)
	service.WithClock(func() time.Time { return now })
	ok, err := service.Validate(context.Background(), "acct-1", "tok-1")
	if err != nil || !ok {
		t.Fatalf("validate inside window = (%v, %v), want (true, nil)", ok, err)
	}

	// 50 more minutes pass; without the slide the session would have
	// lapsed at base+1h.
	now = now.Add(50 * time.Minute)
	ok, err = service.Validate(context.Background(), "acct-1", "tok-1")
	if err != nil || !ok {
		t.Fatalf("validate after slide = (%v, %v), want (true, nil)", ok, err)
	}
}

func TestSessionValidateExpired(t *testing.T) {
	base := testClock()
	session := domain.Session{
		ID:        "sess-1",
		AccountID: "acct-1",
		Token:     "tok-1",
		IssuedAt:  base,
		LogoutAt:  base.Add(time.Hour),
	}
	service := newTestSessionService(t, newStubAccountRepo(), newStubSessionRepo(session), &stubPublisher{})
	service.WithClock(func() time.Time { return base.Add(61 * time.Minute) })

	ok, err := service.Validate(context.Background(), "acct-1", "tok-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("an idle session past its horizon must not validate")
	}
}

func TestSessionValidateUnknownToken(t *testing.T) {
	service := newTestSessionService(t, newStubAccountRepo(), newStubSessionRepo(), &stubPublisher{})

	ok, err := service.Validate(context.Background(), "acct-1", "no-such-token")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("unknown tokens must not validate")
	}
}

func TestSessionInvalidateStopsValidation(t *testing.T) {
	base := testClock()
	session := domain.Session{
		ID:        "sess-1",
		AccountID: "acct-1",
		Token:     "tok-1",
		IssuedAt:  base,
		LogoutAt:  base.Add(time.Hour),
	}
	events := &stubPublisher{}
	service := newTestSessionService(t, newStubAccountRepo(), newStubSessionRepo(session), events)

	if err := service.Invalidate(context.Background(), "acct-1", "tok-1"); err != nil {
		t.Fatalf("invalidate: %v", err)
	}
	if len(events.revoked) != 1 || events.revoked[0].Reason != "logout" {
		t.Fatalf("revoked events = %+v, want one logout", events.revoked)
	}

	ok, err := service.Validate(context.Background(), "acct-1", "tok-1")
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if ok {
		t.Fatal("a revoked session must not validate")
	}
}

func TestSessionInvalidateUnknown(t *testing.T) {
	service := newTestSessionService(t, newStubAccountRepo(), newStubSessionRepo(), &stubPublisher{})

	if err := service.Invalidate(context.Background(), "acct-1", "missing"); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestSessionIsTempPasswordActive(t *testing.T) {
	account := activeAccount(t, "Sup3r$ecret")
	account.TempPassword = true
	service := newTestSessionService(t, newStubAccountRepo(account), newStubSessionRepo(), &stubPublisher{})

	active, err := service.IsTempPasswordActive(context.Background(), account.ID)
	if err != nil {
		t.Fatalf("is temp password active: %v", err)
	}
	if !active {
		t.Fatal("expected temp-password state to be reported")
	}

	if _, err := service.IsTempPasswordActive(context.Background(), "missing"); !errors.Is(err, ErrAccountNotFound) {
		t.Fatalf("expected ErrAccountNotFound, got %v", err)
	}
}
