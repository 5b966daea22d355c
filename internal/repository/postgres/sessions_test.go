package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	pgxmock "github.com/pashagolub/pgxmock/v2"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/repository"
)

func TestSessionRepository_Create(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	issuedAt := time.Now().UTC()
	session := domain.Session{
		ID:        "session-123",
		AccountID: "account-123",
		Token:     "token-abc",
		IssuedAt:  issuedAt,
		LogoutAt:  issuedAt.Add(time.Hour),
	}

	mock.ExpectExec(`INSERT INTO helm\.sessions`).
		WithArgs(session.ID, session.AccountID, session.Token, session.IssuedAt, session.LogoutAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	if err := repo.Create(context.Background(), session); err != nil {
		t.Fatalf("Create returned error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_Get_NotFound(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	mock.ExpectQuery(`SELECT .* FROM helm\.sessions`).
		WithArgs("account-1", "missing-token").
		WillReturnRows(pgxmock.NewRows([]string{"id", "account_id", "token", "issued_at", "logout_at"}))

	if _, err := repo.Get(context.Background(), "account-1", "missing-token"); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestSessionRepository_Slide(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	now := time.Now().UTC()
	next := now.Add(time.Hour)

	mock.ExpectExec(`UPDATE helm\.sessions SET logout_at`).
		WithArgs(next, "account-1", "token-1", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	ok, err := repo.Slide(context.Background(), "account-1", "token-1", now, next)
	if err != nil {
		t.Fatalf("Slide returned error: %v", err)
	}
	if !ok {
		t.Fatal("expected live session to slide")
	}

	mock.ExpectExec(`UPDATE helm\.sessions SET logout_at`).
		WithArgs(next, "account-1", "token-expired", now).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	ok, err = repo.Slide(context.Background(), "account-1", "token-expired", now, next)
	if err != nil {
		t.Fatalf("Slide returned error: %v", err)
	}
	if ok {
		t.Fatal("expected expired session not to slide")
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_Revoke_Idempotent(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	at := time.Now().UTC()

	mock.ExpectExec(`UPDATE helm\.sessions SET logout_at`).
		WithArgs(at, "account-1", "token-1", at).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))

	if err := repo.Revoke(context.Background(), "account-1", "token-1", at); err != nil {
		t.Fatalf("Revoke on closed session must be a no-op, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestSessionRepository_DeleteExpired(t *testing.T) {
	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("pgxmock.NewPool: %v", err)
	}
	defer mock.Close()

	repo := NewSessionRepository(mock)

	cutoff := time.Now().UTC()

	mock.ExpectExec(`DELETE FROM helm\.sessions`).
		WithArgs(cutoff).
		WillReturnResult(pgxmock.NewResult("DELETE", 3))

	deleted, err := repo.DeleteExpired(context.Background(), cutoff)
	if err != nil {
		t.Fatalf("DeleteExpired returned error: %v", err)
	}
	if deleted != 3 {
		t.Fatalf("expected 3 deleted sessions, got %d", deleted)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
