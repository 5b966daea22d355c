package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/repository"
)

// SessionRepository implements port.SessionRepository backed by PostgreSQL.
type SessionRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewSessionRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewSessionRepository(exec pgExecutor) *SessionRepository {
	repo := &SessionRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance that executes statements within the supplied transaction.
func (r *SessionRepository) WithTx(tx pgx.Tx) *SessionRepository {
	if tx == nil {
		return r
	}
	return &SessionRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create persists a new session row.
func (r *SessionRepository) Create(ctx context.Context, session domain.Session) error {
	stmt, args, err := r.builder.Insert("helm.sessions").
		Columns("id", "account_id", "token", "issued_at", "logout_at").
		Values(session.ID, session.AccountID, session.Token, session.IssuedAt, session.LogoutAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// Get retrieves the session for the (account, token) pair.
func (r *SessionRepository) Get(ctx context.Context, accountID, token string) (*domain.Session, error) {
	stmt, args, err := r.builder.
		Select("id", "account_id", "token", "issued_at", "logout_at").
		From("helm.sessions").
		Where(squirrel.Eq{"account_id": accountID, "token": token}).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select session sql: %w", err)
	}

	var session domain.Session
	if err := r.exec.QueryRow(ctx, stmt, args...).Scan(
		&session.ID,
		&session.AccountID,
		&session.Token,
		&session.IssuedAt,
		&session.LogoutAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}

	return &session, nil
}

// Slide advances logout_at for a still-live session. The horizon check is
// part of the update predicate so an expired session can never be revived.
func (r *SessionRepository) Slide(ctx context.Context, accountID, token string, now, logoutAt time.Time) (bool, error) {
	stmt, args, err := r.builder.Update("helm.sessions").
		Set("logout_at", logoutAt).
		Where(squirrel.Eq{"account_id": accountID, "token": token}).
		Where(squirrel.Gt{"logout_at": now}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build slide session sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return false, fmt.Errorf("slide session: %w", err)
	}

	return ct.RowsAffected() > 0, nil
}

// Revoke closes the session by moving logout_at to the supplied moment.
// Revoking an already-closed session is a no-op.
func (r *SessionRepository) Revoke(ctx context.Context, accountID, token string, at time.Time) error {
	stmt, args, err := r.builder.Update("helm.sessions").
		Set("logout_at", at).
		Where(squirrel.Eq{"account_id": accountID, "token": token}).
		Where(squirrel.Gt{"logout_at": at}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build revoke session sql: %w", err)
	}

	if _, err := r.exec.Exec(ctx, stmt, args...); err != nil {
		return fmt.Errorf("revoke session: %w", err)
	}

	return nil
}

// ListActive returns sessions whose horizon is still in the future.
func (r *SessionRepository) ListActive(ctx context.Context, at time.Time) ([]domain.Session, error) {
	stmt, args, err := r.builder.
		Select("id", "account_id", "token", "issued_at", "logout_at").
		From("helm.sessions").
		Where(squirrel.Gt{"logout_at": at}).
		OrderBy("issued_at DESC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list active sessions sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query active sessions: %w", err)
	}
	defer rows.Close()

	sessions := make([]domain.Session, 0)
	for rows.Next() {
		var session domain.Session
		if err := rows.Scan(
			&session.ID,
			&session.AccountID,
			&session.Token,
			&session.IssuedAt,
			&session.LogoutAt,
		); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, session)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	return sessions, nil
}

// DeleteExpired reclaims storage for sessions whose horizon has passed.
func (r *SessionRepository) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	stmt, args, err := r.builder.Delete("helm.sessions").
		Where(squirrel.Lt{"logout_at": before}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build delete expired sessions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

var _ port.SessionRepository = (*SessionRepository)(nil)
