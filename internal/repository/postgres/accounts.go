package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	squirrel "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/repository"
)

type pgExecutor interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type pgBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

var accountColumns = []string{
	"id",
	"username",
	"email",
	"first_name",
	"last_name",
	"role",
	"status",
	"password_hash",
	"temp_password",
	"failed_login_attempts",
	"suspension_start_at",
	"suspension_end_at",
	"last_login_at",
	"password_changed_at",
	"password_expires_at",
	"security_question_1",
	"security_answer_1_hash",
	"security_question_2",
	"security_answer_2_hash",
	"security_question_3",
	"security_answer_3_hash",
	"reset_token",
	"reset_token_expires_at",
	"created_at",
	"updated_at",
}

// AccountRepository implements port.AccountRepository using PostgreSQL.
type AccountRepository struct {
	pool    *pgxpool.Pool
	exec    pgExecutor
	builder squirrel.StatementBuilderType
}

// NewAccountRepository constructs a repository backed by any executor that satisfies pgExecutor.
func NewAccountRepository(exec pgExecutor) *AccountRepository {
	repo := &AccountRepository{
		exec:    exec,
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
	if pool, ok := exec.(*pgxpool.Pool); ok {
		repo.pool = pool
	}
	return repo
}

// WithTx returns a repository instance operating within the supplied transaction.
func (r *AccountRepository) WithTx(tx pgx.Tx) *AccountRepository {
	if tx == nil {
		return r
	}
	return &AccountRepository{
		pool:    r.pool,
		exec:    tx,
		builder: r.builder,
	}
}

// Create inserts a new account row and seeds the password history with the
// creation-time hash inside one transaction, so the first credential is
// subject to the reuse check from the moment it is set.
func (r *AccountRepository) Create(ctx context.Context, account domain.Account) error {
	beginner, ok := r.exec.(pgBeginner)
	if !ok {
		return r.create(ctx, r.exec, account)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create account tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.create(ctx, tx, account); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create account tx: %w", err)
	}

	return nil
}

func (r *AccountRepository) create(ctx context.Context, exec pgExecutor, account domain.Account) error {
	questions := securityQuestionValues(account.SecurityQuestions)

	query := r.builder.Insert("helm.accounts").
		Columns(accountColumns...).
		Values(
			account.ID,
			account.Username,
			account.Email,
			account.FirstName,
			account.LastName,
			account.Role,
			account.Status,
			account.PasswordHash,
			account.TempPassword,
			account.FailedLoginAttempts,
			account.SuspensionStartAt,
			account.SuspensionEndAt,
			account.LastLoginAt,
			account.PasswordChangedAt,
			account.PasswordExpiresAt,
			questions[0], questions[1],
			questions[2], questions[3],
			questions[4], questions[5],
			account.ResetToken,
			account.ResetTokenExpiresAt,
			account.CreatedAt,
			account.UpdatedAt,
		)

	sql, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build insert account sql: %w", err)
	}

	if _, err := exec.Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert account: %w", err)
	}

	seed, args, err := r.builder.Insert("helm.password_history").
		Columns("account_id", "password_hash", "changed_at").
		Values(account.ID, account.PasswordHash, account.PasswordChangedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build seed password history sql: %w", err)
	}

	if _, err := exec.Exec(ctx, seed, args...); err != nil {
		return fmt.Errorf("seed password history: %w", err)
	}

	return nil
}

func securityQuestionValues(questions []domain.SecurityQuestion) [6]any {
	var out [6]any
	for i := 0; i < domain.SecurityQuestionCount && i < len(questions); i++ {
		out[i*2] = questions[i].Question
		out[i*2+1] = questions[i].AnswerHash
	}
	return out
}

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var (
		account   domain.Account
		questions [3]*string
		answers   [3]*string
	)

	if err := row.Scan(
		&account.ID,
		&account.Username,
		&account.Email,
		&account.FirstName,
		&account.LastName,
		&account.Role,
		&account.Status,
		&account.PasswordHash,
		&account.TempPassword,
		&account.FailedLoginAttempts,
		&account.SuspensionStartAt,
		&account.SuspensionEndAt,
		&account.LastLoginAt,
		&account.PasswordChangedAt,
		&account.PasswordExpiresAt,
		&questions[0], &answers[0],
		&questions[1], &answers[1],
		&questions[2], &answers[2],
		&account.ResetToken,
		&account.ResetTokenExpiresAt,
		&account.CreatedAt,
		&account.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("scan account: %w", err)
	}

	for i := range questions {
		if questions[i] != nil && answers[i] != nil {
			account.SecurityQuestions = append(account.SecurityQuestions, domain.SecurityQuestion{
				Question:   *questions[i],
				AnswerHash: *answers[i],
			})
		}
	}

	return &account, nil
}

func (r *AccountRepository) getBy(ctx context.Context, pred squirrel.Eq) (*domain.Account, error) {
	stmt, args, err := r.builder.
		Select(accountColumns...).
		From("helm.accounts").
		Where(pred).
		Limit(1).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select account sql: %w", err)
	}

	return scanAccount(r.exec.QueryRow(ctx, stmt, args...))
}

// GetByID retrieves an account by identifier.
func (r *AccountRepository) GetByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.getBy(ctx, squirrel.Eq{"id": id})
}

// GetByUsername retrieves an account by username.
func (r *AccountRepository) GetByUsername(ctx context.Context, username string) (*domain.Account, error) {
	return r.getBy(ctx, squirrel.Eq{"username": username})
}

// GetByResetToken retrieves the account holding the supplied reset token.
// Expiry is the caller's concern.
func (r *AccountRepository) GetByResetToken(ctx context.Context, token string) (*domain.Account, error) {
	if strings.TrimSpace(token) == "" {
		return nil, repository.ErrNotFound
	}
	return r.getBy(ctx, squirrel.Eq{"reset_token": token})
}

// List returns accounts with optional filtering and pagination.
func (r *AccountRepository) List(ctx context.Context, filter port.AccountFilter) ([]domain.Account, error) {
	query := r.builder.Select(accountColumns...).
		From("helm.accounts").
		OrderBy("created_at DESC")

	if filter.Status != "" {
		query = query.Where(squirrel.Eq{"status": filter.Status})
	}
	if filter.Role != "" {
		query = query.Where(squirrel.Eq{"role": filter.Role})
	}
	if filter.Limit > 0 {
		query = query.Limit(uint64(filter.Limit))
	}
	if filter.Offset > 0 {
		query = query.Offset(uint64(filter.Offset))
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build list accounts sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query accounts: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

func collectAccounts(rows pgx.Rows) ([]domain.Account, error) {
	accounts := make([]domain.Account, 0)
	for rows.Next() {
		account, err := scanAccount(rows)
		if err != nil {
			return nil, err
		}
		accounts = append(accounts, *account)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate accounts: %w", err)
	}

	return accounts, nil
}

// Delete removes the account; session and history rows cascade.
func (r *AccountRepository) Delete(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Delete("helm.accounts").
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build delete account sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("delete account: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// TransitionStatus performs a conditional status update keyed on the expected
// current status. Zero affected rows means the precondition did not hold.
func (r *AccountRepository) TransitionStatus(ctx context.Context, id string, from, to domain.AccountStatus, start, end *time.Time) error {
	query := r.builder.Update("helm.accounts").
		Set("status", to).
		Set("suspension_start_at", start).
		Set("suspension_end_at", end).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id, "status": from})

	if to == domain.AccountStatusActive {
		query = query.Set("failed_login_attempts", 0)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build transition status sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("transition account status: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ClearLockout resets the failed-attempt counter and removes the lockout
// horizon without touching the row status.
func (r *AccountRepository) ClearLockout(ctx context.Context, id string) error {
	stmt, args, err := r.builder.Update("helm.accounts").
		Set("failed_login_attempts", 0).
		Set("suspension_end_at", nil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear lockout sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("clear lockout: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// RecordFailedLogin increments the failed-attempt counter and stamps the
// lockout horizon once the threshold is reached, in a single statement so
// concurrent attempts never observe a partial update.
func (r *AccountRepository) RecordFailedLogin(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, error) {
	stmt := `
		UPDATE helm.accounts
		   SET failed_login_attempts = failed_login_attempts + 1,
		       suspension_end_at = CASE
		           WHEN failed_login_attempts + 1 >= $2 THEN $3
		           ELSE suspension_end_at
		       END,
		       updated_at = NOW()
		 WHERE id = $1
		 RETURNING failed_login_attempts
	`

	var attempts int
	if err := r.exec.QueryRow(ctx, stmt, id, threshold, lockUntil).Scan(&attempts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, repository.ErrNotFound
		}
		return 0, fmt.Errorf("record failed login: %w", err)
	}

	return attempts, nil
}

// RecordLogin commits the success bookkeeping and the session row as one
// transaction.
func (r *AccountRepository) RecordLogin(ctx context.Context, id string, at time.Time, session domain.Session) error {
	beginner, ok := r.exec.(pgBeginner)
	if !ok {
		return r.recordLogin(ctx, r.exec, id, at, session)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin record login tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.recordLogin(ctx, tx, id, at, session); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit record login tx: %w", err)
	}

	return nil
}

func (r *AccountRepository) recordLogin(ctx context.Context, exec pgExecutor, id string, at time.Time, session domain.Session) error {
	stmt, args, err := r.builder.Update("helm.accounts").
		Set("last_login_at", at).
		Set("failed_login_attempts", 0).
		Set("suspension_end_at", nil).
		Set("updated_at", at).
		Where(squirrel.Eq{"id": id}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build record login sql: %w", err)
	}

	ct, err := exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("record login: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	insert, args, err := r.builder.Insert("helm.sessions").
		Columns("id", "account_id", "token", "issued_at", "logout_at").
		Values(session.ID, session.AccountID, session.Token, session.IssuedAt, session.LogoutAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert session sql: %w", err)
	}

	if _, err := exec.Exec(ctx, insert, args...); err != nil {
		return fmt.Errorf("insert session: %w", err)
	}

	return nil
}

// UpdatePassword rotates the credential, appends the history entry, and
// trims retained history inside one transaction so the hash and its history
// never diverge.
func (r *AccountRepository) UpdatePassword(ctx context.Context, update port.PasswordUpdate) error {
	beginner, ok := r.exec.(pgBeginner)
	if !ok {
		return r.updatePassword(ctx, r.exec, update)
	}

	tx, err := beginner.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin update password tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := r.updatePassword(ctx, tx, update); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit update password tx: %w", err)
	}

	return nil
}

func (r *AccountRepository) updatePassword(ctx context.Context, exec pgExecutor, update port.PasswordUpdate) error {
	query := r.builder.Update("helm.accounts").
		Set("password_hash", update.PasswordHash).
		Set("temp_password", update.Temporary).
		Set("password_changed_at", update.ChangedAt).
		Set("password_expires_at", update.ExpiresAt).
		Set("updated_at", update.ChangedAt).
		Where(squirrel.Eq{"id": update.AccountID})

	if len(update.SecurityQuestions) == domain.SecurityQuestionCount {
		questions := securityQuestionValues(update.SecurityQuestions)
		query = query.
			Set("security_question_1", questions[0]).
			Set("security_answer_1_hash", questions[1]).
			Set("security_question_2", questions[2]).
			Set("security_answer_2_hash", questions[3]).
			Set("security_question_3", questions[4]).
			Set("security_answer_3_hash", questions[5])
	}

	if update.ClearResetToken {
		query = query.
			Set("reset_token", nil).
			Set("reset_token_expires_at", nil)
	}

	stmt, args, err := query.ToSql()
	if err != nil {
		return fmt.Errorf("build update password sql: %w", err)
	}

	ct, err := exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("update password: %w", err)
	}
	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	insert, args, err := r.builder.Insert("helm.password_history").
		Columns("account_id", "password_hash", "changed_at").
		Values(update.AccountID, update.PasswordHash, update.ChangedAt).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert password history sql: %w", err)
	}

	if _, err := exec.Exec(ctx, insert, args...); err != nil {
		return fmt.Errorf("insert password history: %w", err)
	}

	if update.HistoryLimit > 0 {
		trim := `
			DELETE FROM helm.password_history
			 WHERE account_id = $1
			   AND id NOT IN (
					SELECT id
					  FROM helm.password_history
					 WHERE account_id = $1
					 ORDER BY changed_at DESC
					 LIMIT $2
			   )
		`
		if _, err := exec.Exec(ctx, trim, update.AccountID, update.HistoryLimit); err != nil {
			return fmt.Errorf("trim password history: %w", err)
		}
	}

	return nil
}

// ListPasswordHistory retrieves the most recent password hashes for an account.
func (r *AccountRepository) ListPasswordHistory(ctx context.Context, accountID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	trimmedID := strings.TrimSpace(accountID)
	if trimmedID == "" {
		return nil, fmt.Errorf("account id is required")
	}

	builder := r.builder.Select("id", "account_id", "password_hash", "changed_at").
		From("helm.password_history").
		Where(squirrel.Eq{"account_id": trimmedID}).
		OrderBy("changed_at DESC")
	if limit > 0 {
		builder = builder.Limit(uint64(limit))
	}

	stmt, args, err := builder.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build select password history sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query password history: %w", err)
	}
	defer rows.Close()

	history := make([]domain.PasswordHistoryEntry, 0)
	for rows.Next() {
		var record domain.PasswordHistoryEntry
		if err := rows.Scan(&record.ID, &record.AccountID, &record.PasswordHash, &record.ChangedAt); err != nil {
			return nil, fmt.Errorf("scan password history: %w", err)
		}
		history = append(history, record)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate password history: %w", err)
	}

	return history, nil
}

// SetSecurityQuestions replaces the full question set in one statement.
func (r *AccountRepository) SetSecurityQuestions(ctx context.Context, accountID string, questions []domain.SecurityQuestion) error {
	if len(questions) != domain.SecurityQuestionCount {
		return fmt.Errorf("exactly %d security questions are required", domain.SecurityQuestionCount)
	}

	values := securityQuestionValues(questions)
	stmt, args, err := r.builder.Update("helm.accounts").
		Set("security_question_1", values[0]).
		Set("security_answer_1_hash", values[1]).
		Set("security_question_2", values[2]).
		Set("security_answer_2_hash", values[3]).
		Set("security_question_3", values[4]).
		Set("security_answer_3_hash", values[5]).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set security questions sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set security questions: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// SetResetToken stores the single active reset token with its expiry.
func (r *AccountRepository) SetResetToken(ctx context.Context, accountID, token string, expiresAt time.Time) error {
	stmt, args, err := r.builder.Update("helm.accounts").
		Set("reset_token", token).
		Set("reset_token_expires_at", expiresAt).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build set reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ClearResetToken invalidates the active reset token.
func (r *AccountRepository) ClearResetToken(ctx context.Context, accountID string) error {
	stmt, args, err := r.builder.Update("helm.accounts").
		Set("reset_token", nil).
		Set("reset_token_expires_at", nil).
		Set("updated_at", time.Now().UTC()).
		Where(squirrel.Eq{"id": accountID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build clear reset token sql: %w", err)
	}

	ct, err := r.exec.Exec(ctx, stmt, args...)
	if err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}

	if ct.RowsAffected() == 0 {
		return repository.ErrNotFound
	}

	return nil
}

// ListPasswordsExpiringBetween returns active accounts whose credential
// expiry falls inside (from, to].
func (r *AccountRepository) ListPasswordsExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Account, error) {
	stmt, args, err := r.builder.Select(accountColumns...).
		From("helm.accounts").
		Where(squirrel.Eq{"status": domain.AccountStatusActive}).
		Where(squirrel.Gt{"password_expires_at": from}).
		Where(squirrel.LtOrEq{"password_expires_at": to}).
		OrderBy("password_expires_at ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build expiring passwords sql: %w", err)
	}

	rows, err := r.exec.Query(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("query expiring passwords: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// SuspendExpiredPasswords moves every non-suspended account whose credential
// aged out into an indefinite suspension and returns the affected accounts.
// The timestamp comparison is re-evaluated at write time so the sweep stays
// idempotent under concurrent traffic.
func (r *AccountRepository) SuspendExpiredPasswords(ctx context.Context, now time.Time) ([]domain.Account, error) {
	stmt := fmt.Sprintf(`
		UPDATE helm.accounts
		   SET status = 'suspended',
		       suspension_start_at = $1,
		       suspension_end_at = NULL,
		       updated_at = $1
		 WHERE password_expires_at <= $1
		   AND status <> 'suspended'
		 RETURNING %s
	`, strings.Join(accountColumns, ", "))

	rows, err := r.exec.Query(ctx, stmt, now)
	if err != nil {
		return nil, fmt.Errorf("suspend expired passwords: %w", err)
	}
	defer rows.Close()

	return collectAccounts(rows)
}

// LiftElapsedSuspensions reactivates suspended accounts whose window has
// passed. Indefinite suspensions (no end) and lockouts (no start) are left
// for an administrator.
func (r *AccountRepository) LiftElapsedSuspensions(ctx context.Context, now time.Time) (int, error) {
	stmt := `
		UPDATE helm.accounts
		   SET status = 'active',
		       suspension_start_at = NULL,
		       suspension_end_at = NULL,
		       failed_login_attempts = 0,
		       updated_at = $1
		 WHERE status = 'suspended'
		   AND suspension_start_at IS NOT NULL
		   AND suspension_end_at IS NOT NULL
		   AND suspension_end_at < $1
	`

	ct, err := r.exec.Exec(ctx, stmt, now)
	if err != nil {
		return 0, fmt.Errorf("lift elapsed suspensions: %w", err)
	}

	return int(ct.RowsAffected()), nil
}

var _ port.AccountRepository = (*AccountRepository)(nil)
