package port

import (
	"context"
	"time"

	"github.com/helmhq/identity-service/internal/core/domain"
)

// AccountFilter narrows List results.
type AccountFilter struct {
	Status domain.AccountStatus
	Role   domain.Role
	Limit  int
	Offset int
}

// PasswordUpdate carries everything a credential rotation writes in one
// transaction: the new hash, the expiry bookkeeping, the history append and
// trim, and optionally a security-question set enrolled alongside it.
type PasswordUpdate struct {
	AccountID         string
	PasswordHash      string
	Temporary         bool
	ChangedAt         time.Time
	ExpiresAt         time.Time
	HistoryLimit      int
	SecurityQuestions []domain.SecurityQuestion
	ClearResetToken   bool
}

// AccountRepository exposes persistence behavior for accounts.
type AccountRepository interface {
	Create(ctx context.Context, account domain.Account) error
	GetByID(ctx context.Context, id string) (*domain.Account, error)
	GetByUsername(ctx context.Context, username string) (*domain.Account, error)
	GetByResetToken(ctx context.Context, token string) (*domain.Account, error)
	List(ctx context.Context, filter AccountFilter) ([]domain.Account, error)
	Delete(ctx context.Context, id string) error

	// TransitionStatus performs a conditional status update keyed on the
	// expected current status; a stale precondition yields zero affected
	// rows, reported as ErrNotFound by implementations.
	TransitionStatus(ctx context.Context, id string, from, to domain.AccountStatus, start, end *time.Time) error

	// ClearLockout resets the failed-attempt counter and removes the
	// indefinite lockout horizon without touching the row status.
	ClearLockout(ctx context.Context, id string) error

	// RecordFailedLogin atomically increments the failed-attempt counter
	// and, when the new count reaches the threshold, stamps the lockout
	// horizon. Returns the post-increment count.
	RecordFailedLogin(ctx context.Context, id string, threshold int, lockUntil time.Time) (int, error)

	// RecordLogin commits the login success bookkeeping and the new session
	// as one unit: last_login_at, counter reset, lockout clear, session row.
	RecordLogin(ctx context.Context, id string, at time.Time, session domain.Session) error

	UpdatePassword(ctx context.Context, update PasswordUpdate) error
	ListPasswordHistory(ctx context.Context, accountID string, limit int) ([]domain.PasswordHistoryEntry, error)

	SetSecurityQuestions(ctx context.Context, accountID string, questions []domain.SecurityQuestion) error
	SetResetToken(ctx context.Context, accountID, token string, expiresAt time.Time) error
	ClearResetToken(ctx context.Context, accountID string) error

	// ListPasswordsExpiringBetween returns accounts whose credential expiry
	// falls inside (from, to]; used by the warning sweep.
	ListPasswordsExpiringBetween(ctx context.Context, from, to time.Time) ([]domain.Account, error)

	// SuspendExpiredPasswords moves every non-suspended account whose
	// credential aged out into an indefinite suspension and returns the
	// affected accounts.
	SuspendExpiredPasswords(ctx context.Context, now time.Time) ([]domain.Account, error)

	// LiftElapsedSuspensions reactivates suspended accounts whose window
	// has passed, leaving indefinite suspensions and lockouts untouched.
	LiftElapsedSuspensions(ctx context.Context, now time.Time) (int, error)
}
