package domain

import "time"

// AccountStatus enumerates possible account states.
type AccountStatus string

const (
	AccountStatusPending   AccountStatus = "pending"
	AccountStatusActive    AccountStatus = "active"
	AccountStatusSuspended AccountStatus = "suspended"
	AccountStatusRejected  AccountStatus = "rejected"
)

// Role enumerates the closed set of account roles.
type Role string

const (
	RoleAdministrator Role = "administrator"
	RoleManager       Role = "manager"
	RoleCoder         Role = "coder"
	RoleViewer        Role = "viewer"
)

// ValidRole reports whether the supplied value belongs to the closed role set.
func ValidRole(r Role) bool {
	switch r {
	case RoleAdministrator, RoleManager, RoleCoder, RoleViewer:
		return true
	default:
		return false
	}
}

// SecurityQuestion is a single enrolled question with the bcrypt hash of its answer.
type SecurityQuestion struct {
	Question   string
	AnswerHash string
}

// SecurityQuestionCount is the exact number of question/answer pairs an
// account enrolls; partial sets are never stored.
const SecurityQuestionCount = 3

// Account mirrors the persisted representation in the accounts table.
type Account struct {
	ID                  string
	Username            string
	Email               string
	FirstName           string
	LastName            string
	Role                Role
	Status              AccountStatus
	PasswordHash        string
	TempPassword        bool
	FailedLoginAttempts int
	SuspensionStartAt   *time.Time
	SuspensionEndAt     *time.Time
	LastLoginAt         *time.Time
	PasswordChangedAt   time.Time
	PasswordExpiresAt   time.Time
	SecurityQuestions   []SecurityQuestion
	ResetToken          *string
	ResetTokenExpiresAt *time.Time
	CreatedAt           time.Time
	UpdatedAt           time.Time
}

// AccessStateKind tags the derived account access state.
type AccessStateKind int

const (
	AccessPending AccessStateKind = iota
	AccessActive
	AccessRejected
	// AccessSuspended is a time-boxed suspension with a recorded start.
	AccessSuspended
	// AccessLockedOut is the indefinite block set by repeated failed logins
	// or password expiry; only an administrator reinstate clears it.
	AccessLockedOut
)

// AccessState is the tagged view over the overloaded suspension columns:
// a suspended row without a suspension start is a lockout, one with a start
// is an administrator suspension.
type AccessState struct {
	Kind  AccessStateKind
	Start *time.Time
	End   *time.Time
}

// AccessState derives the tagged state from the persisted fields. A lockout
// is encoded as suspension_end_at set without suspension_start_at; the row
// status itself may still read active when the lockout came from failed
// login attempts.
func (a Account) AccessState() AccessState {
	switch a.Status {
	case AccountStatusPending:
		return AccessState{Kind: AccessPending}
	case AccountStatusRejected:
		return AccessState{Kind: AccessRejected}
	case AccountStatusSuspended:
		if a.SuspensionStartAt == nil {
			return AccessState{Kind: AccessLockedOut, End: a.SuspensionEndAt}
		}
		return AccessState{Kind: AccessSuspended, Start: a.SuspensionStartAt, End: a.SuspensionEndAt}
	default:
		if a.SuspensionEndAt != nil && a.SuspensionStartAt == nil {
			return AccessState{Kind: AccessLockedOut, End: a.SuspensionEndAt}
		}
		return AccessState{Kind: AccessActive}
	}
}

// Locked reports whether the failed-attempt counter reached the lockout
// threshold.
func (a Account) Locked(threshold int) bool {
	return threshold > 0 && a.FailedLoginAttempts >= threshold
}

// SuspendedUntil reports whether the account sits inside an active suspension
// window at the supplied moment, and the window end when it does.
func (a Account) SuspendedUntil(at time.Time) (time.Time, bool) {
	if a.Status != AccountStatusSuspended || a.SuspensionEndAt == nil {
		return time.Time{}, false
	}
	if at.Before(*a.SuspensionEndAt) {
		return *a.SuspensionEndAt, true
	}
	return time.Time{}, false
}

// PasswordExpired reports whether the credential has passed its expiry.
func (a Account) PasswordExpired(at time.Time) bool {
	return !a.PasswordExpiresAt.After(at)
}

// HasSecurityQuestions reports whether a full question set is enrolled.
func (a Account) HasSecurityQuestions() bool {
	return len(a.SecurityQuestions) == SecurityQuestionCount
}

// PasswordHistoryEntry tracks historical password hashes for reuse prevention.
type PasswordHistoryEntry struct {
	ID           string
	AccountID    string
	PasswordHash string
	ChangedAt    time.Time
}
