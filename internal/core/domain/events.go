package domain

import "time"

// AccountRegisteredEvent represents the payload for helm.identity.account registered messages.
type AccountRegisteredEvent struct {
	EventID      string
	AccountID    string
	Username     string
	Email        string
	Role         string
	Status       string
	RegisteredAt time.Time
	CreatedBy    string
	Metadata     map[string]any
}

// AccountStatusChangedEvent covers approve, reject, suspend, reinstate and
// lockout transitions.
type AccountStatusChangedEvent struct {
	EventID          string
	AccountID        string
	PreviousStatus   string
	NewStatus        string
	Reason           string
	Actor            string
	SuspensionEndsAt *time.Time
	ChangedAt        time.Time
	Metadata         map[string]any
}

// AccountDeletedEvent represents an administrator removing an account.
type AccountDeletedEvent struct {
	EventID   string
	AccountID string
	Actor     string
	DeletedAt time.Time
	Metadata  map[string]any
}

// PasswordChangedEvent represents the payload for password.changed messages.
type PasswordChangedEvent struct {
	EventID   string
	AccountID string
	ChangedAt time.Time
	ChangedBy string
	Temporary bool
	Metadata  map[string]any
}

// PasswordResetRequestedEvent is published when a recovery token is issued.
type PasswordResetRequestedEvent struct {
	EventID     string
	AccountID   string
	RequestedAt time.Time
	ExpiresAt   time.Time
	Metadata    map[string]any
}

// PasswordExpiredEvent is published when the maintenance sweep suspends an
// account whose credential aged out.
type PasswordExpiredEvent struct {
	EventID   string
	AccountID string
	ExpiredAt time.Time
	Metadata  map[string]any
}

// SessionIssuedEvent represents the payload for helm.identity.session issued messages.
type SessionIssuedEvent struct {
	EventID   string
	SessionID string
	AccountID string
	IssuedAt  time.Time
	LogoutAt  time.Time
	Metadata  map[string]any
}

// SessionRevokedEvent represents the payload for session revoked messages.
type SessionRevokedEvent struct {
	EventID   string
	SessionID string
	AccountID string
	RevokedAt time.Time
	Reason    string
	Metadata  map[string]any
}
