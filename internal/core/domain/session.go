package domain

import "time"

// Session represents a persisted login session with a sliding expiry horizon.
type Session struct {
	ID        string
	AccountID string
	Token     string
	IssuedAt  time.Time
	LogoutAt  time.Time
}

// IsActive reports whether the session is still valid at the supplied moment.
func (s Session) IsActive(at time.Time) bool {
	return s.LogoutAt.After(at)
}

// Slide pushes the expiry horizon forward; every validated request renews
// the window so idle sessions lapse exactly one TTL after the last call.
func (s *Session) Slide(at time.Time, ttl time.Duration) {
	s.LogoutAt = at.Add(ttl)
}

// Revoke closes the session immediately. Returns true when the session
// changed state.
func (s *Session) Revoke(at time.Time) bool {
	if !s.LogoutAt.After(at) {
		return false
	}
	s.LogoutAt = at
	return true
}
