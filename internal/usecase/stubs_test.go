package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/repository"
)

// stubAccountRepo is an in-memory AccountRepository mirroring the conditional
// update semantics of the real store.
type stubAccountRepo struct {
	accounts map[string]domain.Account
	history  map[string][]domain.PasswordHistoryEntry

	lastUpdate     *port.PasswordUpdate
	lastLoginAt    *time.Time
	createdSession *domain.Session

	createErr error
	updateErr error
}

func newStubAccountRepo(accounts ...domain.Account) *stubAccountRepo {
	repo := &stubAccountRepo{
		accounts: make(map[string]domain.Account),
		history:  make(map[string][]domain.PasswordHistoryEntry),
	}
	for _, account := range accounts {
		repo.accounts[account.ID] = account
	}
	return repo
}

func (r *stubAccountRepo) Create(_ context.Context, account domain.Account) error {
	if r.createErr != nil {
		return r.createErr
	}
	r.accounts[account.ID] = account
	r.history[account.ID] = append(r.history[account.ID], domain.PasswordHistoryEntry{
		AccountID:    account.ID,
		PasswordHash: account.PasswordHash,
		ChangedAt:    account.PasswordChangedAt,
	})
	return nil
}

func (r *stubAccountRepo) GetByID(_ context.Context, id string) (*domain.Account, error) {
	if account, ok := r.accounts[id]; ok {
		copy := account
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) GetByUsername(_ context.Context, username string) (*domain.Account, error) {
	for _, account := range r.accounts {
		if account.Username == username {
			copy := account
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) GetByResetToken(_ context.Context, token string) (*domain.Account, error) {
	for _, account := range r.accounts {
		if account.ResetToken != nil && *account.ResetToken == token {
			copy := account
			return &copy, nil
		}
	}
	return nil, repository.ErrNotFound
}

func (r *stubAccountRepo) List(context.Context, port.AccountFilter) ([]domain.Account, error) {
	out := make([]domain.Account, 0, len(r.accounts))
	for _, account := range r.accounts {
		out = append(out, account)
	}
	return out, nil
}

func (r *stubAccountRepo) Delete(_ context.Context, id string) error {
	if _, ok := r.accounts[id]; !ok {
		return repository.ErrNotFound
	}
	delete(r.accounts, id)
	return nil
}

func (r *stubAccountRepo) TransitionStatus(_ context.Context, id string, from, to domain.AccountStatus, start, end *time.Time) error {
	account, ok := r.accounts[id]
	if !ok || account.Status != from {
		return repository.ErrNotFound
	}
	account.Status = to
	account.SuspensionStartAt = start
	account.SuspensionEndAt = end
	if to == domain.AccountStatusActive {
		account.FailedLoginAttempts = 0
	}
	r.accounts[id] = account
	return nil
}

func (r *stubAccountRepo) ClearLockout(_ context.Context, id string) error {
	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.FailedLoginAttempts = 0
	account.SuspensionEndAt = nil
	r.accounts[id] = account
	return nil
}

func (r *stubAccountRepo) RecordFailedLogin(_ context.Context, id string, threshold int, lockUntil time.Time) (int, error) {
	account, ok := r.accounts[id]
	if !ok {
		return 0, repository.ErrNotFound
	}
	account.FailedLoginAttempts++
	if account.FailedLoginAttempts >= threshold {
		account.SuspensionEndAt = &lockUntil
	}
	r.accounts[id] = account
	return account.FailedLoginAttempts, nil
}

func (r *stubAccountRepo) RecordLogin(_ context.Context, id string, at time.Time, session domain.Session) error {
	account, ok := r.accounts[id]
	if !ok {
		return repository.ErrNotFound
	}
	account.LastLoginAt = &at
	account.FailedLoginAttempts = 0
	account.SuspensionEndAt = nil
	r.accounts[id] = account
	r.lastLoginAt = &at
	r.createdSession = &session
	return nil
}

func (r *stubAccountRepo) UpdatePassword(_ context.Context, update port.PasswordUpdate) error {
	if r.updateErr != nil {
		return r.updateErr
	}
	account, ok := r.accounts[update.AccountID]
	if !ok {
		return repository.ErrNotFound
	}
	r.history[update.AccountID] = append(r.history[update.AccountID], domain.PasswordHistoryEntry{
		AccountID:    update.AccountID,
		PasswordHash: update.PasswordHash,
		ChangedAt:    update.ChangedAt,
	})
	account.PasswordHash = update.PasswordHash
	account.TempPassword = update.Temporary
	account.PasswordChangedAt = update.ChangedAt
	account.PasswordExpiresAt = update.ExpiresAt
	if len(update.SecurityQuestions) > 0 {
		account.SecurityQuestions = update.SecurityQuestions
	}
	if update.ClearResetToken {
		account.ResetToken = nil
		account.ResetTokenExpiresAt = nil
	}
	r.accounts[update.AccountID] = account
	r.lastUpdate = &update
	return nil
}

func (r *stubAccountRepo) ListPasswordHistory(_ context.Context, accountID string, limit int) ([]domain.PasswordHistoryEntry, error) {
	entries := r.history[accountID]
	if limit > 0 && len(entries) > limit {
		entries = entries[len(entries)-limit:]
	}
	return entries, nil
}

func (r *stubAccountRepo) SetSecurityQuestions(_ context.Context, accountID string, questions []domain.SecurityQuestion) error {
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.SecurityQuestions = questions
	r.accounts[accountID] = account
	return nil
}

func (r *stubAccountRepo) SetResetToken(_ context.Context, accountID, token string, expiresAt time.Time) error {
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.ResetToken = &token
	account.ResetTokenExpiresAt = &expiresAt
	r.accounts[accountID] = account
	return nil
}

func (r *stubAccountRepo) ClearResetToken(_ context.Context, accountID string) error {
	account, ok := r.accounts[accountID]
	if !ok {
		return repository.ErrNotFound
	}
	account.ResetToken = nil
	account.ResetTokenExpiresAt = nil
	r.accounts[accountID] = account
	return nil
}

func (r *stubAccountRepo) ListPasswordsExpiringBetween(_ context.Context, from, to time.Time) ([]domain.Account, error) {
	var out []domain.Account
	for _, account := range r.accounts {
		if account.Status != domain.AccountStatusActive {
			continue
		}
		if account.PasswordExpiresAt.After(from) && !account.PasswordExpiresAt.After(to) {
			out = append(out, account)
		}
	}
	return out, nil
}

func (r *stubAccountRepo) SuspendExpiredPasswords(_ context.Context, now time.Time) ([]domain.Account, error) {
	var out []domain.Account
	for id, account := range r.accounts {
		if account.Status == domain.AccountStatusSuspended {
			continue
		}
		if account.PasswordExpiresAt.After(now) {
			continue
		}
		start := now
		account.Status = domain.AccountStatusSuspended
		account.SuspensionStartAt = &start
		account.SuspensionEndAt = nil
		r.accounts[id] = account
		out = append(out, account)
	}
	return out, nil
}

func (r *stubAccountRepo) LiftElapsedSuspensions(_ context.Context, now time.Time) (int, error) {
	lifted := 0
	for id, account := range r.accounts {
		if account.Status != domain.AccountStatusSuspended {
			continue
		}
		if account.SuspensionStartAt == nil || account.SuspensionEndAt == nil {
			continue
		}
		if !account.SuspensionEndAt.Before(now) {
			continue
		}
		account.Status = domain.AccountStatusActive
		account.SuspensionStartAt = nil
		account.SuspensionEndAt = nil
		account.FailedLoginAttempts = 0
		r.accounts[id] = account
		lifted++
	}
	return lifted, nil
}

// stubSessionRepo is an in-memory SessionRepository keyed account/token.
type stubSessionRepo struct {
	sessions map[string]domain.Session
}

func newStubSessionRepo(sessions ...domain.Session) *stubSessionRepo {
	repo := &stubSessionRepo{sessions: make(map[string]domain.Session)}
	for _, session := range sessions {
		repo.sessions[sessionKey(session.AccountID, session.Token)] = session
	}
	return repo
}

func sessionKey(accountID, token string) string {
	return fmt.Sprintf("%s/%s", accountID, token)
}

func (r *stubSessionRepo) Create(_ context.Context, session domain.Session) error {
	r.sessions[sessionKey(session.AccountID, session.Token)] = session
	return nil
}

func (r *stubSessionRepo) Get(_ context.Context, accountID, token string) (*domain.Session, error) {
	if session, ok := r.sessions[sessionKey(accountID, token)]; ok {
		copy := session
		return &copy, nil
	}
	return nil, repository.ErrNotFound
}

func (r *stubSessionRepo) Slide(_ context.Context, accountID, token string, now, logoutAt time.Time) (bool, error) {
	session, ok := r.sessions[sessionKey(accountID, token)]
	if !ok || !session.LogoutAt.After(now) {
		return false, nil
	}
	session.LogoutAt = logoutAt
	r.sessions[sessionKey(accountID, token)] = session
	return true, nil
}

func (r *stubSessionRepo) Revoke(_ context.Context, accountID, token string, at time.Time) error {
	session, ok := r.sessions[sessionKey(accountID, token)]
	if !ok {
		return nil
	}
	if session.LogoutAt.After(at) {
		session.LogoutAt = at
		r.sessions[sessionKey(accountID, token)] = session
	}
	return nil
}

func (r *stubSessionRepo) ListActive(_ context.Context, at time.Time) ([]domain.Session, error) {
	var out []domain.Session
	for _, session := range r.sessions {
		if session.LogoutAt.After(at) {
			out = append(out, session)
		}
	}
	return out, nil
}

func (r *stubSessionRepo) DeleteExpired(_ context.Context, before time.Time) (int, error) {
	removed := 0
	for key, session := range r.sessions {
		if !session.LogoutAt.After(before) {
			delete(r.sessions, key)
			removed++
		}
	}
	return removed, nil
}

// stubPublisher records every published event type.
type stubPublisher struct {
	statusChanges []domain.AccountStatusChangedEvent
	registered    []domain.AccountRegisteredEvent
	deleted       []domain.AccountDeletedEvent
	passwords     []domain.PasswordChangedEvent
	resets        []domain.PasswordResetRequestedEvent
	expirations   []domain.PasswordExpiredEvent
	issued        []domain.SessionIssuedEvent
	revoked       []domain.SessionRevokedEvent
}

func (p *stubPublisher) PublishAccountRegistered(_ context.Context, event domain.AccountRegisteredEvent) error {
	p.registered = append(p.registered, event)
	return nil
}

func (p *stubPublisher) PublishAccountStatusChanged(_ context.Context, event domain.AccountStatusChangedEvent) error {
	p.statusChanges = append(p.statusChanges, event)
	return nil
}

func (p *stubPublisher) PublishAccountDeleted(_ context.Context, event domain.AccountDeletedEvent) error {
	p.deleted = append(p.deleted, event)
	return nil
}

func (p *stubPublisher) PublishPasswordChanged(_ context.Context, event domain.PasswordChangedEvent) error {
	p.passwords = append(p.passwords, event)
	return nil
}

func (p *stubPublisher) PublishPasswordResetRequested(_ context.Context, event domain.PasswordResetRequestedEvent) error {
	p.resets = append(p.resets, event)
	return nil
}

func (p *stubPublisher) PublishPasswordExpired(_ context.Context, event domain.PasswordExpiredEvent) error {
	p.expirations = append(p.expirations, event)
	return nil
}

func (p *stubPublisher) PublishSessionIssued(_ context.Context, event domain.SessionIssuedEvent) error {
	p.issued = append(p.issued, event)
	return nil
}

func (p *stubPublisher) PublishSessionRevoked(_ context.Context, event domain.SessionRevokedEvent) error {
	p.revoked = append(p.revoked, event)
	return nil
}

// stubNotifier records outbound notifications.
type stubNotifier struct {
	sent []struct{ Recipient, Subject, Body string }
	err  error
}

func (n *stubNotifier) Notify(_ context.Context, recipient, subject, body string) (port.DeliveryResult, error) {
	if n.err != nil {
		return port.DeliveryResult{Recipient: recipient}, n.err
	}
	n.sent = append(n.sent, struct{ Recipient, Subject, Body string }{recipient, subject, body})
	return port.DeliveryResult{Recipient: recipient, Accepted: true}, nil
}

// stubLedger marks warnings and reports first-write.
type stubLedger struct {
	marked map[string]bool
	err    error
}

func (l *stubLedger) MarkWarned(_ context.Context, accountID string, expiresAt, day time.Time) (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.marked == nil {
		l.marked = make(map[string]bool)
	}
	key := fmt.Sprintf("%s/%d/%s", accountID, expiresAt.Unix(), day.Format("2006-01-02"))
	if l.marked[key] {
		return false, nil
	}
	l.marked[key] = true
	return true, nil
}
