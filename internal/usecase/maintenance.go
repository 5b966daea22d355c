package usecase

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/infra/logger"
	"github.com/helmhq/identity-service/internal/infra/telemetry"
)

const defaultWarningThreshold = 72 * time.Hour

// MaintenanceService runs the periodic sweeps. Every sweep re-evaluates its
// timestamp predicate at write time, so overlapping or replayed runs are
// harmless.
type MaintenanceService struct {
	accounts         port.AccountRepository
	sessions         port.SessionRepository
	ledger           port.WarningLedger
	notifier         port.Notifier
	events           port.EventPublisher
	telemetry        *telemetry.Provider
	logger           *zap.Logger
	warningThreshold time.Duration
	now              func() time.Time
}

// NewMaintenanceService constructs a MaintenanceService.
func NewMaintenanceService(accounts port.AccountRepository, sessions port.SessionRepository, ledger port.WarningLedger, notifier port.Notifier, events port.EventPublisher, metrics *telemetry.Provider, log *zap.Logger) *MaintenanceService {
	if log == nil {
		log = zap.NewNop()
	}
	return &MaintenanceService{
		accounts:         accounts,
		sessions:         sessions,
		ledger:           ledger,
		notifier:         notifier,
		events:           events,
		telemetry:        metrics,
		logger:           log,
		warningThreshold: defaultWarningThreshold,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// WithClock overrides the internal clock for deterministic tests.
func (s *MaintenanceService) WithClock(clock func() time.Time) {
	if clock != nil {
		s.now = clock
	}
}

// WithWarningThreshold overrides how far ahead of expiry warnings go out.
func (s *MaintenanceService) WithWarningThreshold(threshold time.Duration) {
	if threshold > 0 {
		s.warningThreshold = threshold
	}
}

// ExpireSessions deletes sessions whose horizon has passed.
func (s *MaintenanceService) ExpireSessions(ctx context.Context) (int, error) {
	removed, err := s.sessions.DeleteExpired(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	if removed > 0 {
		s.telemetry.RecordSweep("expire_sessions", removed)
		s.logger.Info("expired sessions removed", zap.Int("count", removed))
	}
	return removed, nil
}

// LiftSuspensions reactivates accounts whose suspension window elapsed.
// Indefinite suspensions and lockouts are left for an administrator.
func (s *MaintenanceService) LiftSuspensions(ctx context.Context) (int, error) {
	lifted, err := s.accounts.LiftElapsedSuspensions(ctx, s.now())
	if err != nil {
		return 0, fmt.Errorf("lift elapsed suspensions: %w", err)
	}
	if lifted > 0 {
		s.telemetry.RecordSweep("lift_suspensions", lifted)
		s.logger.Info("elapsed suspensions lifted", zap.Int("count", lifted))
	}
	return lifted, nil
}

// WarnExpiringPasswords mails every account whose credential expires inside
// the warning threshold. The ledger keeps it to at most one warning per
// account per expiry per day.
func (s *MaintenanceService) WarnExpiringPasswords(ctx context.Context) (int, error) {
	now := s.now()
	accounts, err := s.accounts.ListPasswordsExpiringBetween(ctx, now, now.Add(s.warningThreshold))
	if err != nil {
		return 0, fmt.Errorf("list expiring passwords: %w", err)
	}

	day := now.Truncate(24 * time.Hour)
	warned := 0
	for _, account := range accounts {
		first, err := s.ledger.MarkWarned(ctx, account.ID, account.PasswordExpiresAt, day)
		if err != nil {
			s.logger.Warn("mark password warning",
				zap.String("account_id", account.ID),
				zap.Error(err),
			)
			continue
		}
		if !first {
			continue
		}

		body := fmt.Sprintf(
			"Your password expires on %s.\r\n\r\nChange it before then to keep your access.",
			account.PasswordExpiresAt.UTC().Format(time.RFC1123),
		)
		if s.notifier != nil {
			if _, err := s.notifier.Notify(ctx, account.Email, "Password expiring soon", body); err != nil {
				s.telemetry.RecordNotification("failed")
				s.logger.Warn("send expiry warning",
					zap.String("recipient", logger.MaskEmail(account.Email)),
					zap.Error(err),
				)
				continue
			}
			s.telemetry.RecordNotification("sent")
		}
		warned++
	}

	if warned > 0 {
		s.telemetry.RecordSweep("warn_expiring_passwords", warned)
	}
	return warned, nil
}

// SuspendExpiredPasswords moves every account whose credential aged out into
// an indefinite suspension and notifies the holders.
func (s *MaintenanceService) SuspendExpiredPasswords(ctx context.Context) (int, error) {
	now := s.now()
	suspended, err := s.accounts.SuspendExpiredPasswords(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("suspend expired passwords: %w", err)
	}

	for _, account := range suspended {
		if s.events != nil {
			expired := domain.PasswordExpiredEvent{
				AccountID: account.ID,
				ExpiredAt: now,
			}
			if err := s.events.PublishPasswordExpired(ctx, expired); err != nil {
				s.logger.Warn("publish password expired", zap.Error(err))
			}
			change := domain.AccountStatusChangedEvent{
				AccountID:      account.ID,
				PreviousStatus: string(domain.AccountStatusActive),
				NewStatus:      string(domain.AccountStatusSuspended),
				Reason:         "password_expired",
				ChangedAt:      now,
			}
			if err := s.events.PublishAccountStatusChanged(ctx, change); err != nil {
				s.logger.Warn("publish status changed", zap.Error(err))
			}
		}

		if s.notifier != nil {
			body := "Your password expired and your account was suspended.\r\n\r\n" +
				"Contact an administrator to regain access."
			if _, err := s.notifier.Notify(ctx, account.Email, "Password expired", body); err != nil {
				s.logger.Warn("send expiry notice",
					zap.String("recipient", logger.MaskEmail(account.Email)),
					zap.Error(err),
				)
			}
		}
	}

	if len(suspended) > 0 {
		s.telemetry.RecordSweep("suspend_expired_passwords", len(suspended))
		s.logger.Info("expired passwords suspended", zap.Int("count", len(suspended)))
	}
	return len(suspended), nil
}
