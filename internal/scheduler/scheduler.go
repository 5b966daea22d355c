package scheduler

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/infra/config"
	"github.com/helmhq/identity-service/internal/usecase"
)

// Scheduler drives the maintenance sweeps on three cron bands: a frequent
// session sweep, an hourly password sweep and a daily suspension review.
// Each band skips its tick when the previous run is still going.
type Scheduler struct {
	cron        *cron.Cron
	maintenance *usecase.MaintenanceService
	cfg         config.SchedulerSettings
	logger      *zap.Logger
}

// New constructs a Scheduler over the maintenance service.
func New(maintenance *usecase.MaintenanceService, cfg config.SchedulerSettings, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		cron:        cron.New(),
		maintenance: maintenance,
		cfg:         cfg,
		logger:      log,
	}
}

// Start registers the bands and begins ticking.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.cfg.Enabled {
		s.logger.Info("scheduler disabled")
		return nil
	}

	bands := []struct {
		name string
		spec string
		run  func(context.Context) error
	}{
		{"expire_sessions", s.cfg.SessionSweep, s.expireSessions},
		{"password_sweep", s.cfg.PasswordSweep, s.passwordSweep},
		{"lift_suspensions", s.cfg.LedgerSweep, s.liftSuspensions},
	}

	for _, band := range bands {
		band := band
		var running atomic.Bool
		if _, err := s.cron.AddFunc(band.spec, func() {
			if !running.CompareAndSwap(false, true) {
				s.logger.Warn("sweep still running, skipping tick", zap.String("band", band.name))
				return
			}
			defer running.Store(false)

			started := time.Now()
			if err := band.run(ctx); err != nil {
				s.logger.Error("sweep failed",
					zap.String("band", band.name),
					zap.Error(err),
				)
				return
			}
			s.logger.Debug("sweep finished",
				zap.String("band", band.name),
				zap.Duration("took", time.Since(started)),
			)
		}); err != nil {
			return err
		}
	}

	s.cron.Start()
	s.logger.Info("scheduler started",
		zap.String("session_sweep", s.cfg.SessionSweep),
		zap.String("password_sweep", s.cfg.PasswordSweep),
		zap.String("ledger_sweep", s.cfg.LedgerSweep),
	)
	return nil
}

// Stop halts the bands and waits briefly for in-flight runs.
func (s *Scheduler) Stop() {
	done := s.cron.Stop().Done()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		s.logger.Warn("scheduler stop timed out")
	}
}

func (s *Scheduler) expireSessions(ctx context.Context) error {
	_, err := s.maintenance.ExpireSessions(ctx)
	return err
}

// passwordSweep warns first so accounts expiring right now still get their
// final notice before the suspension lands.
func (s *Scheduler) passwordSweep(ctx context.Context) error {
	if _, err := s.maintenance.WarnExpiringPasswords(ctx); err != nil {
		return err
	}
	_, err := s.maintenance.SuspendExpiredPasswords(ctx)
	return err
}

func (s *Scheduler) liftSuspensions(ctx context.Context) error {
	_, err := s.maintenance.LiftSuspensions(ctx)
	return err
}
