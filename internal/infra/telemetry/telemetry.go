package telemetry

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/helmhq/identity-service/internal/infra/config"
)

// Provider represents a telemetry provider handle.
type Provider struct {
	loginCounter    *prometheus.CounterVec
	lockoutCounter  prometheus.Counter
	sweepCounter    *prometheus.CounterVec
	notifyCounter   *prometheus.CounterVec
	sessionsCounter *prometheus.CounterVec
}

// Attach configures telemetry collectors and returns a provider handle.
func Attach(_ context.Context, cfg *config.AppConfig) (*Provider, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is nil")
	}

	return &Provider{
		loginCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helm",
			Subsystem: "identity",
			Name:      "logins_total",
			Help:      "Login attempts by outcome",
		}, []string{"outcome"}),
		lockoutCounter: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "helm",
			Subsystem: "identity",
			Name:      "lockouts_total",
			Help:      "Accounts locked out after repeated failed logins",
		}),
		sweepCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helm",
			Subsystem: "identity",
			Name:      "maintenance_actions_total",
			Help:      "Rows affected by maintenance sweeps",
		}, []string{"sweep"}),
		notifyCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helm",
			Subsystem: "identity",
			Name:      "notifications_total",
			Help:      "Outbound notifications by outcome",
		}, []string{"outcome"}),
		sessionsCounter: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "helm",
			Subsystem: "identity",
			Name:      "sessions_total",
			Help:      "Session lifecycle events",
		}, []string{"action"}),
	}, nil
}

// RecordLogin counts a login attempt by outcome.
func (p *Provider) RecordLogin(outcome string) {
	if p == nil {
		return
	}
	p.loginCounter.WithLabelValues(outcome).Inc()
}

// RecordLockout counts a triggered lockout.
func (p *Provider) RecordLockout() {
	if p == nil {
		return
	}
	p.lockoutCounter.Inc()
}

// RecordSweep counts rows affected by a maintenance sweep.
func (p *Provider) RecordSweep(sweep string, affected int) {
	if p == nil || affected <= 0 {
		return
	}
	p.sweepCounter.WithLabelValues(sweep).Add(float64(affected))
}

// RecordNotification counts an outbound notification attempt.
func (p *Provider) RecordNotification(outcome string) {
	if p == nil {
		return
	}
	p.notifyCounter.WithLabelValues(outcome).Inc()
}

// RecordSession counts a session lifecycle action.
func (p *Provider) RecordSession(action string) {
	if p == nil {
		return
	}
	p.sessionsCounter.WithLabelValues(action).Inc()
}
