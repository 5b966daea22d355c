package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/port"
	"github.com/helmhq/identity-service/internal/infra/config"
	"github.com/helmhq/identity-service/internal/infra/database"
	kafkainfra "github.com/helmhq/identity-service/internal/infra/kafka"
	"github.com/helmhq/identity-service/internal/infra/logger"
	"github.com/helmhq/identity-service/internal/infra/mail"
	redisinfra "github.com/helmhq/identity-service/internal/infra/redis"
	"github.com/helmhq/identity-service/internal/infra/security"
	"github.com/helmhq/identity-service/internal/infra/telemetry"
	postgresrepo "github.com/helmhq/identity-service/internal/repository/postgres"
	redisrepo "github.com/helmhq/identity-service/internal/repository/redis"
	"github.com/helmhq/identity-service/internal/scheduler"
	"github.com/helmhq/identity-service/internal/transport/http/middleware"
	"github.com/helmhq/identity-service/internal/transport/http/routes"
	"github.com/helmhq/identity-service/internal/usecase"
)

type Application struct {
	cfg       *config.AppConfig
	engine    *gin.Engine
	logger    *zap.Logger
	pool      *pgxpool.Pool
	redis     *redisinfra.Client
	scheduler *scheduler.Scheduler
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	metrics, err := telemetry.Attach(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("init telemetry: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, cfg.Postgres, log)
	if err != nil {
		return nil, fmt.Errorf("init postgres: %w", err)
	}

	redisClient, err := redisinfra.NewClient(cfg.Redis, log)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("init redis: %w", err)
	}

	signer, err := security.NewSessionTokenSigner(cfg.Security.SessionSecret)
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init session token signer: %w", err)
	}

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if cfg.Kafka.Enabled && len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka disabled, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var notifier port.Notifier
	if cfg.SMTP.Enabled {
		notifier = mail.NewMailer(cfg.SMTP, log)
	} else {
		log.Info("smtp disabled, using stub notifier")
		notifier = mail.NewStubNotifier(log)
	}

	warningLedger := redisrepo.NewWarningLedger(redisClient.Client(), cfg.Redis.WarningPrefix)

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "helm:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	passwordService := usecase.NewPasswordService(repos.Accounts, eventPublisher, log)
	passwordService.WithTTLs(cfg.Security.PasswordExpiry, cfg.Security.TempPasswordExpiry)
	passwordService.WithHistoryLimit(cfg.Security.PasswordHistoryLimit)

	sessionService := usecase.NewSessionService(repos.Accounts, repos.Sessions, eventPublisher, signer, metrics, log)
	sessionService.WithTTL(cfg.Security.SessionTTL)

	authService := usecase.NewAuthService(repos.Accounts, sessionService, eventPublisher, metrics, log)
	authService.WithLockoutThreshold(cfg.Security.LockoutThreshold)

	recoveryService := usecase.NewRecoveryService(repos.Accounts, eventPublisher, notifier, passwordService, cfg.App.BaseURL, log)
	recoveryService.WithResetTTL(cfg.Security.ResetTokenTTL)

	lifecycleService := usecase.NewLifecycleService(repos.Accounts, eventPublisher, notifier, passwordService, log)

	maintenanceService := usecase.NewMaintenanceService(repos.Accounts, repos.Sessions, warningLedger, notifier, eventPublisher, metrics, log)
	maintenanceService.WithWarningThreshold(cfg.Security.WarningThreshold)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		pool.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		RateLimiter: rateLimiter,
		Metrics:     httpMetrics,
		Database:    pool,
		Cache:       redisClient,
		Services: routes.ServiceSet{
			Auth:      authService,
			Sessions:  sessionService,
			Passwords: passwordService,
			Recovery:  recoveryService,
			Lifecycle: lifecycleService,
		},
	})

	return &Application{
		cfg:       cfg,
		engine:    engine,
		logger:    log,
		pool:      pool,
		redis:     redisClient,
		scheduler: scheduler.New(maintenanceService, cfg.Scheduler, log),
	}, nil
}

func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer func() {
		if a.pool != nil {
			a.pool.Close()
		}
	}()
	defer func() {
		if a.redis != nil {
			_ = a.redis.Close()
		}
	}()

	if a.scheduler != nil {
		if err := a.scheduler.Start(ctx); err != nil {
			return fmt.Errorf("start scheduler: %w", err)
		}
		defer a.scheduler.Stop()
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting identity API",
		zap.String("env", a.cfg.App.Env),
		zap.String("address", srv.Addr),
	)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrCh <- fmt.Errorf("run server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown server: %w", err)
		}
		return nil
	case err := <-serverErrCh:
		return err
	}
}
