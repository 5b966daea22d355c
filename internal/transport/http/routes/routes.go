package routes

import (
	"context"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/helmhq/identity-service/internal/core/domain"
	"github.com/helmhq/identity-service/internal/infra/config"
	"github.com/helmhq/identity-service/internal/transport/http/handlers"
	"github.com/helmhq/identity-service/internal/transport/http/middleware"
	"github.com/helmhq/identity-service/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Auth      *usecase.AuthService
	Sessions  *usecase.SessionService
	Passwords *usecase.PasswordService
	Recovery  *usecase.RecoveryService
	Lifecycle *usecase.LifecycleService
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
	Services    ServiceSet
	Database    DatabaseChecker
	Cache       CacheChecker
}

// DatabaseChecker exposes readiness behaviour for database connections.
type DatabaseChecker interface {
	Ping(ctx context.Context) error
}

// CacheChecker exposes readiness behaviour for cache backends.
type CacheChecker interface {
	HealthCheck(ctx context.Context) error
}

// tempPasswordAllowedRoutes lists what an account still holding a temporary
// credential may reach before completing the forced password change.
var tempPasswordAllowedRoutes = []string{
	"/api/v1/users/change-temp-password",
	"/api/v1/users/security-questions-list",
	"/api/v1/auth/logout",
	"/api/v1/auth/status",
}

// Register configures the Gin engine with routes and middleware.
func Register(deps Dependencies) *gin.Engine {
	if deps.Config.App.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.EnrichContext())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(deps.Logger))
	if deps.Metrics != nil {
		r.Use(deps.Metrics.Handler())
	}
	r.Use(middleware.CORS(deps.Config.App.AllowedOrigins))

	healthOptions := make([]handlers.HealthOption, 0, 2)

	if deps.Database != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("database", deps.Database.Ping))
	}

	if deps.Cache != nil {
		healthOptions = append(healthOptions, handlers.WithReadinessCheck("redis", deps.Cache.HealthCheck))
	}

	healthHandler := handlers.NewHealthHandler(healthOptions...)

	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Readiness)

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	if deps.Services.Auth == nil {
		return r
	}

	sessionAuth := middleware.RequireSession(deps.Services.Sessions, deps.Services.Lifecycle)
	tempGate := middleware.TempPasswordGate(tempPasswordAllowedRoutes...)

	api := r.Group("/api/v1")
	{
		authGroup := api.Group("/auth")

		authHandler := handlers.NewAuthHandler(deps.Services.Auth, deps.Services.Sessions)
		authHandler.RegisterRoutes(authGroup, sessionAuth, buildLoginMiddlewares(deps)...)

		userGroup := api.Group("/users")

		registrationHandler := handlers.NewRegistrationHandler(deps.Services.Lifecycle)
		registrationHandler.RegisterRoutes(userGroup)

		passwordHandler := handlers.NewPasswordHandler(deps.Services.Passwords, deps.Services.Recovery)
		passwordHandler.RegisterPublicRoutes(userGroup, buildResetMiddlewares(deps)...)

		authedUsers := userGroup.Group("")
		authedUsers.Use(sessionAuth, tempGate)
		passwordHandler.RegisterAuthedRoutes(authedUsers)

		adminGroup := api.Group("/admin")
		adminGroup.Use(sessionAuth, tempGate, middleware.RequireRole(domain.RoleAdministrator))
		adminHandler := handlers.NewAdminHandler(deps.Services.Lifecycle, deps.Services.Sessions)
		adminHandler.RegisterRoutes(adminGroup)
	}

	return r
}

func buildLoginMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.LoginMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Minute
	}

	rule := middleware.RateLimitRule{
		Name:       "auth_login_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}

func buildResetMiddlewares(deps Dependencies) []gin.HandlerFunc {
	if deps.RateLimiter == nil || deps.Config == nil {
		return nil
	}

	limit := deps.Config.RateLimit.ResetMaxAttempts
	if limit <= 0 {
		return nil
	}

	window := deps.Config.RateLimit.WindowDuration
	if window <= 0 {
		window = time.Hour
	}

	rule := middleware.RateLimitRule{
		Name:       "password_reset_ip",
		Limit:      limit,
		Window:     window,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule)}
}
