package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/avralex/authgate/internal/infra/config"
	"github.com/avralex/authgate/internal/transport/http/handlers"
	"github.com/avralex/authgate/internal/transport/http/middleware"
	"github.com/avralex/authgate/internal/usecase"
)

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config      *config.AppConfig
	Logger      *zap.Logger
	Auth        *usecase.AuthService
	Sessions    *usecase.SessionManager
	RateLimiter *middleware.RateLimiter
	Metrics     *middleware.HTTPMetrics
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

	checks := make(map[string]handlers.ReadinessCheck, 2)
	if deps.Database != nil {
		checks["database"] = deps.Database.Ping
	}
	if deps.Cache != nil {
		checks["redis"] = deps.Cache.HealthCheck
	}

	healthHandler := handlers.NewHealthHandler(checks)
	r.GET("/healthz", healthHandler.Status)
	r.GET("/readyz", healthHandler.Ready)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	cookies := handlers.CookieSettings{
		Name:          deps.Config.Session.CookieName,
		Domain:        deps.Config.Session.CookieDomain,
		Secure:        deps.Config.Session.CookieSecure,
		TTL:           deps.Config.Session.TTL,
		PersistentTTL: deps.Config.Session.PersistentTTL,
	}
	authHandler := handlers.NewAuthHandler(deps.Auth, cookies, deps.Logger)
	requireSession := middleware.RequireSession(deps.Sessions, cookies.Name, deps.Logger)

	auth := r.Group("/auth")
	{
		registerHandlers := guarded(deps, "register", deps.Config.RateLimit.RegisterMaxAttempts, authHandler.Register)
		auth.POST("/register", registerHandlers...)

		loginHandlers := guarded(deps, "login", deps.Config.RateLimit.LoginMaxAttempts, authHandler.Login)
		auth.POST("/login", loginHandlers...)

		auth.POST("/logout", authHandler.Logout)
		auth.GET("/confirm-email", authHandler.ConfirmEmail)
		auth.GET("/me", requireSession, authHandler.Me)
		auth.GET("/admin-data", requireSession, middleware.RequireRole("Admin"), authHandler.AdminData)
	}

	return r
}

// guarded prefixes the handler with a sliding-window limit when a limiter is
// configured.
func guarded(deps Dependencies, name string, limit int, handler gin.HandlerFunc) []gin.HandlerFunc {
	if deps.RateLimiter == nil || limit <= 0 {
		return []gin.HandlerFunc{handler}
	}

	rule := middleware.RateLimitRule{
		Name:       name,
		Limit:      limit,
		Window:     deps.Config.RateLimit.WindowDuration,
		Identifier: middleware.ClientIPIdentifier(),
	}

	return []gin.HandlerFunc{deps.RateLimiter.RateLimit(rule), handler}
}
