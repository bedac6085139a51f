package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/avralex/authgate/internal/core/port"
	"github.com/avralex/authgate/internal/infra/config"
	"github.com/avralex/authgate/internal/infra/database"
	kafkainfra "github.com/avralex/authgate/internal/infra/kafka"
	"github.com/avralex/authgate/internal/infra/logger"
	"github.com/avralex/authgate/internal/infra/mailer"
	redisinfra "github.com/avralex/authgate/internal/infra/redis"
	"github.com/avralex/authgate/internal/infra/security"
	postgresrepo "github.com/avralex/authgate/internal/repository/postgres"
	redisrepo "github.com/avralex/authgate/internal/repository/redis"
	"github.com/avralex/authgate/internal/transport/http/middleware"
	"github.com/avralex/authgate/internal/transport/http/routes"
	"github.com/avralex/authgate/internal/usecase"
)

// Application wires infrastructure, use cases, and transport together.
type Application struct {
	cfg      *config.AppConfig
	engine   *gin.Engine
	logger   *zap.Logger
	pool     *pgxpool.Pool
	redis    *redisinfra.Client
	issuer   *usecase.TokenIssuer
	sessions *usecase.SessionManager
}

// New builds the application from configuration.
func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	argonCfg := security.Argon2Config{
		Memory:      cfg.Argon2.Memory,
		Iterations:  cfg.Argon2.Iterations,
		Parallelism: cfg.Argon2.Parallelism,
		SaltLength:  cfg.Argon2.SaltLength,
		KeyLength:   cfg.Argon2.KeyLength,
	}
	if err := security.ConfigureArgon2(argonCfg); err != nil {
		return nil, fmt.Errorf("configure argon2: %w", err)
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

	repos := postgresrepo.NewRepositories(pool)

	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		producer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(producer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	rateLimitWindow := cfg.RateLimit.WindowDuration
	if rateLimitWindow <= 0 {
		rateLimitWindow = time.Minute
	}
	rateLimitStore := redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.SlidingWindowConfig{
		KeyPrefix: "authgate:rate-limit",
		TTL:       rateLimitWindow * 2,
	})
	rateLimiter := middleware.NewRateLimiter(rateLimitStore, log)

	metrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	lockout := usecase.NewLockoutPolicy(repos.Users, cfg.Lockout.Threshold, cfg.Lockout.Duration)
	issuer := usecase.NewTokenIssuer(repos.Tokens, cfg.Tokens.ConfirmationTTL)
	sessions := usecase.NewSessionManager(repos.Sessions, cfg.Session.TTL, cfg.Session.PersistentTTL, log)
	dispatcher := mailer.NewLoggingDispatcher(log, cfg.Mail.FromAddress)

	authService, err := usecase.NewAuthService(
		repos.Users,
		lockout,
		issuer,
		sessions,
		security.DefaultPasswordValidator(),
		dispatcher,
		eventPublisher,
		log,
		cfg.App.BaseURL,
	)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init auth service: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:      cfg,
		Logger:      log,
		Auth:        authService,
		Sessions:    sessions,
		RateLimiter: rateLimiter,
		Metrics:     metrics,
		Database:    pool,
		Cache:       redisClient,
	})

	return &Application{
		cfg:      cfg,
		engine:   engine,
		logger:   log,
		pool:     pool,
		redis:    redisClient,
		issuer:   issuer,
		sessions: sessions,
	}, nil
}

// Run serves HTTP until the context is cancelled, then shuts down gracefully.
func (a *Application) Run(ctx context.Context) error {
	defer func() {
		_ = a.logger.Sync()
	}()
	defer a.pool.Close()
	defer func() {
		_ = a.redis.Close()
	}()

	sweepCtx, stopSweep := context.WithCancel(ctx)
	defer stopSweep()
	go a.sweepLoop(sweepCtx)

	srv := &http.Server{
		Addr:              fmt.Sprintf("%s:%d", a.cfg.App.Host, a.cfg.App.Port),
		Handler:           a.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	a.logger.Info("starting auth API",
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

// sweepLoop periodically removes expired sessions and confirmation tokens.
// Expired rows are already invisible to validation; the sweep only keeps the
// tables from growing without bound.
func (a *Application) sweepLoop(ctx context.Context) {
	interval := a.cfg.Session.SweepInterval
	if interval <= 0 {
		interval = time.Hour
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sessionsDeleted, err := a.sessions.SweepExpired(ctx)
			if err != nil {
				a.logger.Warn("session sweep failed", zap.Error(err))
			}
			tokensDeleted, err := a.issuer.SweepExpired(ctx)
			if err != nil {
				a.logger.Warn("token sweep failed", zap.Error(err))
			}
			if sessionsDeleted > 0 || tokensDeleted > 0 {
				a.logger.Info("swept expired records",
					zap.Int64("sessions", sessionsDeleted),
					zap.Int64("tokens", tokensDeleted))
			}
		}
	}
}
