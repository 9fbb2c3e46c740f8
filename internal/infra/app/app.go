package app

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/core/port"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/config"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/database"
	kafkainfra "github.com/DFE-Digital/get-an-identity-sub003/internal/infra/kafka"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/logger"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/lookup"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/notify"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/protocol"
	redisinfra "github.com/DFE-Digital/get-an-identity-sub003/internal/infra/redis"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/security"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/telemetry"
	postgresrepo "github.com/DFE-Digital/get-an-identity-sub003/internal/repository/postgres"
	redisrepo "github.com/DFE-Digital/get-an-identity-sub003/internal/repository/redis"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/transport/http/middleware"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/transport/http/routes"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/usecase"
)

type Application struct {
	cfg    *config.AppConfig
	engine *gin.Engine
	logger *zap.Logger
	pool   *pgxpool.Pool
	redis  *redisinfra.Client
}

func New(ctx context.Context, cfg *config.AppConfig) (*Application, error) {
	log, err := logger.New(cfg.App.Env)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	if _, err := telemetry.Attach(ctx, cfg); err != nil {
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

	repos := postgresrepo.NewRepositories(pool)

	// Initialize Kafka event publisher
	var eventPublisher port.EventPublisher
	if len(cfg.Kafka.Brokers) > 0 {
		kafkaProducer, err := kafkainfra.NewProducer(cfg.Kafka, log)
		if err != nil {
			log.Warn("failed to init kafka producer, using stub publisher", zap.Error(err))
			eventPublisher = kafkainfra.NewStubPublisher(log)
		} else {
			eventPublisher = kafkainfra.NewEventPublisher(kafkaProducer, cfg.App, log)
			log.Info("kafka event publisher initialized", zap.Strings("brokers", cfg.Kafka.Brokers))
		}
	} else {
		log.Info("kafka brokers not configured, using stub publisher")
		eventPublisher = kafkainfra.NewStubPublisher(log)
	}

	var rateLimitStore port.RateLimitStore
	if cfg.RateLimit.Enabled {
		rateLimitStore = redisrepo.NewRateLimitRepository(redisClient.Client(), redisrepo.CounterConfig{
			KeyPrefix:         cfg.RateLimit.KeyPrefix,
			Window:            cfg.RateLimit.WindowDuration,
			IssueMaxAttempts:  cfg.RateLimit.IssueMaxAttempts,
			VerifyMaxAttempts: cfg.RateLimit.VerifyMaxAttempts,
		})
	} else {
		log.Warn("rate limiting disabled, every client is unlimited")
		rateLimitStore = port.UnlimitedRateLimitStore{}
	}

	cookieCodec, err := security.NewJourneyCookieCodec(cfg.Journey.CookieSigningKey, cfg.Journey.CookieTTL)
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init journey cookie codec: %w", err)
	}

	protocolKey := cfg.Protocol.SigningKey
	if protocolKey == "" {
		protocolKey = cfg.Journey.CookieSigningKey
	}
	protocolEngine := protocol.NewDevEngine(protocolKey, cfg.Protocol.Issuer, log)

	registrationLookup := lookup.NewStaticRegistrationLookup(nil, log)
	notifier := notify.NewLoggingNotifier(log)

	verificationService := usecase.NewVerificationService(cfg, repos.Codes, rateLimitStore, notifier, eventPublisher, log)
	journeyService := usecase.NewJourneyService(cfg, registrationLookup, protocolEngine, eventPublisher, log)
	decisionEngine := usecase.NewDecisionEngine("/oauth2/authorize", cfg.Journey.QueryParam)

	storeFactory := func() port.JourneyStore {
		ephemeral := usecase.NewEphemeralJourneyStore(log)
		durable := usecase.NewDurableJourneyStore(repos.Journeys, cookieCodec, cfg.Journey.AllowListCookieName, log)
		return usecase.NewFallbackJourneyStore(ephemeral, durable)
	}
	scopeBuilder := middleware.NewSessionScopeBuilder(
		redisClient.Client(),
		cfg.Redis.SessionPrefix,
		cfg.Redis.SessionTTL,
		cfg.Journey.SessionCookieName,
	)
	journeyCorrelation := middleware.NewJourneyCorrelation(storeFactory, scopeBuilder, repos.Snapshots, cfg.Journey.QueryParam, log)

	httpMetrics, err := middleware.NewHTTPMetrics(middleware.HTTPMetricsOptions{})
	if err != nil {
		_ = redisClient.Close()
		pool.Close()
		return nil, fmt.Errorf("init http metrics: %w", err)
	}

	engine := routes.Register(routes.Dependencies{
		Config:   cfg,
		Logger:   log,
		Journeys: journeyCorrelation,
		Metrics:  httpMetrics,
		Database: pool,
		Cache:    redisClient,
		Services: routes.ServiceSet{
			Journeys:      journeyService,
			Verifications: verificationService,
			Decisions:     decisionEngine,
		},
	})

	return &Application{
		cfg:    cfg,
		engine: engine,
		logger: log,
		pool:   pool,
		redis:  redisClient,
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
