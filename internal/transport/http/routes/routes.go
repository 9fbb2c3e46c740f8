package routes

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/DFE-Digital/get-an-identity-sub003/internal/infra/config"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/transport/http/handlers"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/transport/http/middleware"
	"github.com/DFE-Digital/get-an-identity-sub003/internal/usecase"
)

// ServiceSet groups the services the HTTP layer depends on.
type ServiceSet struct {
	Journeys      *usecase.JourneyService
	Verifications *usecase.VerificationService
	Decisions     *usecase.DecisionEngine
}

// Dependencies encapsulates the objects required to register routes.
type Dependencies struct {
	Config   *config.AppConfig
	Logger   *zap.Logger
	Services ServiceSet
	// Journeys is the correlation middleware; nil skips journey handling,
	// used by tests that only exercise the plumbing routes.
	Journeys *middleware.JourneyCorrelation
	Metrics  *middleware.HTTPMetrics
	Database DatabaseChecker
	Cache    CacheChecker
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

	if origins := deps.Config.App.CORSAllowedOrigins; len(origins) > 0 {
		r.Use(middleware.CORS(origins))
	}

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

	if deps.Journeys == nil {
		return r
	}

	correlated := r.Group("/", deps.Journeys.Handle())

	authorizeHandler := handlers.NewAuthorizeHandler(deps.Services.Journeys, deps.Services.Decisions, deps.Logger)
	correlated.GET("/oauth2/authorize", authorizeHandler.Authorize)

	signIn := correlated.Group("/sign-in")
	{
		verificationHandler := handlers.NewVerificationHandler(deps.Config, deps.Services.Verifications, deps.Services.Decisions, deps.Logger)
		signIn.POST("/email", verificationHandler.SubmitEmail)
		signIn.POST("/email/confirm", verificationHandler.ConfirmEmail)

		stepHandler := handlers.NewJourneyStepHandler(deps.Services.Journeys, deps.Services.Decisions, deps.Logger)
		signIn.POST("/registration-number", stepHandler.SubmitRegistrationNumber)
		signIn.POST("/confirm", stepHandler.Confirm)
	}

	return r
}
