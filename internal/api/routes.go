// Package api provides the HTTP API for the Sevara server.
package api

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/sevarahealth/sevara/internal/api/handlers"
	"github.com/sevarahealth/sevara/internal/api/middleware"
	"github.com/sevarahealth/sevara/internal/auth"
	"github.com/sevarahealth/sevara/internal/baa"
	"github.com/sevarahealth/sevara/internal/config"
	"github.com/sevarahealth/sevara/internal/db"
	"github.com/sevarahealth/sevara/internal/metrics"
)

// Config holds configuration for the API router.
type Config struct {
	// AllowedOrigins for CORS. Empty means all origins allowed in dev mode.
	AllowedOrigins []string
	// Environment controls the CORS policy for empty origins.
	Environment config.Environment
	// RateLimitRequests is the number of requests allowed per period on the
	// signature endpoints.
	RateLimitRequests int64
	// RateLimitPeriod is the rate limit window.
	RateLimitPeriod time.Duration
	// RedisURL shares rate limit state across instances when set.
	RedisURL string
}

// DefaultConfig returns a Config with sensible defaults for development.
func DefaultConfig() Config {
	return Config{
		AllowedOrigins:    []string{},
		Environment:       config.EnvDevelopment,
		RateLimitRequests: 30,
		RateLimitPeriod:   time.Minute,
	}
}

// Router wraps a Gin engine with configured middleware and routes.
type Router struct {
	Engine *gin.Engine
	logger zerolog.Logger
}

// NewRouter creates a new Router with the given dependencies.
func NewRouter(
	cfg Config,
	database *db.DB,
	engine *baa.Engine,
	sessions *auth.SessionStore,
	registry *prometheus.Registry,
	m *metrics.Metrics,
	logger zerolog.Logger,
) (*Router, error) {
	r := &Router{
		Engine: gin.New(),
		logger: logger.With().Str("component", "router").Logger(),
	}

	// Global middleware
	r.Engine.Use(gin.Recovery())
	r.Engine.Use(middleware.RequestLogger(logger))
	r.Engine.Use(middleware.CORS(cfg.AllowedOrigins, cfg.Environment))
	if m != nil {
		r.Engine.Use(middleware.RequestMetrics(m))
	}

	// Health check endpoints (no auth required)
	healthHandler := handlers.NewHealthHandler(database, logger)
	healthHandler.RegisterPublicRoutes(r.Engine)

	// Prometheus metrics endpoint (no auth required)
	if registry != nil {
		handlers.NewMetricsHandler(registry).RegisterPublicRoutes(r.Engine)
	}

	// Rate limiting on the mutating surface
	var rateLimiter gin.HandlerFunc
	if cfg.RedisURL != "" {
		var err error
		rateLimiter, err = middleware.NewRedisRateLimiter(cfg.RedisURL, cfg.RateLimitRequests, cfg.RateLimitPeriod)
		if err != nil {
			return nil, err
		}
	} else {
		rateLimiter = middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitPeriod)
	}

	// API v1 routes (auth required)
	apiV1 := r.Engine.Group("/api/v1")
	apiV1.Use(middleware.AuditTrail(database, logger))
	apiV1.Use(middleware.AuthMiddleware(sessions, logger))
	apiV1.Use(rateLimiter)

	handlers.NewAgreementsHandler(engine, m, logger).RegisterRoutes(apiV1)

	// Vendor admin routes
	admin := apiV1.Group("/admin")
	admin.Use(middleware.VendorAdminMiddleware(logger))
	handlers.NewAdminAgreementsHandler(engine, m, logger).RegisterRoutes(admin)

	return r, nil
}
