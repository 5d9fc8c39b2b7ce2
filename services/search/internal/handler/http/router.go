package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/horike37/serverless-application/pkg/health"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/services/search/internal/service"
)

// RouterConfig collects the dependencies of the search service router.
type RouterConfig struct {
	Search      *service.SearchService
	Health      *health.Handler
	Metrics     *middleware.HTTPMetrics
	Gatherer    prometheus.Gatherer
	CORS        middleware.CORSConfig
	ServiceName string
	Logger      *slog.Logger
}

// NewRouter creates a chi router with all search service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(chimw.Compress(5))
	r.Use(chimw.Timeout(30 * time.Second))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Handler)
	}

	// Health check endpoints
	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	searchHandler := NewSearchHandler(cfg.Search, logger)

	r.Route("/api/v1/search", func(r chi.Router) {
		r.With(middleware.CacheControl(60)).Get("/tags", searchHandler.SearchTags)
		r.Get("/users", searchHandler.SearchUsers)
	})

	return r
}
