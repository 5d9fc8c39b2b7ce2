package http

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/horike37/serverless-application/pkg/health"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/verification"
	"github.com/horike37/serverless-application/services/article/internal/service"
)

// RouterConfig collects the dependencies of the article service router.
type RouterConfig struct {
	Articles       *service.ArticleService
	TokenValidator middleware.TokenValidator
	Gate           verification.Gate
	Health         *health.Handler
	Metrics        *middleware.HTTPMetrics
	Gatherer       prometheus.Gatherer
	CORS           middleware.CORSConfig
	ServiceName    string
	Logger         *slog.Logger

	// PopularMaxAge defaults to 60s.
	PopularMaxAge time.Duration
}

// NewRouter creates a chi router with all article service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.Tracing(cfg.ServiceName))
	r.Use(middleware.RequestLogging(logger))
	if cfg.Metrics != nil {
		r.Use(cfg.Metrics.Handler)
	}

	r.Get("/health/live", cfg.Health.LivenessHandler())
	r.Get("/health/ready", cfg.Health.ReadinessHandler())
	if cfg.Gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	}

	articleHandler := NewArticleHandler(cfg.Articles, logger)
	maxAge := cfg.PopularMaxAge
	if maxAge == 0 {
		maxAge = 60 * time.Second
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		r.With(middleware.CacheControl(int(maxAge.Seconds()))).Get("/articles/popular", articleHandler.ListPopular)

		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.TokenValidator, logger))
			r.Use(middleware.RequireVerified(cfg.Gate, logger))

			r.Put("/me/articles/{article_id}/drafts", articleHandler.UpdateDraft)
		})
	})

	return r
}
