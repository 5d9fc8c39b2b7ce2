package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/horike37/serverless-application/pkg/health"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/verification"
	"github.com/horike37/serverless-application/services/user/internal/service"
)

// RouterConfig collects the dependencies of the user service router.
type RouterConfig struct {
	Federation     *service.FederationService
	Users          *service.UserService
	TokenValidator middleware.TokenValidator
	Gate           verification.Gate
	Health         *health.Handler
	Metrics        *middleware.HTTPMetrics
	Gatherer       prometheus.Gatherer
	CORS           middleware.CORSConfig
	ServiceName    string
	Logger         *slog.Logger
}

// NewRouter creates a chi router with all user service routes registered.
func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()
	logger := cfg.Logger

	// Global middleware
	r.Use(middleware.CORS(cfg.CORS))
	r.Use(middleware.Recovery(logger))
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

	loginHandler := NewLoginHandler(cfg.Federation, logger)
	userHandler := NewUserHandler(cfg.Users, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.ContentTypeJSON)

		// Public endpoints
		r.Get("/login/{provider}/authorization_url", loginHandler.AuthorizationURL)
		r.Post("/login/{provider}", loginHandler.Login)
		r.Get("/users/{user_id}/availability", userHandler.Availability)
		r.Get("/users/{user_id}/info", userHandler.Info)

		// Authenticated endpoints
		r.Group(func(r chi.Router) {
			r.Use(middleware.Auth(cfg.TokenValidator, logger))

			r.Put("/me/phone_number", userHandler.UpdatePhoneNumber)
			r.Delete("/me/phone_number", userHandler.DeletePhoneNumber)

			r.With(middleware.RequireVerified(cfg.Gate, logger)).Put("/me/info", userHandler.UpdateInfo)
		})
	})

	return r
}
