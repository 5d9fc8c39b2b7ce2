package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/horike37/serverless-application/pkg/health"
	pkgmiddleware "github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/tracing"
	"github.com/horike37/serverless-application/services/gateway/internal/config"
	"github.com/horike37/serverless-application/services/gateway/internal/handler"
	gwmiddleware "github.com/horike37/serverless-application/services/gateway/internal/middleware"
	"github.com/horike37/serverless-application/services/gateway/internal/proxy"
)

const serviceName = "gateway"

// App wires together all dependencies and runs the API gateway.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	rateLimiter    *gwmiddleware.RateLimiter
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates the gateway. It holds no stores of its own; readiness
// reports whether each upstream service accepts connections.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	sp, err := proxy.NewServiceProxy(cfg.ServiceURLs(), proxy.TransportConfig{
		DialTimeout:     cfg.ProxyDialTimeout,
		ResponseTimeout: cfg.ProxyResponseTimeout,
		IdleTimeout:     cfg.ProxyIdleTimeout,
		MaxIdleConns:    cfg.ProxyMaxIdleConns,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("init service proxy: %w", err)
	}

	healthHandler := health.NewHandler(serviceName)
	for _, name := range sp.Services() {
		healthHandler.RegisterNonCritical(name, func(ctx context.Context) error {
			return sp.Reachable(ctx, name)
		})
	}

	var authorizer pkgmiddleware.TokenValidator
	if cfg.AuthorizerEnabled {
		authorizer = pkgmiddleware.NewOIDCValidator(context.Background(), cfg.CognitoIssuer(), cfg.CognitoUserPoolAppID)
	} else {
		logger.Warn("gateway authorizer disabled, /api/v1/me relies on the services' own token checks")
	}

	httpMetrics, err := pkgmiddleware.NewHTTPMetrics(prometheus.DefaultRegisterer, serviceName)
	if err != nil {
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	rateLimiter := gwmiddleware.NewRateLimiter(cfg.RateLimitRPS, cfg.RateLimitBurst, cfg.RateLimitClientTTL, logger)

	router := handler.NewRouter(handler.RouterConfig{
		Proxy:               sp,
		RateLimit:           rateLimiter.Handler,
		Authorizer:          authorizer,
		Health:              healthHandler,
		Metrics:             httpMetrics,
		Gatherer:            prometheus.DefaultGatherer,
		MetricsAllowedCIDRs: cfg.MetricsAllowedCIDRs,
		CORS: pkgmiddleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		Logger: logger,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      35 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		rateLimiter:    rateLimiter,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and blocks until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		a.logger.Info("starting HTTP server",
			slog.String("addr", a.httpServer.Addr),
		)
		if err := a.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		a.logger.Info("shutdown signal received")
	case err := <-errCh:
		return err
	}

	return a.Shutdown()
}

// Shutdown drains the HTTP server, stops the rate limiter sweep, then
// flushes the tracer.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.rateLimiter.Stop()

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
