package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/horike37/serverless-application/pkg/database"
	"github.com/horike37/serverless-application/pkg/health"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/tracing"
	"github.com/horike37/serverless-application/pkg/verification"
	"github.com/horike37/serverless-application/services/article/internal/config"
	handler "github.com/horike37/serverless-application/services/article/internal/handler/http"
	"github.com/horike37/serverless-application/services/article/internal/repository/postgres"
	"github.com/horike37/serverless-application/services/article/internal/sanitize"
	"github.com/horike37/serverless-application/services/article/internal/service"
	"github.com/horike37/serverless-application/services/article/migrations"
)

const serviceName = "article"

// App wires together all dependencies and runs the article service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	pool, err := database.NewPostgresPool(ctx, &cfg.Postgres, logger)
	if err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	logger.Info("connected to PostgreSQL",
		slog.String("host", cfg.Postgres.Host),
		slog.Int("port", cfg.Postgres.Port),
		slog.String("database", cfg.Postgres.DBName),
	)
	if err := database.RegisterPoolMetrics(prometheus.DefaultRegisterer, pool, serviceName); err != nil {
		pool.Close()
		return nil, fmt.Errorf("register pool metrics: %w", err)
	}

	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	articleRepo := postgres.NewArticleRepository(pool)
	articleService := service.NewArticleService(articleRepo, sanitize.New(), logger)

	tokenValidator := middleware.NewOIDCValidator(context.Background(), cfg.CognitoIssuer(), cfg.CognitoUserPoolAppID)

	gate := verification.Gate{AllowLegacySessions: cfg.AllowUnverifiedLegacySessions}
	if gate.AllowLegacySessions {
		logger.Warn("sessions without verification claims pass the verification gate",
			slog.String("setting", "ALLOW_UNVERIFIED_LEGACY_SESSIONS"),
		)
	}

	healthHandler := health.NewHandler(serviceName)
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})

	httpMetrics, err := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer, serviceName)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Articles:       articleService,
		TokenValidator: tokenValidator,
		Gate:           gate,
		Health:         healthHandler,
		Metrics:        httpMetrics,
		Gatherer:       prometheus.DefaultGatherer,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		ServiceName:   serviceName,
		Logger:        logger,
		PopularMaxAge: cfg.PopularCacheMaxAge,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTPPort),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
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

// Shutdown stops the HTTP server, flushes the tracer and closes the pool.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
