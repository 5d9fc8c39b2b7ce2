package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/horike37/serverless-application/pkg/database"
	"github.com/horike37/serverless-application/pkg/health"
	pkgkafka "github.com/horike37/serverless-application/pkg/kafka"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/tracing"
	"github.com/horike37/serverless-application/services/search/internal/config"
	"github.com/horike37/serverless-application/services/search/internal/engine"
	esengine "github.com/horike37/serverless-application/services/search/internal/engine/elasticsearch"
	"github.com/horike37/serverless-application/services/search/internal/engine/memory"
	"github.com/horike37/serverless-application/services/search/internal/event"
	handler "github.com/horike37/serverless-application/services/search/internal/handler/http"
	"github.com/horike37/serverless-application/services/search/internal/service"
)

const serviceName = "search"

// App wires together all dependencies and runs the search service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	redis          *redis.Client
	consumers      []*pkgkafka.Consumer
	dlq            *pkgkafka.DLQProducer
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

	// Initialize search engine based on configuration.
	var eng engine.SearchEngine
	var esEng *esengine.Engine
	switch cfg.SearchEngine {
	case config.EngineElasticsearch:
		esEng, err = esengine.New(ctx, esengine.Config{
			URL:       cfg.ElasticsearchURL,
			TagIndex:  cfg.ElasticsearchTagIndex,
			UserIndex: cfg.ElasticsearchUserIndex,
		}, logger)
		if err != nil {
			return nil, fmt.Errorf("init elasticsearch engine: %w", err)
		}
		eng = esEng
		logger.Info("elasticsearch search engine initialized",
			slog.String("url", cfg.ElasticsearchURL),
			slog.String("tag_index", cfg.ElasticsearchTagIndex),
			slog.String("user_index", cfg.ElasticsearchUserIndex),
		)
	default:
		eng = memory.New()
		logger.Warn("in-memory search engine initialized, indexes are lost on restart")
	}

	redisClient, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr()))

	searchService := service.NewSearchService(eng, logger)

	// One consumer per profile topic. Redelivered events are skipped by id
	// and events that keep failing are parked on the dead-letter topic.
	eventConsumer := event.NewConsumer(searchService, logger)
	dedupe := pkgkafka.NewRedisIdempotencyStore(redisClient, "search:events:", cfg.EventDedupeTTL)
	dlq := pkgkafka.NewDLQProducer(cfg.KafkaBrokers, logger)

	var consumers []*pkgkafka.Consumer
	for _, topic := range event.Topics() {
		consumerCfg := pkgkafka.ConsumerConfig{
			Brokers:  cfg.KafkaBrokers,
			GroupID:  cfg.ConsumerGroup,
			Topic:    topic,
			MinBytes: 1,
			MaxBytes: 10e6, // 10 MB
		}
		h := pkgkafka.IdempotentHandler(dedupe, topic, eventConsumer.Handle, logger)
		consumers = append(consumers, pkgkafka.NewConsumer(consumerCfg, h, logger).WithDLQ(dlq))
	}
	logger.Info("kafka consumers initialized",
		slog.Any("brokers", cfg.KafkaBrokers),
		slog.Int("topic_count", len(consumers)),
	)

	// Health checks.
	healthHandler := health.NewHandler(serviceName)
	if esEng != nil {
		healthHandler.RegisterCritical("elasticsearch", esEng.Ping)
	}
	healthHandler.RegisterNonCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return pkgkafka.PingBrokers(ctx, cfg.KafkaBrokers)
	})

	httpMetrics, err := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer, serviceName)
	if err != nil {
		_ = dlq.Close()
		_ = redisClient.Close()
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	router := handler.NewRouter(handler.RouterConfig{
		Search:   searchService,
		Health:   healthHandler,
		Metrics:  httpMetrics,
		Gatherer: prometheus.DefaultGatherer,
		CORS: middleware.CORSConfig{
			AllowedOrigins: cfg.CORSAllowedOrigins,
			Environment:    cfg.Environment,
		},
		ServiceName: serviceName,
		Logger:      logger,
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
		redis:          redisClient,
		consumers:      consumers,
		dlq:            dlq,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

// Run starts the HTTP server and Kafka consumers, blocking until the context is canceled.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1+len(a.consumers))

	for _, c := range a.consumers {
		go func() {
			if err := c.Start(ctx); err != nil {
				errCh <- fmt.Errorf("kafka consumer: %w", err)
			}
		}()
	}

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

// Shutdown stops all components in order: HTTP server, consumers, dead-letter
// producer, tracer, Redis.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := a.httpServer.Shutdown(shutdownCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	for _, c := range a.consumers {
		if err := c.Close(); err != nil {
			a.logger.Error("kafka consumer close error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.dlq.Close(); err != nil {
		a.logger.Error("dead-letter producer close error", slog.String("error", err.Error()))
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

	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
