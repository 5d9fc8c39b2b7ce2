package app

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	cip "github.com/aws/aws-sdk-go-v2/service/cognitoidentityprovider"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/horike37/serverless-application/pkg/database"
	"github.com/horike37/serverless-application/pkg/health"
	"github.com/horike37/serverless-application/pkg/httpclient"
	pkgkafka "github.com/horike37/serverless-application/pkg/kafka"
	"github.com/horike37/serverless-application/pkg/middleware"
	"github.com/horike37/serverless-application/pkg/tracing"
	"github.com/horike37/serverless-application/pkg/verification"
	"github.com/horike37/serverless-application/services/user/internal/config"
	"github.com/horike37/serverless-application/services/user/internal/event"
	handler "github.com/horike37/serverless-application/services/user/internal/handler/http"
	"github.com/horike37/serverless-application/services/user/internal/identity"
	"github.com/horike37/serverless-application/services/user/internal/provider"
	"github.com/horike37/serverless-application/services/user/internal/repository/postgres"
	redisrepo "github.com/horike37/serverless-application/services/user/internal/repository/redis"
	"github.com/horike37/serverless-application/services/user/internal/secret"
	"github.com/horike37/serverless-application/services/user/internal/service"
	"github.com/horike37/serverless-application/services/user/migrations"
)

const serviceName = "user"

// App wires together all dependencies and runs the user service.
type App struct {
	cfg            *config.Config
	logger         *slog.Logger
	pool           *pgxpool.Pool
	redis          *redis.Client
	producer       *pkgkafka.Producer
	httpServer     *http.Server
	tracerShutdown func(context.Context) error
}

// pinger is implemented by identity stores that can probe their backend.
type pinger interface {
	Ping(ctx context.Context) error
}

// NewApp creates a new application instance, initializing all dependencies.
func NewApp(cfg *config.Config, logger *slog.Logger) (*App, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	// Initialize OpenTelemetry tracing.
	tracerShutdown, err := tracing.InitTracer(ctx, cfg.Tracing)
	if err != nil {
		return nil, fmt.Errorf("init tracer: %w", err)
	}

	// Initialize PostgreSQL connection pool.
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

	// Run database migrations.
	if err := database.RunMigrations(ctx, pool, migrations.FS, logger); err != nil {
		pool.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("database migrations completed")

	if cfg.SlowQueryThreshold > 0 {
		database.SetSlowQueryLogging(cfg.SlowQueryThreshold, logger)
	}

	// Redis holds the OAuth request secrets and states between the two
	// legs of a login.
	redisClient, err := database.NewRedisClient(ctx, cfg.Redis)
	if err != nil {
		pool.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	logger.Info("connected to Redis", slog.String("addr", cfg.Redis.Addr()))

	// Initialize Kafka producer.
	producer := pkgkafka.NewProducer(pkgkafka.DefaultProducerConfig(cfg.KafkaBrokers), logger)
	logger.Info("kafka producer initialized", slog.Any("brokers", cfg.KafkaBrokers))

	closeAll := func() {
		_ = producer.Close()
		_ = redisClient.Close()
		pool.Close()
	}

	idp, err := newIdentityStore(ctx, cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	sealer, err := newSealer(cfg, logger)
	if err != nil {
		closeAll()
		return nil, err
	}

	// Outbound provider calls share one breaker per provider.
	states := redisrepo.NewStateStore(redisClient, cfg.OAuthStateTTL)
	twitterHTTP := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("twitter"), logger)
	lineHTTP := httpclient.NewCircuitBreakerClient(httpclient.New(httpclient.DefaultConfig()),
		httpclient.DefaultCircuitBreakerConfig("line"), logger)

	twitter := provider.NewTwitter(provider.TwitterConfig{
		ConsumerKey:    cfg.Twitter.ConsumerKey,
		ConsumerSecret: cfg.Twitter.ConsumerSecret,
		CallbackURL:    cfg.Twitter.CallbackURL,
		APIBaseURL:     cfg.Twitter.APIBaseURL,
	}, twitterHTTP.StandardClient(), states, logger)
	line := provider.NewLINE(provider.LINEConfig{
		ChannelID:     cfg.LINE.ChannelID,
		ChannelSecret: cfg.LINE.ChannelSecret,
		RedirectURI:   cfg.LINE.RedirectURI,
		AuthBaseURL:   cfg.LINE.AuthBaseURL,
		APIBaseURL:    cfg.LINE.APIBaseURL,
	}, lineHTTP.StandardClient(), states, logger)

	// Build the dependency graph.
	profileRepo := postgres.NewProfileRepository(pool)
	credentialRepo := postgres.NewCredentialRepository(pool)
	aliasRepo := postgres.NewAliasRepository(pool)
	eventProducer := event.NewProducer(producer, logger)

	federationService := service.NewFederationService(idp, profileRepo, credentialRepo, aliasRepo, sealer, eventProducer, logger, twitter, line)
	userService := service.NewUserService(idp, profileRepo, eventProducer, logger)

	// ID tokens are verified against the user pool's published keys.
	tokenValidator := middleware.NewOIDCValidator(context.Background(), cfg.CognitoIssuer(), cfg.CognitoUserPoolAppID)

	gate := verification.Gate{AllowLegacySessions: cfg.AllowUnverifiedLegacySessions}
	if gate.AllowLegacySessions {
		logger.Warn("sessions without verification claims pass the verification gate",
			slog.String("setting", "ALLOW_UNVERIFIED_LEGACY_SESSIONS"),
		)
	}

	// Health checks.
	healthHandler := health.NewHandler(serviceName)
	healthHandler.RegisterCritical("postgres", func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	healthHandler.RegisterCritical("redis", func(ctx context.Context) error {
		return redisClient.Ping(ctx).Err()
	})
	healthHandler.RegisterNonCritical("kafka", func(ctx context.Context) error {
		return producer.Ping(ctx)
	})
	if p, ok := idp.(pinger); ok {
		healthHandler.RegisterNonCritical("identity", p.Ping)
	}

	httpMetrics, err := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer, serviceName)
	if err != nil {
		closeAll()
		return nil, fmt.Errorf("register http metrics: %w", err)
	}

	// HTTP router.
	router := handler.NewRouter(handler.RouterConfig{
		Federation:     federationService,
		Users:          userService,
		TokenValidator: tokenValidator,
		Gate:           gate,
		Health:         healthHandler,
		Metrics:        httpMetrics,
		Gatherer:       prometheus.DefaultGatherer,
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
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return &App{
		cfg:            cfg,
		logger:         logger,
		pool:           pool,
		redis:          redisClient,
		producer:       producer,
		httpServer:     httpServer,
		tracerShutdown: tracerShutdown,
	}, nil
}

func newIdentityStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (identity.Store, error) {
	if cfg.IdentityBackend == config.IdentityBackendMemory {
		logger.Warn("using the in-memory identity store, accounts are lost on restart")
		return identity.NewMemory(), nil
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	logger.Info("using Cognito identity store",
		slog.String("region", cfg.AWSRegion),
		slog.String("user_pool_id", cfg.CognitoUserPoolID),
	)
	return identity.NewCognito(cip.NewFromConfig(awsCfg), cfg.CognitoUserPoolID, cfg.CognitoUserPoolAppID), nil
}

func newSealer(cfg *config.Config, logger *slog.Logger) (*secret.Sealer, error) {
	if cfg.CredentialSealingKey != "" {
		s, err := secret.NewSealerFromHex(cfg.CredentialSealingKey)
		if err != nil {
			return nil, fmt.Errorf("credential sealing key: %w", err)
		}
		return s, nil
	}

	// Development only; config validation rejects a missing key elsewhere.
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		return nil, fmt.Errorf("generate credential sealing key: %w", err)
	}
	logger.Warn("CREDENTIAL_SEALING_KEY is not set, using a random key; stored federated credentials will not survive a restart")
	return secret.NewSealer(key)
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

// Shutdown stops all components in order: HTTP server, tracer, Kafka
// producer, Redis, PostgreSQL pool.
func (a *App) Shutdown() error {
	a.logger.Info("shutting down application...")

	var errs []error

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer httpCancel()
	if err := a.httpServer.Shutdown(httpCtx); err != nil {
		a.logger.Error("http server shutdown error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	// Flush spans only after in-flight requests have finished.
	if a.tracerShutdown != nil {
		tracerCtx, tracerCancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer tracerCancel()
		if err := a.tracerShutdown(tracerCtx); err != nil {
			a.logger.Error("tracer shutdown error", slog.String("error", err.Error()))
			errs = append(errs, err)
		}
	}

	if err := a.producer.Close(); err != nil {
		a.logger.Error("kafka producer close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	if err := a.redis.Close(); err != nil {
		a.logger.Error("redis close error", slog.String("error", err.Error()))
		errs = append(errs, err)
	}

	a.pool.Close()

	a.logger.Info("application shutdown complete")
	return errors.Join(errs...)
}
