package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/horike37/serverless-application/pkg/config"
	"github.com/horike37/serverless-application/pkg/database"
	"github.com/horike37/serverless-application/pkg/tracing"
)

// Config holds all configuration for the article service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	HTTPPort int `env:"ARTICLE_HTTP_PORT" envDefault:"8001"`

	Postgres database.PostgresConfig
	Tracing  tracing.Config

	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// ID tokens are issued by the Cognito user pool.
	AWSRegion             string `env:"AWS_REGION" envDefault:"ap-northeast-1"`
	CognitoUserPoolID     string `env:"COGNITO_USER_POOL_ID"`
	CognitoUserPoolAppID  string `env:"COGNITO_USER_POOL_APP_ID"`
	CognitoIssuerOverride string `env:"COGNITO_ISSUER"`

	AllowUnverifiedLegacySessions bool `env:"ALLOW_UNVERIFIED_LEGACY_SESSIONS" envDefault:"true"`

	// PopularCacheMaxAge is the Cache-Control max-age of the popular list.
	PopularCacheMaxAge time.Duration `env:"POPULAR_CACHE_MAX_AGE" envDefault:"60s"`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load article config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Tracing.ServiceName = "article"
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	if c.CognitoUserPoolAppID == "" {
		return fmt.Errorf("COGNITO_USER_POOL_APP_ID is required")
	}
	if c.CognitoUserPoolID == "" && c.CognitoIssuerOverride == "" {
		return fmt.Errorf("COGNITO_USER_POOL_ID or COGNITO_ISSUER is required")
	}
	if c.PopularCacheMaxAge < 0 {
		return fmt.Errorf("POPULAR_CACHE_MAX_AGE must not be negative, got %s", c.PopularCacheMaxAge)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.Tracing.SampleRate)
	}
	return nil
}

// CognitoIssuer returns the issuer of the user pool's ID tokens.
func (c *Config) CognitoIssuer() string {
	if c.CognitoIssuerOverride != "" {
		return c.CognitoIssuerOverride
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.AWSRegion, c.CognitoUserPoolID)
}
