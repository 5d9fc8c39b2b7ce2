package config

import (
	"encoding/hex"
	"fmt"
	"time"

	pkgconfig "github.com/horike37/serverless-application/pkg/config"
	"github.com/horike37/serverless-application/pkg/database"
	"github.com/horike37/serverless-application/pkg/tracing"
)

// IdentityBackendCognito and IdentityBackendMemory select the identity
// provider implementation.
const (
	IdentityBackendCognito = "cognito"
	IdentityBackendMemory  = "memory"
)

// TwitterConfig holds the OAuth 1.0a consumer credentials of the Twitter app.
type TwitterConfig struct {
	ConsumerKey    string `env:"CONSUMER_KEY"`
	ConsumerSecret string `env:"CONSUMER_SECRET"`
	CallbackURL    string `env:"CALLBACK_URL" envDefault:"http://localhost:3000/signup/twitter/callback"`
	APIBaseURL     string `env:"API_BASE_URL" envDefault:"https://api.twitter.com"`
}

// LINEConfig holds the LINE Login channel credentials.
type LINEConfig struct {
	ChannelID     string `env:"CHANNEL_ID"`
	ChannelSecret string `env:"CHANNEL_SECRET"`
	RedirectURI   string `env:"REDIRECT_URI" envDefault:"http://localhost:3000/signup/line/callback"`
	AuthBaseURL   string `env:"AUTH_BASE_URL" envDefault:"https://access.line.me"`
	APIBaseURL    string `env:"API_BASE_URL" envDefault:"https://api.line.me"`
}

// Config holds all configuration for the user service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"USER_HTTP_PORT" envDefault:"8006"`

	Postgres database.PostgresConfig
	Redis    database.RedisConfig
	Tracing  tracing.Config

	SlowQueryThreshold time.Duration `env:"SLOW_QUERY_THRESHOLD" envDefault:"200ms"`

	// Kafka
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Identity provider
	IdentityBackend       string `env:"IDENTITY_BACKEND" envDefault:"cognito"`
	AWSRegion             string `env:"AWS_REGION" envDefault:"ap-northeast-1"`
	CognitoUserPoolID     string `env:"COGNITO_USER_POOL_ID"`
	CognitoUserPoolAppID  string `env:"COGNITO_USER_POOL_APP_ID"`
	CognitoIssuerOverride string `env:"COGNITO_ISSUER"`

	// CredentialSealingKey is a hex-encoded 32-byte key for federated
	// credential secrets at rest.
	CredentialSealingKey string `env:"CREDENTIAL_SEALING_KEY"`

	// AllowUnverifiedLegacySessions lets sessions without any verification
	// claim through the verification gate.
	AllowUnverifiedLegacySessions bool `env:"ALLOW_UNVERIFIED_LEGACY_SESSIONS" envDefault:"true"`

	OAuthStateTTL time.Duration `env:"OAUTH_STATE_TTL" envDefault:"10m"`

	Twitter TwitterConfig `envPrefix:"TWITTER_"`
	LINE    LINEConfig    `envPrefix:"LINE_"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load user config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Tracing.ServiceName = "user"
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	switch c.IdentityBackend {
	case IdentityBackendCognito:
		if c.CognitoUserPoolID == "" || c.CognitoUserPoolAppID == "" {
			return fmt.Errorf("COGNITO_USER_POOL_ID and COGNITO_USER_POOL_APP_ID are required for the cognito backend")
		}
	case IdentityBackendMemory:
		if c.Environment != "development" {
			return fmt.Errorf("IDENTITY_BACKEND=memory is only allowed in development, got %q", c.Environment)
		}
	default:
		return fmt.Errorf("unknown IDENTITY_BACKEND %q", c.IdentityBackend)
	}

	if c.CredentialSealingKey == "" {
		if c.Environment != "development" {
			return fmt.Errorf("CREDENTIAL_SEALING_KEY must be set in %q mode", c.Environment)
		}
	} else {
		key, err := hex.DecodeString(c.CredentialSealingKey)
		if err != nil {
			return fmt.Errorf("CREDENTIAL_SEALING_KEY must be hex encoded: %w", err)
		}
		if len(key) != 32 {
			return fmt.Errorf("CREDENTIAL_SEALING_KEY must decode to 32 bytes, got %d", len(key))
		}
	}

	if c.Environment != "development" {
		if c.Twitter.ConsumerKey == "" || c.Twitter.ConsumerSecret == "" {
			return fmt.Errorf("TWITTER_CONSUMER_KEY and TWITTER_CONSUMER_SECRET must be set in %q mode", c.Environment)
		}
		if c.LINE.ChannelID == "" || c.LINE.ChannelSecret == "" {
			return fmt.Errorf("LINE_CHANNEL_ID and LINE_CHANNEL_SECRET must be set in %q mode", c.Environment)
		}
	}

	if c.OAuthStateTTL <= 0 {
		return fmt.Errorf("OAUTH_STATE_TTL must be positive, got %s", c.OAuthStateTTL)
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
