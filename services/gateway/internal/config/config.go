package config

import (
	"fmt"
	"net"
	"net/url"
	"time"

	pkgconfig "github.com/horike37/serverless-application/pkg/config"
	"github.com/horike37/serverless-application/pkg/tracing"
)

// Config holds all configuration for the API gateway.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPPort    int    `env:"GATEWAY_HTTP_PORT" envDefault:"8080"`

	Tracing tracing.Config

	// Backend service URLs
	UserServiceURL    string `env:"USER_SERVICE_URL" envDefault:"http://localhost:8006"`
	ArticleServiceURL string `env:"ARTICLE_SERVICE_URL" envDefault:"http://localhost:8001"`
	SearchServiceURL  string `env:"SEARCH_SERVICE_URL" envDefault:"http://localhost:8007"`

	// Upstream transport
	ProxyDialTimeout     time.Duration `env:"PROXY_DIAL_TIMEOUT" envDefault:"5s"`
	ProxyResponseTimeout time.Duration `env:"PROXY_RESPONSE_TIMEOUT" envDefault:"30s"`
	ProxyIdleTimeout     time.Duration `env:"PROXY_IDLE_TIMEOUT" envDefault:"90s"`
	ProxyMaxIdleConns    int           `env:"PROXY_MAX_IDLE_CONNS" envDefault:"100"`

	// Token check in front of /api/v1/me. The services verify tokens
	// again; this only sheds unauthenticated traffic early.
	AuthorizerEnabled     bool   `env:"GATEWAY_AUTHORIZER_ENABLED" envDefault:"true"`
	AWSRegion             string `env:"AWS_REGION" envDefault:"ap-northeast-1"`
	CognitoUserPoolID     string `env:"COGNITO_USER_POOL_ID"`
	CognitoUserPoolAppID  string `env:"COGNITO_USER_POOL_APP_ID"`
	CognitoIssuerOverride string `env:"COGNITO_ISSUER"`

	// Rate limiting
	RateLimitRPS       int           `env:"RATE_LIMIT_RPS" envDefault:"100"`
	RateLimitBurst     int           `env:"RATE_LIMIT_BURST" envDefault:"200"`
	RateLimitClientTTL time.Duration `env:"RATE_LIMIT_CLIENT_TTL" envDefault:"3m"`

	MetricsAllowedCIDRs []string `env:"METRICS_ALLOWED_CIDRS" envDefault:"127.0.0.1/32,::1/128,10.0.0.0/8" envSeparator:","`

	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load gateway config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Tracing.ServiceName = "gateway"
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}

	for name, raw := range c.ServiceURLs() {
		u, err := url.Parse(raw)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s service URL %q", name, raw)
		}
	}

	if c.AuthorizerEnabled {
		if c.CognitoUserPoolAppID == "" {
			return fmt.Errorf("COGNITO_USER_POOL_APP_ID is required when the authorizer is enabled")
		}
		if c.CognitoUserPoolID == "" && c.CognitoIssuerOverride == "" {
			return fmt.Errorf("COGNITO_USER_POOL_ID or COGNITO_ISSUER is required when the authorizer is enabled")
		}
	}

	if c.RateLimitRPS < 1 || c.RateLimitBurst < 1 {
		return fmt.Errorf("RATE_LIMIT_RPS and RATE_LIMIT_BURST must be positive")
	}
	if c.RateLimitClientTTL <= 0 {
		return fmt.Errorf("RATE_LIMIT_CLIENT_TTL must be positive, got %s", c.RateLimitClientTTL)
	}

	for _, cidr := range c.MetricsAllowedCIDRs {
		if _, _, err := net.ParseCIDR(cidr); err != nil {
			return fmt.Errorf("invalid METRICS_ALLOWED_CIDRS entry %q: %w", cidr, err)
		}
	}
	return nil
}

// ServiceURLs maps upstream service names to their base URLs.
func (c *Config) ServiceURLs() map[string]string {
	return map[string]string{
		"user":    c.UserServiceURL,
		"article": c.ArticleServiceURL,
		"search":  c.SearchServiceURL,
	}
}

// CognitoIssuer returns the issuer of the user pool's ID tokens.
func (c *Config) CognitoIssuer() string {
	if c.CognitoIssuerOverride != "" {
		return c.CognitoIssuerOverride
	}
	return fmt.Sprintf("https://cognito-idp.%s.amazonaws.com/%s", c.AWSRegion, c.CognitoUserPoolID)
}
