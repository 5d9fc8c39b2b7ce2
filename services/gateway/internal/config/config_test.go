package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setEnvs(t *testing.T, envs map[string]string) {
	t.Helper()
	for k, v := range envs {
		t.Setenv(k, v)
	}
}

func baseEnv() map[string]string {
	return map[string]string{
		"COGNITO_USER_POOL_ID":     "ap-northeast-1_abc",
		"COGNITO_USER_POOL_APP_ID": "client123",
	}
}

func TestLoad_Defaults(t *testing.T) {
	setEnvs(t, baseEnv())

	cfg, err := Load()

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.HTTPPort)
	assert.True(t, cfg.AuthorizerEnabled)
	assert.Equal(t, 3*time.Minute, cfg.RateLimitClientTTL)
	assert.Equal(t, "gateway", cfg.Tracing.ServiceName)
	assert.Equal(t, map[string]string{
		"user":    "http://localhost:8006",
		"article": "http://localhost:8001",
		"search":  "http://localhost:8007",
	}, cfg.ServiceURLs())
	assert.Equal(t, "https://cognito-idp.ap-northeast-1.amazonaws.com/ap-northeast-1_abc", cfg.CognitoIssuer())
}

func TestLoad_AuthorizerDisabledNeedsNoPool(t *testing.T) {
	t.Setenv("GATEWAY_AUTHORIZER_ENABLED", "false")

	_, err := Load()

	require.NoError(t, err)
}

func TestLoad_Rejects(t *testing.T) {
	tests := []struct {
		name    string
		mutate  map[string]string
		wantErr string
	}{
		{"missing app id", map[string]string{"COGNITO_USER_POOL_APP_ID": ""}, "COGNITO_USER_POOL_APP_ID"},
		{"missing pool", map[string]string{"COGNITO_USER_POOL_ID": ""}, "COGNITO_ISSUER"},
		{"relative service url", map[string]string{"ARTICLE_SERVICE_URL": "/article"}, "article service URL"},
		{"zero rps", map[string]string{"RATE_LIMIT_RPS": "0"}, "RATE_LIMIT_RPS"},
		{"zero client ttl", map[string]string{"RATE_LIMIT_CLIENT_TTL": "0s"}, "RATE_LIMIT_CLIENT_TTL"},
		{"bad cidr", map[string]string{"METRICS_ALLOWED_CIDRS": "10.0.0.0"}, "METRICS_ALLOWED_CIDRS"},
		{"bad port", map[string]string{"GATEWAY_HTTP_PORT": "-1"}, "invalid HTTP port"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setEnvs(t, baseEnv())
			setEnvs(t, tt.mutate)

			_, err := Load()

			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}
