package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Port       int           `env:"TEST_CFG_PORT" envDefault:"8006"`
	LogLevel   string        `env:"TEST_CFG_LOG_LEVEL" envDefault:"info"`
	StateTTL   time.Duration `env:"TEST_CFG_STATE_TTL" envDefault:"10m"`
	AllowUnver bool          `env:"TEST_CFG_ALLOW_UNVERIFIED" envDefault:"true"`
}

func TestLoad_Defaults(t *testing.T) {
	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 8006, cfg.Port)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, 10*time.Minute, cfg.StateTTL)
	assert.True(t, cfg.AllowUnver)
}

func TestLoad_FromEnvVars(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "9090")
	t.Setenv("TEST_CFG_LOG_LEVEL", "debug")
	t.Setenv("TEST_CFG_STATE_TTL", "30s")
	t.Setenv("TEST_CFG_ALLOW_UNVERIFIED", "false")

	var cfg testConfig
	require.NoError(t, Load(&cfg))

	assert.Equal(t, 9090, cfg.Port)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.StateTTL)
	assert.False(t, cfg.AllowUnver)
}

type requiredConfig struct {
	PoolID string `env:"TEST_CFG_POOL_ID,required"`
}

func TestLoad_RequiredField(t *testing.T) {
	var missing requiredConfig
	err := Load(&missing)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")

	t.Setenv("TEST_CFG_POOL_ID", "ap-northeast-1_abc")
	var present requiredConfig
	require.NoError(t, Load(&present))
	assert.Equal(t, "ap-northeast-1_abc", present.PoolID)
}

func TestLoad_InvalidType(t *testing.T) {
	t.Setenv("TEST_CFG_PORT", "not-a-number")

	var cfg testConfig
	err := Load(&cfg)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse config")
}

type providerCredentials struct {
	ClientID     string `env:"CLIENT_ID"`
	ClientSecret string `env:"CLIENT_SECRET"`
}

func TestLoadWithPrefix(t *testing.T) {
	t.Setenv("LINE_CLIENT_ID", "165xxxx")
	t.Setenv("LINE_CLIENT_SECRET", "line-secret")
	t.Setenv("TWITTER_CLIENT_ID", "tw-key")

	var line, twitter providerCredentials
	require.NoError(t, LoadWithPrefix(&line, "LINE_"))
	require.NoError(t, LoadWithPrefix(&twitter, "TWITTER_"))

	assert.Equal(t, "165xxxx", line.ClientID)
	assert.Equal(t, "line-secret", line.ClientSecret)
	assert.Equal(t, "tw-key", twitter.ClientID)
	assert.Empty(t, twitter.ClientSecret)
}
