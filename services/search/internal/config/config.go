package config

import (
	"fmt"
	"time"

	pkgconfig "github.com/horike37/serverless-application/pkg/config"
	"github.com/horike37/serverless-application/pkg/database"
	"github.com/horike37/serverless-application/pkg/tracing"
)

// Search engine backends.
const (
	EngineElasticsearch = "elasticsearch"
	EngineMemory        = "memory"
)

// Config holds all configuration for the search service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort int `env:"SEARCH_HTTP_PORT" envDefault:"8007"`

	// Elasticsearch
	ElasticsearchURL       string `env:"ELASTICSEARCH_URL" envDefault:"http://localhost:9200"`
	ElasticsearchTagIndex  string `env:"ELASTICSEARCH_TAG_INDEX" envDefault:"tags"`
	ElasticsearchUserIndex string `env:"ELASTICSEARCH_USER_INDEX" envDefault:"users"`

	// Search engine selection (elasticsearch or memory)
	SearchEngine string `env:"SEARCH_ENGINE" envDefault:"elasticsearch"`

	// Kafka
	KafkaBrokers  []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`
	ConsumerGroup string   `env:"SEARCH_CONSUMER_GROUP" envDefault:"search-service"`

	// Redis remembers handled event ids so redelivered events are skipped.
	Redis          database.RedisConfig
	EventDedupeTTL time.Duration `env:"EVENT_DEDUPE_TTL" envDefault:"24h"`

	Tracing tracing.Config

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load search config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.Tracing.ServiceName = "search"
	cfg.Tracing.Environment = cfg.Environment
	return cfg, nil
}

// validate checks configuration invariants.
func (c *Config) validate() error {
	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		return fmt.Errorf("invalid HTTP port: %d", c.HTTPPort)
	}
	switch c.SearchEngine {
	case EngineElasticsearch:
		if c.ElasticsearchURL == "" {
			return fmt.Errorf("ELASTICSEARCH_URL is required for the elasticsearch engine")
		}
	case EngineMemory:
	default:
		return fmt.Errorf("unknown SEARCH_ENGINE %q", c.SearchEngine)
	}
	if len(c.KafkaBrokers) == 0 {
		return fmt.Errorf("KAFKA_BROKERS is required")
	}
	if c.EventDedupeTTL <= 0 {
		return fmt.Errorf("EVENT_DEDUPE_TTL must be positive, got %s", c.EventDedupeTTL)
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		return fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %v", c.Tracing.SampleRate)
	}
	return nil
}
