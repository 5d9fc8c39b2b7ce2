package config

import (
	"fmt"

	"github.com/caarlos0/env/v10"
)

// Load fills cfg from environment variables declared with `env` and
// `envDefault` struct tags. Fields tagged `required` must be set.
//
//	type Config struct {
//	    Port           int    `env:"HTTP_PORT" envDefault:"8006"`
//	    CognitoPoolID  string `env:"COGNITO_USER_POOL_ID,required"`
//	}
func Load(cfg any) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("parse config: %w", err)
	}
	return nil
}

// LoadWithPrefix is Load with every variable name prefixed, so one process
// can read two blocks of the same shape (for example TWITTER_ and LINE_
// provider credentials).
func LoadWithPrefix(cfg any, prefix string) error {
	if err := env.ParseWithOptions(cfg, env.Options{Prefix: prefix}); err != nil {
		return fmt.Errorf("parse config with prefix %s: %w", prefix, err)
	}
	return nil
}
