package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
)

// Config is process configuration. PORT is the only variable deployments are
// expected to set; everything else has a working default.
type Config struct {
	Port            string        `env:"PORT" envDefault:"3001"`
	JWTSecret       string        `env:"JWT_SECRET"`
	AllowedOrigins  string        `env:"CORS_ALLOWED_ORIGINS" envDefault:"*"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"30s"`
}

// Load parses configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}
