package cli

import (
	"fmt"

	"github.com/caarlos0/env/v11"
)

// ServeConfig holds the HTTP server settings, resolved from the
// environment. Command-line flags override parsed values.
type ServeConfig struct {
	Port    string `env:"ESPALIER_PORT" envDefault:"8080"`
	FlowDir string `env:"ESPALIER_FLOW_DIR" envDefault:"."`

	// Redis enables shared run persistence and distributed locking.
	// Empty address keeps the in-memory store.
	RedisAddr     string `env:"ESPALIER_REDIS_ADDR"`
	RedisPassword string `env:"ESPALIER_REDIS_PASSWORD"`
	RedisDB       int    `env:"ESPALIER_REDIS_DB" envDefault:"0"`

	Metrics bool `env:"ESPALIER_METRICS" envDefault:"true"`
}

// LoadServeConfig reads the configuration from the environment.
func LoadServeConfig() (ServeConfig, error) {
	var cfg ServeConfig
	if err := env.Parse(&cfg); err != nil {
		return cfg, fmt.Errorf("failed to parse environment: %w", err)
	}
	return cfg, nil
}
