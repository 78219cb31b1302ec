package config

import (
	"fmt"

	"github.com/kelseyhightower/envconfig"
)

// parseEnv overlays cfg with the TRIPKEEPER_* variables that are set.
// Unset variables keep the current values. Variable names are the
// envconfig tags of Config.
func parseEnv(cfg *Config) error {
	if err := envconfig.Process("", cfg); err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	return nil
}
