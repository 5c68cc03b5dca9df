package config

import "github.com/caarlos0/env/v11"

// parseEnv overlays variables prefixed with INGESTKEEPER_ (for example
// INGESTKEEPER_DATABASE_DSN). Unset variables leave the current value intact.
func parseEnv(config *Config) {
	if err := env.ParseWithOptions(config, env.Options{Prefix: "INGESTKEEPER_"}); err != nil {
		panic(err)
	}
}
