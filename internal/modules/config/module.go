package config

import (
	"spot_bot/pkg/logger"
	"spot_bot/pkg/tracing"

	"go.uber.org/fx"
)

// Module exposes the loaded *Config and the projections other modules need.
// The *Config itself is supplied by the entry point.
func Module() fx.Option {
	return fx.Module("config",
		fx.Provide(
			func(cfg *Config) logger.Config {
				return logger.Config{Dir: cfg.Log.Dir, File: cfg.Log.File, Level: cfg.Log.Level}
			},
			func(cfg *Config) tracing.Config {
				return tracing.Config{Host: cfg.Tracing.Host, Port: cfg.Tracing.Port}
			},
		),
	)
}
