package tracing

import (
	"context"

	"spot_bot/pkg/tracing"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func Module() fx.Option {
	return fx.Module("tracing",
		fx.Invoke(func(lc fx.Lifecycle, cfg tracing.Config, log *zap.Logger) error {
			_, closer, err := tracing.InitTracer(cfg)
			if err != nil {
				return err
			}
			if cfg.Enabled() {
				log.Info("jaeger tracer enabled", zap.String("agent", cfg.Host), zap.Int("port", cfg.Port))
			}
			lc.Append(fx.Hook{
				OnStop: func(ctx context.Context) error {
					return closer.Close()
				},
			})
			return nil
		}),
	)
}
