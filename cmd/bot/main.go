package main

import (
	"context"
	"fmt"
	"os"

	"spot_bot/internal/modules/binance_client"
	"spot_bot/internal/modules/binance_websocket"
	"spot_bot/internal/modules/config"
	"spot_bot/internal/modules/health"
	"spot_bot/internal/modules/notify"
	"spot_bot/internal/modules/tracing"
	"spot_bot/internal/modules/trader"
	"spot_bot/pkg/logger"

	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap"
)

func main() {
	fs := config.NewFlagSet(os.Args[0])
	if err := fs.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	cfg, err := config.Load(fs)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}
	if cfg.PrintConfig {
		if err := cfg.WriteYAML(os.Stdout); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	fx.New(options(cfg)).Run()
}

// options wires the bot. Hooks start in this order and stop in reverse, so
// the trader stops before notifications are flushed.
func options(cfg *config.Config) fx.Option {
	return fx.Options(
		fx.Supply(cfg),
		config.Module(),
		fx.Provide(logger.New),
		fx.WithLogger(func(log *zap.Logger) fxevent.Logger {
			return &fxevent.ZapLogger{Logger: log.Named("fx")}
		}),
		fx.Invoke(func(lc fx.Lifecycle, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStop: func(context.Context) error {
					_ = log.Sync()
					return nil
				},
			})
		}),
		tracing.Module(),
		binance_client.Module(),
		binance_websocket.Module(),
		notify.Module(),
		trader.Module(),
		health.Module(),
	)
}
