package trader

import (
	"context"

	"spot_bot/internal/modules/config"
	"spot_bot/internal/modules/trader/service"

	"github.com/shopspring/decimal"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewConfig(cfg *config.Config) service.Config {
	return service.Config{
		Symbol:          cfg.Trading.Symbol,
		BaseAsset:       cfg.BaseAsset(),
		QuoteAsset:      cfg.Trading.QuoteAsset,
		Quantity:        cfg.QuantityDecimal(),
		StopLossPct:     decimal.NewFromFloat(cfg.Trading.LossPct),
		TakeProfitPct:   decimal.NewFromFloat(cfg.Trading.ProfitPct),
		PositionTimeout: cfg.PositionTimeout(),
		Cooldown:        cfg.Cooldown(),
		PollInterval:    cfg.Trading.PollInterval,
		WarmupDelay:     cfg.Trading.WarmupDelay,
		StaleTimeout:    cfg.Trading.StaleTimeout,
		QueueSize:       cfg.Trading.QueueSize,
	}
}

// Run starts the trader with the app and stops the app when the trader dies.
// The exchange client is closed after the trader returns.
func Run(lc fx.Lifecycle, sd fx.Shutdowner, tr *service.Trader, ex service.Exchange, log *zap.Logger) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := tr.Run(ctx); err != nil {
					log.Error("trader stopped", zap.Error(err))
					_ = sd.Shutdown(fx.ExitCode(1))
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			select {
			case <-done:
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
			return ex.Close()
		},
	})
}

func Module() fx.Option {
	return fx.Module("trader",
		fx.Decorate(func(l *zap.Logger) *zap.Logger { return l.Named("trader") }),
		fx.Provide(
			NewConfig,
			service.New,
		),
		fx.Invoke(Run),
	)
}
