package binance_client

import (
	"context"

	"spot_bot/internal/modules/binance_client/service"
	"spot_bot/internal/modules/config"
	trader "spot_bot/internal/modules/trader/service"

	"github.com/pkg/errors"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewConfig(cfg *config.Config) service.Config {
	return service.Config{
		APIKey:    cfg.Binance.APIKey,
		APISecret: cfg.Binance.APISecret,
		BaseURL:   cfg.Binance.APIURL,
		Testnet:   cfg.Binance.Testnet,
	}
}

// NewExchange picks the order backend: the live account, or the paper
// exchange filling at the public last price.
func NewExchange(cfg *config.Config, client *service.Client, log *zap.Logger) trader.Exchange {
	if !cfg.Trading.Paper {
		return client
	}
	log.Info("paper trading enabled",
		zap.String("symbol", cfg.Trading.Symbol),
		zap.Stringer("balance", cfg.PaperBalanceDecimal()),
	)
	return service.NewPaper(client, cfg.Trading.Symbol, cfg.BaseAsset(), cfg.Trading.QuoteAsset, cfg.PaperBalanceDecimal(), log)
}

func Module() fx.Option {
	return fx.Module("binance_client",
		fx.Decorate(func(l *zap.Logger) *zap.Logger { return l.Named("binance_client") }),
		fx.Provide(
			NewConfig,
			service.NewClient,
			NewExchange,
		),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, c *service.Client, log *zap.Logger) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					err := c.Ping(ctx)
					switch {
					case err == nil:
						log.Info("binance reachable", zap.String("url", cfg.Binance.APIURL))
					case cfg.Trading.Paper:
						log.Warn("binance ping failed", zap.Error(err))
					default:
						return errors.Wrap(err, "binance ping")
					}
					return nil
				},
			})
		}),
	)
}
