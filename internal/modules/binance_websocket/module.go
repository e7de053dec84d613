package binance_websocket

import (
	"spot_bot/internal/modules/binance_websocket/service"
	"spot_bot/internal/modules/config"
	trader "spot_bot/internal/modules/trader/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

func NewConfig(cfg *config.Config) service.Config {
	return service.Config{
		URL:           service.TradeStreamURL(cfg.Binance.WSURL, cfg.Trading.Symbol),
		MaxReconnects: cfg.Binance.MaxReconnects,
	}
}

// Module provides the trade stream. The trader owns its lifetime: Connect
// runs inside the trader and Close is part of its shutdown.
func Module() fx.Option {
	return fx.Module("binance_websocket",
		fx.Decorate(func(l *zap.Logger) *zap.Logger { return l.Named("binance_ws") }),
		fx.Provide(
			NewConfig,
			fx.Annotate(service.NewTradeHandler, fx.As(new(service.Handler))),
			service.NewClient,
			func(c *service.Client) trader.PriceFeed { return c },
		),
	)
}
