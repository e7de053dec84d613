package notify

import (
	"context"

	"spot_bot/internal/modules/config"
	"spot_bot/internal/modules/notify/service"
	trader "spot_bot/internal/modules/trader/service"

	"go.uber.org/fx"
	"go.uber.org/zap"
)

// NewNotifier uses Telegram when a token and chat are configured and falls
// back to the log otherwise.
func NewNotifier(cfg *config.Config, log *zap.Logger) trader.Notifier {
	if cfg.Telegram.Token == "" || cfg.Telegram.ChatID == 0 {
		return service.NewLog(log)
	}

	tg, err := service.NewTelegram(cfg.Telegram.Token, cfg.Telegram.ChatID, log)
	if err != nil {
		log.Warn("telegram disabled", zap.Error(err))
		return service.NewLog(log)
	}
	return tg
}

func Module() fx.Option {
	return fx.Module("notify",
		fx.Decorate(func(l *zap.Logger) *zap.Logger { return l.Named("notify") }),
		fx.Provide(NewNotifier),
		fx.Invoke(func(lc fx.Lifecycle, cfg *config.Config, n trader.Notifier, tr *trader.Trader) {
			tg, ok := n.(*service.Telegram)
			if !ok {
				return
			}
			tg.Attach(tr)
			lc.Append(fx.Hook{
				OnStart: func(context.Context) error {
					tg.Start(context.Background())
					tg.Notify(context.Background(), "🚀 "+cfg.Trading.Symbol+" bot started")
					return nil
				},
				OnStop: func(context.Context) error {
					tg.Stop()
					return nil
				},
			})
		}),
	)
}
