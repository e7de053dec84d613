package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"spot_bot/internal/models"
	"spot_bot/pkg/logger"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var (
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNoBaseBalance     = errors.New("no base asset to sell")
	ErrNotOpen           = errors.New("no open position")
	ErrNotIdle           = errors.New("trader is not idle")
	ErrNoPrice           = errors.New("no price yet")
	ErrZeroEntryPrice    = errors.New("zero entry price")
	ErrFeedClosed        = errors.New("price feed closed")
)

// Exchange places market orders and reports free balances.
type Exchange interface {
	PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty decimal.Decimal) (*models.Order, error)
	Balances(ctx context.Context) (map[string]decimal.Decimal, error)
	Close() error
}

// PriceFeed pushes trade prices (numeric strings) into sink until the
// connection ends.
type PriceFeed interface {
	Connect(ctx context.Context, sink chan<- string) error
	Close() error
}

// Notifier forwards trade events to a human.
type Notifier interface {
	Notify(ctx context.Context, text string)
}

type Config struct {
	Symbol     string
	BaseAsset  string
	QuoteAsset string
	Quantity   decimal.Decimal

	StopLossPct   decimal.Decimal
	TakeProfitPct decimal.Decimal

	PositionTimeout time.Duration
	Cooldown        time.Duration

	PollInterval time.Duration
	WarmupDelay  time.Duration
	StaleTimeout time.Duration
	QueueSize    int
}

// Trader runs one symbol: it buys when flat, and sells on stop-loss,
// take-profit or timeout, then sits out a cooldown.
type Trader struct {
	cfg      Config
	ex       Exchange
	feed     PriceFeed
	notifier Notifier
	log      *zap.Logger

	prices chan string
	timer  *positionTimer

	mu          sync.Mutex
	st          state
	cooldown    *time.Timer
	cooldownGen uint64

	shutdownOnce sync.Once
}

func New(cfg Config, ex Exchange, feed PriceFeed, notifier Notifier, log *zap.Logger) *Trader {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1024
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 100 * time.Millisecond
	}
	if cfg.WarmupDelay <= 0 {
		cfg.WarmupDelay = 5 * time.Second
	}
	if cfg.StaleTimeout <= 0 {
		cfg.StaleTimeout = 30 * time.Second
	}
	return &Trader{
		cfg:      cfg,
		ex:       ex,
		feed:     feed,
		notifier: notifier,
		log:      log,
		prices:   make(chan string, cfg.QueueSize),
		timer:    &positionTimer{},
	}
}

// Run blocks until ctx is cancelled or an activity fails. Only the latter
// is reported as an error. The timer is stopped and the feed closed on return.
func (t *Trader) Run(ctx context.Context) error {
	logger.Trade(t.log, "start",
		"symbol", t.cfg.Symbol,
		"quantity", t.cfg.Quantity,
		"take_profit", t.cfg.TakeProfitPct,
		"stop_loss", t.cfg.StopLossPct,
		"timeout", t.cfg.PositionTimeout,
		"cooldown", t.cfg.Cooldown,
	)
	_ = t.updateBalances(ctx)
	defer t.shutdown()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(guard("feed", func() error { return t.ingestFeed(gctx) }))
	g.Go(guard("listener", func() error { return t.listenPrices(gctx) }))
	g.Go(guard("trading loop", func() error { return t.tradingLoop(gctx) }))

	err := g.Wait()
	if err == nil || ctx.Err() != nil {
		return nil
	}

	logger.TradeError(t.log, "fatal", err, "symbol", t.cfg.Symbol)
	t.notifier.Notify(context.Background(), fmt.Sprintf("❌ [%s] trading stopped: %v", t.cfg.Symbol, err))
	return err
}

func (t *Trader) shutdown() {
	t.shutdownOnce.Do(func() {
		t.timer.Stop()

		t.mu.Lock()
		t.stopCooldownLocked()
		open := t.st.isOpen()
		t.mu.Unlock()

		if err := t.feed.Close(); err != nil {
			t.log.Warn("close feed", zap.Error(err))
		}
		logger.Trade(t.log, "shutdown", "symbol", t.cfg.Symbol, "position_open", open)
	})
}

// Snapshot returns a copy of the current state.
func (t *Trader) Snapshot() models.Snapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	return models.Snapshot{
		Symbol:       t.cfg.Symbol,
		PositionID:   t.st.positionID,
		IsOpen:       t.st.isOpen(),
		Closing:      t.st.phase == phaseClosing,
		InCooldown:   t.st.inCooldown,
		EntryPrice:   t.st.entryPrice,
		CurrentPrice: t.st.currentPrice,
		Balances:     t.st.balances,
		OpenedAt:     t.st.openedAt,
		LastTick:     t.st.lastTick,
	}
}

func (t *Trader) updateBalances(ctx context.Context) error {
	all, err := t.ex.Balances(ctx)
	if err != nil {
		logger.TradeError(t.log, "balance", err, "symbol", t.cfg.Symbol)
		return err
	}
	b := models.Balances{
		Quote: all[t.cfg.QuoteAsset],
		Base:  all[t.cfg.BaseAsset],
	}

	t.mu.Lock()
	t.st.balances = b
	t.mu.Unlock()

	logger.Trade(t.log, "balance",
		t.cfg.QuoteAsset, b.Quote.StringFixed(4),
		t.cfg.BaseAsset, b.Base.StringFixed(8),
	)
	return nil
}

func guard(name string, fn func() error) func() error {
	return func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("%s: panic: %v", name, r)
			}
		}()
		return fn()
	}
}
