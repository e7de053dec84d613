package service

import (
	"context"
	"fmt"
	"time"

	"spot_bot/pkg/logger"

	"github.com/shopspring/decimal"
)

// ingestFeed keeps the feed connected until ctx ends. A feed that stops on
// its own is fatal.
func (t *Trader) ingestFeed(ctx context.Context) error {
	err := t.feed.Connect(ctx, t.prices)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err == nil {
		err = ErrFeedClosed
	}
	logger.TradeError(t.log, "feed", err, "symbol", t.cfg.Symbol)
	return fmt.Errorf("price feed: %w", err)
}

// listenPrices records every tick and evaluates exit conditions. A quiet
// feed only produces a warning.
func (t *Trader) listenPrices(ctx context.Context) error {
	stale := time.NewTimer(t.cfg.StaleTimeout)
	defer stale.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stale.C:
			logger.TradeWarn(t.log, "stale_feed",
				"symbol", t.cfg.Symbol,
				"silent_for", t.cfg.StaleTimeout,
			)
		case raw := <-t.prices:
			t.onPrice(ctx, raw)
		}
		stale.Reset(t.cfg.StaleTimeout)
	}
}

func (t *Trader) onPrice(ctx context.Context, raw string) {
	price, err := decimal.NewFromString(raw)
	if err != nil {
		logger.TradeError(t.log, "price", err, "raw", raw)
		return
	}

	t.mu.Lock()
	t.st.currentPrice = decimal.NewNullDecimal(price)
	t.st.lastTick = time.Now()
	t.mu.Unlock()

	t.checkConditions(ctx)
}

// tradingLoop opens a position whenever the trader is flat and out of
// cooldown.
func (t *Trader) tradingLoop(ctx context.Context) error {
	for {
		t.mu.Lock()
		hasPrice := t.st.currentPrice.Valid
		canBuy := t.st.phase == phaseIdle && !t.st.inCooldown
		t.mu.Unlock()

		if !hasPrice {
			logger.TradeWarn(t.log, "warmup",
				"symbol", t.cfg.Symbol,
				"status", "no price yet",
				"retry_in", t.cfg.WarmupDelay,
			)
			if err := sleep(ctx, t.cfg.WarmupDelay); err != nil {
				return err
			}
			continue
		}

		if canBuy {
			t.buy(ctx)
		}

		if err := sleep(ctx, t.cfg.PollInterval); err != nil {
			return err
		}
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
