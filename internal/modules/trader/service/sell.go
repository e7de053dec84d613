package service

import (
	"context"
	"fmt"
	"time"

	"spot_bot/internal/models"
	"spot_bot/pkg/logger"
	"spot_bot/pkg/tracing"

	"github.com/opentracing/opentracing-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SellResult struct {
	Sold      bool
	Reason    models.CloseReason
	Quantity  decimal.Decimal
	FillPrice decimal.Decimal
	Profit    decimal.NullDecimal
	Err       error
}

// sell closes the open position by selling the whole base balance. An empty
// positionID matches whatever position is open. Only the caller that moves
// the position to closing proceeds; cleanup runs even if the order fails.
func (t *Trader) sell(ctx context.Context, reason models.CloseReason, positionID string) (res SellResult) {
	res.Reason = reason

	t.mu.Lock()
	if t.st.phase != phaseOpen || (positionID != "" && positionID != t.st.positionID) {
		current := t.st.phase
		t.mu.Unlock()
		t.log.Debug("sell skipped", zap.String("reason", string(reason)), zap.Stringer("phase", current))
		res.Err = ErrNotOpen
		return res
	}
	t.st.phase = phaseClosing
	base := t.st.balances.Base
	entry := t.st.entryPrice
	t.mu.Unlock()

	span, ctx := tracing.StartSpan(ctx, "trader.sell", opentracing.Tags{
		"symbol": t.cfg.Symbol,
		"reason": string(reason),
	})
	defer func() {
		t.closePosition(ctx)
		tracing.Finish(span, res.Err)
	}()

	if !base.IsPositive() {
		logger.TradeWarn(t.log, "no_base_balance", "symbol", t.cfg.Symbol, "reason", reason)
		res.Err = ErrNoBaseBalance
		return res
	}

	order, err := t.ex.PlaceMarketOrder(ctx, t.cfg.Symbol, models.SideSell, base)
	if err != nil {
		logger.TradeError(t.log, "sell", err, "symbol", t.cfg.Symbol, "quantity", base, "reason", reason)
		res.Err = err
		return res
	}
	fill, err := order.FillPrice()
	if err != nil {
		logger.TradeError(t.log, "sell", err, "symbol", t.cfg.Symbol, "order", order.ClientOrderID)
		res.Err = err
		return res
	}

	res.Sold = true
	res.Quantity = order.ExecutedQty
	res.FillPrice = fill

	profit := "n/a"
	if entry.Valid {
		res.Profit = decimal.NewNullDecimal(fill.Sub(entry.Decimal).Mul(order.ExecutedQty))
		profit = res.Profit.Decimal.StringFixed(4)
	}

	t.mu.Lock()
	quote := t.st.balances.Quote
	t.mu.Unlock()

	logger.Trade(t.log, "sell",
		"quantity", order.ExecutedQty,
		"symbol", t.cfg.Symbol,
		"price", fill,
		"reason", reason,
		"profit", profit,
		"quote_balance", quote.StringFixed(4),
	)
	t.notifier.Notify(ctx, fmt.Sprintf("🔴 SELL %s %s @ %s (%s, pnl %s)", order.ExecutedQty, t.cfg.Symbol, fill, reason, profit))
	return res
}

// closePosition enters cooldown, drops the timer and the position, then
// refreshes balances.
func (t *Trader) closePosition(ctx context.Context) {
	t.mu.Lock()
	t.startCooldownLocked()
	t.mu.Unlock()

	t.timer.Stop()

	t.mu.Lock()
	t.st.phase = phaseIdle
	t.st.positionID = ""
	t.st.entryPrice = decimal.NullDecimal{}
	t.st.openedAt = time.Time{}
	t.mu.Unlock()

	_ = t.updateBalances(ctx)
}

func (t *Trader) startCooldownLocked() {
	t.stopCooldownLocked()
	if t.cfg.Cooldown <= 0 {
		return
	}

	t.st.inCooldown = true
	gen := t.cooldownGen
	t.cooldown = time.AfterFunc(t.cfg.Cooldown, func() {
		t.mu.Lock()
		if t.cooldownGen != gen {
			t.mu.Unlock()
			return
		}
		t.st.inCooldown = false
		t.mu.Unlock()
		logger.Trade(t.log, "cooldown", "symbol", t.cfg.Symbol, "state", "finished")
	})
	logger.Trade(t.log, "cooldown", "symbol", t.cfg.Symbol, "state", "started", "duration", t.cfg.Cooldown)
}

func (t *Trader) stopCooldownLocked() {
	t.cooldownGen++
	if t.cooldown != nil {
		t.cooldown.Stop()
		t.cooldown = nil
	}
	t.st.inCooldown = false
}
