package service

import (
	"context"
	"fmt"
	"time"

	"spot_bot/internal/models"
	"spot_bot/pkg/logger"
	"spot_bot/pkg/tracing"

	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/shopspring/decimal"
)

// BuyResult describes one buy attempt. Opened is set once an order was
// attempted: the position then counts as open and its timeout timer is armed
// even if the exchange rejected the order, so the timeout sell reconciles
// with whatever the account actually holds.
type BuyResult struct {
	Opened     bool
	Filled     bool
	PositionID string
	EntryPrice decimal.Decimal
	Err        error
}

func (t *Trader) buy(ctx context.Context) (res BuyResult) {
	runCtx := ctx
	span, ctx := tracing.StartSpan(ctx, "trader.buy", opentracing.Tags{"symbol": t.cfg.Symbol})
	defer func() { tracing.Finish(span, res.Err) }()

	t.mu.Lock()
	if t.st.phase != phaseIdle || t.st.inCooldown {
		t.mu.Unlock()
		res.Err = ErrNotIdle
		return res
	}
	price := t.st.currentPrice
	quote := t.st.balances.Quote
	if !price.Valid {
		t.mu.Unlock()
		res.Err = ErrNoPrice
		return res
	}
	cost := t.cfg.Quantity.Mul(price.Decimal)
	if quote.LessThan(cost) {
		t.mu.Unlock()
		logger.TradeWarn(t.log, "insufficient_funds",
			"symbol", t.cfg.Symbol,
			"need", cost.StringFixed(4),
			"have", quote.StringFixed(4),
		)
		res.Err = ErrInsufficientFunds
		return res
	}
	t.st.phase = phaseOpening
	t.mu.Unlock()

	id := uuid.NewString()
	// Balances are refreshed before the position becomes sellable, and the
	// timer is armed in the same critical section that opens it.
	defer func() {
		_ = t.updateBalances(ctx)

		t.mu.Lock()
		t.st.phase = phaseOpen
		t.st.positionID = id
		t.st.openedAt = time.Now()
		if res.Filled {
			t.st.entryPrice = decimal.NewNullDecimal(res.EntryPrice)
		}
		started := t.armPositionTimer(runCtx, id)
		t.mu.Unlock()

		t.logTimerStart(id, started)
		res.Opened = true
		res.PositionID = id
	}()

	order, err := t.ex.PlaceMarketOrder(ctx, t.cfg.Symbol, models.SideBuy, t.cfg.Quantity)
	if err != nil {
		logger.TradeError(t.log, "buy", err, "symbol", t.cfg.Symbol, "quantity", t.cfg.Quantity)
		res.Err = err
		return res
	}
	entry, err := order.FillPrice()
	if err != nil {
		logger.TradeError(t.log, "buy", err, "symbol", t.cfg.Symbol, "order", order.ClientOrderID)
		res.Err = err
		return res
	}

	res.Filled = true
	res.EntryPrice = entry
	logger.Trade(t.log, "buy",
		"quantity", order.ExecutedQty,
		"symbol", t.cfg.Symbol,
		"price", entry,
		"quote_balance", quote.StringFixed(4),
		"position", id,
	)
	t.notifier.Notify(ctx, fmt.Sprintf("🟢 BUY %s %s @ %s", order.ExecutedQty, t.cfg.Symbol, entry))
	return res
}
