package service

import (
	"context"

	"spot_bot/internal/models"
	"spot_bot/pkg/logger"

	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// PriceChangePct = (current - entry) / entry * 100.
func PriceChangePct(entry, current decimal.Decimal) (decimal.Decimal, error) {
	if entry.IsZero() {
		return decimal.Zero, ErrZeroEntryPrice
	}
	return current.Sub(entry).Div(entry).Mul(hundred), nil
}

// ExitReason reports which threshold pct has crossed. Both bounds are
// inclusive and stop-loss wins if they somehow overlap.
func ExitReason(pct, stopLossPct, takeProfitPct decimal.Decimal) (models.CloseReason, bool) {
	switch {
	case pct.LessThanOrEqual(stopLossPct.Neg()):
		return models.ReasonStopLoss, true
	case pct.GreaterThanOrEqual(takeProfitPct):
		return models.ReasonTakeProfit, true
	}
	return "", false
}

func (t *Trader) checkConditions(ctx context.Context) {
	t.mu.Lock()
	entry := t.st.entryPrice
	current := t.st.currentPrice
	id := t.st.positionID
	t.mu.Unlock()

	if !entry.Valid || entry.Decimal.IsZero() || !current.Valid {
		return
	}

	pct, err := PriceChangePct(entry.Decimal, current.Decimal)
	if err != nil {
		logger.TradeError(t.log, "condition", err, "entry", entry.Decimal, "price", current.Decimal)
		t.sell(ctx, models.ReasonError, id)
		return
	}

	reason, ok := ExitReason(pct, t.cfg.StopLossPct, t.cfg.TakeProfitPct)
	if !ok {
		return
	}
	logger.Trade(t.log, "condition",
		"reason", reason,
		"change_pct", pct.StringFixed(4),
		"entry", entry.Decimal,
		"price", current.Decimal,
	)
	t.sell(ctx, reason, id)
}
