package service

import (
	"context"
	"sync"

	"spot_bot/internal/models"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

var ErrPaperInsufficient = errors.New("paper: insufficient balance")

// PriceSource gives the price a paper order fills at.
type PriceSource interface {
	LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error)
}

// Paper is an in-memory exchange for one symbol. Market orders fill in full at
// the price reported by the source.
type Paper struct {
	prices PriceSource
	symbol string
	base   string
	quote  string
	log    *zap.Logger

	mu       sync.Mutex
	balances map[string]decimal.Decimal
}

func NewPaper(prices PriceSource, symbol, base, quote string, initialQuote decimal.Decimal, log *zap.Logger) *Paper {
	return &Paper{
		prices: prices,
		symbol: symbol,
		base:   base,
		quote:  quote,
		log:    log,
		balances: map[string]decimal.Decimal{
			quote: initialQuote,
			base:  decimal.Zero,
		},
	}
}

func (p *Paper) PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty decimal.Decimal) (*models.Order, error) {
	if symbol != p.symbol {
		return nil, errors.Errorf("paper: unsupported symbol %s", symbol)
	}
	if !qty.IsPositive() {
		return nil, errors.Errorf("paper: quantity must be > 0, got %s", qty)
	}

	price, err := p.prices.LastPrice(ctx, symbol)
	if err != nil {
		return nil, errors.Wrap(err, "paper: fill price")
	}
	cost := qty.Mul(price)

	p.mu.Lock()
	defer p.mu.Unlock()

	switch side {
	case models.SideBuy:
		if cost.GreaterThan(p.balances[p.quote]) {
			return nil, errors.Wrapf(ErrPaperInsufficient, "need %s %s, have %s", cost, p.quote, p.balances[p.quote])
		}
		p.balances[p.quote] = p.balances[p.quote].Sub(cost)
		p.balances[p.base] = p.balances[p.base].Add(qty)
	case models.SideSell:
		if qty.GreaterThan(p.balances[p.base]) {
			return nil, errors.Wrapf(ErrPaperInsufficient, "need %s %s, have %s", qty, p.base, p.balances[p.base])
		}
		p.balances[p.base] = p.balances[p.base].Sub(qty)
		p.balances[p.quote] = p.balances[p.quote].Add(cost)
	default:
		return nil, errors.Errorf("paper: unknown side %q", side)
	}

	p.log.Info("paper fill",
		zap.String("side", string(side)), zap.String("qty", qty.String()),
		zap.String("price", price.String()))

	return &models.Order{
		ClientOrderID: uuid.NewString(),
		Symbol:        symbol,
		Side:          side,
		ExecutedQty:   qty,
		CumQuoteQty:   cost,
	}, nil
}

// Balances reports only positive free balances, like the live account endpoint.
func (p *Paper) Balances(context.Context) (map[string]decimal.Decimal, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	out := make(map[string]decimal.Decimal, len(p.balances))
	for asset, v := range p.balances {
		if v.IsPositive() {
			out[asset] = v
		}
	}
	return out, nil
}

func (p *Paper) Close() error { return nil }
