package models

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Side is the direction of a market order.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// ErrEmptyFill is returned when an order reports no executed quantity.
var ErrEmptyFill = errors.New("order has no executed quantity")

// Order is the exchange-confirmed result of a market order. It lives only for
// the duration of the buy/sell call that produced it.
type Order struct {
	ClientOrderID string
	Symbol        string
	Side          Side
	ExecutedQty   decimal.Decimal
	CumQuoteQty   decimal.Decimal
}

// FillPrice = cumulative quote amount / executed quantity.
func (o *Order) FillPrice() (decimal.Decimal, error) {
	if o == nil || o.ExecutedQty.IsZero() {
		return decimal.Zero, ErrEmptyFill
	}
	return o.CumQuoteQty.Div(o.ExecutedQty), nil
}
