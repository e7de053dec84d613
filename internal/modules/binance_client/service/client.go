package service

import (
	"context"
	"net/http"
	"sync"
	"time"

	"spot_bot/internal/models"
	"spot_bot/pkg/tracing"

	"github.com/adshao/go-binance/v2"
	"github.com/google/uuid"
	"github.com/opentracing/opentracing-go"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type Config struct {
	APIKey    string
	APISecret string
	BaseURL   string
	Testnet   bool
	Timeout   time.Duration
}

// Client places spot market orders and reads account balances on Binance.
type Client struct {
	api *binance.Client
	log *zap.Logger

	closeOnce sync.Once
}

func NewClient(cfg Config, log *zap.Logger) *Client {
	if cfg.Testnet {
		binance.UseTestnet = true
	}
	api := binance.NewClient(cfg.APIKey, cfg.APISecret)
	if cfg.BaseURL != "" && !cfg.Testnet {
		api.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	api.HTTPClient = &http.Client{Timeout: timeout}

	return &Client{
		api: api,
		log: log,
	}
}

// PlaceMarketOrder sends a MARKET order and returns the confirmed fill.
func (c *Client) PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty decimal.Decimal) (order *models.Order, err error) {
	span, ctx := tracing.StartSpan(ctx, "binance.new_order", opentracing.Tags{
		"symbol": symbol,
		"side":   string(side),
		"qty":    qty.String(),
	})
	defer func() { tracing.Finish(span, err) }()

	var sideType binance.SideType
	switch side {
	case models.SideBuy:
		sideType = binance.SideTypeBuy
	case models.SideSell:
		sideType = binance.SideTypeSell
	default:
		return nil, errors.Errorf("unknown side %q", side)
	}

	clientID := uuid.NewString()
	resp, err := c.api.NewCreateOrderService().
		Symbol(symbol).
		Side(sideType).
		Type(binance.OrderTypeMarket).
		Quantity(qty.String()).
		NewClientOrderID(clientID).
		NewOrderRespType(binance.NewOrderRespTypeRESULT).
		Do(ctx)
	if err != nil {
		c.log.Error("order request failed",
			zap.String("symbol", symbol), zap.String("side", string(side)),
			zap.String("qty", qty.String()), zap.Error(err))
		return nil, errors.Wrap(err, "binance: new order")
	}

	executed, err := decimal.NewFromString(resp.ExecutedQuantity)
	if err != nil {
		return nil, errors.Wrapf(err, "binance: parse executedQty %q", resp.ExecutedQuantity)
	}
	quote, err := decimal.NewFromString(resp.CummulativeQuoteQuantity)
	if err != nil {
		return nil, errors.Wrapf(err, "binance: parse cummulativeQuoteQty %q", resp.CummulativeQuoteQuantity)
	}

	c.log.Info("order placed",
		zap.String("symbol", symbol), zap.String("side", string(side)),
		zap.Int64("orderId", resp.OrderID), zap.String("clientOrderId", clientID),
		zap.String("executedQty", resp.ExecutedQuantity),
		zap.String("cummulativeQuoteQty", resp.CummulativeQuoteQuantity))

	return &models.Order{
		ClientOrderID: clientID,
		Symbol:        symbol,
		Side:          side,
		ExecutedQty:   executed,
		CumQuoteQty:   quote,
	}, nil
}

// Balances returns free amounts of every asset with a positive free balance.
func (c *Client) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	account, err := c.api.NewGetAccountService().Do(ctx)
	if err != nil {
		return nil, errors.Wrap(err, "binance: get account")
	}

	out := make(map[string]decimal.Decimal, len(account.Balances))
	for _, b := range account.Balances {
		free, err := decimal.NewFromString(b.Free)
		if err != nil {
			c.log.Warn("skip unparsable balance", zap.String("asset", b.Asset), zap.String("free", b.Free))
			continue
		}
		if free.IsPositive() {
			out[b.Asset] = free
		}
	}
	return out, nil
}

// LastPrice reads the public ticker price of symbol.
func (c *Client) LastPrice(ctx context.Context, symbol string) (decimal.Decimal, error) {
	prices, err := c.api.NewListPricesService().Symbol(symbol).Do(ctx)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "binance: ticker price")
	}
	if len(prices) == 0 {
		return decimal.Zero, errors.Errorf("binance: no price data for %s", symbol)
	}
	p, err := decimal.NewFromString(prices[0].Price)
	if err != nil {
		return decimal.Zero, errors.Wrapf(err, "binance: parse price %q", prices[0].Price)
	}
	return p, nil
}

// Ping checks REST connectivity.
func (c *Client) Ping(ctx context.Context) error {
	if err := c.api.NewPingService().Do(ctx); err != nil {
		return errors.Wrap(err, "binance: ping")
	}
	return nil
}

// Close releases idle HTTP connections. Safe to call more than once.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.api.HTTPClient.CloseIdleConnections()
		c.log.Info("API client closed")
	})
	return nil
}
