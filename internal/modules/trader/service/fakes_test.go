package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"spot_bot/internal/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

type fakeExchange struct {
	mu       sync.Mutex
	balances map[string]decimal.Decimal
	fill     decimal.Decimal
	buyErr   error
	sellErr  error
	sellGate chan struct{}

	// holdAfterBuy blocks the first Balances call that follows a buy until
	// it is closed; held is closed once that call is waiting.
	holdAfterBuy chan struct{}
	held         chan struct{}

	orders       []models.Order
	balanceCalls int
}

func newFakeExchange(quote, base, fill string) *fakeExchange {
	return &fakeExchange{
		balances: map[string]decimal.Decimal{"USDT": dec(quote), "BTC": dec(base)},
		fill:     dec(fill),
	}
}

func (f *fakeExchange) PlaceMarketOrder(ctx context.Context, symbol string, side models.Side, qty decimal.Decimal) (*models.Order, error) {
	f.mu.Lock()
	gate := f.sellGate
	f.mu.Unlock()
	if side == models.SideSell && gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	o := models.Order{Symbol: symbol, Side: side, ExecutedQty: qty, CumQuoteQty: qty.Mul(f.fill)}
	f.orders = append(f.orders, o)

	switch side {
	case models.SideBuy:
		if f.buyErr != nil {
			return nil, f.buyErr
		}
		f.balances["USDT"] = f.balances["USDT"].Sub(o.CumQuoteQty)
		f.balances["BTC"] = f.balances["BTC"].Add(qty)
	case models.SideSell:
		if f.sellErr != nil {
			return nil, f.sellErr
		}
		f.balances["BTC"] = f.balances["BTC"].Sub(qty)
		f.balances["USDT"] = f.balances["USDT"].Add(o.CumQuoteQty)
	}
	return &o, nil
}

func (f *fakeExchange) Balances(ctx context.Context) (map[string]decimal.Decimal, error) {
	f.mu.Lock()
	if gate := f.holdAfterBuy; gate != nil && len(f.orders) > 0 && f.orders[len(f.orders)-1].Side == models.SideBuy {
		f.holdAfterBuy = nil
		held := f.held
		f.mu.Unlock()

		close(held)
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		f.mu.Lock()
	}
	defer f.mu.Unlock()

	f.balanceCalls++
	out := make(map[string]decimal.Decimal, len(f.balances))
	for k, v := range f.balances {
		if v.IsPositive() {
			out[k] = v
		}
	}
	return out, nil
}

func (f *fakeExchange) Close() error { return nil }

func (f *fakeExchange) setFill(s string) {
	f.mu.Lock()
	f.fill = dec(s)
	f.mu.Unlock()
}

func (f *fakeExchange) count(side models.Side) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	n := 0
	for _, o := range f.orders {
		if o.Side == side {
			n++
		}
	}
	return n
}

func (f *fakeExchange) sides() []models.Side {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.Side, len(f.orders))
	for i, o := range f.orders {
		out[i] = o.Side
	}
	return out
}

func (f *fakeExchange) balanceCallCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.balanceCalls
}

// fakeFeed returns err straight away when prices is nil, otherwise forwards
// prices until ctx ends.
type fakeFeed struct {
	prices chan string
	err    error
	closed atomic.Bool
}

func (f *fakeFeed) Connect(ctx context.Context, sink chan<- string) error {
	if f.prices == nil {
		return f.err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case p := <-f.prices:
			select {
			case sink <- p:
			case <-ctx.Done():
				return nil
			}
		}
	}
}

func (f *fakeFeed) Close() error {
	f.closed.Store(true)
	return nil
}

type fakeNotifier struct {
	mu   sync.Mutex
	msgs []string
}

func (n *fakeNotifier) Notify(_ context.Context, text string) {
	n.mu.Lock()
	n.msgs = append(n.msgs, text)
	n.mu.Unlock()
}

func (n *fakeNotifier) messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.msgs...)
}

func testConfig() Config {
	return Config{
		Symbol:          "BTCUSDT",
		BaseAsset:       "BTC",
		QuoteAsset:      "USDT",
		Quantity:        dec("0.0001"),
		StopLossPct:     dec("0.25"),
		TakeProfitPct:   dec("0.25"),
		PositionTimeout: time.Hour,
		Cooldown:        time.Hour,
		PollInterval:    5 * time.Millisecond,
		WarmupDelay:     5 * time.Millisecond,
		StaleTimeout:    time.Hour,
	}
}

type harness struct {
	tr     *Trader
	ex     *fakeExchange
	feed   *fakeFeed
	notify *fakeNotifier
	logs   *observer.ObservedLogs
}

func newHarness(ex *fakeExchange, feed *fakeFeed, mutate func(*Config)) *harness {
	cfg := testConfig()
	if mutate != nil {
		mutate(&cfg)
	}
	if feed == nil {
		feed = &fakeFeed{prices: make(chan string)}
	}
	core, logs := observer.New(zapcore.DebugLevel)
	n := &fakeNotifier{}
	return &harness{
		tr:     New(cfg, ex, feed, n, zap.New(core)),
		ex:     ex,
		feed:   feed,
		notify: n,
		logs:   logs,
	}
}

func (h *harness) setPrice(s string) {
	h.tr.mu.Lock()
	h.tr.st.currentPrice = decimal.NewNullDecimal(dec(s))
	h.tr.mu.Unlock()
}

func (h *harness) open(id, entry, base string) {
	h.tr.mu.Lock()
	h.tr.st.phase = phaseOpen
	h.tr.st.positionID = id
	h.tr.st.entryPrice = decimal.NewNullDecimal(dec(entry))
	h.tr.st.balances.Base = dec(base)
	h.tr.mu.Unlock()
}

func (h *harness) logged(snippet string) int {
	return h.logs.FilterMessageSnippet(snippet).Len()
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

var errExchange = errors.New("exchange rejected order")
