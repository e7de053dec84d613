package service

import (
	"fmt"
	"strings"

	"github.com/bytedance/sonic"
	"go.uber.org/zap"
)

// TradeStreamURL builds <base>/<symbol>@trade.
func TradeStreamURL(base, symbol string) string {
	return fmt.Sprintf("%s/%s@trade", strings.TrimRight(base, "/"), strings.ToLower(symbol))
}

type tradeFrame struct {
	EventType string `json:"e"`
	Symbol    string `json:"s"`
	Price     string `json:"p"`
	Quantity  string `json:"q"`
	TradeTime int64  `json:"T"`
}

// TradeHandler extracts trade prices from the Binance trade stream.
type TradeHandler struct {
	name string
	log  *zap.Logger
}

func NewTradeHandler(log *zap.Logger) *TradeHandler {
	return &TradeHandler{name: "BinanceWS", log: log}
}

func (h *TradeHandler) OnConnect(url string) {
	h.log.Info(fmt.Sprintf("[%s] Connected to %s", h.name, url))
}

func (h *TradeHandler) OnMessage(msg []byte) (string, bool) {
	var f tradeFrame
	if err := sonic.Unmarshal(msg, &f); err != nil {
		h.log.Debug(fmt.Sprintf("[%s] drop undecodable frame", h.name), zap.Error(err))
		return "", false
	}
	if f.Price == "" {
		return "", false
	}
	return f.Price, true
}

func (h *TradeHandler) OnDisconnect(url string) {
	h.log.Info(fmt.Sprintf("[%s] Disconnected from %s", h.name, url))
}

func (h *TradeHandler) OnError(err error) {
	h.log.Warn(fmt.Sprintf("[%s] Error", h.name), zap.Error(err))
}
