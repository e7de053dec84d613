package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CloseReason says why a position was sold.
type CloseReason string

const (
	ReasonStopLoss   CloseReason = "Stop Loss"
	ReasonTakeProfit CloseReason = "Take Profit"
	ReasonTimeout    CloseReason = "Timeout"
	ReasonError      CloseReason = "Error"
)

// Balances holds free amounts for the traded pair.
type Balances struct {
	Quote decimal.Decimal
	Base  decimal.Decimal
}

// Snapshot is a consistent copy of the controller state.
type Snapshot struct {
	Symbol       string
	PositionID   string
	IsOpen       bool
	Closing      bool
	InCooldown   bool
	EntryPrice   decimal.NullDecimal
	CurrentPrice decimal.NullDecimal
	Balances     Balances
	OpenedAt     time.Time
	LastTick     time.Time
}
