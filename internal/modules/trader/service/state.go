package service

import (
	"time"

	"spot_bot/internal/models"

	"github.com/shopspring/decimal"
)

type phase int

const (
	phaseIdle phase = iota
	phaseOpening
	phaseOpen
	phaseClosing
)

func (p phase) String() string {
	switch p {
	case phaseIdle:
		return "idle"
	case phaseOpening:
		return "opening"
	case phaseOpen:
		return "open"
	case phaseClosing:
		return "closing"
	}
	return "unknown"
}

// state is guarded by Trader.mu. The lock is never held across exchange or
// feed I/O.
type state struct {
	phase      phase
	positionID string
	inCooldown bool

	// set only while a position is open and its buy reported a fill
	entryPrice   decimal.NullDecimal
	currentPrice decimal.NullDecimal

	balances models.Balances
	openedAt time.Time
	lastTick time.Time
}

// isOpen is true from the moment a buy is committed until its sell cleanup
// ran. Only phaseOpen positions can be sold.
func (s *state) isOpen() bool {
	return s.phase != phaseIdle
}
