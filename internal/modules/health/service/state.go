package service

import (
	"sync/atomic"
	"time"

	"spot_bot/internal/models"
)

// FeedStatus is the live view of the market data connection.
type FeedStatus interface {
	Connected() bool
	LastMessage() time.Time
}

// PositionSource exposes the trader state.
type PositionSource interface {
	Snapshot() models.Snapshot
}

type State struct {
	ready     atomic.Bool
	startedAt time.Time

	feed     FeedStatus
	position PositionSource
}

func NewState(feed FeedStatus, position PositionSource) *State {
	return &State{
		startedAt: time.Now(),
		feed:      feed,
		position:  position,
	}
}

func (s *State) SetReady(v bool) { s.ready.Store(v) }

// Ready means the app started and the feed is connected.
func (s *State) Ready() bool { return s.ready.Load() && s.feed.Connected() }

func (s *State) WSConnected() bool { return s.feed.Connected() }

func (s *State) LastTick() time.Time { return s.feed.LastMessage() }

func (s *State) Uptime() time.Duration { return time.Since(s.startedAt) }

// Report is the /healthz body.
type Report struct {
	Ready        bool    `json:"ready"`
	WSConnected  bool    `json:"wsConnected"`
	UptimeSec    int64   `json:"uptimeSec"`
	LastTickUnix int64   `json:"lastTickUnix"`
	Symbol       string  `json:"symbol"`
	PositionOpen bool    `json:"positionOpen"`
	InCooldown   bool    `json:"inCooldown"`
	EntryPrice   *string `json:"entryPrice"`
	CurrentPrice *string `json:"currentPrice"`
	QuoteBalance string  `json:"quoteBalance"`
	BaseBalance  string  `json:"baseBalance"`
}

func (s *State) Report() Report {
	snap := s.position.Snapshot()

	r := Report{
		Ready:        s.Ready(),
		WSConnected:  s.WSConnected(),
		UptimeSec:    int64(s.Uptime().Seconds()),
		Symbol:       snap.Symbol,
		PositionOpen: snap.IsOpen,
		InCooldown:   snap.InCooldown,
		QuoteBalance: snap.Balances.Quote.String(),
		BaseBalance:  snap.Balances.Base.String(),
	}
	if t := s.LastTick(); !t.IsZero() {
		r.LastTickUnix = t.Unix()
	}
	if snap.EntryPrice.Valid {
		v := snap.EntryPrice.Decimal.String()
		r.EntryPrice = &v
	}
	if snap.CurrentPrice.Valid {
		v := snap.CurrentPrice.Decimal.String()
		r.CurrentPrice = &v
	}
	return r
}
