package service

import (
	"context"
	"sync"
	"time"

	"spot_bot/internal/models"
	"spot_bot/pkg/logger"

	"go.uber.org/zap"
)

// positionTimer fires at most once per Start. Stop only cancels, it never
// waits, so the fire callback may call Stop itself.
type positionTimer struct {
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// Start arms the timer unless one is still pending. fire receives ctx, not a
// context owned by the timer.
func (p *positionTimer) Start(ctx context.Context, d time.Duration, fire func(context.Context)) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.pendingLocked() {
		return false
	}

	tctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	p.cancel, p.done = cancel, done

	go func() {
		defer close(done)
		defer cancel()

		timer := time.NewTimer(d)
		defer timer.Stop()

		select {
		case <-tctx.Done():
			return
		case <-timer.C:
		}
		if tctx.Err() != nil {
			return
		}
		fire(ctx)
	}()
	return true
}

// Stop cancels a pending timer. Safe to call at any time, any number of times.
func (p *positionTimer) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.cancel != nil {
		p.cancel()
	}
	p.cancel, p.done = nil, nil
}

func (p *positionTimer) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pendingLocked()
}

func (p *positionTimer) pendingLocked() bool {
	if p.done == nil {
		return false
	}
	select {
	case <-p.done:
		return false
	default:
		return true
	}
}

// armPositionTimer never takes t.mu, so it may be called with it held.
func (t *Trader) armPositionTimer(ctx context.Context, positionID string) bool {
	return t.timer.Start(ctx, t.cfg.PositionTimeout, func(ctx context.Context) {
		t.mu.Lock()
		still := t.st.phase == phaseOpen && t.st.positionID == positionID
		t.mu.Unlock()
		if !still {
			return
		}

		logger.Trade(t.log, "timer", "symbol", t.cfg.Symbol, "state", "expired", "after", t.cfg.PositionTimeout)
		t.sell(ctx, models.ReasonTimeout, positionID)
	})
}

func (t *Trader) logTimerStart(positionID string, started bool) {
	if !started {
		t.log.Debug("position timer already running", zap.String("position", positionID))
		return
	}
	logger.Trade(t.log, "timer", "symbol", t.cfg.Symbol, "state", "started", "timeout", t.cfg.PositionTimeout)
}
