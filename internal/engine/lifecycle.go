package engine

import (
	"context"
	"time"

	"cryptopulse/internal/session"

	"go.uber.org/zap"
)

// Connect registers conn as a new session. The first session starts the scheduler.
// The session gets a connected message at once and the snapshot as soon as data is loaded.
func (e *Engine) Connect(ctx context.Context, conn session.Conn) (*session.Session, error) {
	var (
		s       *session.Session
		sendErr error
	)
	err := e.do(ctx, func() {
		s = e.registry.Register(conn)

		sendErr = e.registry.SendTo(s.ID, session.Connected{
			Type:           session.TypeConnected,
			SessionID:      s.ID,
			Initialized:    e.initialized,
			ActiveSessions: e.registry.Len(),
			CacheEnabled:   e.source.Enabled(),
			Symbols:        e.registry.Symbols(),
			Timestamp:      e.now(),
		})
		if sendErr != nil {
			e.afterSend()
			return
		}

		switch e.State() {
		case StateIdle:
			e.setState(StateInitializing)
			e.startRefresh(false)
		case StateInitializing:
			// the load already in flight serves this session too
		case StateActive:
			e.sendSnapshot(s.ID, session.TypeDataUpdate)
		}
	})
	if err != nil {
		return nil, err
	}
	if sendErr != nil {
		return nil, sendErr
	}
	return s, nil
}

// Disconnect removes a session. The last one leaving stops the scheduler.
func (e *Engine) Disconnect(ctx context.Context, id string) error {
	return e.do(ctx, func() {
		if e.registry.Unregister(id) {
			e.afterSend()
		}
	})
}

// SessionCount is answered by the loop.
func (e *Engine) SessionCount(ctx context.Context) (int, error) {
	var n int
	err := e.do(ctx, func() { n = e.registry.Len() })
	return n, err
}

// afterSend stops the scheduler once no session is left, whether they
// disconnected or were dropped by a failed send.
func (e *Engine) afterSend() {
	if e.registry.Len() > 0 {
		return
	}
	switch e.State() {
	case StateActive, StateInitializing:
		e.stop()
	}
}

func (e *Engine) stop() {
	e.setState(StateStopping)
	e.stopTicker()
	e.pendingForce = false
	e.setState(StateIdle)
}

func (e *Engine) startTicker() {
	if e.ticker != nil {
		return
	}
	e.ticker = time.NewTicker(e.cfg.TickInterval)
	e.tickC = e.ticker.C
	e.logger.Info("scheduler started", zap.Duration("interval", e.cfg.TickInterval))
}

func (e *Engine) stopTicker() {
	if e.ticker == nil {
		return
	}
	e.ticker.Stop()
	e.ticker = nil
	e.tickC = nil
	e.logger.Info("scheduler stopped")
}

func (e *Engine) onTick() {
	if e.registry.Len() == 0 {
		e.stop()
		return
	}
	e.startRefresh(false)
}
