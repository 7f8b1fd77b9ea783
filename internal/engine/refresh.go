package engine

import (
	"context"
	"sync"
	"time"

	"cryptopulse/internal/alert"
	"cryptopulse/internal/cache"
	"cryptopulse/internal/history"
	"cryptopulse/internal/session"
	"cryptopulse/pkg/marketdata"

	"go.uber.org/zap"
)

type fetchResult struct {
	symbol string
	rec    marketdata.Record
	err    error
}

// Refresh runs one refresh cycle and waits until its results are applied.
// With force the cache freshness check is skipped for this cycle.
func (e *Engine) Refresh(ctx context.Context, force bool) error {
	done := make(chan struct{})
	err := e.do(ctx, func() {
		e.waiters = append(e.waiters, done)
		e.startRefresh(force)
	})
	if err != nil {
		return err
	}

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
}

// startRefresh fetches every symbol off the loop. Only one refresh is in flight;
// a forced request arriving meanwhile runs right after it.
func (e *Engine) startRefresh(force bool) {
	if e.refreshing {
		if force {
			e.pendingForce = true
		}
		return
	}
	e.refreshing = true

	ctx := e.runCtx
	symbols := append([]string(nil), e.cfg.Symbols...)
	go func() {
		results := e.fetchAll(ctx, symbols, force)
		e.post(func() { e.applyRefresh(results) })
	}()
}

func (e *Engine) fetchAll(ctx context.Context, symbols []string, force bool) []fetchResult {
	results := make([]fetchResult, len(symbols))

	var wg sync.WaitGroup
	for i, sym := range symbols {
		wg.Add(1)
		go func(i int, sym string) {
			defer wg.Done()
			fctx, cancel := context.WithTimeout(ctx, e.cfg.FetchTimeout)
			defer cancel()
			rec, err := e.fetchOne(fctx, sym, force)
			results[i] = fetchResult{symbol: sym, rec: rec, err: err}
		}(i, sym)
	}
	wg.Wait()
	return results
}

// fetchOne gives up at the deadline even if the source ignores ctx.
func (e *Engine) fetchOne(ctx context.Context, symbol string, force bool) (marketdata.Record, error) {
	ch := make(chan fetchResult, 1)
	go func() {
		rec, err := e.source.Get(ctx, symbol, force)
		ch <- fetchResult{symbol: symbol, rec: rec, err: err}
	}()

	select {
	case r := <-ch:
		return r.rec, r.err
	case <-ctx.Done():
		return marketdata.Record{}, &cache.DataUnavailableError{Symbol: symbol, Cause: ctx.Err()}
	}
}

// applyRefresh runs on the loop once a refresh finished.
func (e *Engine) applyRefresh(results []fetchResult) {
	e.refreshing = false
	defer e.releaseWaiters()

	e.lastRefresh = e.now()
	failed := make(map[string]error)
	var unavailable []string

	for _, r := range results {
		if r.err != nil {
			failed[r.symbol] = r.err
			e.logger.Warn("refresh failed", zap.String("symbol", r.symbol), zap.Error(r.err))
			if _, held := e.records[r.symbol]; held {
				continue
			}
			if fb, ok := marketdata.Fallback(r.symbol); ok {
				e.records[r.symbol] = fb
			} else {
				unavailable = append(unavailable, r.symbol)
			}
			continue
		}

		e.records[r.symbol] = r.rec
		e.appendHistory(r.rec)
	}

	switch e.State() {
	case StateInitializing:
		e.initialized = true
		e.initErr = nil
		if len(failed) > 0 {
			e.initErr = &InitializationError{Failed: failed}
			e.logger.Warn("initial load incomplete", zap.Error(e.initErr))
		}
		e.setState(StateActive)
		e.startTicker()
	case StateActive:
	default:
		return // no sessions, keep the data for the next run
	}

	events := e.evaluator.Evaluate(e.records, e.definitions())
	e.registry.Broadcast(session.TypeDataUpdate, e.records, e.source.Metrics().Snapshot())
	for _, sym := range unavailable {
		e.registry.SendToSubscribers(sym, session.SystemError{
			Type:      session.TypeSystemError,
			Message:   "market data unavailable",
			Symbol:    sym,
			Timestamp: e.now(),
		})
	}
	e.deliver(events)
	e.afterSend()

	if e.pendingForce && e.State() == StateActive {
		e.pendingForce = false
		e.startRefresh(true)
	}
}

// appendHistory records a sample once per distinct upstream observation.
func (e *Engine) appendHistory(rec marketdata.Record) {
	switch rec.Provenance {
	case marketdata.ProvenanceLive, marketdata.ProvenanceCache, marketdata.ProvenanceStale:
	default:
		return
	}
	if last := e.history.Latest(rec.Symbol, 1); len(last) == 1 && last[0].At.Equal(rec.UpdatedAt) {
		return
	}
	e.history.Append(rec.Symbol, history.Sample{Price: rec.Price, Volume: rec.Volume24h, At: rec.UpdatedAt})
}

// definitions lists global alerts first, then each session's.
func (e *Engine) definitions() []*alert.Definition {
	defs := append([]*alert.Definition(nil), e.globals...)
	for _, s := range e.registry.Sessions() {
		defs = append(defs, s.Alerts()...)
	}
	return defs
}

// deliver sends session alerts to their owner and global alerts to every subscriber.
func (e *Engine) deliver(events []alert.TriggerEvent) {
	for _, ev := range events {
		msg := session.NewAlertTriggered(ev)
		e.logger.Info("alert triggered",
			zap.String("alert", ev.AlertID),
			zap.String("symbol", ev.Symbol),
			zap.String("kind", string(ev.Kind)),
			zap.Float64("price", ev.TriggerPrice))

		if ev.Owner == "" {
			e.registry.SendToSubscribers(ev.Symbol, msg)
			continue
		}
		if err := e.registry.SendTo(ev.Owner, msg); err != nil {
			e.logger.Debug("alert not delivered", zap.String("alert", ev.AlertID), zap.Error(err))
		}
	}

	if e.sink == nil || len(events) == 0 {
		return
	}
	batch := append([]alert.TriggerEvent(nil), events...)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := e.sink.SaveTriggers(ctx, batch); err != nil {
			e.logger.Warn("failed to persist triggers", zap.Int("count", len(batch)), zap.Error(err))
		}
	}()
}

func (e *Engine) releaseWaiters() {
	for _, w := range e.waiters {
		close(w)
	}
	e.waiters = nil
}

// sendSnapshot sends one session the records it subscribes to.
func (e *Engine) sendSnapshot(id, msgType string) {
	s, ok := e.registry.Get(id)
	if !ok {
		return
	}

	data := make(map[string]session.Record, len(e.records))
	for sym, rec := range e.records {
		if msgType == session.TypeCryptoData || s.Subscribed(sym) {
			data[sym] = session.FormatRecord(rec)
		}
	}

	err := e.registry.SendTo(id, session.Data{
		Type:      msgType,
		Data:      data,
		Metrics:   e.source.Metrics().Snapshot(),
		Timestamp: e.now(),
	})
	if err != nil {
		e.afterSend()
	}
}
