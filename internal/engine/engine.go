// Package engine runs the broadcast loop: one goroutine owns sessions, records,
// price history and alert definitions, and every mutation is a closure run on it.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync/atomic"
	"time"

	"cryptopulse/internal/alert"
	"cryptopulse/internal/cache"
	"cryptopulse/internal/history"
	"cryptopulse/internal/session"
	"cryptopulse/pkg/marketdata"

	"go.uber.org/zap"
)

type State string

const (
	StateIdle         State = "idle"
	StateInitializing State = "initializing"
	StateActive       State = "active"
	StateStopping     State = "stopping"
)

var ErrStopped = errors.New("engine stopped")

// Metrics are the cache counters the engine reports.
type Metrics = cache.Metrics

// DataSource is the cache-aware market data the engine refreshes from.
type DataSource interface {
	Get(ctx context.Context, symbol string, force bool) (marketdata.Record, error)
	Metrics() *Metrics
	Enabled() bool
}

// TriggerSink persists trigger events. It is called off the loop.
type TriggerSink interface {
	SaveTriggers(ctx context.Context, events []alert.TriggerEvent) error
}

type Config struct {
	Symbols         []string
	TickInterval    time.Duration
	FetchTimeout    time.Duration
	HistoryCapacity int
	DefaultAlerts   []alert.Params
}

type Option func(*Engine)

func WithLogger(l *zap.Logger) Option { return func(e *Engine) { e.logger = l } }

func WithTriggerSink(s TriggerSink) Option { return func(e *Engine) { e.sink = s } }

func WithClock(now func() time.Time) Option { return func(e *Engine) { e.now = now } }

type Engine struct {
	cfg    Config
	source DataSource
	sink   TriggerSink
	logger *zap.Logger
	now    func() time.Time

	cmds    chan func()
	stopped chan struct{}
	running atomic.Bool
	state   atomic.Value // State

	// owned by the loop
	runCtx       context.Context
	registry     *session.Registry
	records      map[string]marketdata.Record
	history      *history.Book
	evaluator    *alert.Evaluator
	globals      []*alert.Definition
	ticker       *time.Ticker
	tickC        <-chan time.Time
	refreshing   bool
	pendingForce bool
	waiters      []chan struct{}
	initialized  bool
	initErr      *InitializationError
	lastRefresh  time.Time
}

// New builds an idle engine. Default alerts that fail to parse are an error.
func New(cfg Config, source DataSource, opts ...Option) (*Engine, error) {
	if len(cfg.Symbols) == 0 {
		return nil, errors.New("engine: no symbols configured")
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = 30 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = 10 * time.Second
	}
	if cfg.HistoryCapacity <= 0 {
		cfg.HistoryCapacity = history.DefaultCapacity
	}

	e := &Engine{
		cfg:     cfg,
		source:  source,
		logger:  zap.NewNop(),
		now:     time.Now,
		cmds:    make(chan func(), 64),
		stopped: make(chan struct{}),
		records: make(map[string]marketdata.Record),
		history: history.NewBook(cfg.HistoryCapacity),
	}
	for _, opt := range opts {
		opt(e)
	}
	e.state.Store(StateIdle)
	e.registry = session.NewRegistry(cfg.Symbols, e.logger.Named("sessions"))
	e.evaluator = alert.NewEvaluator(e.history, e.logger.Named("alerts"), alert.WithClock(e.now))

	for i, p := range cfg.DefaultAlerts {
		def, err := alert.NewDefinition("", p, e.now())
		if err != nil {
			return nil, fmt.Errorf("default alert %d: %w", i, err)
		}
		if err := alert.Validate(def.Condition, cfg.HistoryCapacity); err != nil {
			return nil, fmt.Errorf("default alert %d: %w", i, err)
		}
		e.globals = append(e.globals, def)
	}
	return e, nil
}

// State is safe to call from any goroutine.
func (e *Engine) State() State {
	return e.state.Load().(State)
}

func (e *Engine) setState(s State) {
	prev := e.State()
	if prev == s {
		return
	}
	e.state.Store(s)
	e.logger.Info("engine state", zap.String("from", string(prev)), zap.String("to", string(s)))
}

// Run processes commands and ticks until ctx is done. It may be called once.
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return errors.New("engine: already running")
	}
	e.runCtx = ctx
	defer close(e.stopped)

	for {
		select {
		case <-ctx.Done():
			e.shutdown()
			return ctx.Err()
		case fn := <-e.cmds:
			e.safely("command", fn)
		case <-e.tickC:
			e.safely("tick", e.onTick)
		}
	}
}

// do runs fn on the loop and waits for it.
func (e *Engine) do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	wrapped := func() {
		defer close(done)
		fn()
	}

	select {
	case e.cmds <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
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

// post queues fn without waiting for it.
func (e *Engine) post(fn func()) {
	select {
	case e.cmds <- fn:
	case <-e.stopped:
	}
}

// safely contains a programming error to the current command or tick.
func (e *Engine) safely(what string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("engine panic recovered",
				zap.String("in", what),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			e.registry.SendAll(session.SystemError{
				Type:      session.TypeSystemError,
				Message:   "internal error, the last update was skipped",
				Timestamp: e.now(),
			})
		}
	}()
	fn()
}

func (e *Engine) shutdown() {
	e.stopTicker()
	e.registry.CloseAll()
	e.setState(StateIdle)
	e.releaseWaiters()
}
