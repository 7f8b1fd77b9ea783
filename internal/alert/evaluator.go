package alert

import (
	"errors"
	"fmt"
	"time"

	"cryptopulse/internal/history"
	"cryptopulse/pkg/marketdata"

	"go.uber.org/zap"
)

// History is the read-only view of the price ring the evaluator needs.
type History interface {
	Latest(symbol string, n int) []history.Sample
	Capacity() int
}

// TriggerEvent is emitted once per definition that fired in a pass.
type TriggerEvent struct {
	AlertID      string             `json:"alertId"`
	Owner        string             `json:"owner,omitempty"`
	Symbol       string             `json:"symbol"`
	Kind         Kind               `json:"alertType"`
	TriggerPrice float64            `json:"triggerPrice"`
	TriggerData  map[string]float64 `json:"triggerData"`
	Message      string             `json:"message"`
	TriggeredAt  time.Time          `json:"triggeredAt"`
	Definition   Definition         `json:"definition"`
}

type Evaluator struct {
	history History
	logger  *zap.Logger
	now     func() time.Time
}

type EvaluatorOption func(*Evaluator)

// WithClock sets the time source used for trigger stamps and cooldown rearm.
func WithClock(now func() time.Time) EvaluatorOption {
	return func(e *Evaluator) { e.now = now }
}

func NewEvaluator(h History, logger *zap.Logger, opts ...EvaluatorOption) *Evaluator {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Evaluator{history: h, logger: logger, now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Evaluate runs every active definition once against records and returns the triggers.
// A failing definition never stops the others.
func (e *Evaluator) Evaluate(records map[string]marketdata.Record, defs []*Definition) []TriggerEvent {
	now := e.now()
	var events []TriggerEvent

	for _, def := range defs {
		def.rearm(now)
		if def.Status != StatusActive {
			continue
		}

		rec, ok := records[def.Symbol]
		if !ok {
			continue
		}

		fired, err := e.evaluateOne(def, rec)
		if err != nil {
			e.logger.Warn("alert evaluation failed",
				zap.String("alert", def.ID),
				zap.String("symbol", def.Symbol),
				zap.String("kind", string(def.Kind)),
				zap.Error(err))
			if errors.Is(err, ErrInvalidRule) {
				def.Status = StatusInvalid
				def.LastError = err.Error()
			}
			continue
		}
		if !fired {
			continue
		}

		def.markTriggered(now)
		events = append(events, TriggerEvent{
			AlertID:      def.ID,
			Owner:        def.Owner,
			Symbol:       def.Symbol,
			Kind:         def.Kind,
			TriggerPrice: rec.Price,
			TriggerData: map[string]float64{
				"price":            rec.Price,
				"percentChange24h": rec.PercentChange24h,
				"volume24h":        rec.Volume24h,
				"marketCap":        rec.MarketCap,
				"galaxyScore":      rec.GalaxyScore,
				"altRank":          float64(rec.AltRank),
			},
			Message:     describe(def.Condition, rec),
			TriggeredAt: now,
			Definition:  def.Snapshot(),
		})
	}
	return events
}

func (e *Evaluator) evaluateOne(def *Definition, rec marketdata.Record) (fired bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			fired = false
			err = &RuleEvaluationError{AlertID: def.ID, Kind: def.Kind, Cause: fmt.Errorf("panic: %v", r)}
		}
	}()

	capacity := 0
	if e.history != nil {
		capacity = e.history.Capacity()
	}
	if err := Validate(def.Condition, capacity); err != nil {
		return false, &RuleEvaluationError{AlertID: def.ID, Kind: def.Kind, Cause: err}
	}

	fired, err = e.check(def.Condition, rec)
	if err != nil {
		return false, &RuleEvaluationError{AlertID: def.ID, Kind: def.Kind, Cause: err}
	}
	return fired, nil
}
