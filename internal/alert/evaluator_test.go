package alert

import (
	"testing"
	"time"

	"cryptopulse/internal/history"
	"cryptopulse/pkg/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

var t0 = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// seed appends one sample per price and returns the record matching the newest one.
func seed(book *history.Book, symbol string, prices, volumes []float64) marketdata.Record {
	var rec marketdata.Record
	for i, p := range prices {
		at := t0.Add(time.Duration(i) * time.Second)
		vol := 0.0
		if i < len(volumes) {
			vol = volumes[i]
		}
		book.Append(symbol, history.Sample{Price: p, Volume: vol, At: at})
		rec = marketdata.Record{Symbol: symbol, Price: p, Volume24h: vol, UpdatedAt: at}
	}
	return rec
}

func newDef(owner, symbol string, cond Condition) *Definition {
	return &Definition{
		ID:        symbol + "-" + string(cond.Kind()),
		Owner:     owner,
		Symbol:    symbol,
		Kind:      cond.Kind(),
		Condition: cond,
		Status:    StatusActive,
		CreatedAt: t0,
	}
}

// go test -v --run TestOneShotPriceAbove
func TestOneShotPriceAbove(t *testing.T) {
	book := history.NewBook(200)
	ev := NewEvaluator(book, zaptest.NewLogger(t))
	def := newDef("s1", "bitcoin", PriceAbove{Threshold: 100})
	defs := []*Definition{def}

	var all []TriggerEvent
	for i, price := range []float64{90, 110, 120} {
		rec := marketdata.Record{Symbol: "bitcoin", Price: price, UpdatedAt: t0.Add(time.Duration(i) * time.Second)}
		book.Append("bitcoin", history.Sample{Price: price, At: rec.UpdatedAt})
		events := ev.Evaluate(map[string]marketdata.Record{"bitcoin": rec}, defs)
		if i == 1 {
			require.Len(t, events, 1)
			assert.Equal(t, 110.0, events[0].TriggerPrice)
		}
		all = append(all, events...)
	}

	require.Len(t, all, 1)
	assert.Equal(t, StatusTriggered, def.Status)
	assert.Equal(t, 1, def.TriggerCount)
	require.NotNil(t, def.TriggeredAt)
	assert.Equal(t, "s1", all[0].Owner)
	assert.Equal(t, StatusTriggered, all[0].Definition.Status)
	assert.NotEmpty(t, all[0].Message)
}

// go test -v --run TestRuleIsolation
func TestRuleIsolation(t *testing.T) {
	book := history.NewBook(200)
	rec := seed(book, "bitcoin", []float64{100, 105, 110}, nil)
	ev := NewEvaluator(book, zaptest.NewLogger(t))

	tooLong := newDef("s1", "bitcoin", MACross{Period: 500, Direction: Up})
	pending := newDef("s1", "bitcoin", MACross{Period: 50, Direction: Up})
	valid := newDef("s1", "bitcoin", PriceAbove{Threshold: 100})
	valid.ID = "valid"

	var events []TriggerEvent
	require.NotPanics(t, func() {
		events = ev.Evaluate(map[string]marketdata.Record{"bitcoin": rec}, []*Definition{tooLong, pending, valid})
	})

	require.Len(t, events, 1)
	assert.Equal(t, "valid", events[0].AlertID)

	// history can never hold 501 samples
	assert.Equal(t, StatusInvalid, tooLong.Status)
	assert.NotEmpty(t, tooLong.LastError)

	// not enough history yet, still pending
	assert.Equal(t, StatusActive, pending.Status)
}

type panickyHistory struct{}

func (panickyHistory) Latest(string, int) []history.Sample { panic("corrupt ring") }
func (panickyHistory) Capacity() int                       { return 200 }

// go test -v --run TestRulePanicIsolated
func TestRulePanicIsolated(t *testing.T) {
	ev := NewEvaluator(panickyHistory{}, zaptest.NewLogger(t))
	rec := marketdata.Record{Symbol: "bitcoin", Price: 150}

	broken := newDef("s1", "bitcoin", Momentum{Period: 3, Threshold: 1})
	valid := newDef("s1", "bitcoin", PriceAbove{Threshold: 100})

	events := ev.Evaluate(map[string]marketdata.Record{"bitcoin": rec}, []*Definition{broken, valid})

	require.Len(t, events, 1)
	assert.Equal(t, valid.ID, events[0].AlertID)
	assert.Equal(t, StatusActive, broken.Status, "a failed evaluation leaves the definition unmodified")
	assert.Zero(t, broken.TriggerCount)
}

// go test -v --run TestEvaluateSkipsMissingAndInactive
func TestEvaluateSkipsMissingAndInactive(t *testing.T) {
	ev := NewEvaluator(history.NewBook(200), zaptest.NewLogger(t))
	records := map[string]marketdata.Record{"bitcoin": {Symbol: "bitcoin", Price: 200}}

	missing := newDef("", "ethereum", PriceAbove{Threshold: 1})
	disabled := newDef("", "bitcoin", PriceAbove{Threshold: 1})
	disabled.Disable()

	events := ev.Evaluate(records, []*Definition{missing, disabled})
	assert.Empty(t, events)
	assert.Equal(t, StatusActive, missing.Status)
	assert.Equal(t, StatusDisabled, disabled.Status)

	require.NoError(t, disabled.Enable())
	events = ev.Evaluate(records, []*Definition{disabled})
	assert.Len(t, events, 1)
}

// go test -v --run TestCooldownRearm
func TestCooldownRearm(t *testing.T) {
	now := t0
	ev := NewEvaluator(history.NewBook(200), zaptest.NewLogger(t), WithClock(func() time.Time { return now }))

	def := newDef("", "bitcoin", PercentChange{Threshold: 5})
	def.Cooldown = time.Hour
	records := map[string]marketdata.Record{"bitcoin": {Symbol: "bitcoin", Price: 1, PercentChange24h: -7}}

	events := ev.Evaluate(records, []*Definition{def})
	require.Len(t, events, 1)
	assert.Equal(t, t0, events[0].TriggeredAt)
	require.NotNil(t, def.TriggeredAt)
	assert.Equal(t, t0, *def.TriggeredAt)

	now = now.Add(30 * time.Minute)
	assert.Empty(t, ev.Evaluate(records, []*Definition{def}))

	now = now.Add(30 * time.Minute)
	assert.Len(t, ev.Evaluate(records, []*Definition{def}), 1)
	assert.Equal(t, 2, def.TriggerCount)
}

// go test -v --run TestReset
func TestReset(t *testing.T) {
	ev := NewEvaluator(history.NewBook(200), zaptest.NewLogger(t))
	def := newDef("s1", "bitcoin", PriceBelow{Threshold: 50})
	records := map[string]marketdata.Record{"bitcoin": {Symbol: "bitcoin", Price: 40}}

	assert.Len(t, ev.Evaluate(records, []*Definition{def}), 1)
	assert.Empty(t, ev.Evaluate(records, []*Definition{def}))

	require.NoError(t, def.Reset())
	assert.Len(t, ev.Evaluate(records, []*Definition{def}), 1)
}

// go test -v --run TestConditions
func TestConditions(t *testing.T) {
	tests := []struct {
		name    string
		cond    Condition
		prices  []float64
		volumes []float64
		mutate  func(r *marketdata.Record)
		want    bool
	}{
		{"price above equal", PriceAbove{Threshold: 100}, []float64{100}, nil, nil, true},
		{"price above below", PriceAbove{Threshold: 100}, []float64{99.99}, nil, nil, false},
		{"price below", PriceBelow{Threshold: 100}, []float64{100}, nil, nil, true},
		{"percent change negative", PercentChange{Threshold: 5}, []float64{1}, nil,
			func(r *marketdata.Record) { r.PercentChange24h = -6 }, true},
		{"percent change negative threshold", PercentChange{Threshold: -5}, []float64{1}, nil,
			func(r *marketdata.Record) { r.PercentChange24h = 4.9 }, false},
		{"volume absolute", VolumeSpike{Threshold: 1000}, []float64{1}, []float64{1000}, nil, true},
		{"volume multiplier", VolumeSpike{Multiplier: 2, Period: 3}, []float64{1, 1, 1, 1}, []float64{10, 10, 10, 25}, nil, true},
		{"volume multiplier short", VolumeSpike{Multiplier: 2, Period: 3}, []float64{1, 1}, []float64{10, 25}, nil, false},
		{"ma cross up", MACross{Period: 3, Direction: Up}, []float64{10, 10, 10, 9, 12}, nil, nil, true},
		{"ma cross up wrong direction", MACross{Period: 3, Direction: Down}, []float64{10, 10, 10, 9, 12}, nil, nil, false},
		{"ma cross down", MACross{Period: 3}, []float64{10, 10, 11, 8}, nil, nil, true},
		{"ma cross short history", MACross{Period: 3}, []float64{10, 12}, nil, nil, false},
		{"momentum up", Momentum{Period: 2, Threshold: 5, Direction: Up}, []float64{100, 102, 106}, nil, nil, true},
		{"momentum down miss", Momentum{Period: 2, Threshold: 5, Direction: Down}, []float64{100, 102, 106}, nil, nil, false},
		{"volatility high", Volatility{Period: 3, Threshold: 1}, []float64{100, 110, 99, 110}, nil, nil, true},
		{"volatility flat", Volatility{Period: 3, Threshold: 1}, []float64{100, 100, 100, 100}, nil, nil, false},
		{"resistance break", SupportResistance{Level: 100, Direction: Up}, []float64{99, 101}, nil, nil, true},
		{"support break", SupportResistance{Level: 100, Direction: Down}, []float64{101, 99}, nil, nil, true},
		{"no break", SupportResistance{Level: 100}, []float64{101, 102}, nil, nil, false},
		{"bullish divergence", SentimentDivergence{ScoreThreshold: 60, PriceChange: 3, Direction: Up}, []float64{1}, nil,
			func(r *marketdata.Record) { r.GalaxyScore = 70; r.PercentChange24h = -5 }, true},
		{"bearish divergence", SentimentDivergence{ScoreThreshold: 40, PriceChange: 3, Direction: Down}, []float64{1}, nil,
			func(r *marketdata.Record) { r.GalaxyScore = 30; r.PercentChange24h = 4 }, true},
		{"divergence without sentiment", SentimentDivergence{ScoreThreshold: 40, PriceChange: 3}, []float64{1}, nil,
			func(r *marketdata.Record) { r.PercentChange24h = 4 }, false},
		{"social momentum", SocialMomentum{MinScore: 60, MaxRank: 10}, []float64{1}, nil,
			func(r *marketdata.Record) { r.GalaxyScore = 70; r.AltRank = 5 }, true},
		{"social momentum unranked", SocialMomentum{MinScore: 60, MaxRank: 10}, []float64{1}, nil,
			func(r *marketdata.Record) { r.GalaxyScore = 70 }, false},
		{"composite all true", Composite{All: []Condition{PriceAbove{Threshold: 100}, VolumeSpike{Threshold: 50}}},
			[]float64{120}, []float64{60}, nil, true},
		{"composite one false", Composite{All: []Condition{PriceAbove{Threshold: 100}, VolumeSpike{Threshold: 50}}},
			[]float64{120}, []float64{40}, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			book := history.NewBook(200)
			rec := seed(book, "bitcoin", tt.prices, tt.volumes)
			if tt.mutate != nil {
				tt.mutate(&rec)
			}

			ev := NewEvaluator(book, zaptest.NewLogger(t))
			def := newDef("s1", "bitcoin", tt.cond)
			events := ev.Evaluate(map[string]marketdata.Record{"bitcoin": rec}, []*Definition{def})

			assert.Equal(t, tt.want, len(events) == 1)
			assert.NotEqual(t, StatusInvalid, def.Status, def.LastError)
		})
	}
}
