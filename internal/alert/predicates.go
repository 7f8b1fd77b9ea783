package alert

import (
	"errors"
	"fmt"
	"math"

	"cryptopulse/internal/history"
	"cryptopulse/pkg/marketdata"

	"github.com/montanaflynn/stats"
)

var errZeroPrice = errors.New("zero price in history")

// check is the single dispatch point over the closed set of conditions.
// Not enough history is not an error: the rule simply does not fire yet.
func (e *Evaluator) check(cond Condition, rec marketdata.Record) (bool, error) {
	switch c := cond.(type) {
	case PriceAbove:
		return rec.Price >= c.Threshold, nil

	case PriceBelow:
		return rec.Price <= c.Threshold, nil

	case PercentChange:
		return math.Abs(rec.PercentChange24h) >= math.Abs(c.Threshold), nil

	case VolumeSpike:
		if c.Threshold > 0 {
			return rec.Volume24h >= c.Threshold, nil
		}
		samples := e.samples(rec, c.Period+1)
		if len(samples) < c.Period+1 {
			return false, nil
		}
		prior := make([]float64, 0, c.Period)
		for _, s := range samples[:c.Period] {
			prior = append(prior, s.Volume)
		}
		avg, err := stats.Mean(prior)
		if err != nil {
			return false, err
		}
		return avg > 0 && rec.Volume24h >= avg*c.Multiplier, nil

	case MACross:
		series := e.prices(rec, c.Period+1)
		if len(series) < c.Period+1 {
			return false, nil
		}
		prevMA, err := stats.Mean(series[:c.Period])
		if err != nil {
			return false, err
		}
		curMA, err := stats.Mean(series[1:])
		if err != nil {
			return false, err
		}
		prev, cur := series[c.Period-1], series[c.Period]
		crossedUp := prev < prevMA && cur >= curMA
		crossedDown := prev > prevMA && cur <= curMA
		return matches(c.Direction, crossedUp, crossedDown), nil

	case Momentum:
		series := e.prices(rec, c.Period+1)
		if len(series) < c.Period+1 {
			return false, nil
		}
		base := series[0]
		if base == 0 {
			return false, errZeroPrice
		}
		roc := (series[len(series)-1] - base) / base * 100
		return matches(c.Direction, roc >= c.Threshold, roc <= -c.Threshold), nil

	case Volatility:
		series := e.prices(rec, c.Period+1)
		if len(series) < c.Period+1 {
			return false, nil
		}
		returns := make([]float64, 0, len(series)-1)
		for i := 1; i < len(series); i++ {
			if series[i-1] == 0 {
				return false, errZeroPrice
			}
			returns = append(returns, (series[i]-series[i-1])/series[i-1])
		}
		sd, err := stats.StandardDeviationSample(returns)
		if err != nil {
			return false, err
		}
		return sd*100 >= c.Threshold, nil

	case SupportResistance:
		series := e.prices(rec, 2)
		if len(series) < 2 {
			return false, nil
		}
		prev, cur := series[0], series[1]
		return matches(c.Direction, prev < c.Level && cur >= c.Level, prev > c.Level && cur <= c.Level), nil

	case SentimentDivergence:
		if rec.GalaxyScore == 0 {
			return false, nil // no sentiment data
		}
		move := math.Abs(c.PriceChange)
		bullish := rec.GalaxyScore >= c.ScoreThreshold && rec.PercentChange24h <= -move
		bearish := rec.GalaxyScore <= c.ScoreThreshold && rec.PercentChange24h >= move
		return matches(c.Direction, bullish, bearish), nil

	case SocialMomentum:
		if c.MinScore > 0 && rec.GalaxyScore < c.MinScore {
			return false, nil
		}
		if c.MaxRank > 0 && (rec.AltRank <= 0 || rec.AltRank > c.MaxRank) {
			return false, nil
		}
		return true, nil

	case Composite:
		for _, sub := range c.All {
			ok, err := e.check(sub, rec)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	}
	return false, invalid("unsupported condition %T", cond)
}

func matches(dir Direction, up, down bool) bool {
	switch dir {
	case Up:
		return up
	case Down:
		return down
	}
	return up || down
}

// samples returns up to n samples ending with rec. The engine appends rec to
// history before evaluating, so it is usually already the newest sample.
func (e *Evaluator) samples(rec marketdata.Record, n int) []history.Sample {
	var hist []history.Sample
	if e.history != nil {
		hist = e.history.Latest(rec.Symbol, n)
	}
	if len(hist) > 0 && hist[len(hist)-1].At.Equal(rec.UpdatedAt) {
		return hist
	}

	hist = append(hist, history.Sample{Price: rec.Price, Volume: rec.Volume24h, At: rec.UpdatedAt})
	if len(hist) > n {
		hist = hist[len(hist)-n:]
	}
	return hist
}

func (e *Evaluator) prices(rec marketdata.Record, n int) []float64 {
	samples := e.samples(rec, n)
	out := make([]float64, len(samples))
	for i, s := range samples {
		out[i] = s.Price
	}
	return out
}

// describe renders the human-readable line sent with a trigger.
func describe(cond Condition, rec marketdata.Record) string {
	switch c := cond.(type) {
	case PriceAbove:
		return fmt.Sprintf("%s price %.2f is at or above %.2f", rec.Symbol, rec.Price, c.Threshold)
	case PriceBelow:
		return fmt.Sprintf("%s price %.2f is at or below %.2f", rec.Symbol, rec.Price, c.Threshold)
	case PercentChange:
		return fmt.Sprintf("%s moved %.2f%% in 24h (threshold %.2f%%)", rec.Symbol, rec.PercentChange24h, math.Abs(c.Threshold))
	case VolumeSpike:
		return fmt.Sprintf("%s 24h volume spiked to %.0f", rec.Symbol, rec.Volume24h)
	case MACross:
		return fmt.Sprintf("%s price %.2f crossed its %d-sample moving average", rec.Symbol, rec.Price, c.Period)
	case Momentum:
		return fmt.Sprintf("%s momentum over %d samples reached %.2f%%", rec.Symbol, c.Period, c.Threshold)
	case Volatility:
		return fmt.Sprintf("%s volatility over %d samples reached %.2f%%", rec.Symbol, c.Period, c.Threshold)
	case SupportResistance:
		return fmt.Sprintf("%s price %.2f broke through %.2f", rec.Symbol, rec.Price, c.Level)
	case SentimentDivergence:
		return fmt.Sprintf("%s sentiment %.1f diverges from a %.2f%% price move", rec.Symbol, rec.GalaxyScore, rec.PercentChange24h)
	case SocialMomentum:
		return fmt.Sprintf("%s social momentum: galaxy score %.1f, alt rank %d", rec.Symbol, rec.GalaxyScore, rec.AltRank)
	case Composite:
		return fmt.Sprintf("%s met all %d conditions at price %.2f", rec.Symbol, len(c.All), rec.Price)
	}
	return fmt.Sprintf("%s alert triggered at %.2f", rec.Symbol, rec.Price)
}
