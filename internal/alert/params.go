package alert

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Params is the loose wire and config shape of a rule. Parse turns it into a Condition.
type Params struct {
	Type           string        `json:"alertType" mapstructure:"type"`
	Symbol         string        `json:"symbol,omitempty" mapstructure:"symbol"`
	Threshold      float64       `json:"threshold,omitempty" mapstructure:"threshold"`
	Period         int           `json:"period,omitempty" mapstructure:"period"`
	Direction      string        `json:"direction,omitempty" mapstructure:"direction"`
	Multiplier     float64       `json:"multiplier,omitempty" mapstructure:"multiplier"`
	Level          float64       `json:"level,omitempty" mapstructure:"level"`
	MinScore       float64       `json:"minScore,omitempty" mapstructure:"min_score"`
	MaxRank        int           `json:"maxRank,omitempty" mapstructure:"max_rank"`
	ScoreThreshold float64       `json:"scoreThreshold,omitempty" mapstructure:"score_threshold"`
	PriceChange    float64       `json:"priceChange,omitempty" mapstructure:"price_change"`
	Conditions     []Params      `json:"conditions,omitempty" mapstructure:"conditions"`
	Cooldown       time.Duration `json:"-" mapstructure:"cooldown"`
}

var kindAliases = map[string]Kind{
	"above":                KindPriceAbove,
	"below":                KindPriceBelow,
	"change":               KindPercentChange,
	"volume":               KindVolumeSpike,
	"moving_average_cross": KindMACross,
	"ma":                   KindMACross,
	"support":              KindSupportResistance,
	"resistance":           KindSupportResistance,
}

// ParseKind normalizes "price-above", "PRICE_ABOVE", "above" and friends.
func ParseKind(s string) (Kind, error) {
	norm := strings.ToLower(strings.TrimSpace(strings.ReplaceAll(s, "-", "_")))
	if k, ok := kindAliases[norm]; ok {
		return k, nil
	}
	switch k := Kind(norm); k {
	case KindPriceAbove, KindPriceBelow, KindPercentChange, KindVolumeSpike, KindMACross,
		KindMomentum, KindVolatility, KindSupportResistance, KindComposite,
		KindSentimentDivergence, KindSocialMomentum:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownKind, s)
}

// ParseDirection maps the synonyms clients send onto Up, Down or Either.
func ParseDirection(s string) (Direction, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return Either, nil
	case "up", "above", "bullish", "resistance", "cross_above":
		return Up, nil
	case "down", "below", "bearish", "support", "cross_below":
		return Down, nil
	}
	return "", invalid("unknown direction %q", s)
}

// Parse builds and validates a Condition.
func Parse(p Params) (Condition, error) {
	kind, err := ParseKind(p.Type)
	if err != nil {
		return nil, err
	}
	dir, err := ParseDirection(p.Direction)
	if err != nil {
		return nil, err
	}

	var cond Condition
	switch kind {
	case KindPriceAbove:
		cond = PriceAbove{Threshold: p.Threshold}
	case KindPriceBelow:
		cond = PriceBelow{Threshold: p.Threshold}
	case KindPercentChange:
		cond = PercentChange{Threshold: p.Threshold}
	case KindVolumeSpike:
		cond = VolumeSpike{Threshold: p.Threshold, Multiplier: p.Multiplier, Period: p.Period}
	case KindMACross:
		cond = MACross{Period: p.Period, Direction: dir}
	case KindMomentum:
		cond = Momentum{Period: p.Period, Threshold: p.Threshold, Direction: dir}
	case KindVolatility:
		cond = Volatility{Period: p.Period, Threshold: p.Threshold}
	case KindSupportResistance:
		level := p.Level
		if level == 0 {
			level = p.Threshold
		}
		cond = SupportResistance{Level: level, Direction: dir}
	case KindSentimentDivergence:
		cond = SentimentDivergence{ScoreThreshold: p.ScoreThreshold, PriceChange: p.PriceChange, Direction: dir}
	case KindSocialMomentum:
		minScore := p.MinScore
		if minScore == 0 {
			minScore = p.Threshold
		}
		cond = SocialMomentum{MinScore: minScore, MaxRank: p.MaxRank}
	case KindComposite:
		all := make([]Condition, 0, len(p.Conditions))
		for i, sub := range p.Conditions {
			c, err := Parse(sub)
			if err != nil {
				return nil, fmt.Errorf("condition %d: %w", i, err)
			}
			all = append(all, c)
		}
		cond = Composite{All: all}
	}

	if err := Validate(cond, 0); err != nil {
		return nil, err
	}
	return cond, nil
}

// Validate checks parameters. With capacity > 0 it also rejects rules that
// need more history than a ring of that capacity can ever hold.
func Validate(cond Condition, capacity int) error {
	needs := func(period, samples int) error {
		if capacity > 0 && samples > capacity {
			return invalid("period %d needs %d samples, history holds %d", period, samples, capacity)
		}
		return nil
	}

	switch c := cond.(type) {
	case PriceAbove:
		if c.Threshold <= 0 || math.IsNaN(c.Threshold) {
			return invalid("price threshold must be positive")
		}
	case PriceBelow:
		if c.Threshold <= 0 || math.IsNaN(c.Threshold) {
			return invalid("price threshold must be positive")
		}
	case PercentChange:
		if c.Threshold == 0 || math.IsNaN(c.Threshold) {
			return invalid("percent change threshold must be non-zero")
		}
	case VolumeSpike:
		if c.Threshold > 0 {
			return nil
		}
		if c.Multiplier <= 0 || c.Period < 1 {
			return invalid("volume spike needs a threshold, or a multiplier and a period")
		}
		return needs(c.Period, c.Period+1)
	case MACross:
		if c.Period < 2 {
			return invalid("moving average period must be at least 2")
		}
		return needs(c.Period, c.Period+1)
	case Momentum:
		if c.Period < 1 || c.Threshold <= 0 {
			return invalid("momentum needs a period and a positive threshold")
		}
		return needs(c.Period, c.Period+1)
	case Volatility:
		if c.Period < 2 || c.Threshold <= 0 {
			return invalid("volatility needs a period of at least 2 and a positive threshold")
		}
		return needs(c.Period, c.Period+1)
	case SupportResistance:
		if c.Level <= 0 {
			return invalid("support/resistance level must be positive")
		}
	case SentimentDivergence:
		if c.ScoreThreshold <= 0 || c.PriceChange == 0 {
			return invalid("sentiment divergence needs a score threshold and a price change")
		}
	case SocialMomentum:
		if c.MinScore <= 0 && c.MaxRank <= 0 {
			return invalid("social momentum needs a minimum score or a maximum rank")
		}
	case Composite:
		if len(c.All) == 0 {
			return invalid("composite rule has no conditions")
		}
		for _, sub := range c.All {
			if err := Validate(sub, capacity); err != nil {
				return err
			}
		}
	case nil:
		return invalid("missing condition")
	default:
		return invalid("unsupported condition %T", cond)
	}
	return nil
}
