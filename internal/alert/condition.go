package alert

// Kind names a rule kind on the wire.
type Kind string

const (
	KindPriceAbove          Kind = "price_above"
	KindPriceBelow          Kind = "price_below"
	KindPercentChange       Kind = "percent_change"
	KindVolumeSpike         Kind = "volume_spike"
	KindMACross             Kind = "ma_cross"
	KindMomentum            Kind = "momentum"
	KindVolatility          Kind = "volatility"
	KindSupportResistance   Kind = "support_resistance"
	KindComposite           Kind = "composite"
	KindSentimentDivergence Kind = "sentiment_divergence"
	KindSocialMomentum      Kind = "social_momentum"
)

// Direction restricts which way a crossing or move must go. Either accepts both.
type Direction string

const (
	Either Direction = ""
	Up     Direction = "up"
	Down   Direction = "down"
)

// Condition is the closed set of rule kinds. Only types in this package implement it.
type Condition interface {
	Kind() Kind
	isCondition()
}

// PriceAbove triggers when price >= Threshold.
type PriceAbove struct {
	Threshold float64 `json:"threshold"`
}

// PriceBelow triggers when price <= Threshold.
type PriceBelow struct {
	Threshold float64 `json:"threshold"`
}

// PercentChange triggers when |24h change| >= |Threshold|.
type PercentChange struct {
	Threshold float64 `json:"threshold"`
}

// VolumeSpike triggers on an absolute 24h volume, or, with Multiplier,
// on volume at least Multiplier times the average of the last Period samples.
type VolumeSpike struct {
	Threshold  float64 `json:"threshold,omitempty"`
	Multiplier float64 `json:"multiplier,omitempty"`
	Period     int     `json:"period,omitempty"`
}

// MACross triggers when price crosses its simple moving average over Period samples.
type MACross struct {
	Period    int       `json:"period"`
	Direction Direction `json:"direction,omitempty"`
}

// Momentum triggers when the rate of change over Period samples reaches Threshold percent.
type Momentum struct {
	Period    int       `json:"period"`
	Threshold float64   `json:"threshold"`
	Direction Direction `json:"direction,omitempty"`
}

// Volatility triggers when the sample standard deviation of per-sample returns
// over Period samples reaches Threshold percent.
type Volatility struct {
	Period    int     `json:"period"`
	Threshold float64 `json:"threshold"`
}

// SupportResistance triggers when price breaks through Level.
// Up is a resistance break, Down a support break.
type SupportResistance struct {
	Level     float64   `json:"level"`
	Direction Direction `json:"direction,omitempty"`
}

// Composite triggers only when every sub-condition holds.
type Composite struct {
	All []Condition `json:"-"`
}

// SentimentDivergence triggers when sentiment and price disagree.
// Up (bullish): score >= ScoreThreshold while price fell at least PriceChange percent.
// Down (bearish): score <= ScoreThreshold while price rose at least PriceChange percent.
type SentimentDivergence struct {
	ScoreThreshold float64   `json:"scoreThreshold"`
	PriceChange    float64   `json:"priceChange"`
	Direction      Direction `json:"direction,omitempty"`
}

// SocialMomentum triggers on a high galaxy score and, optionally, a top alt rank.
type SocialMomentum struct {
	MinScore float64 `json:"minScore"`
	MaxRank  int     `json:"maxRank,omitempty"`
}

func (PriceAbove) Kind() Kind          { return KindPriceAbove }
func (PriceBelow) Kind() Kind          { return KindPriceBelow }
func (PercentChange) Kind() Kind       { return KindPercentChange }
func (VolumeSpike) Kind() Kind         { return KindVolumeSpike }
func (MACross) Kind() Kind             { return KindMACross }
func (Momentum) Kind() Kind            { return KindMomentum }
func (Volatility) Kind() Kind          { return KindVolatility }
func (SupportResistance) Kind() Kind   { return KindSupportResistance }
func (Composite) Kind() Kind           { return KindComposite }
func (SentimentDivergence) Kind() Kind { return KindSentimentDivergence }
func (SocialMomentum) Kind() Kind      { return KindSocialMomentum }

func (PriceAbove) isCondition()          {}
func (PriceBelow) isCondition()          {}
func (PercentChange) isCondition()       {}
func (VolumeSpike) isCondition()         {}
func (MACross) isCondition()             {}
func (Momentum) isCondition()            {}
func (Volatility) isCondition()          {}
func (SupportResistance) isCondition()   {}
func (Composite) isCondition()           {}
func (SentimentDivergence) isCondition() {}
func (SocialMomentum) isCondition()      {}
