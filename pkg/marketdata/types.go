package marketdata

import (
	"errors"
	"fmt"
	"time"
)

// Provenance tells where a record's values came from.
type Provenance string

const (
	ProvenanceLive     Provenance = "live"     // fetched from the upstream during this refresh
	ProvenanceCache    Provenance = "cache"    // served from a fresh cache entry
	ProvenanceStale    Provenance = "stale"    // expired cache entry served because the upstream failed
	ProvenanceFallback Provenance = "fallback" // hardcoded placeholder, no data of any age was available
)

// Record is the normalized market snapshot for one symbol.
type Record struct {
	Symbol           string     `json:"symbol"`
	Price            float64    `json:"price"`
	PercentChange24h float64    `json:"percent_change_24h"`
	Volume24h        float64    `json:"volume_24h"`
	MarketCap        float64    `json:"market_cap"`
	GalaxyScore      float64    `json:"galaxy_score"`
	AltRank          int        `json:"alt_rank"`
	UpdatedAt        time.Time  `json:"updated_at"`
	Provenance       Provenance `json:"provenance"`
}

// WithProvenance returns a copy of r tagged with p.
func (r Record) WithProvenance(p Provenance) Record {
	r.Provenance = p
	return r
}

// Social holds the slow-moving sentiment metrics of a symbol.
type Social struct {
	Symbol      string    `json:"symbol"`
	GalaxyScore float64   `json:"galaxy_score"`
	AltRank     int       `json:"alt_rank"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Merge copies the social metrics into r.
func (s Social) Merge(r Record) Record {
	r.GalaxyScore = s.GalaxyScore
	r.AltRank = s.AltRank
	return r
}

var ErrNoCredential = errors.New("no upstream credential configured")

// UpstreamError reports an unreachable provider or an unusable payload.
// Status is 0 when no HTTP response was received.
type UpstreamError struct {
	Symbol  string
	Status  int
	Message string
	Cause   error
}

func (e *UpstreamError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("upstream %s: %s", e.Symbol, e.Message)
	}
	return fmt.Sprintf("upstream %s: status %d: %s", e.Symbol, e.Status, e.Message)
}

func (e *UpstreamError) Unwrap() error {
	return e.Cause
}
