package engine

import (
	"context"
	"sort"
	"time"

	"cryptopulse/internal/alert"
	"cryptopulse/internal/cache"
)

type SymbolStats struct {
	Price       float64   `json:"price"`
	Source      string    `json:"source"`
	UpdatedAt   time.Time `json:"updatedAt"`
	HistorySize int       `json:"historySize"`
}

type Stats struct {
	State          State                  `json:"state"`
	Initialized    bool                   `json:"initialized"`
	InitError      string                 `json:"initError,omitempty"`
	ActiveSessions int                    `json:"activeSessions"`
	CacheEnabled   bool                   `json:"cacheEnabled"`
	Metrics        cache.MetricsSnapshot  `json:"metrics"`
	LastRefresh    *time.Time             `json:"lastRefresh,omitempty"`
	Symbols        []string               `json:"symbols"`
	Records        map[string]SymbolStats `json:"records"`
	GlobalAlerts   int                    `json:"globalAlerts"`
	SessionAlerts  int                    `json:"sessionAlerts"`
	AlertsByStatus map[alert.Status]int   `json:"alertsByStatus"`
}

// Stats is a point-in-time view of the engine taken on the loop.
func (e *Engine) Stats(ctx context.Context) (Stats, error) {
	var st Stats
	err := e.do(ctx, func() {
		st = Stats{
			State:          e.State(),
			Initialized:    e.initialized,
			ActiveSessions: e.registry.Len(),
			CacheEnabled:   e.source.Enabled(),
			Metrics:        e.source.Metrics().Snapshot(),
			Symbols:        append([]string(nil), e.cfg.Symbols...),
			Records:        make(map[string]SymbolStats, len(e.records)),
			GlobalAlerts:   len(e.globals),
			AlertsByStatus: make(map[alert.Status]int),
		}
		sort.Strings(st.Symbols)
		if e.initErr != nil {
			st.InitError = e.initErr.Error()
		}
		if !e.lastRefresh.IsZero() {
			t := e.lastRefresh
			st.LastRefresh = &t
		}
		for sym, rec := range e.records {
			st.Records[sym] = SymbolStats{
				Price:       rec.Price,
				Source:      string(rec.Provenance),
				UpdatedAt:   rec.UpdatedAt,
				HistorySize: e.history.Size(sym),
			}
		}
		for _, def := range e.definitions() {
			st.AlertsByStatus[def.Status]++
			if !def.Global() {
				st.SessionAlerts++
			}
		}
	})
	return st, err
}
