package cache

import (
	"sync/atomic"
	"time"
)

// Metrics counts cache and upstream traffic for the life of the process.
type Metrics struct {
	hits           atomic.Int64
	misses         atomic.Int64
	upstreamCalls  atomic.Int64
	upstreamErrors atomic.Int64
	startedAt      time.Time
}

func NewMetrics() *Metrics {
	return &Metrics{startedAt: time.Now()}
}

type MetricsSnapshot struct {
	CacheHits      int64     `json:"cacheHits"`
	CacheMisses    int64     `json:"cacheMisses"`
	UpstreamCalls  int64     `json:"apiCalls"`
	UpstreamErrors int64     `json:"errors"`
	HitRate        float64   `json:"hitRate"`
	LastReset      time.Time `json:"lastReset"`
}

func (m *Metrics) Snapshot() MetricsSnapshot {
	s := MetricsSnapshot{
		CacheHits:      m.hits.Load(),
		CacheMisses:    m.misses.Load(),
		UpstreamCalls:  m.upstreamCalls.Load(),
		UpstreamErrors: m.upstreamErrors.Load(),
		LastReset:      m.startedAt,
	}
	if total := s.CacheHits + s.CacheMisses; total > 0 {
		s.HitRate = float64(s.CacheHits) / float64(total)
	}
	return s
}
