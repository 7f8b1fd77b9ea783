package cache

import (
	"context"
	"encoding/json"
	"time"

	"cryptopulse/pkg/marketdata"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// Class selects the freshness window of an entry.
type Class string

const (
	ClassPrice  Class = "price"
	ClassSocial Class = "social"
)

// Entry is what the store holds for one key.
type Entry struct {
	Record    marketdata.Record `json:"record"`
	Social    marketdata.Social `json:"social"`
	Timestamp time.Time         `json:"timestamp"`
	Class     Class             `json:"dataClass"`
}

// Fetcher is the upstream the cache falls through to.
type Fetcher interface {
	Fetch(ctx context.Context, symbol string) (marketdata.Record, error)
}

// SocialFetcher is implemented by upstreams that expose sentiment separately.
type SocialFetcher interface {
	SocialEnabled() bool
	FetchSocial(ctx context.Context, symbol string) (marketdata.Social, error)
}

type Options struct {
	Version   string
	PriceTTL  time.Duration
	SocialTTL time.Duration
	// Retention is how long the store keeps an entry, so stale fallback stays possible.
	Retention time.Duration
	// Social enables the social tier when the fetcher supports it.
	Social  bool
	Metrics *Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Tiered serves records from the store while fresh and falls through to the upstream otherwise.
type Tiered struct {
	store   Store
	fetcher Fetcher
	social  SocialFetcher
	ttl     map[Class]time.Duration
	opts    Options
	metrics *Metrics
	logger  *zap.Logger
	now     func() time.Time
	group   singleflight.Group
}

// NewTiered builds the cache. A nil store disables caching: every Get goes upstream.
func NewTiered(store Store, fetcher Fetcher, opts Options) *Tiered {
	if opts.Version == "" {
		opts.Version = "v1"
	}
	if opts.PriceTTL <= 0 {
		opts.PriceTTL = 30 * time.Second
	}
	if opts.SocialTTL <= 0 {
		opts.SocialTTL = 5 * time.Minute
	}
	if opts.Retention < opts.SocialTTL {
		opts.Retention = 24 * time.Hour
	}

	c := &Tiered{
		store:   store,
		fetcher: fetcher,
		ttl: map[Class]time.Duration{
			ClassPrice:  opts.PriceTTL,
			ClassSocial: opts.SocialTTL,
		},
		opts:    opts,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if c.metrics == nil {
		c.metrics = NewMetrics()
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	if c.now == nil {
		c.now = time.Now
	}
	if sf, ok := fetcher.(SocialFetcher); ok && opts.Social && sf.SocialEnabled() {
		c.social = sf
	}
	return c
}

func (c *Tiered) Metrics() *Metrics { return c.metrics }

// Enabled reports whether entries are persisted at all.
func (c *Tiered) Enabled() bool { return c.store != nil }

func (c *Tiered) priceKey(symbol string) string  { return symbol + ":" + c.opts.Version }
func (c *Tiered) socialKey(symbol string) string { return symbol + ":social:" + c.opts.Version }

// Get returns the record for symbol. With force the freshness check is skipped.
// When the upstream fails it serves any stored entry with stale provenance,
// or fails with *DataUnavailableError when there is none.
func (c *Tiered) Get(ctx context.Context, symbol string, force bool) (marketdata.Record, error) {
	rec, err := c.getPrice(ctx, symbol, force)
	if err != nil {
		return marketdata.Record{}, err
	}
	if c.social != nil {
		rec = c.mergeSocial(ctx, rec)
	}
	return rec, nil
}

// Put writes a price entry directly, e.g. to seed the cache.
func (c *Tiered) Put(ctx context.Context, rec marketdata.Record, at time.Time) {
	c.write(ctx, c.priceKey(rec.Symbol), Entry{Record: rec, Timestamp: at, Class: ClassPrice})
}

func (c *Tiered) getPrice(ctx context.Context, symbol string, force bool) (marketdata.Record, error) {
	key := c.priceKey(symbol)

	if !force {
		if entry, ok := c.read(ctx, key); ok && c.fresh(entry) {
			c.metrics.hits.Add(1)
			return entry.Record.WithProvenance(marketdata.ProvenanceCache), nil
		}
	}
	c.metrics.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.metrics.upstreamCalls.Add(1)
		rec, err := c.fetcher.Fetch(ctx, symbol)
		if err != nil {
			c.metrics.upstreamErrors.Add(1)
			return nil, err
		}
		c.write(ctx, key, Entry{Record: rec, Timestamp: c.now(), Class: ClassPrice})
		return rec, nil
	})
	if err == nil {
		return v.(marketdata.Record).WithProvenance(marketdata.ProvenanceLive), nil
	}

	c.logger.Warn("upstream fetch failed", zap.String("symbol", symbol), zap.Error(err))
	if entry, ok := c.read(ctx, key); ok {
		return entry.Record.WithProvenance(marketdata.ProvenanceStale), nil
	}
	return marketdata.Record{}, &DataUnavailableError{Symbol: symbol, Cause: err}
}

// mergeSocial overlays social metrics from their own, slower tier.
// Failures keep whatever the price payload carried.
func (c *Tiered) mergeSocial(ctx context.Context, rec marketdata.Record) marketdata.Record {
	key := c.socialKey(rec.Symbol)

	if entry, ok := c.read(ctx, key); ok && c.fresh(entry) {
		c.metrics.hits.Add(1)
		return entry.Social.Merge(rec)
	}
	c.metrics.misses.Add(1)

	v, err, _ := c.group.Do(key, func() (any, error) {
		c.metrics.upstreamCalls.Add(1)
		social, err := c.social.FetchSocial(ctx, rec.Symbol)
		if err != nil {
			c.metrics.upstreamErrors.Add(1)
			return nil, err
		}
		c.write(ctx, key, Entry{Social: social, Timestamp: c.now(), Class: ClassSocial})
		return social, nil
	})
	if err == nil {
		return v.(marketdata.Social).Merge(rec)
	}

	c.logger.Debug("social fetch failed", zap.String("symbol", rec.Symbol), zap.Error(err))
	if entry, ok := c.read(ctx, key); ok {
		return entry.Social.Merge(rec)
	}
	return rec
}

func (c *Tiered) fresh(e Entry) bool {
	ttl, ok := c.ttl[e.Class]
	if !ok {
		ttl = c.ttl[ClassPrice]
	}
	return c.now().Sub(e.Timestamp) < ttl
}

func (c *Tiered) read(ctx context.Context, key string) (Entry, bool) {
	if c.store == nil {
		return Entry{}, false
	}

	raw, ok, err := c.store.Get(ctx, key)
	if err != nil {
		c.logger.Warn("cache read failed", zap.String("key", key), zap.Error(err))
		return Entry{}, false
	}
	if !ok {
		return Entry{}, false
	}

	var entry Entry
	if err := json.Unmarshal(raw, &entry); err != nil {
		c.logger.Warn("cache entry corrupt", zap.String("key", key), zap.Error(err))
		return Entry{}, false
	}
	return entry, true
}

func (c *Tiered) write(ctx context.Context, key string, entry Entry) {
	if c.store == nil {
		return
	}

	raw, err := json.Marshal(entry)
	if err != nil {
		c.logger.Warn("cache entry encode failed", zap.String("key", key), zap.Error(err))
		return
	}
	if err := c.store.Put(ctx, key, raw, c.opts.Retention); err != nil {
		c.logger.Warn("cache write failed", zap.String("key", key), zap.Error(err))
	}
}
