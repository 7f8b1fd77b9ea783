package cache

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"cryptopulse/pkg/marketdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

type fakeUpstream struct {
	mu      sync.Mutex
	price   float64
	err     error
	calls   map[string]int
	gate    chan struct{}
	social  *marketdata.Social
	socials int
}

func newFakeUpstream(price float64) *fakeUpstream {
	return &fakeUpstream{price: price, calls: map[string]int{}}
}

func (f *fakeUpstream) Fetch(ctx context.Context, symbol string) (marketdata.Record, error) {
	f.mu.Lock()
	f.calls[symbol]++
	gate, price, err := f.gate, f.price, f.err
	f.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return marketdata.Record{}, err
	}
	return marketdata.Record{Symbol: symbol, Price: price, Provenance: marketdata.ProvenanceLive}, nil
}

func (f *fakeUpstream) set(price float64, err error) {
	f.mu.Lock()
	f.price, f.err = price, err
	f.mu.Unlock()
}

func (f *fakeUpstream) count(symbol string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[symbol]
}

type socialUpstream struct {
	*fakeUpstream
}

func (s socialUpstream) SocialEnabled() bool { return true }

func (s socialUpstream) FetchSocial(ctx context.Context, symbol string) (marketdata.Social, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.socials++
	if s.social == nil {
		return marketdata.Social{}, errors.New("no social")
	}
	return *s.social, nil
}

func newTestCache(up Fetcher, clock *fakeClock, social bool) (*Tiered, *MemoryStore) {
	store := NewMemoryStore()
	return NewTiered(store, up, Options{
		PriceTTL:  30 * time.Second,
		SocialTTL: 5 * time.Minute,
		Social:    social,
		Now:       clock.Now,
	}), store
}

// go test -v --run TestTieredFreshness
func TestTieredFreshness(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	up := newFakeUpstream(95000)
	c, _ := newTestCache(up, clock, false)

	rec, err := c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)
	assert.Equal(t, marketdata.ProvenanceLive, rec.Provenance)
	assert.Equal(t, 1, up.count("bitcoin"))

	clock.Advance(30*time.Second - time.Millisecond)
	rec, err = c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)
	assert.Equal(t, marketdata.ProvenanceCache, rec.Provenance)
	assert.Equal(t, 95000.0, rec.Price)
	assert.Equal(t, 1, up.count("bitcoin"), "fresh entry must not reach the upstream")

	clock.Advance(2 * time.Millisecond)
	rec, err = c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)
	assert.Equal(t, marketdata.ProvenanceLive, rec.Provenance)
	assert.Equal(t, 2, up.count("bitcoin"))

	m := c.Metrics().Snapshot()
	assert.Equal(t, int64(1), m.CacheHits)
	assert.Equal(t, int64(2), m.CacheMisses)
	assert.Equal(t, int64(2), m.UpstreamCalls)
	assert.Zero(t, m.UpstreamErrors)
}

// go test -v --run TestTieredStaleFallback
func TestTieredStaleFallback(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	up := newFakeUpstream(95000)
	c, _ := newTestCache(up, clock, false)

	_, err := c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)

	clock.Advance(time.Minute)
	upErr := &marketdata.UpstreamError{Symbol: "bitcoin", Status: 503, Message: "down"}
	up.set(0, upErr)

	rec, err := c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)
	assert.Equal(t, 95000.0, rec.Price)
	assert.Equal(t, marketdata.ProvenanceStale, rec.Provenance)
	assert.Equal(t, int64(1), c.Metrics().Snapshot().UpstreamErrors)
}

// go test -v --run TestTieredEmptyCacheFailingUpstream
func TestTieredEmptyCacheFailingUpstream(t *testing.T) {
	clock := newFakeClock()
	up := newFakeUpstream(0)
	upErr := &marketdata.UpstreamError{Symbol: "ethereum", Status: 500, Message: "boom"}
	up.set(0, upErr)
	c, store := newTestCache(up, clock, false)

	_, err := c.Get(context.Background(), "ethereum", false)

	var unavailable *DataUnavailableError
	require.ErrorAs(t, err, &unavailable)
	assert.Equal(t, "ethereum", unavailable.Symbol)

	var cause *marketdata.UpstreamError
	require.ErrorAs(t, err, &cause)
	assert.Equal(t, 500, cause.Status)

	// failures are never cached
	assert.Zero(t, store.Len())
}

// go test -v --run TestTieredFailureNotCached
func TestTieredFailureNotCached(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	up := newFakeUpstream(0)
	up.set(0, errors.New("timeout"))
	c, _ := newTestCache(up, clock, false)

	_, err := c.Get(ctx, "bitcoin", false)
	require.Error(t, err)

	up.set(100, nil)
	rec, err := c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)
	assert.Equal(t, 100.0, rec.Price)
	assert.Equal(t, 2, up.count("bitcoin"))
}

// go test -v --run TestTieredForceRefresh
func TestTieredForceRefresh(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	up := newFakeUpstream(95000)
	c, _ := newTestCache(up, clock, false)

	_, err := c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)

	up.set(96000, nil)
	rec, err := c.Get(ctx, "bitcoin", true)
	require.NoError(t, err)
	assert.Equal(t, 96000.0, rec.Price)
	assert.Equal(t, 2, up.count("bitcoin"))

	// the forced fetch rewrote the entry
	rec, err = c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)
	assert.Equal(t, 96000.0, rec.Price)
	assert.Equal(t, marketdata.ProvenanceCache, rec.Provenance)
}

// go test -v --run TestTieredEntryKey
func TestTieredEntryKey(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	c, store := newTestCache(newFakeUpstream(1), clock, false)

	_, err := c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)

	raw, ok, err := store.Get(ctx, "bitcoin:v1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Contains(t, string(raw), `"dataClass":"price"`)
}

// go test -v --run TestTieredSeededEntry
func TestTieredSeededEntry(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	up := newFakeUpstream(1)
	c, _ := newTestCache(up, clock, false)

	c.Put(ctx, marketdata.Record{Symbol: "bitcoin", Price: 95000}, clock.Now().Add(-10*time.Second))

	rec, err := c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)
	assert.Equal(t, 95000.0, rec.Price)
	assert.Zero(t, up.count("bitcoin"))
}

// go test -v --run TestTieredSocialTier
func TestTieredSocialTier(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	up := socialUpstream{newFakeUpstream(95000)}
	up.social = &marketdata.Social{Symbol: "bitcoin", GalaxyScore: 72, AltRank: 4}
	c, _ := newTestCache(up, clock, true)

	rec, err := c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)
	assert.Equal(t, 72.0, rec.GalaxyScore)
	assert.Equal(t, 4, rec.AltRank)

	// price expires, social does not
	clock.Advance(time.Minute)
	rec, err = c.Get(ctx, "bitcoin", false)
	require.NoError(t, err)
	assert.Equal(t, 72.0, rec.GalaxyScore)
	assert.Equal(t, 2, up.count("bitcoin"))

	up.mu.Lock()
	socials := up.socials
	up.mu.Unlock()
	assert.Equal(t, 1, socials)
}

// go test -v --run TestTieredConcurrentGetsShareFetch
func TestTieredConcurrentGetsShareFetch(t *testing.T) {
	clock := newFakeClock()
	up := newFakeUpstream(95000)
	up.gate = make(chan struct{})
	c, _ := newTestCache(up, clock, false)

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.Get(context.Background(), "bitcoin", false)
			assert.NoError(t, err)
		}()
	}

	require.Eventually(t, func() bool { return up.count("bitcoin") == 1 }, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(up.gate)
	wg.Wait()

	assert.Equal(t, 1, up.count("bitcoin"))
}

// go test -v --run TestTieredWithoutStore
func TestTieredWithoutStore(t *testing.T) {
	up := newFakeUpstream(10)
	c := NewTiered(nil, up, Options{})
	assert.False(t, c.Enabled())

	for i := 0; i < 3; i++ {
		_, err := c.Get(context.Background(), "bitcoin", false)
		require.NoError(t, err)
	}
	assert.Equal(t, 3, up.count("bitcoin"))
}
