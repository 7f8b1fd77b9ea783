package marketdata

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	return NewClient(Options{
		BaseURL:    srv.URL,
		PricePath:  "/coins/%s/v1",
		SocialPath: "/topic/%s/v1",
		APIKey:     "secret",
		Timeout:    2 * time.Second,
	})
}

// go test -v --run TestFetchNormalizesFlatPayload
func TestFetchNormalizesFlatPayload(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/coins/bitcoin/v1", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		_, _ = w.Write([]byte(`{"price": 95000.5, "percent_change_24h": -2.5, "volume_24h": 31000000000,
			"market_cap": 1870000000000, "galaxy_score": 71, "alt_rank": 3}`))
	})

	rec, err := client.Fetch(context.Background(), "bitcoin")
	require.NoError(t, err)

	assert.Equal(t, "bitcoin", rec.Symbol)
	assert.Equal(t, 95000.5, rec.Price)
	assert.Equal(t, -2.5, rec.PercentChange24h)
	assert.Equal(t, 31000000000.0, rec.Volume24h)
	assert.Equal(t, 1870000000000.0, rec.MarketCap)
	assert.Equal(t, 71.0, rec.GalaxyScore)
	assert.Equal(t, 3, rec.AltRank)
	assert.Equal(t, ProvenanceLive, rec.Provenance)
	assert.False(t, rec.UpdatedAt.IsZero())
}

// go test -v --run TestFetchEnvelopeAndAlternateNames
func TestFetchEnvelopeAndAlternateNames(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"config": {}, "data": {"close": "3120.25", "sentiment": "64", "volume_24h": null}}`))
	})

	rec, err := client.Fetch(context.Background(), "ethereum")
	require.NoError(t, err)

	assert.Equal(t, 3120.25, rec.Price)
	assert.Equal(t, 64.0, rec.GalaxyScore)
	// missing numerics default to zero
	assert.Zero(t, rec.Volume24h)
	assert.Zero(t, rec.MarketCap)
	assert.Zero(t, rec.AltRank)
}

// go test -v --run TestFetchMissingPrice
func TestFetchMissingPrice(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data": {"volume_24h": 10}}`))
	})

	_, err := client.Fetch(context.Background(), "bitcoin")

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusOK, upErr.Status)
	assert.Contains(t, upErr.Message, "price")
}

// go test -v --run TestFetchNon2xx
func TestFetchNon2xx(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte("slow down"))
	})

	_, err := client.Fetch(context.Background(), "bitcoin")

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Equal(t, http.StatusTooManyRequests, upErr.Status)
	assert.Equal(t, "slow down", upErr.Message)
	assert.Equal(t, "bitcoin", upErr.Symbol)
}

// go test -v --run TestFetchTimeout
func TestFetchTimeout(t *testing.T) {
	release := make(chan struct{})
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-r.Context().Done():
		}
	})
	defer close(release)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := client.Fetch(ctx, "bitcoin")

	var upErr *UpstreamError
	require.ErrorAs(t, err, &upErr)
	assert.Zero(t, upErr.Status)
	assert.Equal(t, "request timed out", upErr.Message)
}

// go test -v --run TestFetchWithoutCredential
func TestFetchWithoutCredential(t *testing.T) {
	client := NewClient(Options{BaseURL: "http://127.0.0.1:1", PricePath: "/coins/%s/v1"})

	_, err := client.Fetch(context.Background(), "bitcoin")
	assert.True(t, errors.Is(err, ErrNoCredential))
}

// go test -v --run TestFetchSocial
func TestFetchSocial(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/topic/bitcoin/v1", r.URL.Path)
		_, _ = w.Write([]byte(`{"data": [{"galaxy_score": 68.5, "alt_rank": "12"}]}`))
	})

	social, err := client.FetchSocial(context.Background(), "bitcoin")
	require.NoError(t, err)
	assert.Equal(t, 68.5, social.GalaxyScore)
	assert.Equal(t, 12, social.AltRank)

	merged := social.Merge(Record{Symbol: "bitcoin", Price: 1})
	assert.Equal(t, 68.5, merged.GalaxyScore)
	assert.Equal(t, 1.0, merged.Price)
}

// go test -v --run TestFallback
func TestFallback(t *testing.T) {
	rec, ok := Fallback("bitcoin")
	require.True(t, ok)
	assert.Equal(t, ProvenanceFallback, rec.Provenance)
	assert.Positive(t, rec.Price)

	_, ok = Fallback("dogecoin")
	assert.False(t, ok)
	assert.True(t, IsKnown("ethereum"))
}
