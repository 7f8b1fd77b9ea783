package marketdata

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// Options configures a Client.
type Options struct {
	BaseURL    string
	PricePath  string // "%s" is replaced by the escaped symbol
	SocialPath string // empty disables FetchSocial
	APIKey     string
	Timeout    time.Duration

	// RequestsPerSecond throttles outgoing calls; <= 0 disables throttling.
	RequestsPerSecond float64
	Burst             int
}

// Client fetches market data for one symbol at a time. It never retries
// and never caches; callers decide both.
type Client struct {
	baseURL    string
	pricePath  string
	socialPath string
	apiKey     string
	httpClient *http.Client
	limiter    *rate.Limiter
	now        func() time.Time
}

func NewClient(opts Options) *Client {
	limit := rate.Inf
	if opts.RequestsPerSecond > 0 {
		limit = rate.Limit(opts.RequestsPerSecond)
	}
	burst := opts.Burst
	if burst <= 0 {
		burst = 1
	}

	return &Client{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		pricePath:  opts.PricePath,
		socialPath: opts.SocialPath,
		apiKey:     opts.APIKey,
		httpClient: &http.Client{Timeout: opts.Timeout},
		limiter:    rate.NewLimiter(limit, burst),
		now:        time.Now,
	}
}

// Fetch returns the current price record for symbol or an *UpstreamError.
func (c *Client) Fetch(ctx context.Context, symbol string) (Record, error) {
	fields, status, err := c.get(ctx, c.pricePath, symbol)
	if err != nil {
		return Record{}, err
	}

	record, ok := toRecord(symbol, fields)
	if !ok {
		return Record{}, &UpstreamError{Symbol: symbol, Status: status, Message: "response missing price field"}
	}
	record.UpdatedAt = c.now()
	record.Provenance = ProvenanceLive
	return record, nil
}

// SocialEnabled reports whether a social endpoint is configured.
func (c *Client) SocialEnabled() bool {
	return c.socialPath != ""
}

// FetchSocial returns the sentiment metrics for symbol.
func (c *Client) FetchSocial(ctx context.Context, symbol string) (Social, error) {
	if !c.SocialEnabled() {
		return Social{}, &UpstreamError{Symbol: symbol, Message: "social endpoint not configured"}
	}

	fields, _, err := c.get(ctx, c.socialPath, symbol)
	if err != nil {
		return Social{}, err
	}

	social := toSocial(symbol, fields)
	social.UpdatedAt = c.now()
	return social, nil
}

func (c *Client) get(ctx context.Context, path, symbol string) (map[string]any, int, error) {
	if c.apiKey == "" {
		return nil, 0, &UpstreamError{Symbol: symbol, Message: ErrNoCredential.Error(), Cause: ErrNoCredential}
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, 0, &UpstreamError{Symbol: symbol, Message: "rate limiter wait", Cause: err}
	}

	endpoint := c.baseURL + strings.Replace(path, "%s", url.PathEscape(symbol), 1)

	// Construct the GET request with context for timeout/cancel support
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, 0, &UpstreamError{Symbol: symbol, Message: "creating request", Cause: err}
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		msg := "http request failed"
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			msg = "request timed out"
		}
		return nil, 0, &UpstreamError{Symbol: symbol, Message: msg, Cause: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, resp.StatusCode, &UpstreamError{
			Symbol:  symbol,
			Status:  resp.StatusCode,
			Message: strings.TrimSpace(string(body)),
		}
	}

	fields, err := decodePayload(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, &UpstreamError{
			Symbol:  symbol,
			Status:  resp.StatusCode,
			Message: fmt.Sprintf("invalid payload: %v", err),
			Cause:   err,
		}
	}
	return fields, resp.StatusCode, nil
}

func isTimeout(err error) bool {
	var t interface{ Timeout() bool }
	return errors.As(err, &t) && t.Timeout()
}
