// Package finnhub fetches market snapshots (price, shares outstanding and
// market cap) from the Finnhub REST API.
package finnhub

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"

	"github.com/newthinker/comps/internal/core"
	"github.com/newthinker/comps/internal/metrics"
)

const (
	// Name identifies the vendor in provenance records.
	Name = "finnhub"

	// DefaultBaseURL is the base URL for the Finnhub API.
	DefaultBaseURL = "https://finnhub.io/api/v1"

	// DefaultTimeout is the HTTP timeout per request.
	DefaultTimeout = 15 * time.Second

	// DefaultTTL is how long endpoint payloads are cached.
	DefaultTTL = 300 * time.Second

	// DefaultConcurrency bounds in-flight vendor requests.
	DefaultConcurrency = 8

	endpointQuote   = "quote"
	endpointMetric  = "metric"
	endpointProfile = "profile"
)

var endpointPaths = map[string]string{
	endpointQuote:   "/quote",
	endpointMetric:  "/stock/metric",
	endpointProfile: "/stock/profile2",
}

// ShareUnitThresholds decide how a metric-endpoint share count is scaled.
// Values below MillionsBelow are millions, values above AbsoluteAbove are
// absolute counts, anything between is treated as millions with a warning.
type ShareUnitThresholds struct {
	MillionsBelow float64 `mapstructure:"millions_below"`
	AbsoluteAbove float64 `mapstructure:"absolute_above"`
}

// DefaultShareUnitThresholds returns 1,000 and 1,000,000.
func DefaultShareUnitThresholds() ShareUnitThresholds {
	return ShareUnitThresholds{MillionsBelow: 1_000, AbsoluteAbove: 1_000_000}
}

// Client is a Finnhub market data client with a TTL cache, a bounded
// concurrency gate and a rate limiter.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	cache      *Cache
	gate       *semaphore.Weighted
	limiter    *rate.Limiter
	storeRaw   bool
	thresholds ShareUnitThresholds
	logger     *zap.Logger
	metrics    *metrics.Registry
	now        func() time.Time

	ttl         time.Duration
	concurrency int64
}

// ClientOption configures the Client.
type ClientOption func(*Client)

// WithBaseURL sets a custom base URL.
func WithBaseURL(baseURL string) ClientOption {
	return func(c *Client) {
		c.baseURL = baseURL
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithLogger sets a logger.
func WithLogger(logger *zap.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithMetrics records cache lookups to the registry.
func WithMetrics(reg *metrics.Registry) ClientOption {
	return func(c *Client) {
		c.metrics = reg
	}
}

// WithRateLimit caps requests per second. Zero or negative disables it.
func WithRateLimit(requestsPerSecond float64) ClientOption {
	return func(c *Client) {
		if requestsPerSecond <= 0 {
			c.limiter = rate.NewLimiter(rate.Inf, 0)
			return
		}
		burst := int(requestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(requestsPerSecond), burst)
	}
}

// WithConcurrency bounds in-flight requests.
func WithConcurrency(n int) ClientOption {
	return func(c *Client) {
		if n > 0 {
			c.concurrency = int64(n)
		}
	}
}

// WithTTL sets the payload cache lifetime.
func WithTTL(ttl time.Duration) ClientOption {
	return func(c *Client) {
		c.ttl = ttl
	}
}

// WithStoreRaw attaches raw endpoint payloads to vendor values.
func WithStoreRaw(store bool) ClientOption {
	return func(c *Client) {
		c.storeRaw = store
	}
}

// WithShareUnitThresholds overrides the share-count scaling heuristic.
func WithShareUnitThresholds(t ShareUnitThresholds) ClientOption {
	return func(c *Client) {
		c.thresholds = t
	}
}

// WithClock overrides the time source for the cache and fetch timestamps.
func WithClock(now func() time.Time) ClientOption {
	return func(c *Client) {
		c.now = now
	}
}

// NewClient creates a new Finnhub client.
func NewClient(apiKey string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: DefaultBaseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
		limiter:     rate.NewLimiter(rate.Inf, 0),
		thresholds:  DefaultShareUnitThresholds(),
		logger:      zap.NewNop(),
		now:         time.Now,
		ttl:         DefaultTTL,
		concurrency: DefaultConcurrency,
	}

	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}

	c.cache = NewCache(c.ttl, c.now)
	c.gate = semaphore.NewWeighted(c.concurrency)
	return c
}

func (c *Client) Name() string {
	return Name
}

// Cache exposes the payload cache, mainly so callers can Clear it.
func (c *Client) Cache() *Cache {
	return c.cache
}

// FetchSnapshots fetches snapshots for all symbols concurrently. A symbol
// whose fetch failed maps to nil; the error is only set when ctx ends.
func (c *Client) FetchSnapshots(ctx context.Context, symbols []string) (map[string]*core.MarketSnapshot, error) {
	out := make(map[string]*core.MarketSnapshot, len(symbols))
	var mu sync.Mutex
	var wg sync.WaitGroup

	for _, symbol := range symbols {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			snap, err := c.FetchSnapshot(ctx, symbol)
			if err != nil {
				c.logger.Warn("market snapshot failed",
					zap.String("symbol", symbol),
					zap.Error(err))
				snap = nil
			}
			mu.Lock()
			out[symbol] = snap
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// FetchSnapshot fetches quote, metric and profile for one symbol and
// assembles the snapshot.
func (c *Client) FetchSnapshot(ctx context.Context, symbol string) (*core.MarketSnapshot, error) {
	var quote, metric, profile map[string]any

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		quote, err = c.call(gctx, endpointQuote, symbol, url.Values{"symbol": {symbol}})
		return err
	})
	g.Go(func() (err error) {
		metric, err = c.call(gctx, endpointMetric, symbol, url.Values{"symbol": {symbol}, "metric": {"all"}})
		return err
	})
	g.Go(func() (err error) {
		profile, err = c.call(gctx, endpointProfile, symbol, url.Values{"symbol": {symbol}})
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return c.assemble(symbol, quote, metric, profile), nil
}

// call returns the decoded payload of one endpoint, from cache when fresh.
func (c *Client) call(ctx context.Context, endpoint, symbol string, params url.Values) (map[string]any, error) {
	if payload, ok := c.cache.Get(endpoint, symbol); ok {
		c.recordCache(true)
		return payload, nil
	}
	c.recordCache(false)

	if err := c.gate.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.gate.Release(1)

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, core.WrapError(core.ErrRateLimited, err)
	}

	reqURL := fmt.Sprintf("%s%s?%s", c.baseURL, endpointPaths[endpoint], params.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("creating %s request: %w", endpoint, err)
	}
	req.Header.Set("X-Finnhub-Token", c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, core.WrapError(core.ErrVendorFailed, fmt.Errorf("fetching %s for %s: %w", endpoint, symbol, err))
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, core.WrapError(core.ErrRateLimited, fmt.Errorf("%s for %s: status %d", endpoint, symbol, resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, core.WrapError(core.ErrVendorFailed, fmt.Errorf("%s for %s: status %d: %s", endpoint, symbol, resp.StatusCode, body))
	}

	payload := map[string]any{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, core.WrapError(core.ErrVendorFailed, fmt.Errorf("decoding %s for %s: %w", endpoint, symbol, err))
	}

	c.logger.Debug("finnhub request",
		zap.String("endpoint", endpoint),
		zap.String("symbol", symbol))

	c.cache.Set(endpoint, symbol, payload)
	return payload, nil
}

func (c *Client) recordCache(hit bool) {
	if c.metrics != nil {
		c.metrics.RecordCacheLookup(hit)
	}
}

func (c *Client) raw(payload map[string]any) map[string]any {
	if !c.storeRaw {
		return nil
	}
	return payload
}

// assemble builds the snapshot from the three endpoint payloads.
func (c *Client) assemble(symbol string, quote, metric, profile map[string]any) *core.MarketSnapshot {
	now := c.now().UTC()

	price, priceWarnings := parsePositivePrice(quote["c"])
	priceVal := &core.VendorValue{
		Metric:    "price",
		Value:     price,
		Unit:      "USD",
		Vendor:    Name,
		Symbol:    symbol,
		Endpoint:  endpointQuote,
		FetchedAt: now,
		Raw:       c.raw(quote),
		Warnings:  priceWarnings,
	}
	if ts, ok := numeric(quote["t"]); ok && ts > 0 {
		asOf := time.Unix(int64(ts), 0).UTC()
		priceVal.AsOf = &asOf
	}

	sharesVal := c.shares(symbol, metric, profile, now)

	snap := &core.MarketSnapshot{
		Symbol:            symbol,
		CompanyName:       symbol,
		Price:             priceVal,
		SharesOutstanding: sharesVal,
	}
	if name, ok := profile["name"].(string); ok && name != "" {
		snap.CompanyName = name
	}
	if cur, ok := profile["currency"].(string); ok {
		snap.Currency = cur
	}

	// Vendor market cap avoids ADR share/price mismatches, but it is quoted
	// in the listing currency.
	var warnings []string
	mcap, ok := numeric(profile["marketCapitalization"])
	vendorOK := ok && mcap > 0
	if vendorOK && snap.Currency != "" && snap.Currency != "USD" && price.Valid && sharesVal.Value.Valid {
		warnings = append(warnings, fmt.Sprintf(
			"Vendor marketCapitalization is reported in %s; using price * shares_outstanding", snap.Currency))
		vendorOK = false
	}

	if vendorOK {
		snap.MarketCap = &core.VendorValue{
			Metric:    "market_cap",
			Value:     core.Some(mcap * 1_000_000),
			Unit:      "USD",
			Vendor:    Name,
			Symbol:    symbol,
			Endpoint:  endpointProfile,
			FetchedAt: now,
			Raw:       c.raw(profile),
			Notes:     []string{fmt.Sprintf("Vendor-reported marketCapitalization=%vM from profile endpoint", mcap)},
		}
		return snap
	}

	value := core.None()
	if price.Valid && sharesVal.Value.Valid {
		value = core.Some(price.Value * sharesVal.Value.Value)
	}
	snap.MarketCap = &core.DerivedValue{
		Metric:     "market_cap",
		Value:      value,
		Unit:       "USD",
		Formula:    "price * shares_outstanding",
		Derivation: core.DerivationComputed,
		Components: map[string]core.Source{
			"price":              priceVal,
			"shares_outstanding": sharesVal,
		},
		Warnings: warnings,
	}
	return snap
}

// shares prefers the profile endpoint (reported in millions) and falls back
// to the metric endpoint, whose unit varies by listing.
func (c *Client) shares(symbol string, metric, profile map[string]any, now time.Time) *core.VendorValue {
	v := &core.VendorValue{
		Metric:    "shares_outstanding",
		Value:     core.None(),
		Unit:      "shares",
		Vendor:    Name,
		Symbol:    symbol,
		Endpoint:  endpointProfile,
		FetchedAt: now,
		Raw:       c.raw(profile),
	}

	if so, ok := numeric(profile["shareOutstanding"]); ok {
		if so > 0 {
			v.Value = core.Some(so * 1_000_000)
			v.Notes = append(v.Notes, fmt.Sprintf("Raw value %vM from profile endpoint, multiplied by 1e6", so))
			return v
		}
		v.Warnings = append(v.Warnings, fmt.Sprintf("Negative or zero shares outstanding from profile (%v); treated as None", so))
	}

	v.Endpoint = endpointMetric
	v.Raw = c.raw(metric)

	values, _ := metric["metric"].(map[string]any)
	so, ok := numeric(values["shareOutstanding"])
	if !ok {
		so, ok = numeric(values["sharesOutstanding"])
	}

	t := c.thresholds
	switch {
	case !ok:
		v.Warnings = append(v.Warnings, "Shares outstanding not found in profile or metric endpoint")
	case so <= 0:
		v.Warnings = append(v.Warnings, fmt.Sprintf("Negative or zero shares outstanding from metric endpoint (%v); treated as None", so))
	case so < t.MillionsBelow:
		v.Value = core.Some(so * 1_000_000)
		v.Notes = append(v.Notes, fmt.Sprintf("Raw metric value %v looked like millions (< %v), multiplied by 1e6", so, t.MillionsBelow))
	case so > t.AbsoluteAbove:
		v.Value = core.Some(so)
		v.Notes = append(v.Notes, fmt.Sprintf("Raw metric value %v looked like absolute shares (> %v), used directly", so, t.AbsoluteAbove))
	default:
		v.Value = core.Some(so * 1_000_000)
		v.Warnings = append(v.Warnings, fmt.Sprintf(
			"Shares outstanding from metric endpoint was between %v and %v; assumed value is in millions", t.MillionsBelow, t.AbsoluteAbove))
		v.Notes = append(v.Notes, fmt.Sprintf("Ambiguous metric value %v, multiplied by 1e6", so))
	}
	return v
}
