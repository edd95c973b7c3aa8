package app

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/comps/internal/analysis"
	"github.com/newthinker/comps/internal/collector"
	"github.com/newthinker/comps/internal/collector/filings"
	"github.com/newthinker/comps/internal/collector/finnhub"
	"github.com/newthinker/comps/internal/config"
	"github.com/newthinker/comps/internal/core"
	"github.com/newthinker/comps/internal/engine"
	"github.com/newthinker/comps/internal/metrics"
	"github.com/newthinker/comps/internal/storage/archive"
)

// Request carries per-run overrides of the configured analysis settings.
type Request struct {
	Period      string
	PriorPeriod string
	Policy      *core.EVPolicy
	Archive     bool
}

// Summary is a peer set's analyses plus multiple statistics.
type Summary struct {
	Companies []*core.CompanyAnalysis `json:"companies" yaml:"companies"`
	Multiples []analysis.PeerStats    `json:"multiples" yaml:"multiples"`
}

// cache is the part of a market source's payload cache the app manages.
type cache interface {
	Len() int
	Clear()
}

// App is the main application orchestrator
type App struct {
	cfg      *config.Config
	logger   *zap.Logger
	metrics  *metrics.Registry
	sources  *collector.Registry
	engine   *engine.Engine
	filings  collector.FilingSource
	market   collector.MarketSource
	cache    cache
	archived bool

	mu       sync.RWMutex
	runs     int
	lastRun  time.Time
	peerSets map[string][]string
}

// Option overrides a component New would otherwise build from config.
type Option func(*options)

type options struct {
	filings collector.FilingSource
	market  collector.MarketSource
	metrics *metrics.Registry
	results archive.Storage
}

// WithFilingSource replaces the archive-backed filing source.
func WithFilingSource(s collector.FilingSource) Option {
	return func(o *options) { o.filings = s }
}

// WithMarketSource replaces the Finnhub client.
func WithMarketSource(s collector.MarketSource) Option {
	return func(o *options) { o.market = s }
}

// WithMetrics shares a metrics registry with the app.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) { o.metrics = reg }
}

// WithResultsStore replaces the result snapshot store.
func WithResultsStore(s archive.Storage) Option {
	return func(o *options) { o.results = s }
}

// New wires sources, storage, metrics and the engine from cfg.
func New(cfg *config.Config, logger *zap.Logger, opts ...Option) (*App, error) {
	if cfg == nil {
		cfg = config.Defaults()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	reg := o.metrics
	if reg == nil {
		reg = metrics.NewRegistry()
	}

	a := &App{
		cfg:      cfg,
		logger:   logger,
		metrics:  reg,
		sources:  collector.NewRegistry(),
		peerSets: make(map[string][]string, len(cfg.PeerSets)),
	}
	for name, symbols := range cfg.PeerSets {
		if _, err := a.SetPeerSet(name, symbols); err != nil {
			return nil, core.WrapError(core.ErrConfigInvalid, fmt.Errorf("peer set %q: %w", name, err))
		}
	}

	var filingStore archive.Storage
	a.filings = o.filings
	if a.filings == nil {
		store, err := archive.New(cfg.Storage.Filings)
		if err != nil {
			return nil, fmt.Errorf("opening filing storage: %w", err)
		}
		filingStore = store
		a.filings = filings.New(store, logger.Named("filings"))
	}

	a.market = o.market
	if a.market == nil {
		fc := cfg.Finnhub
		client := finnhub.NewClient(fc.APIKey,
			finnhub.WithBaseURL(fc.BaseURL),
			finnhub.WithHTTPClient(&http.Client{Timeout: fc.Timeout}),
			finnhub.WithTTL(fc.TTL),
			finnhub.WithConcurrency(fc.Concurrency),
			finnhub.WithRateLimit(fc.RateLimit),
			finnhub.WithStoreRaw(fc.StoreRaw),
			finnhub.WithShareUnitThresholds(fc.ShareUnits),
			finnhub.WithLogger(logger.Named("finnhub")),
			finnhub.WithMetrics(reg),
		)
		a.market = client
	}
	if c, ok := a.market.(interface{ Cache() *finnhub.Cache }); ok {
		a.cache = c.Cache()
	}

	a.sources.RegisterFiling(a.filings)
	a.sources.RegisterMarket(a.market)

	engineOpts := []engine.Option{
		engine.WithLogger(logger.Named("engine")),
		engine.WithMetrics(reg),
	}
	results := o.results
	switch {
	case results != nil:
	case cfg.Storage.Results.Archive.Type == "" && filingStore != nil:
		results = filingStore
	default:
		store, err := archive.New(cfg.ResultsArchive())
		if err != nil {
			return nil, fmt.Errorf("opening results storage: %w", err)
		}
		results = store
	}
	engineOpts = append(engineOpts, engine.WithArchive(results))
	a.archived = cfg.Storage.Results.Enabled
	a.engine = engine.New(a.filings, a.market, engineOpts...)

	return a, nil
}

// ParseSymbols splits comma-separated entries and normalizes each ticker.
// Repeated tickers are kept so every input symbol gets its own result, and
// count against max. max <= 0 means no limit.
func ParseSymbols(raw []string, max int) ([]string, error) {
	var out []string
	for _, entry := range raw {
		for _, part := range strings.Split(entry, ",") {
			if strings.TrimSpace(part) == "" {
				continue
			}
			s, err := collector.NormalizeSymbol(part)
			if err != nil {
				return nil, core.WrapError(core.ErrInvalidSymbol, err)
			}
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil, core.ErrNoSymbols
	}
	if max > 0 && len(out) > max {
		return nil, core.WrapError(core.ErrTooManySymbols,
			fmt.Errorf("%d symbols requested, limit is %d", len(out), max))
	}
	return out, nil
}

// EngineOptions merges a request with the configured analysis settings.
func (a *App) EngineOptions(req Request) engine.Options {
	ac := a.cfg.Analysis
	opts := engine.Options{
		Period:      ac.Period,
		PriorPeriod: ac.PriorPeriod,
		Timeout:     ac.Timeout,
		TaxRate:     engine.Rate(ac.TaxRate),
		Tolerance:   engine.Rate(ac.CrossCheckTolerance),
	}
	policy := ac.EVPolicy
	opts.Policy = &policy
	if req.Period != "" {
		opts.Period = req.Period
	}
	if req.PriorPeriod != "" {
		opts.PriorPeriod = req.PriorPeriod
	}
	if req.Policy != nil {
		p := *req.Policy
		opts.Policy = &p
	}
	return opts
}

// Analyze runs the comps engine over symbols. Results are archived when the
// request asks for it or result archiving is enabled in config.
func (a *App) Analyze(ctx context.Context, symbols []string, req Request) ([]*core.CompanyAnalysis, error) {
	parsed, err := ParseSymbols(symbols, a.cfg.Server.MaxSymbols)
	if err != nil {
		return nil, err
	}
	if req.Policy != nil {
		if err := req.Policy.Validate(); err != nil {
			return nil, err
		}
	}

	results, err := a.engine.Analyze(ctx, parsed, a.EngineOptions(req))
	if err != nil {
		return nil, err
	}

	a.mu.Lock()
	a.runs++
	a.lastRun = time.Now().UTC()
	a.mu.Unlock()

	if req.Archive || a.archived {
		paths, err := a.engine.ArchiveResults(ctx, results)
		if err != nil {
			a.logger.Warn("archiving results failed", zap.Error(err))
		} else {
			a.logger.Debug("results archived", zap.Strings("paths", paths))
		}
	}
	return results, nil
}

// Summary runs Analyze and adds peer statistics for every multiple. Each
// company is analyzed and counted once, however often it was requested.
func (a *App) Summary(ctx context.Context, symbols []string, req Request) (*Summary, error) {
	parsed, err := ParseSymbols(symbols, a.cfg.Server.MaxSymbols)
	if err != nil {
		return nil, err
	}
	results, err := a.Analyze(ctx, collector.UniqueSymbols(parsed), req)
	if err != nil {
		return nil, err
	}
	return &Summary{
		Companies: results,
		Multiples: analysis.SummarizeMultiples(results),
	}, nil
}

// ClearCache drops cached market payloads, if the market source caches.
func (a *App) ClearCache() int {
	if a.cache == nil {
		return 0
	}
	n := a.cache.Len()
	a.cache.Clear()
	a.logger.Info("market data cache cleared", zap.Int("entries", n))
	return n
}

// GetStats returns application statistics
func (a *App) GetStats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	filingNames, marketNames := a.sources.Names()
	stats := map[string]any{
		"runs":            a.runs,
		"filing_sources":  filingNames,
		"market_sources":  marketNames,
		"period":          a.cfg.Analysis.Period,
		"prior_period":    a.cfg.Analysis.PriorPeriod,
		"archive_results": a.archived,
	}
	if !a.lastRun.IsZero() {
		stats["last_run"] = a.lastRun
	}
	if a.cache != nil {
		stats["cache_entries"] = a.cache.Len()
	}
	stats["peer_sets"] = len(a.peerSets)
	return stats
}

// PeerSets returns the names of all peer sets, sorted.
func (a *App) PeerSets() []string {
	a.mu.RLock()
	defer a.mu.RUnlock()
	names := make([]string, 0, len(a.peerSets))
	for name := range a.peerSets {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// PeerSet returns a copy of the named peer set.
func (a *App) PeerSet(name string) ([]string, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	symbols, ok := a.peerSets[name]
	if !ok {
		return nil, false
	}
	return append([]string(nil), symbols...), true
}

// SetPeerSet creates or replaces a peer set and returns its normalized
// symbols. A peer set holds each ticker once.
func (a *App) SetPeerSet(name string, symbols []string) ([]string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, core.WrapError(core.ErrConfigMissing, fmt.Errorf("peer set name is required"))
	}
	parsed, err := ParseSymbols(symbols, a.cfg.Server.MaxSymbols)
	if err != nil {
		return nil, err
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	parsed = collector.UniqueSymbols(parsed)
	a.peerSets[name] = parsed
	return append([]string(nil), parsed...), nil
}

// RemovePeerSet deletes a peer set.
func (a *App) RemovePeerSet(name string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.peerSets[name]; !ok {
		return false
	}
	delete(a.peerSets, name)
	return true
}

// Engine returns the comps engine.
func (a *App) Engine() *engine.Engine {
	return a.engine
}

// Metrics returns the metrics registry shared by every component.
func (a *App) Metrics() *metrics.Registry {
	return a.metrics
}

// Config returns the app configuration.
func (a *App) Config() *config.Config {
	return a.cfg
}
