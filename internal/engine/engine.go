// Package engine runs a comparable company analysis: it fetches current
// filings, prior-period filings and market snapshots concurrently, then
// assembles one CompanyAnalysis per symbol.
package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/newthinker/comps/internal/analysis"
	"github.com/newthinker/comps/internal/collector"
	"github.com/newthinker/comps/internal/core"
	"github.com/newthinker/comps/internal/metrics"
	"github.com/newthinker/comps/internal/storage/archive"
)

// RequiredMetrics are fetched for the current period. They feed the EV
// bridge, multiples and operating ratios.
var RequiredMetrics = []string{
	"revenue",
	"cost_of_revenue",
	"gross_profit",
	"operating_income",
	"net_income",
	"ebitda",
	"depreciation_amortization",
	"stock_based_compensation",
	"eps_diluted",
	"rd_expense",
	"sga_expense",
	"total_assets",
	"total_liabilities",
	"stockholders_equity",
	"cash",
	"total_debt",
	"short_term_debt",
	"marketable_securities",
	"operating_lease_liabilities",
	"preferred_stock",
	"noncontrolling_interests",
	"equity_method_investments",
	"operating_cash_flow",
	"capex",
	"free_cash_flow",
	"shares_outstanding",
	"dividends_per_share",
}

// GrowthMetrics are fetched for the prior period: the growth set plus the
// inputs of the margin deltas.
var GrowthMetrics = []string{
	"revenue",
	"ebitda",
	"net_income",
	"eps_diluted",
	"depreciation_amortization",
	"cost_of_revenue",
	"gross_profit",
	"operating_income",
	"stock_based_compensation",
}

// Stream names used in logs and metrics.
const (
	StreamFilings = "filings"
	StreamPrior   = "prior_filings"
	StreamMarket  = "market"
)

// Options tune one Analyze call. Zero fields take the defaults. TaxRate
// and Tolerance are pointers so an explicit 0 is kept.
type Options struct {
	Period      string
	PriorPeriod string
	Policy      *core.EVPolicy
	Timeout     time.Duration
	TaxRate     *float64
	Tolerance   *float64
}

// Rate returns a pointer to v for the TaxRate and Tolerance options.
func Rate(v float64) *float64 {
	return &v
}

// DefaultOptions returns ltm vs ltm-1, a 60s deadline, a 21% tax rate and
// a 1% cross-check tolerance.
func DefaultOptions() Options {
	return Options{
		Period:      "ltm",
		PriorPeriod: "ltm-1",
		Timeout:     60 * time.Second,
		TaxRate:     Rate(analysis.DefaultTaxRate),
		Tolerance:   Rate(analysis.DefaultTolerance),
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Period == "" {
		o.Period = d.Period
	}
	if o.PriorPeriod == "" {
		o.PriorPeriod = d.PriorPeriod
	}
	if o.Timeout <= 0 {
		o.Timeout = d.Timeout
	}
	if o.TaxRate == nil {
		o.TaxRate = d.TaxRate
	}
	if o.Tolerance == nil {
		o.Tolerance = d.Tolerance
	}
	return o
}

// Engine coordinates the data sources and the analysis.
type Engine struct {
	filings collector.FilingSource
	market  collector.MarketSource
	logger  *zap.Logger
	metrics *metrics.Registry
	store   archive.Storage
	now     func() time.Time
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		if logger != nil {
			e.logger = logger
		}
	}
}

// WithMetrics records run metrics to reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(e *Engine) {
		e.metrics = reg
	}
}

// WithArchive enables ArchiveResults.
func WithArchive(store archive.Storage) Option {
	return func(e *Engine) {
		e.store = store
	}
}

// WithClock overrides the valuation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		e.now = now
	}
}

// New creates an Engine over the given sources.
func New(filings collector.FilingSource, market collector.MarketSource, opts ...Option) *Engine {
	e := &Engine{
		filings: filings,
		market:  market,
		logger:  zap.NewNop(),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type fetched struct {
	filings map[string]*core.FilingResult
	prior   map[string]*core.FilingResult
	market  map[string]*core.MarketSnapshot
}

// Analyze returns one CompanyAnalysis per symbol, in input order, so a
// repeated symbol yields repeated analyses. Each ticker is fetched once. The only
// error is core.ErrNoSymbols; every other failure is recorded on the
// affected companies.
func (e *Engine) Analyze(ctx context.Context, symbols []string, opts Options) ([]*core.CompanyAnalysis, error) {
	if len(symbols) == 0 {
		return nil, core.ErrNoSymbols
	}
	opts = opts.withDefaults()
	start := time.Now()
	valuationTS := e.now().UTC()

	data := e.fetch(ctx, collector.UniqueSymbols(symbols), opts)

	deriver := analysis.NewDeriver(*opts.Tolerance)
	out := make([]*core.CompanyAnalysis, 0, len(symbols))
	degraded := 0
	for _, symbol := range symbols {
		a := e.buildSingle(symbol, data, opts, deriver, valuationTS)
		if a.Degraded() {
			degraded++
			e.logger.Warn("company analysis degraded",
				zap.String("symbol", symbol),
				zap.Strings("errors", a.Errors))
			if e.metrics != nil {
				e.metrics.RecordCompanyErrors(len(a.Errors))
			}
		}
		out = append(out, a)
	}

	if e.metrics != nil {
		e.metrics.RecordRun(time.Since(start).Seconds(), len(out), degraded)
	}
	e.logger.Info("comps analysis complete",
		zap.Int("companies", len(out)),
		zap.Int("degraded", degraded),
		zap.Duration("duration", time.Since(start)))
	return out, nil
}

// fetch runs the three streams under one deadline. A stream that errors,
// panics or misses the deadline contributes an empty map.
func (e *Engine) fetch(ctx context.Context, symbols []string, opts Options) fetched {
	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	filingsCh := make(chan map[string]*core.FilingResult, 1)
	priorCh := make(chan map[string]*core.FilingResult, 1)
	marketCh := make(chan map[string]*core.MarketSnapshot, 1)

	go func() {
		filingsCh <- runStream(e, StreamFilings, core.ErrFilingFetch, func() (map[string]*core.FilingResult, error) {
			return e.filings.FetchFilings(ctx, symbols, RequiredMetrics, opts.Period)
		})
	}()
	go func() {
		priorCh <- runStream(e, StreamPrior, core.ErrFilingFetch, func() (map[string]*core.FilingResult, error) {
			return e.filings.FetchFilings(ctx, symbols, GrowthMetrics, opts.PriorPeriod)
		})
	}()
	go func() {
		marketCh <- runStream(e, StreamMarket, core.ErrMarketFetch, func() (map[string]*core.MarketSnapshot, error) {
			return e.market.FetchSnapshots(ctx, symbols)
		})
	}()

	var data fetched
	var got int
	for got < 3 {
		select {
		case m := <-filingsCh:
			data.filings = m
		case m := <-priorCh:
			data.prior = m
		case m := <-marketCh:
			data.market = m
		case <-ctx.Done():
			e.logger.Warn("data fetch deadline exceeded; discarding all streams",
				zap.Duration("timeout", opts.Timeout),
				zap.Error(core.WrapError(core.ErrFetchTimeout, ctx.Err())))
			if e.metrics != nil {
				for _, s := range []string{StreamFilings, StreamPrior, StreamMarket} {
					e.metrics.RecordStreamFailure(s)
				}
			}
			return fetched{}
		}
		got++
	}
	return data
}

// runStream calls fn, converting errors and panics into an empty result.
func runStream[T any](e *Engine, name string, code *core.Error, fn func() (map[string]T, error)) (result map[string]T) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("data stream panicked",
				zap.String("stream", name),
				zap.Any("panic", r),
				zap.ByteString("stack", debug.Stack()))
			e.streamFailed(name)
			result = nil
		}
	}()

	m, err := fn()
	if err != nil {
		e.logger.Warn("data stream failed",
			zap.String("stream", name),
			zap.Error(core.WrapError(code, err)))
		e.streamFailed(name)
		return nil
	}
	return m
}

func (e *Engine) streamFailed(name string) {
	if e.metrics != nil {
		e.metrics.RecordStreamFailure(name)
	}
}

// buildSingle assembles one company's analysis. It never panics.
func (e *Engine) buildSingle(symbol string, data fetched, opts Options, d analysis.Deriver, ts time.Time) *core.CompanyAnalysis {
	filing := data.filings[symbol]
	prior := data.prior[symbol]
	market := data.market[symbol]

	a := &core.CompanyAnalysis{
		Symbol:             symbol,
		CompanyName:        symbol,
		Period:             opts.Period,
		ValuationTimestamp: ts,
		Market:             market,
		Filing:             filing,
		PriorFiling:        prior,
		Multiples:          map[string]*core.DerivedValue{},
		Growth:             map[string]*core.DerivedValue{},
		Operating:          map[string]*core.DerivedValue{},
		Warnings:           []string{},
		Errors:             []string{},
	}

	if filing != nil {
		if filing.Company != "" {
			a.CompanyName = filing.Company
		}
		a.CIK = filing.CIK
	}
	if market != nil && a.CompanyName == symbol && market.CompanyName != "" {
		a.CompanyName = market.CompanyName
	}

	if filing == nil {
		a.Errors = append(a.Errors, "SEC data fetch failed")
	}
	if market == nil {
		a.Errors = append(a.Errors, "Market data fetch failed")
	}
	if prior == nil {
		a.Warnings = append(a.Warnings, "Prior-period SEC data fetch failed")
	}

	var m *core.Metrics
	if filing != nil {
		m = filing.Metrics
	}
	if m == nil {
		m = core.NewMetrics()
	}

	if market != nil {
		e.guard(a, "EV bridge", func() {
			a.EVBridge = analysis.BuildEVBridge(market, m, opts.Policy)
		})
	}
	if a.EVBridge != nil {
		e.guard(a, "Multiples", func() {
			a.Multiples = d.Multiples(a.EVBridge, market, m)
		})
	}
	if prior != nil && filing != nil {
		e.guard(a, "Growth", func() {
			a.Growth = d.Growth(m, prior.Metrics)
		})
	}
	e.guard(a, "Operating metrics", func() {
		a.Operating = d.Operating(m, market, *opts.TaxRate)
	})

	return a
}

// guard runs one computation block, turning a panic into a company error.
func (e *Engine) guard(a *core.CompanyAnalysis, block string, fn func()) {
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("computation block panicked",
				zap.String("symbol", a.Symbol),
				zap.String("block", block),
				zap.Any("panic", r))
			a.Errors = append(a.Errors, fmt.Sprintf("%s computation failed: %v", block, r))
		}
	}()
	fn()
}

// ArchivePath is where a company's result snapshot is written.
func ArchivePath(a *core.CompanyAnalysis) string {
	ts := a.ValuationTimestamp.UTC()
	return fmt.Sprintf("comps/%s/%s-%d.json", ts.Format("20060102"), strings.ToUpper(a.Symbol), ts.Unix())
}

// ArchiveResults writes each analysis as a JSON snapshot and returns the
// written paths. It is a no-op without archive storage.
func (e *Engine) ArchiveResults(ctx context.Context, analyses []*core.CompanyAnalysis) ([]string, error) {
	if e.store == nil {
		return nil, nil
	}
	var paths []string
	var errs []error
	for _, a := range analyses {
		if a == nil {
			continue
		}
		path := ArchivePath(a)
		if err := archive.WriteJSON(ctx, e.store, path, a); err != nil {
			e.logger.Error("archiving analysis failed",
				zap.String("symbol", a.Symbol),
				zap.String("path", path),
				zap.Error(err))
			errs = append(errs, fmt.Errorf("%s: %w", a.Symbol, err))
			continue
		}
		paths = append(paths, path)
	}
	if len(errs) > 0 {
		return paths, core.WrapError(core.ErrStorageFailed, errors.Join(errs...))
	}
	return paths, nil
}
