package app

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/comps/internal/collector/filings"
	"github.com/newthinker/comps/internal/config"
	"github.com/newthinker/comps/internal/core"
	"github.com/newthinker/comps/internal/storage/archive"
)

type mockMarket struct {
	snaps map[string]*core.MarketSnapshot
	calls int
}

func (m *mockMarket) Name() string { return "mock" }

func (m *mockMarket) FetchSnapshots(ctx context.Context, symbols []string) (map[string]*core.MarketSnapshot, error) {
	m.calls++
	out := make(map[string]*core.MarketSnapshot, len(symbols))
	for _, s := range symbols {
		out[s] = m.snaps[s]
	}
	return out, nil
}

func snapshot(symbol string, mcap float64) *core.MarketSnapshot {
	return &core.MarketSnapshot{
		Symbol:            symbol,
		CompanyName:       symbol + " Corp",
		Price:             &core.VendorValue{Metric: "price", Value: core.Some(10), Unit: "USD", Vendor: "mock"},
		SharesOutstanding: &core.VendorValue{Metric: "shares_outstanding", Value: core.Some(mcap / 10), Unit: "shares", Vendor: "mock"},
		MarketCap:         &core.VendorValue{Metric: "market_cap", Value: core.Some(mcap), Unit: "USD", Vendor: "mock"},
	}
}

func filingDoc(symbol, period string, revenue, ebitda float64) *core.FilingResult {
	m := core.NewMetrics()
	m.SetValue("revenue", &core.FilingValue{Metric: "revenue", Value: core.Some(revenue), Unit: "USD"})
	m.SetValue("ebitda", &core.FilingValue{Metric: "ebitda", Value: core.Some(ebitda), Unit: "USD"})
	return &core.FilingResult{Symbol: symbol, Company: symbol + " Inc.", Period: period, Metrics: m}
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.Defaults()
	cfg.Storage.Filings.Path = t.TempDir()
	cfg.Analysis.Timeout = 5 * time.Second
	return cfg
}

func newTestApp(t *testing.T, cfg *config.Config, opts ...Option) (*App, *mockMarket) {
	t.Helper()
	market := &mockMarket{snaps: map[string]*core.MarketSnapshot{
		"AAA": snapshot("AAA", 1000),
		"BBB": snapshot("BBB", 3000),
	}}
	a, err := New(cfg, nil, append([]Option{WithMarketSource(market)}, opts...)...)
	require.NoError(t, err)

	store, err := archive.NewLocalFS(cfg.Storage.Filings.Path)
	require.NoError(t, err)
	src := filings.New(store, nil)
	ctx := context.Background()
	require.NoError(t, src.Put(ctx, filingDoc("AAA", "ltm", 500, 100)))
	require.NoError(t, src.Put(ctx, filingDoc("BBB", "ltm", 1000, 300)))
	require.NoError(t, src.Put(ctx, filingDoc("AAA", "ltm-1", 400, 80)))
	return a, market
}

func TestApp_New(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)

	stats := a.GetStats()
	assert.Equal(t, 0, stats["runs"])
	assert.Equal(t, []string{"archive"}, stats["filing_sources"])
	assert.Equal(t, []string{"finnhub"}, stats["market_sources"])
	assert.Equal(t, 0, stats["cache_entries"])
	assert.NotNil(t, a.Engine())
	assert.NotNil(t, a.Metrics())
}

func TestApp_New_InvalidConfig(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.EVPolicy.DebtMode = "bogus"
	_, err := New(cfg, nil)
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}

func TestParseSymbols(t *testing.T) {
	tests := []struct {
		name    string
		raw     []string
		max     int
		want    []string
		wantErr *core.Error
	}{
		{name: "single", raw: []string{"aapl"}, want: []string{"AAPL"}},
		{name: "comma list", raw: []string{"AAPL, msft,,brk.b"}, want: []string{"AAPL", "MSFT", "BRK.B"}},
		{name: "repeats kept in order", raw: []string{"MSFT", "AAPL", "msft"}, want: []string{"MSFT", "AAPL", "MSFT"}},
		{name: "repeats count toward max", raw: []string{"AAPL,aapl,AAPL"}, max: 2, wantErr: core.ErrTooManySymbols},
		{name: "empty", raw: []string{" , "}, wantErr: core.ErrNoSymbols},
		{name: "invalid", raw: []string{"AAPL", "NOT A TICKER"}, wantErr: core.ErrInvalidSymbol},
		{name: "too many", raw: []string{"A,B,C"}, max: 2, wantErr: core.ErrTooManySymbols},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseSymbols(tt.raw, tt.max)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestApp_EngineOptions(t *testing.T) {
	cfg := testConfig(t)
	cfg.Analysis.TaxRate = 0.25
	a, err := New(cfg, nil, WithMarketSource(&mockMarket{}))
	require.NoError(t, err)

	opts := a.EngineOptions(Request{})
	assert.Equal(t, "ltm", opts.Period)
	assert.Equal(t, "ltm-1", opts.PriorPeriod)
	require.NotNil(t, opts.TaxRate)
	assert.Equal(t, 0.25, *opts.TaxRate)
	require.NotNil(t, opts.Policy)
	assert.Equal(t, core.DebtTotalOnly, opts.Policy.DebtMode)

	policy := core.DefaultEVPolicy()
	policy.IncludeLeases = true
	opts = a.EngineOptions(Request{Period: "fy2023", Policy: &policy})
	assert.Equal(t, "fy2023", opts.Period)
	assert.True(t, opts.Policy.IncludeLeases)
	assert.False(t, cfg.Analysis.EVPolicy.IncludeLeases)
}

func TestApp_Analyze(t *testing.T) {
	a, market := newTestApp(t, testConfig(t))

	results, err := a.Analyze(context.Background(), []string{"bbb,aaa"}, Request{})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "BBB", results[0].Symbol)
	assert.Equal(t, "AAA", results[1].Symbol)
	assert.Equal(t, 1, market.calls)

	aaa := results[1]
	assert.Equal(t, "AAA Inc.", aaa.CompanyName)
	assert.Empty(t, aaa.Errors)
	assert.Contains(t, aaa.Growth, "revenue_yoy")
	assert.Contains(t, results[0].Warnings, "Prior-period SEC data fetch failed")

	assert.Equal(t, 1, a.GetStats()["runs"])
}

func TestApp_Analyze_RejectsBadInput(t *testing.T) {
	a, market := newTestApp(t, testConfig(t))

	_, err := a.Analyze(context.Background(), nil, Request{})
	assert.ErrorIs(t, err, core.ErrNoSymbols)

	bad := core.EVPolicy{CashTreatment: "hoard", DebtMode: core.DebtSplit}
	_, err = a.Analyze(context.Background(), []string{"AAA"}, Request{Policy: &bad})
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
	assert.Equal(t, 0, market.calls)
}

func TestApp_Analyze_Archive(t *testing.T) {
	store, err := archive.NewLocalFS(t.TempDir())
	require.NoError(t, err)
	a, _ := newTestApp(t, testConfig(t), WithResultsStore(store))

	_, err = a.Analyze(context.Background(), []string{"AAA"}, Request{})
	require.NoError(t, err)
	paths, err := store.List(context.Background(), "comps")
	require.NoError(t, err)
	assert.Empty(t, paths)

	_, err = a.Analyze(context.Background(), []string{"AAA", "BBB"}, Request{Archive: true})
	require.NoError(t, err)
	paths, err = store.List(context.Background(), "comps")
	require.NoError(t, err)
	assert.Len(t, paths, 2)
}

func TestApp_Summary(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	summary, err := a.Summary(context.Background(), []string{"AAA", "BBB"}, Request{})
	require.NoError(t, err)
	require.Len(t, summary.Companies, 2)

	var evRevenue bool
	for _, s := range summary.Multiples {
		if s.Metric == "ev_revenue" {
			evRevenue = true
			assert.Equal(t, 2, s.Count)
			assert.InDelta(t, 2.0, s.Min, 1e-9)
			assert.InDelta(t, 3.0, s.Max, 1e-9)
		}
	}
	assert.True(t, evRevenue, "expected ev_revenue stats")
}

func TestApp_Summary_CountsRepeatedSymbolOnce(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))

	summary, err := a.Summary(context.Background(), []string{"AAA,BBB", "aaa"}, Request{})
	require.NoError(t, err)
	require.Len(t, summary.Companies, 2)
	for _, s := range summary.Multiples {
		if s.Metric == "ev_revenue" {
			assert.Equal(t, 2, s.Count)
		}
	}

	results, err := a.Analyze(context.Background(), []string{"AAA,BBB", "aaa"}, Request{})
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, "AAA", results[2].Symbol)
}

func TestApp_Summary_PropagatesErrors(t *testing.T) {
	a, _ := newTestApp(t, testConfig(t))
	_, err := a.Summary(context.Background(), []string{"!!"}, Request{})
	assert.True(t, errors.Is(err, core.ErrInvalidSymbol))
}

func TestApp_ClearCache(t *testing.T) {
	a, err := New(testConfig(t), nil)
	require.NoError(t, err)
	assert.Equal(t, 0, a.ClearCache())

	b, _ := newTestApp(t, testConfig(t))
	assert.Equal(t, 0, b.ClearCache())
}

func TestApp_PeerSets(t *testing.T) {
	cfg := testConfig(t)
	cfg.PeerSets = map[string][]string{"software": {"msft", "orcl,crm"}}
	a, err := New(cfg, nil, WithMarketSource(&mockMarket{}))
	require.NoError(t, err)

	symbols, ok := a.PeerSet("software")
	require.True(t, ok)
	assert.Equal(t, []string{"MSFT", "ORCL", "CRM"}, symbols)

	got, err := a.SetPeerSet("chips", []string{"nvda", "amd"})
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA", "AMD"}, got)
	got, err = a.SetPeerSet("chips", []string{"nvda", "AMD", "NVDA"})
	require.NoError(t, err)
	assert.Equal(t, []string{"NVDA", "AMD"}, got)
	assert.Equal(t, []string{"chips", "software"}, a.PeerSets())
	assert.Equal(t, 2, a.GetStats()["peer_sets"])

	_, err = a.SetPeerSet(" ", []string{"AAPL"})
	assert.ErrorIs(t, err, core.ErrConfigMissing)
	_, err = a.SetPeerSet("bad", []string{"??"})
	assert.ErrorIs(t, err, core.ErrInvalidSymbol)

	assert.True(t, a.RemovePeerSet("chips"))
	assert.False(t, a.RemovePeerSet("chips"))
	_, ok = a.PeerSet("chips")
	assert.False(t, ok)
}

func TestApp_New_InvalidPeerSet(t *testing.T) {
	cfg := testConfig(t)
	cfg.PeerSets = map[string][]string{"broken": {"not a ticker"}}
	_, err := New(cfg, nil, WithMarketSource(&mockMarket{}))
	assert.ErrorIs(t, err, core.ErrConfigInvalid)
}
