package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/comps/internal/core"
)

func fullMetrics() *core.Metrics {
	return usd(
		"revenue", 500,
		"ebitda", 100,
		"operating_income", 80,
		"depreciation_amortization", 20,
		"stock_based_compensation", 10,
		"operating_cash_flow", 60,
		"capex", 10,
		"net_income", 50,
		"stockholders_equity", 400,
		"dividends_per_share", 0.5,
		"total_debt", 200,
		"cash", 100,
	)
}

func TestComputeMultiples(t *testing.T) {
	market := snapshot(10, 100, 1000)
	m := fullMetrics()
	bridge := BuildEVBridge(market, m, nil)
	require.Equal(t, core.Some(1100), bridge.EnterpriseValue.Value)

	got := ComputeMultiples(bridge, market, m)

	want := map[string]float64{
		"adjusted_ebitda": 110,
		"ev_revenue":      2.2,
		"ev_ebitda_gaap":  11,
		"ev_ebit":         13.75,
		"ev_fcf":          22,
		"ev_ebitda":       10,
		"pe":              20,
		"price_book":      2.5,
		"fcf_yield":       0.05,
		"dividend_yield":  0.05,
	}
	assert.Len(t, got, len(want))
	for name, v := range want {
		dv, ok := got[name]
		require.True(t, ok, name)
		require.True(t, dv.Value.Valid, name)
		assert.InDelta(t, v, dv.Value.Value, 1e-9, name)
	}

	assert.Equal(t, "x", got["ev_revenue"].Unit)
	assert.Equal(t, "pure", got["fcf_yield"].Unit)
	assert.Equal(t, "pure", got["dividend_yield"].Unit)
	assert.Equal(t, "enterprise_value / adjusted_ebitda", got["ev_ebitda"].Formula)
	assert.Contains(t, got["ev_revenue"].Components, "numerator")
	assert.Contains(t, got["ev_revenue"].Components, "denominator")
}

func TestComputeMultiples_FCFPassThrough(t *testing.T) {
	market := snapshot(10, 100, 1000)
	m := usd("free_cash_flow", 40, "total_debt", 0, "cash", 0)
	got := ComputeMultiples(BuildEVBridge(market, m, nil), market, m)

	require.True(t, got["ev_fcf"].Value.Valid)
	assert.InDelta(t, 25.0, got["ev_fcf"].Value.Value, 1e-9)
	den, ok := got["ev_fcf"].Components["denominator"].(*core.DerivedValue)
	require.True(t, ok)
	assert.Equal(t, core.DerivationPassThrough, den.Derivation)
}

func TestComputeMultiples_CurrencyBlocksEverything(t *testing.T) {
	market := snapshot(10, 100, 1000)
	m := withUnit("EUR", "revenue", 500, "net_income", 50, "operating_income", 80, "depreciation_amortization", 20)
	got := ComputeMultiples(BuildEVBridge(market, m, nil), market, m)

	for _, name := range []string{"ev_revenue", "ev_ebitda_gaap", "ev_ebit", "ev_fcf", "ev_ebitda", "pe", "price_book", "fcf_yield", "dividend_yield"} {
		dv, ok := got[name]
		require.True(t, ok, name)
		assert.False(t, dv.Value.Valid, name)
		require.Len(t, dv.Warnings, 1, name)
		assert.Contains(t, dv.Warnings[0], "SEC data is in EUR", name)
	}
}

func TestComputeMultiples_NoMarket(t *testing.T) {
	got := ComputeMultiples(nil, nil, fullMetrics())
	assert.Equal(t, []string{"Numerator unavailable"}, got["ev_revenue"].Warnings)
	assert.Equal(t, []string{"Numerator unavailable"}, got["pe"].Warnings)
	assert.Equal(t, []string{"Denominator unavailable"}, got["fcf_yield"].Warnings)
	assert.Equal(t, []string{"Denominator unavailable"}, got["dividend_yield"].Warnings)
}

func TestDivide(t *testing.T) {
	num := fv("net_income", 50, "USD")

	tests := []struct {
		name    string
		num     core.Number
		den     core.Number
		want    core.Number
		warning string
	}{
		{"ok", core.Some(50), core.Some(10), core.Some(5), ""},
		{"numerator absent", core.None(), core.Some(10), core.None(), "Numerator unavailable"},
		{"denominator absent", core.Some(50), core.None(), core.None(), "Denominator unavailable"},
		{"zero denominator", core.Some(50), core.Some(0), core.None(), "Denominator is zero"},
		{"negative denominator", core.Some(50), core.Some(-10), core.Some(-5), "Negative denominator (-10); result may be misleading"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dv := Divide("pe", "market_cap / net_income", "", tt.num, num, tt.den, nil)
			assert.Equal(t, tt.want, dv.Value)
			assert.Equal(t, "x", dv.Unit)
			if tt.warning == "" {
				assert.Empty(t, dv.Warnings)
			} else {
				assert.Equal(t, []string{tt.warning}, dv.Warnings)
			}
			assert.Contains(t, dv.Components, "numerator")
			assert.NotContains(t, dv.Components, "denominator")
		})
	}
}

func TestComputeMultiples_Idempotent(t *testing.T) {
	market := snapshot(10, 100, 1000)
	m := fullMetrics()
	first := ComputeMultiples(BuildEVBridge(market, m, nil), market, m)
	second := ComputeMultiples(BuildEVBridge(market, m, nil), market, m)
	assert.Equal(t, first, second)
}

func TestDivide_ExplicitUnitAndComponents(t *testing.T) {
	num := fv("revenue", 1000, "USD")
	den := fv("shares_outstanding", 100, "shares")

	dv := Divide("revenue_per_share", "revenue / shares", "USD/shares", num.Value, num, den.Value, den)
	require.NotNil(t, dv)
	assert.Equal(t, core.Some(10), dv.Value)
	assert.Equal(t, "USD/shares", dv.Unit)
	assert.Same(t, num, dv.Components["numerator"])
	assert.Same(t, den, dv.Components["denominator"])
}
