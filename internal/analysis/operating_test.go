package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/comps/internal/core"
)

func TestComputeOperating(t *testing.T) {
	m := usd(
		"revenue", 1000,
		"rd_expense", 150,
		"sga_expense", 200,
		"capex", 50,
		"cost_of_revenue", 400,
		"ebitda", 300,
		"net_income", 120,
		"operating_cash_flow", 250,
		"operating_income", 200,
		"depreciation_amortization", 50,
		"stock_based_compensation", 25,
		"total_debt", 300,
		"stockholders_equity", 700,
	)
	got := ComputeOperating(m, snapshot(10, 100, 1000), DefaultTaxRate)

	want := map[string]float64{
		"rd_pct_revenue":         0.15,
		"sga_pct_revenue":        0.2,
		"capex_pct_revenue":      0.05,
		"gross_margin":           0.6,
		"ebitda_margin":          0.3,
		"net_margin":             0.12,
		"fcf_margin":             0.2,
		"adjusted_ebitda_margin": 0.275,
		"revenue_per_share":      10,
		"roic":                   200 * 0.79 / 1000,
	}
	assert.Len(t, got, len(want))
	for name, v := range want {
		dv, ok := got[name]
		require.True(t, ok, name)
		assert.InDelta(t, v, dv.Value.Value, 1e-9, name)
	}

	assert.Equal(t, "rd_expense / revenue", got["rd_pct_revenue"].Formula)
	assert.Contains(t, got["rd_pct_revenue"].Components, "numerator")

	gp, ok := got["gross_margin"].Components["gross_profit"].(*core.DerivedValue)
	require.True(t, ok)
	assert.Equal(t, "revenue - cost_of_revenue", gp.Formula)

	assert.Equal(t, "USD/shares", got["revenue_per_share"].Unit)
	assert.Empty(t, got["revenue_per_share"].Warnings)
	assert.Equal(t, []string{"ROIC uses assumed 21.0% tax rate; actual rate may differ"}, got["roic"].Warnings)
}

func TestComputeOperating_ZeroRevenue(t *testing.T) {
	got := ComputeOperating(usd("revenue", 0, "rd_expense", 10, "gross_profit", 5), nil, DefaultTaxRate)
	assert.Empty(t, got)
}

func TestComputeOperating_EBITDAMarginOmittedWithoutEBITDA(t *testing.T) {
	got := ComputeOperating(usd("revenue", 100, "gross_profit", 40), nil, DefaultTaxRate)
	assert.Contains(t, got, "gross_margin")
	assert.NotContains(t, got, "ebitda_margin")
	assert.NotContains(t, got, "revenue_per_share")
}

func TestComputeOperating_RevenuePerShareForeignCurrency(t *testing.T) {
	got := ComputeOperating(withUnit("JPY", "revenue", 1000), snapshot(10, 100, 1000), DefaultTaxRate)
	dv := got["revenue_per_share"]
	require.NotNil(t, dv)
	assert.Equal(t, "JPY/shares", dv.Unit)
	require.Len(t, dv.Warnings, 1)
	assert.Contains(t, dv.Warnings[0], "SEC data is in JPY")
}

func TestComputeOperating_RevenuePerShareFallsBackToFilingCurrency(t *testing.T) {
	m := core.NewMetrics()
	m.SetValue("revenue", fv("revenue", 1000, ""))
	m.SetValue("net_income", fv("net_income", 100, "EUR"))

	got := ComputeOperating(m, snapshot(10, 100, 1000), DefaultTaxRate)
	dv := got["revenue_per_share"]
	require.NotNil(t, dv)
	assert.Equal(t, "EUR/shares", dv.Unit)
	require.Len(t, dv.Warnings, 1)
	assert.Contains(t, dv.Warnings[0], "SEC data is in EUR")
}

func TestComputeOperating_ZeroTaxRate(t *testing.T) {
	got := ComputeOperating(usd("operating_income", 100, "total_debt", 100, "stockholders_equity", 100), nil, 0)
	dv := got["roic"]
	require.NotNil(t, dv)
	assert.InDelta(t, 0.5, dv.Value.Value, 1e-9)
}

func TestComputeOperating_ROICNeedsPositiveCapital(t *testing.T) {
	got := ComputeOperating(usd("operating_income", 100, "total_debt", 100, "stockholders_equity", -200), nil, DefaultTaxRate)
	assert.NotContains(t, got, "roic")

	got = ComputeOperating(usd("operating_income", 100, "total_debt", 100, "stockholders_equity", 100), nil, 0.25)
	require.Contains(t, got, "roic")
	assert.InDelta(t, 0.375, got["roic"].Value.Value, 1e-9)
	assert.Equal(t, []string{"ROIC uses assumed 25.0% tax rate; actual rate may differ"}, got["roic"].Warnings)
}
