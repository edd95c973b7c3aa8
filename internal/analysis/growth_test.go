package analysis

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/newthinker/comps/internal/core"
)

func TestComputeGrowth(t *testing.T) {
	got := ComputeGrowth(usd("revenue", 120), usd("revenue", 100))
	dv, ok := got["revenue_yoy"]
	require.True(t, ok)
	assert.InDelta(t, 0.2, dv.Value.Value, 1e-9)
	assert.Equal(t, "(revenue_ltm - revenue_ltm1) / abs(revenue_ltm1)", dv.Formula)
	assert.Equal(t, "pure", dv.Unit)
	assert.Contains(t, dv.Components, "current")
	assert.Contains(t, dv.Components, "prior")
	assert.Empty(t, dv.Warnings)
}

func TestComputeGrowth_ZeroPrior(t *testing.T) {
	got := ComputeGrowth(usd("net_income", 50), usd("net_income", 0))
	dv := got["net_income_yoy"]
	require.NotNil(t, dv)
	assert.False(t, dv.Value.Valid)
	require.Len(t, dv.Warnings, 1)
	assert.Contains(t, dv.Warnings[0], "cannot compute growth")
}

func TestComputeGrowth_NegativePrior(t *testing.T) {
	got := ComputeGrowth(usd("net_income", 50), usd("net_income", -100))
	dv := got["net_income_yoy"]
	require.NotNil(t, dv)
	assert.InDelta(t, 1.5, dv.Value.Value, 1e-9)
	require.Len(t, dv.Warnings, 1)
	assert.Contains(t, dv.Warnings[0], "negative")
}

func TestComputeGrowth_MissingPeriodOmitted(t *testing.T) {
	got := ComputeGrowth(usd("revenue", 120), usd())
	assert.NotContains(t, got, "revenue_yoy")

	got = ComputeGrowth(usd("revenue", 120), nil)
	assert.Empty(t, got)
}

func TestComputeGrowth_SplitContamination(t *testing.T) {
	cur := core.NewMetrics()
	cur.SetValue("eps_diluted", &core.FilingValue{
		Metric:   "eps_diluted",
		Value:    core.Some(60),
		Unit:     "USD/shares",
		Warnings: []string{"Possible Stock Split Contamination: share count changed 4x"},
	})
	got := ComputeGrowth(cur, usd("eps_diluted", 3))

	dv := got["eps_diluted_yoy"]
	require.NotNil(t, dv)
	assert.False(t, dv.Value.Valid)
	assert.Equal(t, []string{"Skipped: stock split contamination detected in source data"}, dv.Warnings)
}

func TestComputeGrowth_MarginDeltas(t *testing.T) {
	cur := usd("revenue", 100, "gross_profit", 60, "ebitda", 30)
	pri := usd("revenue", 100, "gross_profit", 50)

	got := ComputeGrowth(cur, pri)

	dv := got["gross_margin_chg"]
	require.NotNil(t, dv)
	assert.InDelta(t, 0.10, dv.Value.Value, 1e-9)
	assert.Equal(t, "pure", dv.Unit)

	curMargin, ok := dv.Components["current"].(*core.DerivedValue)
	require.True(t, ok)
	assert.Equal(t, "gross_margin", curMargin.Metric)
	assert.Contains(t, curMargin.Components, "gross_profit")
	assert.Contains(t, curMargin.Components, "revenue")

	assert.NotContains(t, got, "ebitda_margin_chg")
	assert.NotContains(t, got, "adjusted_ebitda_margin_chg")
}

func TestComputeGrowth_AdjustedEBITDAMarginDelta(t *testing.T) {
	cur := usd("revenue", 200, "operating_income", 40, "depreciation_amortization", 10, "stock_based_compensation", 10)
	pri := usd("revenue", 100, "operating_income", 20, "depreciation_amortization", 10, "stock_based_compensation", 0)

	got := ComputeGrowth(cur, pri)
	dv := got["adjusted_ebitda_margin_chg"]
	require.NotNil(t, dv)
	assert.InDelta(t, 0.0, dv.Value.Value, 1e-9)
}
