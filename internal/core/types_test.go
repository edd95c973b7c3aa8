package core

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNumber_ZeroIsNotAbsent(t *testing.T) {
	zero := Some(0)
	assert.True(t, zero.Valid)
	assert.False(t, None().Valid)
	assert.NotEqual(t, zero, None())
}

func TestNumber_JSON(t *testing.T) {
	b, err := json.Marshal(struct {
		A Number `json:"a"`
		B Number `json:"b"`
	}{A: Some(1.5), B: None()})
	require.NoError(t, err)
	assert.JSONEq(t, `{"a":1.5,"b":null}`, string(b))

	var n Number
	require.NoError(t, json.Unmarshal([]byte("null"), &n))
	assert.False(t, n.Valid)
	require.NoError(t, json.Unmarshal([]byte("42"), &n))
	assert.Equal(t, Some(42), n)
}

func TestNumber_Ptr(t *testing.T) {
	assert.Nil(t, None().Ptr())
	p := Some(3).Ptr()
	require.NotNil(t, p)
	assert.Equal(t, 3.0, *p)
}

func TestVendorValue_Citation(t *testing.T) {
	v := &VendorValue{
		Metric:    "price",
		Vendor:    "finnhub",
		Endpoint:  "quote",
		Symbol:    "NVDA",
		FetchedAt: time.Date(2025, 1, 15, 12, 30, 0, 0, time.UTC),
	}
	assert.Equal(t, "finnhub:quote NVDA @ 2025-01-15 12:30", v.Citation())
}

func TestDerivedValue_Leaves(t *testing.T) {
	rev := &FilingValue{Metric: "revenue", Value: Some(100)}
	cogs := &FilingValue{Metric: "cost_of_revenue", Value: Some(40)}
	price := &VendorValue{Metric: "price", Value: Some(10)}
	gp := &DerivedValue{
		Metric:     "gross_profit",
		Value:      Some(60),
		Components: map[string]Source{"revenue": rev, "cost_of_revenue": cogs},
	}
	top := &DerivedValue{
		Metric:     "ratio",
		Value:      Some(6),
		Components: map[string]Source{"numerator": gp, "denominator": price},
	}

	leaves := top.Leaves()
	require.Len(t, leaves, 3)
	// denominator sorts before numerator; cost_of_revenue before revenue
	assert.Same(t, price, leaves[0])
	assert.Same(t, cogs, leaves[1])
	assert.Same(t, rev, leaves[2])
}

func TestDerivedValue_Blocked(t *testing.T) {
	assert.True(t, (&DerivedValue{Value: None()}).Blocked())
	assert.False(t, (&DerivedValue{Value: Some(0)}).Blocked())
}

func TestMarketSnapshot_MarketCapValue(t *testing.T) {
	var nilSnap *MarketSnapshot
	assert.False(t, nilSnap.MarketCapValue().Valid)

	snap := &MarketSnapshot{MarketCap: &VendorValue{Value: Some(5e9)}}
	assert.Equal(t, Some(5e9), snap.MarketCapValue())
}

func TestEVPolicy_Defaults(t *testing.T) {
	p := DefaultEVPolicy()
	assert.Equal(t, CashSubtract, p.CashTreatment)
	assert.Equal(t, DebtTotalOnly, p.DebtMode)
	assert.False(t, p.IncludeLeases)
	assert.False(t, p.SubtractEquityMethodInvestments)
	assert.NoError(t, p.Validate())
}

func TestEVPolicy_ValidateRejectsUnknown(t *testing.T) {
	p := DefaultEVPolicy()
	p.DebtMode = "everything"
	err := p.Validate()
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfigInvalid))

	p = DefaultEVPolicy()
	p.CashTreatment = "double"
	assert.Error(t, p.Validate())
}

func TestCompanyAnalysis_Degraded(t *testing.T) {
	a := &CompanyAnalysis{}
	assert.False(t, a.Degraded())
	a.Errors = append(a.Errors, "Market data fetch failed")
	assert.True(t, a.Degraded())
}
