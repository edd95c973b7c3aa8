package analysis

import (
	"time"

	"github.com/newthinker/comps/internal/core"
)

func fv(metric string, value float64, unit string) *core.FilingValue {
	return &core.FilingValue{Metric: metric, Value: core.Some(value), Unit: unit}
}

// usd builds USD filing metrics from alternating key/value pairs.
func usd(pairs ...any) *core.Metrics {
	return withUnit("USD", pairs...)
}

func withUnit(unit string, pairs ...any) *core.Metrics {
	m := core.NewMetrics()
	for i := 0; i+1 < len(pairs); i += 2 {
		key := pairs[i].(string)
		var v float64
		switch n := pairs[i+1].(type) {
		case int:
			v = float64(n)
		case float64:
			v = n
		}
		m.SetValue(key, fv(key, v, unit))
	}
	return m
}

func snapshot(price, shares, mcap float64) *core.MarketSnapshot {
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	return &core.MarketSnapshot{
		Symbol:            "TEST",
		CompanyName:       "Test Corp",
		Price:             &core.VendorValue{Metric: "price", Value: core.Some(price), Unit: "USD", Vendor: "finnhub", Endpoint: "quote", Symbol: "TEST", FetchedAt: now},
		SharesOutstanding: &core.VendorValue{Metric: "shares_outstanding", Value: core.Some(shares), Unit: "shares", Vendor: "finnhub", Endpoint: "profile", Symbol: "TEST", FetchedAt: now},
		MarketCap:         &core.VendorValue{Metric: "market_cap", Value: core.Some(mcap), Unit: "USD", Vendor: "finnhub", Endpoint: "profile", Symbol: "TEST", FetchedAt: now},
	}
}
