package analysis

import (
	"fmt"

	"github.com/newthinker/comps/internal/core"
)

const (
	unitMultiple = "x"
	unitPure     = "pure"
)

// ratio describes one numerator / denominator metric.
type ratio struct {
	metric  string
	formula string
	unit    string
	num     core.Number
	numSrc  core.Source
	den     core.Number
	denSrc  core.Source
}

func (r ratio) components() map[string]core.Source {
	c := map[string]core.Source{}
	put(c, "numerator", r.numSrc)
	put(c, "denominator", r.denSrc)
	return c
}

func (r ratio) blocked(warning string) *core.DerivedValue {
	return &core.DerivedValue{
		Metric:     r.metric,
		Value:      core.None(),
		Unit:       r.unit,
		Formula:    r.formula,
		Derivation: core.DerivationComputed,
		Components: r.components(),
		Warnings:   []string{warning},
	}
}

// safeDivide divides with explicit handling of absent, zero and negative
// operands. A negative denominator still yields a value, flagged as
// potentially misleading.
func safeDivide(r ratio) *core.DerivedValue {
	if !r.num.Valid {
		return r.blocked("Numerator unavailable")
	}
	if !r.den.Valid {
		return r.blocked("Denominator unavailable")
	}
	if r.den.Value == 0 {
		return r.blocked("Denominator is zero")
	}
	var warnings []string
	if r.den.Value < 0 {
		warnings = append(warnings, fmt.Sprintf("Negative denominator (%s); result may be misleading", formatNumber(r.den.Value)))
	}
	return &core.DerivedValue{
		Metric:     r.metric,
		Value:      core.Some(r.num.Value / r.den.Value),
		Unit:       r.unit,
		Formula:    r.formula,
		Derivation: core.DerivationComputed,
		Components: r.components(),
		Warnings:   warnings,
	}
}

// Divide builds a ratio and divides it safely. The unit defaults to "x".
func Divide(metric, formula, unit string, num core.Number, numSrc core.Source, den core.Number, denSrc core.Source) *core.DerivedValue {
	if unit == "" {
		unit = unitMultiple
	}
	return safeDivide(ratio{
		metric:  metric,
		formula: formula,
		unit:    unit,
		num:     num,
		numSrc:  numSrc,
		den:     den,
		denSrc:  denSrc,
	})
}

var multipleInputs = []string{
	"revenue",
	"ebitda",
	"operating_income",
	"free_cash_flow",
	"net_income",
	"stockholders_equity",
	"dividends_per_share",
}

// ComputeMultiples computes EV-based and equity-based multiples. When the
// filing data is not in USD every multiple is blocked with a cross-currency
// warning instead of being computed.
func ComputeMultiples(bridge *core.EVBridge, market *core.MarketSnapshot, m *core.Metrics) map[string]*core.DerivedValue {
	return defaultDeriver.Multiples(bridge, market, m)
}

// Multiples is ComputeMultiples using the Deriver's tolerance for the
// free-cash-flow and adjusted EBITDA derivations.
func (d Deriver) Multiples(bridge *core.EVBridge, market *core.MarketSnapshot, m *core.Metrics) map[string]*core.DerivedValue {
	result := map[string]*core.DerivedValue{}

	var evSrc core.Source
	if bridge != nil && bridge.EnterpriseValue != nil {
		evSrc = bridge.EnterpriseValue
	}
	ev := bridge.EnterpriseValueAmount()

	var mcapSrc, priceSrc core.Source
	price := core.None()
	if market != nil {
		mcapSrc = market.MarketCap
		if market.Price != nil {
			priceSrc = market.Price
			price = market.Price.Value
		}
	}
	mcap := market.MarketCapValue()

	currency := DetectCurrency(m, multipleInputs...)
	foreign := isForeign(currency)

	adjVal, adjDV, _ := d.AdjustedEBITDA(m)
	if adjDV != nil {
		result["adjusted_ebitda"] = adjDV
	}

	fcfVal, fcfDV, _ := d.FreeCashFlow(m)
	var fcfSrc core.Source
	if fcfDV != nil {
		fcfSrc = fcfDV
	}

	emit := func(r ratio) {
		if foreign {
			result[r.metric] = r.blocked(CrossCurrencyWarning(currency, r.metric))
			return
		}
		result[r.metric] = safeDivide(r)
	}

	evDefs := []struct{ metric, key string }{
		{"ev_revenue", "revenue"},
		{"ev_ebitda_gaap", "ebitda"},
		{"ev_ebit", "operating_income"},
	}
	for _, def := range evDefs {
		den, denSrc := Extract(m, def.key)
		emit(ratio{
			metric:  def.metric,
			formula: "enterprise_value / " + def.key,
			unit:    unitMultiple,
			num:     ev, numSrc: evSrc,
			den: den, denSrc: denSrc,
		})
	}

	emit(ratio{
		metric:  "ev_fcf",
		formula: "enterprise_value / free_cash_flow",
		unit:    unitMultiple,
		num:     ev, numSrc: evSrc,
		den: fcfVal, denSrc: fcfSrc,
	})

	var adjSrc core.Source
	if adjDV != nil {
		adjSrc = adjDV
	}
	emit(ratio{
		metric:  "ev_ebitda",
		formula: "enterprise_value / adjusted_ebitda",
		unit:    unitMultiple,
		num:     ev, numSrc: evSrc,
		den: adjVal, denSrc: adjSrc,
	})

	equityDefs := []struct{ metric, key string }{
		{"pe", "net_income"},
		{"price_book", "stockholders_equity"},
	}
	for _, def := range equityDefs {
		den, denSrc := Extract(m, def.key)
		emit(ratio{
			metric:  def.metric,
			formula: "market_cap / " + def.key,
			unit:    unitMultiple,
			num:     mcap, numSrc: mcapSrc,
			den: den, denSrc: denSrc,
		})
	}

	emit(ratio{
		metric:  "fcf_yield",
		formula: "free_cash_flow / market_cap",
		unit:    unitPure,
		num:     fcfVal, numSrc: fcfSrc,
		den: mcap, denSrc: mcapSrc,
	})

	dps, dpsSrc := Extract(m, "dividends_per_share")
	emit(ratio{
		metric:  "dividend_yield",
		formula: "dividends_per_share / price",
		unit:    unitPure,
		num:     dps, numSrc: dpsSrc,
		den: price, denSrc: priceSrc,
	})

	return result
}
