package analysis

import (
	"fmt"
	"math"

	"github.com/newthinker/comps/internal/core"
)

// DefaultTolerance is the relative gap between a computed and a reported
// value above which CrossCheck warns.
const DefaultTolerance = 0.01

// CrossCheck compares a computed value with an independently reported one.
// It returns "" when either is absent, when reported is zero, or when the
// relative difference is within tolerance.
func CrossCheck(computed, reported core.Number, name string, tolerance float64) string {
	if !computed.Valid || !reported.Valid || reported.Value == 0 {
		return ""
	}
	diff := math.Abs(computed.Value-reported.Value) / math.Abs(reported.Value)
	if diff <= tolerance {
		return ""
	}
	return fmt.Sprintf("%s: computed %s differs from reported %s by %.1f%%",
		name, formatNumber(computed.Value), formatNumber(reported.Value), diff*100)
}

// Deriver computes values filers often leave untagged from their
// components, checking the result against any reported figure.
type Deriver struct {
	Tolerance float64
}

// NewDeriver returns a Deriver with the given cross-check tolerance.
// Zero flags any divergence; negative tolerances fall back to
// DefaultTolerance.
func NewDeriver(tolerance float64) Deriver {
	if tolerance < 0 {
		tolerance = DefaultTolerance
	}
	return Deriver{Tolerance: tolerance}
}

var defaultDeriver = NewDeriver(DefaultTolerance)

// ComputeGrossProfit derives gross profit with the default tolerance.
func ComputeGrossProfit(m *core.Metrics) (core.Number, *core.DerivedValue, []string) {
	return defaultDeriver.GrossProfit(m)
}

// ComputeFreeCashFlow derives free cash flow with the default tolerance.
func ComputeFreeCashFlow(m *core.Metrics) (core.Number, *core.DerivedValue, []string) {
	return defaultDeriver.FreeCashFlow(m)
}

// ComputeAdjustedEBITDA derives adjusted EBITDA.
func ComputeAdjustedEBITDA(m *core.Metrics) (core.Number, *core.DerivedValue, []string) {
	return defaultDeriver.AdjustedEBITDA(m)
}

// GrossProfit returns revenue - cost_of_revenue, or the reported gross
// profit when either component is missing.
func (d Deriver) GrossProfit(m *core.Metrics) (core.Number, *core.DerivedValue, []string) {
	return d.difference(m, differenceSpec{
		metric:   "gross_profit",
		left:     "revenue",
		right:    "cost_of_revenue",
		reported: "gross_profit",
	})
}

// FreeCashFlow returns operating_cash_flow - capex, or the reported free
// cash flow when either component is missing.
func (d Deriver) FreeCashFlow(m *core.Metrics) (core.Number, *core.DerivedValue, []string) {
	return d.difference(m, differenceSpec{
		metric:   "free_cash_flow",
		left:     "operating_cash_flow",
		right:    "capex",
		reported: "free_cash_flow",
	})
}

type differenceSpec struct {
	metric   string
	left     string
	right    string
	reported string
}

func (d Deriver) difference(m *core.Metrics, spec differenceSpec) (core.Number, *core.DerivedValue, []string) {
	leftVal, leftSrc := Extract(m, spec.left)
	rightVal, rightSrc := Extract(m, spec.right)
	repVal, repSrc := Extract(m, spec.reported)

	warnings := []string{}

	if leftVal.Valid && rightVal.Valid {
		value := core.Some(leftVal.Value - rightVal.Value)
		name := fmt.Sprintf("%s (%s - %s vs %s)", spec.metric,
			conceptOf(leftSrc, spec.left), conceptOf(rightSrc, spec.right), conceptOf(repSrc, spec.reported))
		if w := CrossCheck(value, repVal, name, d.Tolerance); w != "" {
			warnings = append(warnings, w)
		}
		components := map[string]core.Source{}
		put(components, spec.left, leftSrc)
		put(components, spec.right, rightSrc)
		dv := &core.DerivedValue{
			Metric:     spec.metric,
			Value:      value,
			Unit:       unitOf(leftSrc, USD),
			Formula:    spec.left + " - " + spec.right,
			Derivation: core.DerivationComputed,
			Components: components,
			Warnings:   append([]string(nil), warnings...),
		}
		if repVal.Valid {
			dv.Notes = []string{fmt.Sprintf("reported %s = %s", spec.reported, formatNumber(repVal.Value))}
		}
		return value, dv, warnings
	}

	if repVal.Valid {
		missing := spec.left
		if leftVal.Valid {
			missing = spec.right
		}
		warnings = append(warnings, fmt.Sprintf(
			"%s unavailable; using reported %s (pass-through fallback)", missing, spec.reported))
		components := map[string]core.Source{}
		put(components, spec.reported, repSrc)
		dv := &core.DerivedValue{
			Metric:     spec.metric,
			Value:      repVal,
			Unit:       unitOf(repSrc, USD),
			Formula:    spec.reported + " (reported, pass-through)",
			Derivation: core.DerivationPassThrough,
			Components: components,
			Warnings:   append([]string(nil), warnings...),
		}
		return repVal, dv, warnings
	}

	return core.None(), nil, warnings
}

// AdjustedEBITDA returns operating_income + depreciation_amortization +
// stock_based_compensation. Operating income and D&A are required; missing
// SBC counts as zero with a warning.
func (d Deriver) AdjustedEBITDA(m *core.Metrics) (core.Number, *core.DerivedValue, []string) {
	oiVal, oiSrc := Extract(m, "operating_income")
	daVal, daSrc := Extract(m, "depreciation_amortization")
	sbcVal, sbcSrc := Extract(m, "stock_based_compensation")

	warnings := []string{}
	if !oiVal.Valid || !daVal.Valid {
		return core.None(), nil, warnings
	}

	sbc := 0.0
	if sbcVal.Valid {
		sbc = sbcVal.Value
	} else {
		warnings = append(warnings, "stock_based_compensation missing, treated as 0")
	}

	value := core.Some(oiVal.Value + daVal.Value + sbc)
	components := map[string]core.Source{}
	put(components, "operating_income", oiSrc)
	put(components, "depreciation_amortization", daSrc)
	put(components, "stock_based_compensation", sbcSrc)

	return value, &core.DerivedValue{
		Metric:     "adjusted_ebitda",
		Value:      value,
		Unit:       unitOf(oiSrc, USD),
		Formula:    "operating_income + depreciation_amortization + stock_based_compensation",
		Derivation: core.DerivationComputed,
		Components: components,
		Warnings:   append([]string(nil), warnings...),
	}, warnings
}
