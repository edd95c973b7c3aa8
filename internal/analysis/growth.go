package analysis

import (
	"fmt"
	"strings"

	"github.com/newthinker/comps/internal/core"
)

// GrowthMetrics are the metrics compared year over year.
var GrowthMetrics = []string{
	"revenue",
	"ebitda",
	"net_income",
	"eps_diluted",
	"depreciation_amortization",
}

const splitMarker = "stock split contamination"

// ComputeGrowth compares the current period with the prior one. Growth is
// keyed "{metric}_yoy"; margin deltas are keyed "{margin}_chg" and hold the
// raw difference between the two margins.
func ComputeGrowth(current, prior *core.Metrics) map[string]*core.DerivedValue {
	return defaultDeriver.Growth(current, prior)
}

// Growth is ComputeGrowth using the Deriver's tolerance for the margin inputs.
func (d Deriver) Growth(current, prior *core.Metrics) map[string]*core.DerivedValue {
	result := map[string]*core.DerivedValue{}

	for _, key := range GrowthMetrics {
		curVal, curSrc := Extract(current, key)
		priVal, priSrc := Extract(prior, key)
		if dv := yoy(key, curVal, curSrc, priVal, priSrc); dv != nil {
			result[dv.Metric] = dv
		}
	}

	curMargins := d.margins(current)
	priMargins := d.margins(prior)
	for _, name := range marginNames {
		cur, ok1 := curMargins[name]
		pri, ok2 := priMargins[name]
		if !ok1 || !ok2 {
			continue
		}
		metric := name + "_chg"
		result[metric] = &core.DerivedValue{
			Metric:     metric,
			Value:      core.Some(cur.Value.Value - pri.Value.Value),
			Unit:       unitPure,
			Formula:    name + "_current - " + name + "_prior",
			Derivation: core.DerivationComputed,
			Components: map[string]core.Source{"current": cur, "prior": pri},
		}
	}

	return result
}

func yoy(key string, curVal core.Number, curSrc core.Source, priVal core.Number, priSrc core.Source) *core.DerivedValue {
	components := map[string]core.Source{}
	put(components, "current", curSrc)
	put(components, "prior", priSrc)

	dv := &core.DerivedValue{
		Metric:     key + "_yoy",
		Value:      core.None(),
		Unit:       unitPure,
		Formula:    fmt.Sprintf("(%[1]s_ltm - %[1]s_ltm1) / abs(%[1]s_ltm1)", key),
		Derivation: core.DerivationComputed,
		Components: components,
	}

	if splitContaminated(curSrc) || splitContaminated(priSrc) {
		dv.Warnings = []string{"Skipped: stock split contamination detected in source data"}
		return dv
	}
	if !curVal.Valid || !priVal.Valid {
		return nil
	}
	if priVal.Value == 0 {
		dv.Warnings = []string{"Prior period value is zero; cannot compute growth"}
		return dv
	}
	if priVal.Value < 0 {
		dv.Warnings = []string{fmt.Sprintf("Prior period value is negative (%s); using abs() for denominator", formatNumber(priVal.Value))}
	}
	den := priVal.Value
	if den < 0 {
		den = -den
	}
	dv.Value = core.Some((curVal.Value - priVal.Value) / den)
	return dv
}

func splitContaminated(s core.Source) bool {
	if isNil(s) {
		return false
	}
	for _, w := range s.WarningList() {
		if strings.Contains(strings.ToLower(w), splitMarker) {
			return true
		}
	}
	return false
}

var marginNames = []string{"gross_margin", "ebitda_margin", "adjusted_ebitda_margin"}

// margins computes the per-period margins used for deltas. Margins that
// cannot be computed are left out.
func (d Deriver) margins(m *core.Metrics) map[string]*core.DerivedValue {
	out := map[string]*core.DerivedValue{}
	revVal, revSrc := Extract(m, "revenue")
	if !revVal.Valid || revVal.Value == 0 {
		return out
	}

	if gp, gpDV, _ := d.GrossProfit(m); gp.Valid {
		out["gross_margin"] = margin("gross_margin", "gross_profit", gp, gpDV, revVal, revSrc)
	}
	if eb, ebSrc := Extract(m, "ebitda"); eb.Valid {
		out["ebitda_margin"] = margin("ebitda_margin", "ebitda", eb, ebSrc, revVal, revSrc)
	}
	if adj, adjDV, _ := d.AdjustedEBITDA(m); adj.Valid {
		out["adjusted_ebitda_margin"] = margin("adjusted_ebitda_margin", "adjusted_ebitda", adj, adjDV, revVal, revSrc)
	}
	return out
}

// margin divides a numerator by revenue. The caller guarantees both are
// present and revenue is nonzero.
func margin(metric, numName string, num core.Number, numSrc core.Source, rev core.Number, revSrc core.Source) *core.DerivedValue {
	components := map[string]core.Source{}
	put(components, numName, numSrc)
	put(components, "revenue", revSrc)
	return &core.DerivedValue{
		Metric:     metric,
		Value:      core.Some(num.Value / rev.Value),
		Unit:       unitPure,
		Formula:    numName + " / revenue",
		Derivation: core.DerivationComputed,
		Components: components,
	}
}
