package analysis

import (
	"fmt"

	"github.com/newthinker/comps/internal/core"
)

// DefaultTaxRate is the statutory rate assumed for ROIC.
const DefaultTaxRate = 0.21

// ComputeOperating computes efficiency ratios, margins, revenue per share
// and ROIC. market may be nil, in which case per-share figures are skipped.
func ComputeOperating(m *core.Metrics, market *core.MarketSnapshot, taxRate float64) map[string]*core.DerivedValue {
	return defaultDeriver.Operating(m, market, taxRate)
}

// Operating is ComputeOperating using the Deriver's tolerance for the
// gross profit and free cash flow derivations.
func (d Deriver) Operating(m *core.Metrics, market *core.MarketSnapshot, taxRate float64) map[string]*core.DerivedValue {
	result := map[string]*core.DerivedValue{}
	revVal, revSrc := Extract(m, "revenue")
	hasRevenue := revVal.Valid && revVal.Value != 0

	if hasRevenue {
		for _, def := range []struct{ metric, key string }{
			{"rd_pct_revenue", "rd_expense"},
			{"sga_pct_revenue", "sga_expense"},
			{"capex_pct_revenue", "capex"},
		} {
			num, numSrc := Extract(m, def.key)
			if !num.Valid {
				continue
			}
			components := map[string]core.Source{}
			put(components, "numerator", numSrc)
			put(components, "revenue", revSrc)
			result[def.metric] = &core.DerivedValue{
				Metric:     def.metric,
				Value:      core.Some(num.Value / revVal.Value),
				Unit:       unitPure,
				Formula:    def.key + " / revenue",
				Derivation: core.DerivationComputed,
				Components: components,
			}
		}

		if gp, gpDV, _ := d.GrossProfit(m); gp.Valid {
			result["gross_margin"] = margin("gross_margin", "gross_profit", gp, gpDV, revVal, revSrc)
		}
		if eb, ebSrc := Extract(m, "ebitda"); eb.Valid {
			result["ebitda_margin"] = margin("ebitda_margin", "ebitda", eb, ebSrc, revVal, revSrc)
		}
		if ni, niSrc := Extract(m, "net_income"); ni.Valid {
			result["net_margin"] = margin("net_margin", "net_income", ni, niSrc, revVal, revSrc)
		}
		if fcf, fcfDV, _ := d.FreeCashFlow(m); fcf.Valid {
			result["fcf_margin"] = margin("fcf_margin", "free_cash_flow", fcf, fcfDV, revVal, revSrc)
		}
		if adj, adjDV, _ := d.AdjustedEBITDA(m); adj.Valid {
			result["adjusted_ebitda_margin"] = margin("adjusted_ebitda_margin", "adjusted_ebitda", adj, adjDV, revVal, revSrc)
		}
	}

	if dv := revenuePerShare(m, market, revVal, revSrc); dv != nil {
		result["revenue_per_share"] = dv
	}
	if dv := roic(m, taxRate); dv != nil {
		result["roic"] = dv
	}
	return result
}

func revenuePerShare(m *core.Metrics, market *core.MarketSnapshot, revVal core.Number, revSrc core.Source) *core.DerivedValue {
	if market == nil || market.SharesOutstanding == nil || !revVal.Valid {
		return nil
	}
	shares := market.SharesOutstanding.Value
	if !shares.Valid || shares.Value <= 0 {
		return nil
	}

	currency := DetectCurrency(m, "revenue")
	if currency == "" {
		currency = DetectCurrency(m)
	}
	if currency == "" {
		currency = USD
	}
	var warnings []string
	if currency != USD {
		warnings = append(warnings, CrossCurrencyWarning(currency, "revenue_per_share"))
	}

	components := map[string]core.Source{}
	put(components, "revenue", revSrc)
	put(components, "shares_outstanding", market.SharesOutstanding)
	return &core.DerivedValue{
		Metric:     "revenue_per_share",
		Value:      core.Some(revVal.Value / shares.Value),
		Unit:       currency + "/shares",
		Formula:    "revenue / shares_outstanding",
		Derivation: core.DerivationComputed,
		Components: components,
		Warnings:   warnings,
	}
}

// roic approximates operating_income * (1 - tax) / (total_debt + equity).
func roic(m *core.Metrics, taxRate float64) *core.DerivedValue {
	oi, oiSrc := Extract(m, "operating_income")
	debt, debtSrc := Extract(m, "total_debt")
	eq, eqSrc := Extract(m, "stockholders_equity")
	if !oi.Valid || !debt.Valid || !eq.Valid {
		return nil
	}
	invested := debt.Value + eq.Value
	if invested <= 0 {
		return nil
	}

	components := map[string]core.Source{}
	put(components, "operating_income", oiSrc)
	put(components, "total_debt", debtSrc)
	put(components, "stockholders_equity", eqSrc)
	return &core.DerivedValue{
		Metric:     "roic",
		Value:      core.Some(oi.Value * (1 - taxRate) / invested),
		Unit:       unitPure,
		Formula:    fmt.Sprintf("operating_income * (1 - %s) / (total_debt + stockholders_equity)", formatNumber(taxRate)),
		Derivation: core.DerivationComputed,
		Components: components,
		Warnings:   []string{fmt.Sprintf("ROIC uses assumed %.1f%% tax rate; actual rate may differ", taxRate*100)},
	}
}
