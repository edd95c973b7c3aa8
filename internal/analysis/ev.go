package analysis

import (
	"strings"

	"github.com/newthinker/comps/internal/core"
)

const evFallbackFormula = "equity_value + debt - cash + adjustments"

// evBuilder accumulates the running EV total along with the formula terms
// and components that explain it.
type evBuilder struct {
	total      float64
	terms      []string
	components map[string]core.Source
}

// apply adds (sign > 0) or subtracts a line item and records it.
func (b *evBuilder) apply(value core.Number, src core.Source, key, label string, sign int, slot *core.Source) {
	if !value.Valid {
		return
	}
	op := "+"
	if sign < 0 {
		op = "-"
		b.total -= value.Value
	} else {
		b.total += value.Value
	}
	b.terms = append(b.terms, op+" "+label)
	put(b.components, key, src)
	if !isNil(src) {
		*slot = src
	}
}

// BuildEVBridge walks from market cap to enterprise value under the given
// policy. A nil policy uses core.DefaultEVPolicy.
//
//	EV = market cap + debt - cash [- marketable securities]
//	     [+ operating leases] [+ preferred] [+ noncontrolling interests]
//	     [- equity-method investments]
func BuildEVBridge(market *core.MarketSnapshot, m *core.Metrics, policy *core.EVPolicy) *core.EVBridge {
	p := core.DefaultEVPolicy()
	if policy != nil {
		p = *policy
	}

	bridge := &core.EVBridge{}

	mcap := market.MarketCapValue()
	equity := &core.DerivedValue{
		Metric:     "equity_value",
		Value:      mcap,
		Unit:       USD,
		Formula:    "market_cap",
		Derivation: core.DerivationComputed,
		Components: map[string]core.Source{},
	}
	if market != nil {
		put(equity.Components, "market_cap", market.MarketCap)
	}
	if !mcap.Valid {
		equity.Warnings = []string{"Market cap unavailable"}
	}
	bridge.EquityValue = equity

	if currency := DetectCurrency(m); isForeign(currency) {
		bridge.EnterpriseValue = &core.DerivedValue{
			Metric:     "enterprise_value",
			Value:      core.None(),
			Unit:       USD,
			Formula:    evFallbackFormula,
			Derivation: core.DerivationComputed,
			Warnings:   []string{CrossCurrencyWarning(currency, "EV bridge")},
		}
		return bridge
	}

	if !mcap.Valid {
		bridge.EnterpriseValue = &core.DerivedValue{
			Metric:     "enterprise_value",
			Value:      core.None(),
			Unit:       USD,
			Formula:    evFallbackFormula,
			Derivation: core.DerivationComputed,
			Warnings:   []string{"Market cap unavailable; cannot compute EV"},
		}
		return bridge
	}

	b := &evBuilder{
		total:      mcap.Value,
		terms:      []string{"equity_value"},
		components: map[string]core.Source{"equity_value": equity},
	}
	var warnings []string

	debtVal, debtSrc := Extract(m, "total_debt")
	shortVal, shortSrc := Extract(m, "short_term_debt")

	switch p.DebtMode {
	case core.DebtSplit:
		b.apply(debtVal, debtSrc, "total_debt", "total_debt(long)", 1, &bridge.TotalDebt)
		b.apply(shortVal, shortSrc, "short_term_debt", "short_term_debt", 1, &bridge.ShortTermDebt)
		if debtVal.Valid && shortVal.Valid {
			warnings = append(warnings, "Using split debt mode: verify no overlap between total_debt and short_term_debt")
		}
	case core.DebtTotalPlusShort:
		b.apply(debtVal, debtSrc, "total_debt", "total_debt", 1, &bridge.TotalDebt)
		b.apply(shortVal, shortSrc, "short_term_debt", "short_term_debt", 1, &bridge.ShortTermDebt)
	default:
		if debtVal.Valid {
			b.apply(debtVal, debtSrc, "total_debt", "total_debt", 1, &bridge.TotalDebt)
		} else {
			warnings = append(warnings, "total_debt missing, treated as 0")
		}
	}

	cashVal, cashSrc := Extract(m, "cash")
	msVal, msSrc := Extract(m, "marketable_securities")

	if p.CashTreatment != core.CashIgnore {
		if cashVal.Valid {
			b.apply(cashVal, cashSrc, "cash", "cash", -1, &bridge.CashAndEquivalents)
		} else {
			warnings = append(warnings, "cash missing, treated as 0")
		}
		b.apply(msVal, msSrc, "marketable_securities", "marketable_securities", -1, &bridge.MarketableSecurities)
	}

	if p.IncludeLeases {
		leaseVal, leaseSrc := Extract(m, "operating_lease_liabilities")
		if leaseVal.Valid {
			b.apply(leaseVal, leaseSrc, "operating_lease_liabilities", "operating_lease_liabilities", 1, &bridge.OperatingLeaseLiabilities)
		} else {
			warnings = append(warnings, "operating_lease_liabilities requested but missing")
		}
	}

	prefVal, prefSrc := Extract(m, "preferred_stock")
	b.apply(prefVal, prefSrc, "preferred_stock", "preferred_stock", 1, &bridge.PreferredStock)

	nciVal, nciSrc := Extract(m, "noncontrolling_interests")
	b.apply(nciVal, nciSrc, "noncontrolling_interests", "noncontrolling_interests", 1, &bridge.NoncontrollingInterests)

	if p.SubtractEquityMethodInvestments {
		emiVal, emiSrc := Extract(m, "equity_method_investments")
		b.apply(emiVal, emiSrc, "equity_method_investments", "equity_method_investments", -1, &bridge.EquityMethodInvestments)
	}

	bridge.NetDebt = netDebt(p, debtVal, debtSrc, shortVal, shortSrc, cashVal, cashSrc, msVal, msSrc)

	bridge.EnterpriseValue = &core.DerivedValue{
		Metric:     "enterprise_value",
		Value:      core.Some(b.total),
		Unit:       USD,
		Formula:    strings.Join(b.terms, " "),
		Derivation: core.DerivationComputed,
		Components: b.components,
		Warnings:   warnings,
	}
	return bridge
}

// netDebt is debt minus cash and securities. Short-term debt counts unless
// the policy uses total debt only. Missing lines count as zero.
func netDebt(p core.EVPolicy, debtVal core.Number, debtSrc core.Source, shortVal core.Number, shortSrc core.Source,
	cashVal core.Number, cashSrc core.Source, msVal core.Number, msSrc core.Source) *core.DerivedValue {
	components := map[string]core.Source{}
	debtTotal, cashTotal := 0.0, 0.0
	terms := []string{"total_debt"}

	if debtVal.Valid {
		debtTotal += debtVal.Value
		put(components, "total_debt", debtSrc)
	}
	if p.DebtMode != core.DebtTotalOnly {
		terms = append(terms, "+ short_term_debt")
		if shortVal.Valid {
			debtTotal += shortVal.Value
			put(components, "short_term_debt", shortSrc)
		}
	}
	if cashVal.Valid {
		cashTotal += cashVal.Value
		put(components, "cash", cashSrc)
	}
	if msVal.Valid {
		cashTotal += msVal.Value
		put(components, "marketable_securities", msSrc)
	}
	terms = append(terms, "- cash", "- marketable_securities")

	return &core.DerivedValue{
		Metric:     "net_debt",
		Value:      core.Some(debtTotal - cashTotal),
		Unit:       USD,
		Formula:    strings.Join(terms, " "),
		Derivation: core.DerivationComputed,
		Components: components,
	}
}
