// Package analysis turns filing and market values into EV bridges,
// multiples, growth rates and operating ratios. Every result is a
// core.DerivedValue that links back to the values it was computed from.
//
// Nothing here returns an error for missing, zero or negative inputs. A
// computation that was attempted and blocked yields an absent value with a
// warning; a computation whose inputs are missing altogether is left out of
// the result map.
package analysis

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/newthinker/comps/internal/core"
)

// USD is the currency market data is quoted in.
const USD = "USD"

var nonCurrencyUnits = map[string]struct{}{
	"shares":  {},
	"share":   {},
	"pure":    {},
	"ratio":   {},
	"percent": {},
	"%":       {},
}

// Extract returns the value and source of a filing metric. Series entries
// yield their most recent element.
func Extract(m *core.Metrics, key string) (core.Number, core.Source) {
	e, ok := m.Get(key)
	if !ok {
		return core.None(), nil
	}
	fv := e.First()
	if fv == nil {
		return core.None(), nil
	}
	return fv.Value, fv
}

// CurrencyFromUnit returns the currency code of a unit such as "USD" or
// "EUR/shares", or "" for dimensionless units.
func CurrencyFromUnit(unit string) string {
	unit = strings.TrimSpace(unit)
	if unit == "" {
		return ""
	}
	if _, ok := nonCurrencyUnits[strings.ToLower(unit)]; ok {
		return ""
	}
	prefix, _, _ := strings.Cut(unit, "/")
	prefix = strings.TrimSpace(prefix)
	if _, ok := nonCurrencyUnits[strings.ToLower(prefix)]; ok || prefix == "" {
		return ""
	}
	return strings.ToUpper(prefix)
}

// DetectCurrency returns the first currency found among the given metric
// keys, or among all metrics in insertion order when no keys are given.
func DetectCurrency(m *core.Metrics, keys ...string) string {
	if len(keys) == 0 {
		keys = m.Keys()
	}
	for _, k := range keys {
		e, ok := m.Get(k)
		if !ok {
			continue
		}
		for _, fv := range e.Values() {
			if fv == nil {
				continue
			}
			if c := CurrencyFromUnit(fv.Unit); c != "" {
				return c
			}
		}
	}
	return ""
}

// CrossCurrencyWarning is attached to every value that would mix filing
// data in currency with USD market data.
func CrossCurrencyWarning(currency, context string) string {
	return fmt.Sprintf("SEC data is in %s but market data is in USD; cannot mix currencies in %s", currency, context)
}

func isForeign(currency string) bool {
	return currency != "" && currency != USD
}

func isNil(s core.Source) bool {
	switch v := s.(type) {
	case nil:
		return true
	case *core.DerivedValue:
		return v == nil
	case *core.FilingValue:
		return v == nil
	case *core.VendorValue:
		return v == nil
	}
	return false
}

// put adds a component, skipping absent sources so maps never hold typed nils.
func put(components map[string]core.Source, name string, s core.Source) {
	if isNil(s) {
		return
	}
	components[name] = s
}

func conceptOf(s core.Source, fallback string) string {
	if fv, ok := s.(*core.FilingValue); ok && fv != nil && fv.Concept != "" {
		return fv.Concept
	}
	return fallback
}

func unitOf(s core.Source, fallback string) string {
	if isNil(s) || s.UnitOf() == "" {
		return fallback
	}
	return s.UnitOf()
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
