package core

import (
	"encoding/json"
	"fmt"
	"time"
)

// Number is a float that may be absent. Zero and absent are different
// values: a reported zero is data, a missing tag is not.
type Number struct {
	Value float64
	Valid bool
}

// Some returns a present Number.
func Some(v float64) Number {
	return Number{Value: v, Valid: true}
}

// None returns an absent Number.
func None() Number {
	return Number{}
}

// Ptr returns nil for an absent Number.
func (n Number) Ptr() *float64 {
	if !n.Valid {
		return nil
	}
	v := n.Value
	return &v
}

func (n Number) String() string {
	if !n.Valid {
		return "n/a"
	}
	return fmt.Sprintf("%g", n.Value)
}

// MarshalJSON writes null for an absent Number.
func (n Number) MarshalJSON() ([]byte, error) {
	if !n.Valid {
		return []byte("null"), nil
	}
	return json.Marshal(n.Value)
}

// UnmarshalJSON accepts null or a JSON number.
func (n *Number) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*n = Number{}
		return nil
	}
	var v float64
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding number: %w", err)
	}
	*n = Some(v)
	return nil
}

// SourceKind identifies where a value came from.
type SourceKind string

const (
	SourceVendor  SourceKind = "vendor"
	SourceFiling  SourceKind = "filing"
	SourceDerived SourceKind = "derived"
)

// Source is implemented by every value that can appear in a provenance tree.
type Source interface {
	MetricName() string
	Amount() Number
	UnitOf() string
	WarningList() []string
	Kind() SourceKind
}

// VendorValue is a market data point with vendor provenance.
type VendorValue struct {
	Metric    string         `json:"metric"`
	Value     Number         `json:"value"`
	Unit      string         `json:"unit"`
	Vendor    string         `json:"vendor"`
	Symbol    string         `json:"symbol"`
	Endpoint  string         `json:"endpoint"`
	AsOf      *time.Time     `json:"as_of,omitempty"`
	FetchedAt time.Time      `json:"fetched_at"`
	Raw       map[string]any `json:"raw,omitempty"`
	Warnings  []string       `json:"warnings,omitempty"`
	Notes     []string       `json:"notes,omitempty"`
}

func (v *VendorValue) MetricName() string    { return v.Metric }
func (v *VendorValue) Amount() Number        { return v.Value }
func (v *VendorValue) UnitOf() string        { return v.Unit }
func (v *VendorValue) WarningList() []string { return v.Warnings }
func (v *VendorValue) Kind() SourceKind      { return SourceVendor }

// Citation renders a short human-readable reference to the vendor call.
func (v *VendorValue) Citation() string {
	return fmt.Sprintf("%s:%s %s @ %s", v.Vendor, v.Endpoint, v.Symbol, v.FetchedAt.UTC().Format("2006-01-02 15:04"))
}

// FilingValue is a value reported in a regulatory filing. It is produced by
// the filing source and only read by the analysis code.
type FilingValue struct {
	Metric       string   `json:"metric"`
	Value        Number   `json:"value"`
	Unit         string   `json:"unit,omitempty"`
	Concept      string   `json:"concept,omitempty"`
	Taxonomy     string   `json:"taxonomy,omitempty"`
	FiscalYear   int      `json:"fiscal_year,omitempty"`
	FiscalPeriod string   `json:"fiscal_period,omitempty"`
	Form         string   `json:"form,omitempty"`
	Filed        string   `json:"filed,omitempty"`
	Accession    string   `json:"accession,omitempty"`
	PeriodEnd    string   `json:"period_end,omitempty"`
	Warnings     []string `json:"warnings,omitempty"`
}

func (v *FilingValue) MetricName() string    { return v.Metric }
func (v *FilingValue) Amount() Number        { return v.Value }
func (v *FilingValue) UnitOf() string        { return v.Unit }
func (v *FilingValue) WarningList() []string { return v.Warnings }
func (v *FilingValue) Kind() SourceKind      { return SourceFiling }

// Citation renders the concept and filing the value was taken from.
func (v *FilingValue) Citation() string {
	if v.Accession == "" {
		return fmt.Sprintf("%s (%s %s)", v.Concept, v.Form, v.PeriodEnd)
	}
	return fmt.Sprintf("%s (%s %s, accession %s)", v.Concept, v.Form, v.PeriodEnd, v.Accession)
}

// DerivationKind tells consumers how a DerivedValue was obtained without
// having to parse its formula.
type DerivationKind string

const (
	DerivationComputed    DerivationKind = "computed"
	DerivationPassThrough DerivationKind = "pass_through"
)

// DerivedValue is a computed value that keeps its formula and the values it
// was computed from.
type DerivedValue struct {
	Metric     string            `json:"metric"`
	Value      Number            `json:"value"`
	Unit       string            `json:"unit"`
	Formula    string            `json:"formula"`
	Derivation DerivationKind    `json:"derivation"`
	Components map[string]Source `json:"components,omitempty"`
	Warnings   []string          `json:"warnings,omitempty"`
	Notes      []string          `json:"notes,omitempty"`
}

func (v *DerivedValue) MetricName() string    { return v.Metric }
func (v *DerivedValue) Amount() Number        { return v.Value }
func (v *DerivedValue) UnitOf() string        { return v.Unit }
func (v *DerivedValue) WarningList() []string { return v.Warnings }
func (v *DerivedValue) Kind() SourceKind      { return SourceDerived }

// Blocked reports whether the computation was attempted but produced no value.
func (v *DerivedValue) Blocked() bool {
	return !v.Value.Valid
}

// Leaves walks the provenance tree and returns every vendor and filing value
// it reaches, depth first with component names visited in sorted order.
func (v *DerivedValue) Leaves() []Source {
	var out []Source
	var walk func(s Source)
	walk = func(s Source) {
		d, ok := s.(*DerivedValue)
		if !ok {
			out = append(out, s)
			return
		}
		if d == nil {
			return
		}
		for _, name := range sortedKeys(d.Components) {
			if c := d.Components[name]; c != nil {
				walk(c)
			}
		}
	}
	walk(v)
	return out
}
