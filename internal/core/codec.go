package core

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Every Source is written with a "kind" field so provenance trees, market
// snapshots and archived analyses can be decoded back into concrete types.

func (v *VendorValue) MarshalJSON() ([]byte, error) {
	type plain VendorValue
	return json.Marshal(struct {
		Kind SourceKind `json:"kind"`
		*plain
	}{SourceVendor, (*plain)(v)})
}

func (v *FilingValue) MarshalJSON() ([]byte, error) {
	type plain FilingValue
	return json.Marshal(struct {
		Kind SourceKind `json:"kind"`
		*plain
	}{SourceFiling, (*plain)(v)})
}

func (v *DerivedValue) MarshalJSON() ([]byte, error) {
	type plain DerivedValue
	return json.Marshal(struct {
		Kind SourceKind `json:"kind"`
		*plain
	}{SourceDerived, (*plain)(v)})
}

func (v *DerivedValue) UnmarshalJSON(data []byte) error {
	type plain DerivedValue
	aux := struct {
		*plain
		Components map[string]SourceEnvelope `json:"components,omitempty"`
	}{plain: (*plain)(v)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decoding derived value: %w", err)
	}
	v.Components = nil
	if aux.Components != nil {
		v.Components = make(map[string]Source, len(aux.Components))
		for name, env := range aux.Components {
			v.Components[name] = env.Source
		}
	}
	return nil
}

// SourceEnvelope decodes a JSON Source by its "kind" field. Documents
// without a kind are matched on their shape: a formula means derived, a
// vendor means vendor, anything else is a filing value.
type SourceEnvelope struct {
	Source Source
}

func (e SourceEnvelope) MarshalJSON() ([]byte, error) {
	if e.Source == nil {
		return []byte("null"), nil
	}
	return json.Marshal(e.Source)
}

func (e *SourceEnvelope) UnmarshalJSON(data []byte) error {
	s, err := DecodeSource(data)
	if err != nil {
		return err
	}
	e.Source = s
	return nil
}

// DecodeSource decodes one JSON Source. null decodes to a nil Source.
func DecodeSource(data []byte) (Source, error) {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		return nil, nil
	}

	var shape struct {
		Kind    SourceKind `json:"kind"`
		Formula *string    `json:"formula"`
		Vendor  *string    `json:"vendor"`
	}
	if err := json.Unmarshal(data, &shape); err != nil {
		return nil, fmt.Errorf("decoding source: %w", err)
	}
	kind := shape.Kind
	if kind == "" {
		switch {
		case shape.Formula != nil:
			kind = SourceDerived
		case shape.Vendor != nil:
			kind = SourceVendor
		default:
			kind = SourceFiling
		}
	}

	var s Source
	switch kind {
	case SourceVendor:
		s = &VendorValue{}
	case SourceFiling:
		s = &FilingValue{}
	case SourceDerived:
		s = &DerivedValue{}
	default:
		return nil, fmt.Errorf("decoding source: unknown kind %q", kind)
	}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("decoding %s source: %w", kind, err)
	}
	return s, nil
}

func (s *MarketSnapshot) UnmarshalJSON(data []byte) error {
	type plain MarketSnapshot
	aux := struct {
		*plain
		MarketCap SourceEnvelope `json:"market_cap"`
	}{plain: (*plain)(s)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decoding market snapshot: %w", err)
	}
	s.MarketCap = aux.MarketCap.Source
	return nil
}

func (b *EVBridge) UnmarshalJSON(data []byte) error {
	type plain EVBridge
	aux := struct {
		*plain
		TotalDebt                 SourceEnvelope `json:"total_debt"`
		ShortTermDebt             SourceEnvelope `json:"short_term_debt"`
		CashAndEquivalents        SourceEnvelope `json:"cash_and_equivalents"`
		MarketableSecurities      SourceEnvelope `json:"marketable_securities"`
		OperatingLeaseLiabilities SourceEnvelope `json:"operating_lease_liabilities"`
		PreferredStock            SourceEnvelope `json:"preferred_stock"`
		NoncontrollingInterests   SourceEnvelope `json:"noncontrolling_interests"`
		EquityMethodInvestments   SourceEnvelope `json:"equity_method_investments"`
	}{plain: (*plain)(b)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("decoding ev bridge: %w", err)
	}
	b.TotalDebt = aux.TotalDebt.Source
	b.ShortTermDebt = aux.ShortTermDebt.Source
	b.CashAndEquivalents = aux.CashAndEquivalents.Source
	b.MarketableSecurities = aux.MarketableSecurities.Source
	b.OperatingLeaseLiabilities = aux.OperatingLeaseLiabilities.Source
	b.PreferredStock = aux.PreferredStock.Source
	b.NoncontrollingInterests = aux.NoncontrollingInterests.Source
	b.EquityMethodInvestments = aux.EquityMethodInvestments.Source
	return nil
}
