package core

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
)

// MetricEntry holds either a single filing value or an ordered series of
// values, most recent first. Series entries come back from multi-period
// queries.
type MetricEntry struct {
	values []*FilingValue
	series bool
}

// Single wraps one filing value.
func Single(v *FilingValue) MetricEntry {
	return MetricEntry{values: []*FilingValue{v}}
}

// Series wraps an ordered list of filing values, most recent first.
func Series(vs ...*FilingValue) MetricEntry {
	return MetricEntry{values: vs, series: true}
}

// IsSeries reports whether the entry was built from a series.
func (e MetricEntry) IsSeries() bool { return e.series }

// Values returns all values in the entry.
func (e MetricEntry) Values() []*FilingValue { return e.values }

// First returns the single value, or the most recent value of a series.
func (e MetricEntry) First() *FilingValue {
	if len(e.values) == 0 {
		return nil
	}
	return e.values[0]
}

func (e MetricEntry) MarshalJSON() ([]byte, error) {
	if e.series {
		if e.values == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(e.values)
	}
	return json.Marshal(e.First())
}

func (e *MetricEntry) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) > 0 && data[0] == '[' {
		var vs []*FilingValue
		if err := json.Unmarshal(data, &vs); err != nil {
			return fmt.Errorf("decoding metric series: %w", err)
		}
		*e = Series(vs...)
		return nil
	}
	if string(data) == "null" {
		*e = MetricEntry{}
		return nil
	}
	var v FilingValue
	if err := json.Unmarshal(data, &v); err != nil {
		return fmt.Errorf("decoding metric value: %w", err)
	}
	*e = Single(&v)
	return nil
}

// Metrics maps metric names to filing entries and remembers insertion order.
// Currency detection scans entries in that order.
type Metrics struct {
	keys    []string
	entries map[string]MetricEntry
}

// NewMetrics returns an empty Metrics.
func NewMetrics() *Metrics {
	return &Metrics{entries: make(map[string]MetricEntry)}
}

// Set adds or replaces an entry. Replacing keeps the original position.
func (m *Metrics) Set(name string, e MetricEntry) *Metrics {
	if m.entries == nil {
		m.entries = make(map[string]MetricEntry)
	}
	if _, ok := m.entries[name]; !ok {
		m.keys = append(m.keys, name)
	}
	m.entries[name] = e
	return m
}

// SetValue is shorthand for Set(name, Single(v)).
func (m *Metrics) SetValue(name string, v *FilingValue) *Metrics {
	return m.Set(name, Single(v))
}

// Get returns the entry for name. Safe on a nil receiver.
func (m *Metrics) Get(name string) (MetricEntry, bool) {
	if m == nil {
		return MetricEntry{}, false
	}
	e, ok := m.entries[name]
	return e, ok
}

// Keys returns metric names in insertion order.
func (m *Metrics) Keys() []string {
	if m == nil {
		return nil
	}
	out := make([]string, len(m.keys))
	copy(out, m.keys)
	return out
}

// Len returns the number of entries.
func (m *Metrics) Len() int {
	if m == nil {
		return 0
	}
	return len(m.keys)
}

func (m *Metrics) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, k := range m.Keys() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(k)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(m.entries[k])
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON decodes an object while keeping the document's key order.
func (m *Metrics) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return fmt.Errorf("decoding metrics: %w", err)
	}
	if tok == nil {
		*m = Metrics{}
		return nil
	}
	if d, ok := tok.(json.Delim); !ok || d != '{' {
		return fmt.Errorf("decoding metrics: expected object, got %v", tok)
	}
	out := NewMetrics()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return fmt.Errorf("decoding metrics: %w", err)
		}
		key, ok := tok.(string)
		if !ok {
			return fmt.Errorf("decoding metrics: expected key, got %v", tok)
		}
		var e MetricEntry
		if err := dec.Decode(&e); err != nil {
			return fmt.Errorf("decoding metric %q: %w", key, err)
		}
		out.Set(key, e)
	}
	*m = *out
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
