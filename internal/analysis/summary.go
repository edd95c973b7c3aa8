package analysis

import (
	"sort"

	"github.com/montanaflynn/stats"

	"github.com/newthinker/comps/internal/core"
)

// Result sections a peer summary can be drawn from.
const (
	SectionMultiples = "multiples"
	SectionGrowth    = "growth"
	SectionOperating = "operating"
)

// PeerStats describes the distribution of one metric across a peer set.
// Statistics are zero when Count is zero.
type PeerStats struct {
	Metric  string   `json:"metric" yaml:"metric"`
	Count   int      `json:"count" yaml:"count"`
	Min     float64  `json:"min" yaml:"min"`
	P25     float64  `json:"p25" yaml:"p25"`
	Median  float64  `json:"median" yaml:"median"`
	Mean    float64  `json:"mean" yaml:"mean"`
	P75     float64  `json:"p75" yaml:"p75"`
	Max     float64  `json:"max" yaml:"max"`
	Symbols []string `json:"symbols" yaml:"symbols"`
}

func section(a *core.CompanyAnalysis, name string) map[string]*core.DerivedValue {
	switch name {
	case SectionMultiples:
		return a.Multiples
	case SectionGrowth:
		return a.Growth
	case SectionOperating:
		return a.Operating
	}
	return nil
}

// Summarize collects the present values of metric from the given section of
// each analysis and computes peer statistics over them.
func Summarize(analyses []*core.CompanyAnalysis, sectionName, metric string) PeerStats {
	ps := PeerStats{Metric: metric, Symbols: []string{}}
	var data stats.Float64Data
	for _, a := range analyses {
		if a == nil {
			continue
		}
		dv, ok := section(a, sectionName)[metric]
		if !ok || dv == nil || !dv.Value.Valid {
			continue
		}
		data = append(data, dv.Value.Value)
		ps.Symbols = append(ps.Symbols, a.Symbol)
	}

	ps.Count = len(data)
	if ps.Count == 0 {
		return ps
	}
	ps.Min, _ = stats.Min(data)
	ps.Max, _ = stats.Max(data)
	ps.Mean, _ = stats.Mean(data)
	ps.Median, _ = stats.Median(data)
	ps.P25, _ = stats.PercentileNearestRank(data, 25)
	ps.P75, _ = stats.PercentileNearestRank(data, 75)
	return ps
}

// SummarizeMultiples summarizes every multiple present in any analysis,
// ordered by metric name.
func SummarizeMultiples(analyses []*core.CompanyAnalysis) []PeerStats {
	seen := map[string]struct{}{}
	for _, a := range analyses {
		if a == nil {
			continue
		}
		for k := range a.Multiples {
			seen[k] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for k := range seen {
		names = append(names, k)
	}
	sort.Strings(names)

	out := make([]PeerStats, 0, len(names))
	for _, name := range names {
		out = append(out, Summarize(analyses, SectionMultiples, name))
	}
	return out
}
