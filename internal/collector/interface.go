package collector

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/newthinker/comps/internal/core"
)

// FilingSource fetches regulatory filing metrics for a batch of companies.
// Symbols with no data are absent from the returned map.
type FilingSource interface {
	Name() string
	FetchFilings(ctx context.Context, symbols, metricNames []string, period string) (map[string]*core.FilingResult, error)
}

// MarketSource fetches current market snapshots for a batch of companies.
// A symbol whose fetch failed may map to nil.
type MarketSource interface {
	Name() string
	FetchSnapshots(ctx context.Context, symbols []string) (map[string]*core.MarketSnapshot, error)
}

// validSymbol matches tickers like AAPL, BRK.B, RDS-A
var validSymbol = regexp.MustCompile(`^[A-Z0-9]{1,10}([.\-][A-Z0-9]{1,4})?$`)

// NormalizeSymbol upper-cases and validates a ticker.
func NormalizeSymbol(symbol string) (string, error) {
	s := strings.ToUpper(strings.TrimSpace(symbol))
	if s == "" {
		return "", fmt.Errorf("symbol cannot be empty")
	}
	if len(s) > 20 {
		return "", fmt.Errorf("symbol too long: %s", symbol)
	}
	if !validSymbol.MatchString(s) {
		return "", fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return s, nil
}

// UniqueSymbols drops repeated symbols, keeping first-seen order.
func UniqueSymbols(symbols []string) []string {
	out := make([]string, 0, len(symbols))
	seen := make(map[string]struct{}, len(symbols))
	for _, s := range symbols {
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}
