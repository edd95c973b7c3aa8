// Package filings serves filing metrics from documents kept in archive
// storage, one JSON document per company and period.
package filings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/newthinker/comps/internal/core"
	"github.com/newthinker/comps/internal/storage/archive"
)

// Name identifies this source in the collector registry.
const Name = "archive"

// Path returns the storage path of a company's filing document.
func Path(period, symbol string) string {
	return fmt.Sprintf("filings/%s/%s.json", period, strings.ToUpper(symbol))
}

// Source reads filing documents from archive storage.
type Source struct {
	store  archive.Storage
	logger *zap.Logger
}

// New creates a Source over store. A nil logger discards logs.
func New(store archive.Storage, logger *zap.Logger) *Source {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Source{store: store, logger: logger}
}

func (s *Source) Name() string {
	return Name
}

// Put stores a filing document under its symbol and period.
func (s *Source) Put(ctx context.Context, result *core.FilingResult) error {
	if result == nil || result.Symbol == "" || result.Period == "" {
		return fmt.Errorf("filing result needs a symbol and period")
	}
	if err := archive.WriteJSON(ctx, s.store, Path(result.Period, result.Symbol), result); err != nil {
		return core.WrapError(core.ErrStorageFailed, err)
	}
	return nil
}

// FetchFilings loads each symbol's document for period and keeps only the
// requested metrics. Missing or unreadable documents leave the symbol out.
func (s *Source) FetchFilings(ctx context.Context, symbols, metricNames []string, period string) (map[string]*core.FilingResult, error) {
	out := make(map[string]*core.FilingResult, len(symbols))
	for _, symbol := range symbols {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var doc core.FilingResult
		err := archive.ReadJSON(ctx, s.store, Path(period, symbol), &doc)
		switch {
		case errors.Is(err, archive.ErrNotFound):
			s.logger.Debug("no filing document",
				zap.String("symbol", symbol),
				zap.String("period", period))
			continue
		case err != nil:
			s.logger.Warn("filing document unreadable",
				zap.String("symbol", symbol),
				zap.String("period", period),
				zap.Error(err))
			continue
		}

		doc.Symbol = symbol
		if doc.Period == "" {
			doc.Period = period
		}
		doc.Metrics = project(doc.Metrics, metricNames)
		out[symbol] = &doc
	}
	return out, nil
}

// project keeps the named metrics in the requested order. No names keeps
// everything.
func project(m *core.Metrics, names []string) *core.Metrics {
	if m == nil {
		return core.NewMetrics()
	}
	if len(names) == 0 {
		return m
	}
	out := core.NewMetrics()
	for _, name := range names {
		if e, ok := m.Get(name); ok {
			out.Set(name, e)
		}
	}
	return out
}
