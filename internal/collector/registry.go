package collector

import (
	"sort"
	"sync"
)

// Registry holds the filing and market sources available to the engine.
type Registry struct {
	mu      sync.RWMutex
	filings map[string]FilingSource
	markets map[string]MarketSource
}

// NewRegistry creates an empty registry
func NewRegistry() *Registry {
	return &Registry{
		filings: make(map[string]FilingSource),
		markets: make(map[string]MarketSource),
	}
}

// RegisterFiling adds a filing source, replacing any with the same name
func (r *Registry) RegisterFiling(s FilingSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.filings[s.Name()] = s
}

// RegisterMarket adds a market source, replacing any with the same name
func (r *Registry) RegisterMarket(s MarketSource) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.markets[s.Name()] = s
}

// Filing retrieves a filing source by name
func (r *Registry) Filing(name string) (FilingSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.filings[name]
	return s, ok
}

// Market retrieves a market source by name
func (r *Registry) Market(name string) (MarketSource, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.markets[name]
	return s, ok
}

// Names returns the registered filing and market source names, sorted.
func (r *Registry) Names() (filings, markets []string) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for name := range r.filings {
		filings = append(filings, name)
	}
	for name := range r.markets {
		markets = append(markets, name)
	}
	sort.Strings(filings)
	sort.Strings(markets)
	return filings, markets
}
