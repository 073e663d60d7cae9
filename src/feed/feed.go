// Package feed supplies per-instrument quotes and indicator snapshots to the
// engine. Implementations decide where prices come from; the engine only cares
// about freshness.
package feed

import (
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"riskpilot/src/model"
)

// Quote is one observed price with its observation time.
type Quote struct {
	Price decimal.Decimal `json:"price"`
	At    time.Time       `json:"at"`
}

// Stale reports whether the quote is older than maxAge as of now.
func (q Quote) Stale(now time.Time, maxAge time.Duration) bool {
	return now.Sub(q.At) > maxAge
}

// Source is what the engine reads each tick. A missing quote or indicator set
// means the instrument is skipped for that tick, never force-closed.
type Source interface {
	Quote(instrument string) (Quote, bool)
	Indicators(instrument string) (model.IndicatorSnapshot, bool)
}

// MemorySource is a mutex-guarded in-memory Source, fed either by the
// websocket connector or directly by tests.
type MemorySource struct {
	mu         sync.RWMutex
	quotes     map[string]Quote
	indicators map[string]model.IndicatorSnapshot
}

func NewMemorySource() *MemorySource {
	return &MemorySource{
		quotes:     make(map[string]Quote),
		indicators: make(map[string]model.IndicatorSnapshot),
	}
}

func (s *MemorySource) Quote(instrument string) (Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	q, ok := s.quotes[instrument]
	return q, ok
}

func (s *MemorySource) Indicators(instrument string) (model.IndicatorSnapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ind, ok := s.indicators[instrument]
	return ind, ok
}

// SetQuote stores a fresh quote for the instrument.
func (s *MemorySource) SetQuote(instrument string, price decimal.Decimal, at time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.quotes[instrument] = Quote{Price: price, At: at}
}

// SetIndicators stores the latest indicator snapshot for the instrument.
func (s *MemorySource) SetIndicators(snapshot model.IndicatorSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.indicators[snapshot.Instrument] = snapshot
}

// Instruments lists every instrument with at least one quote.
func (s *MemorySource) Instruments() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.quotes))
	for k := range s.quotes {
		out = append(out, k)
	}
	return out
}
