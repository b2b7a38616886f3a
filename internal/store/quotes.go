// Package store holds the in-memory read models that fetch streams
// write into and the HTTP surface serves from. Each store records its
// own last error, so a failed refresh stays visible to readers while
// older data keeps being served.
package store

import (
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pocketfolio/pocketfolio/internal/clients/folioapi"
)

// QuoteStore keeps the latest quote per tracked symbol
type QuoteStore struct {
	mu        sync.RWMutex
	quotes    map[string]folioapi.Quote
	updatedAt time.Time
	lastErr   error
	log       zerolog.Logger
}

// NewQuoteStore creates an empty quote store
func NewQuoteStore(log zerolog.Logger) *QuoteStore {
	return &QuoteStore{
		quotes: make(map[string]folioapi.Quote),
		log:    log.With().Str("store", "quotes").Logger(),
	}
}

// SetAll replaces the stored quotes and clears any previous error
func (s *QuoteStore) SetAll(quotes []folioapi.Quote) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.quotes = make(map[string]folioapi.Quote, len(quotes))
	for _, q := range quotes {
		s.quotes[q.Symbol] = q
	}
	s.updatedAt = time.Now()
	s.lastErr = nil

	s.log.Debug().Int("count", len(quotes)).Msg("Quotes updated")
}

// Get returns the quote for one symbol
func (s *QuoteStore) Get(symbol string) (folioapi.Quote, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	q, ok := s.quotes[symbol]
	return q, ok
}

// All returns every stored quote, sorted by symbol
func (s *QuoteStore) All() []folioapi.Quote {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]folioapi.Quote, 0, len(s.quotes))
	for _, q := range s.quotes {
		out = append(out, q)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

// UpdatedAt returns when the store last received a successful write
func (s *QuoteStore) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// SetError records a failed refresh without clearing existing quotes
func (s *QuoteStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// LastError returns the error from the most recent failed refresh, or
// nil after a successful one
func (s *QuoteStore) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
