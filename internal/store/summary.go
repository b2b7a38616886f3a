package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pocketfolio/pocketfolio/internal/clients/folioapi"
)

// SummaryStore keeps the latest portfolio summary
type SummaryStore struct {
	mu        sync.RWMutex
	summary   *folioapi.PortfolioSummary
	updatedAt time.Time
	lastErr   error
	log       zerolog.Logger
}

// NewSummaryStore creates an empty summary store
func NewSummaryStore(log zerolog.Logger) *SummaryStore {
	return &SummaryStore{
		log: log.With().Str("store", "summary").Logger(),
	}
}

// Set replaces the stored summary and clears any previous error
func (s *SummaryStore) Set(summary *folioapi.PortfolioSummary) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.summary = summary
	s.updatedAt = time.Now()
	s.lastErr = nil

	s.log.Debug().Str("portfolio_id", summary.PortfolioID).Msg("Summary updated")
}

// Get returns a copy of the stored summary
func (s *SummaryStore) Get() (*folioapi.PortfolioSummary, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.summary == nil {
		return nil, false
	}
	cp := *s.summary
	return &cp, true
}

// UpdatedAt returns when the store last received a successful write
func (s *SummaryStore) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// SetError records a failed refresh, keeping the previous summary
func (s *SummaryStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// LastError returns the error from the most recent failed refresh, or
// nil after a successful one
func (s *SummaryStore) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
