package store

import (
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/pocketfolio/pocketfolio/internal/clients/folioapi"
)

// MoverStore keeps the latest top-movers board
type MoverStore struct {
	mu        sync.RWMutex
	movers    []folioapi.Mover
	updatedAt time.Time
	lastErr   error
	log       zerolog.Logger
}

// NewMoverStore creates an empty movers store
func NewMoverStore(log zerolog.Logger) *MoverStore {
	return &MoverStore{
		log: log.With().Str("store", "movers").Logger(),
	}
}

// Set replaces the board and clears any previous error. Order is
// preserved as returned by the API (already ranked).
func (s *MoverStore) Set(movers []folioapi.Mover) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.movers = make([]folioapi.Mover, len(movers))
	copy(s.movers, movers)
	s.updatedAt = time.Now()
	s.lastErr = nil

	s.log.Debug().Int("count", len(movers)).Msg("Movers updated")
}

// All returns a copy of the board
func (s *MoverStore) All() []folioapi.Mover {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]folioapi.Mover, len(s.movers))
	copy(out, s.movers)
	return out
}

// UpdatedAt returns when the store last received a successful write
func (s *MoverStore) UpdatedAt() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.updatedAt
}

// SetError records a failed refresh, keeping the previous board
func (s *MoverStore) SetError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lastErr = err
}

// LastError returns the error from the most recent failed refresh, or
// nil after a successful one
func (s *MoverStore) LastError() error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastErr
}
