package server

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/pocketfolio/pocketfolio/internal/marketclock"
)

// MarketHandlers exposes the market clock over HTTP
type MarketHandlers struct {
	clock *marketclock.Clock
	log   zerolog.Logger
}

// NewMarketHandlers creates market handlers
func NewMarketHandlers(clock *marketclock.Clock, log zerolog.Logger) *MarketHandlers {
	return &MarketHandlers{
		clock: clock,
		log:   log.With().Str("handlers", "market").Logger(),
	}
}

// HandleStatus returns the cached market session state
// GET /api/v1/market/status
func (h *MarketHandlers) HandleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, h.log, http.StatusOK, h.clock.Status())
}
