package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pocketfolio/pocketfolio/internal/clients/folioapi"
	"github.com/pocketfolio/pocketfolio/internal/feeds"
	"github.com/pocketfolio/pocketfolio/internal/refresh"
	"github.com/pocketfolio/pocketfolio/internal/store"
)

// DataHandlers serves the in-memory stores the fetch streams feed
type DataHandlers struct {
	quotes      *store.QuoteStore
	summary     *store.SummaryStore
	movers      *store.MoverStore
	coordinator *refresh.Coordinator
	log         zerolog.Logger
}

// NewDataHandlers creates data read handlers
func NewDataHandlers(quotes *store.QuoteStore, summary *store.SummaryStore, movers *store.MoverStore, coordinator *refresh.Coordinator, log zerolog.Logger) *DataHandlers {
	return &DataHandlers{
		quotes:      quotes,
		summary:     summary,
		movers:      movers,
		coordinator: coordinator,
		log:         log.With().Str("handlers", "data").Logger(),
	}
}

// QuotesResponse carries the tracked quotes plus freshness metadata
type QuotesResponse struct {
	Quotes    []folioapi.Quote `json:"quotes"`
	Count     int              `json:"count"`
	UpdatedAt string           `json:"updated_at,omitempty"`
	Stale     bool             `json:"stale"`
	LastError string           `json:"last_error,omitempty"`
}

// SummaryResponse carries the portfolio summary plus freshness metadata
type SummaryResponse struct {
	Summary   *folioapi.PortfolioSummary `json:"summary"`
	UpdatedAt string                     `json:"updated_at,omitempty"`
	Stale     bool                       `json:"stale"`
	LastError string                     `json:"last_error,omitempty"`
}

// MoversResponse carries the top-movers board plus freshness metadata
type MoversResponse struct {
	Movers    []folioapi.Mover `json:"movers"`
	Count     int              `json:"count"`
	UpdatedAt string           `json:"updated_at,omitempty"`
	Stale     bool             `json:"stale"`
	LastError string           `json:"last_error,omitempty"`
}

// HandleQuotes returns all tracked quotes
// GET /api/v1/quotes
func (h *DataHandlers) HandleQuotes(w http.ResponseWriter, r *http.Request) {
	quotes := h.quotes.All()

	writeJSON(w, h.log, http.StatusOK, QuotesResponse{
		Quotes:    quotes,
		Count:     len(quotes),
		UpdatedAt: formatTime(h.quotes.UpdatedAt()),
		Stale:     h.coordinator.IsStale(feeds.StreamPrices),
		LastError: errString(h.quotes.LastError()),
	})
}

// HandleQuote returns the quote for a single symbol
// GET /api/v1/quotes/{symbol}
func (h *DataHandlers) HandleQuote(w http.ResponseWriter, r *http.Request) {
	symbol := strings.ToUpper(chi.URLParam(r, "symbol"))

	quote, ok := h.quotes.Get(symbol)
	if !ok {
		writeError(w, h.log, http.StatusNotFound, "no quote for symbol: "+symbol)
		return
	}

	writeJSON(w, h.log, http.StatusOK, quote)
}

// HandleSummary returns the portfolio summary
// GET /api/v1/portfolio/summary
func (h *DataHandlers) HandleSummary(w http.ResponseWriter, r *http.Request) {
	summary, ok := h.summary.Get()
	if !ok {
		writeError(w, h.log, http.StatusNotFound, "no portfolio summary available yet")
		return
	}

	writeJSON(w, h.log, http.StatusOK, SummaryResponse{
		Summary:   summary,
		UpdatedAt: formatTime(h.summary.UpdatedAt()),
		Stale:     h.coordinator.IsStale(feeds.StreamSummary),
		LastError: errString(h.summary.LastError()),
	})
}

// HandleMovers returns the top-movers board
// GET /api/v1/movers
func (h *DataHandlers) HandleMovers(w http.ResponseWriter, r *http.Request) {
	movers := h.movers.All()

	writeJSON(w, h.log, http.StatusOK, MoversResponse{
		Movers:    movers,
		Count:     len(movers),
		UpdatedAt: formatTime(h.movers.UpdatedAt()),
		Stale:     h.coordinator.IsStale(feeds.StreamMovers),
		LastError: errString(h.movers.LastError()),
	})
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
