package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/pocketfolio/pocketfolio/internal/refresh"
)

// RefreshHandlers exposes coordinator control over HTTP
type RefreshHandlers struct {
	coordinator *refresh.Coordinator
	log         zerolog.Logger
}

// NewRefreshHandlers creates refresh handlers
func NewRefreshHandlers(coordinator *refresh.Coordinator, log zerolog.Logger) *RefreshHandlers {
	return &RefreshHandlers{
		coordinator: coordinator,
		log:         log.With().Str("handlers", "refresh").Logger(),
	}
}

// StreamsResponse lists the state of every registered stream
type StreamsResponse struct {
	Streams []refresh.StreamStatus `json:"streams"`
	Count   int                    `json:"count"`
	Paused  bool                   `json:"paused"`
}

// HandleStreams returns the status of all registered streams
// GET /api/v1/refresh/streams
func (h *RefreshHandlers) HandleStreams(w http.ResponseWriter, r *http.Request) {
	streams := h.coordinator.Status()

	writeJSON(w, h.log, http.StatusOK, StreamsResponse{
		Streams: streams,
		Count:   len(streams),
		Paused:  h.coordinator.Paused(),
	})
}

// HandleRefreshStream triggers an out-of-band fetch for one stream and
// waits for it to settle
// POST /api/v1/refresh/streams/{key}
func (h *RefreshHandlers) HandleRefreshStream(w http.ResponseWriter, r *http.Request) {
	key := chi.URLParam(r, "key")

	if !h.streamExists(key) {
		writeError(w, h.log, http.StatusNotFound, "unknown stream: "+key)
		return
	}

	h.log.Info().Str("stream", key).Msg("Manual refresh triggered")
	h.coordinator.Refresh(key)

	writeJSON(w, h.log, http.StatusOK, map[string]string{
		"status": "refreshed",
		"stream": key,
	})
}

// HandleRefreshAll triggers a fetch on every stream and waits for all
// of them to settle
// POST /api/v1/refresh/all
func (h *RefreshHandlers) HandleRefreshAll(w http.ResponseWriter, r *http.Request) {
	h.log.Info().Msg("Manual refresh-all triggered")

	streams := len(h.coordinator.Status())
	h.coordinator.RefreshAll()

	writeJSON(w, h.log, http.StatusOK, map[string]interface{}{
		"status":  "refreshed",
		"streams": streams,
	})
}

// HandlePause suspends all scheduled and in-flight fetching. The app
// shell calls this when it moves to the background.
// POST /api/v1/refresh/pause
func (h *RefreshHandlers) HandlePause(w http.ResponseWriter, r *http.Request) {
	h.coordinator.Pause()
	h.log.Info().Msg("Refreshing paused")

	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "paused"})
}

// HandleResume resumes fetching and immediately refreshes every stream
// POST /api/v1/refresh/resume
func (h *RefreshHandlers) HandleResume(w http.ResponseWriter, r *http.Request) {
	h.coordinator.Resume()
	h.log.Info().Msg("Refreshing resumed")

	writeJSON(w, h.log, http.StatusOK, map[string]string{"status": "resumed"})
}

func (h *RefreshHandlers) streamExists(key string) bool {
	for _, st := range h.coordinator.Status() {
		if st.Key == key {
			return true
		}
	}
	return false
}
