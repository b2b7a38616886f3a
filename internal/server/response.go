package server

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

// envelope is the standard response wrapper for API endpoints
type envelope struct {
	Data     interface{} `json:"data"`
	Metadata metadata    `json:"metadata"`
}

type metadata struct {
	Timestamp string `json:"timestamp"`
}

// writeJSON writes a payload wrapped in the response envelope
func writeJSON(w http.ResponseWriter, log zerolog.Logger, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := envelope{
		Data:     data,
		Metadata: metadata{Timestamp: time.Now().UTC().Format(time.RFC3339)},
	}
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}

// writeError writes a JSON error response
func writeError(w http.ResponseWriter, log zerolog.Logger, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(map[string]string{"error": message}); err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON error response")
	}
}
