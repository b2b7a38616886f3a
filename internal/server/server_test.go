package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketfolio/pocketfolio/internal/clients/folioapi"
	"github.com/pocketfolio/pocketfolio/internal/marketclock"
	"github.com/pocketfolio/pocketfolio/internal/refresh"
	"github.com/pocketfolio/pocketfolio/internal/store"
)

type openGate struct{}

func (openGate) Open() bool      { return true }
func (openGate) ForceRecompute() {}

type testEnv struct {
	server      *Server
	coordinator *refresh.Coordinator
	quotes      *store.QuoteStore
	summary     *store.SummaryStore
	movers      *store.MoverStore
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := zerolog.Nop()
	coordinator := refresh.New(refresh.Config{Gate: openGate{}, Log: log})
	t.Cleanup(coordinator.Stop)

	quotes := store.NewQuoteStore(log)
	summary := store.NewSummaryStore(log)
	movers := store.NewMoverStore(log)

	clock := marketclock.New(marketclock.Config{Timezone: marketclock.DefaultTimezone, Log: log})

	srv := New(Config{
		Log:         log,
		Coordinator: coordinator,
		Clock:       clock,
		Quotes:      quotes,
		Summary:     summary,
		Movers:      movers,
		Port:        0,
	})

	return &testEnv{
		server:      srv,
		coordinator: coordinator,
		quotes:      quotes,
		summary:     summary,
		movers:      movers,
	}
}

// do routes a request through the full router, middleware included
func (e *testEnv) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	e.server.Router().ServeHTTP(rec, req)
	return rec
}

// decodeData unwraps the response envelope into out
func decodeData(t *testing.T, body []byte, out interface{}) {
	t.Helper()

	var env struct {
		Data json.RawMessage `json:"data"`
	}
	require.NoError(t, json.Unmarshal(body, &env))
	require.NoError(t, json.Unmarshal(env.Data, out))
}

func TestHandleHealth(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var data map[string]interface{}
	decodeData(t, rec.Body.Bytes(), &data)
	assert.Equal(t, "healthy", data["status"])
	assert.Equal(t, "pocketfolio", data["service"])
}

func TestResponseEnvelopeCarriesTimestamp(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/health")

	var resp struct {
		Metadata struct {
			Timestamp string `json:"timestamp"`
		} `json:"metadata"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))

	ts, err := time.Parse(time.RFC3339, resp.Metadata.Timestamp)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), ts, 5*time.Second)
}

func TestHandleMarketStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/market/status")
	assert.Equal(t, http.StatusOK, rec.Code)

	var status marketclock.Status
	decodeData(t, rec.Body.Bytes(), &status)
	assert.Equal(t, marketclock.DefaultTimezone, status.Timezone)
	assert.False(t, status.AsOf.IsZero())
}

func TestHandleSystemStatus(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/system/status")
	assert.Equal(t, http.StatusOK, rec.Code)

	var status SystemStatusResponse
	decodeData(t, rec.Body.Bytes(), &status)

	// No database wired in this test env
	assert.Equal(t, "degraded", status.Status)
	assert.False(t, status.DatabaseOK)
	assert.Greater(t, status.Goroutines, 0)
	assert.False(t, status.RefreshPaused)
}

func TestHandleDatabaseStats_NoDatabase(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/system/database/stats")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestUnknownRouteReturns404(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodGet, "/api/v1/nonexistent")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// seedQuote builds a quote with a price for store seeding
func seedQuote(symbol string, price float64) folioapi.Quote {
	return folioapi.Quote{
		Symbol:    symbol,
		Price:     decimal.NewFromFloat(price),
		UpdatedAt: time.Now().UTC(),
	}
}
