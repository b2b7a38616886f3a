package store

import (
	"fmt"
	"testing"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pocketfolio/pocketfolio/internal/clients/folioapi"
)

func TestQuoteStore(t *testing.T) {
	s := NewQuoteStore(zerolog.Nop())

	_, ok := s.Get("AAPL")
	assert.False(t, ok)
	assert.True(t, s.UpdatedAt().IsZero())

	s.SetAll([]folioapi.Quote{
		{Symbol: "MSFT", Price: decimal.NewFromFloat(415.1)},
		{Symbol: "AAPL", Price: decimal.NewFromFloat(228.5)},
	})

	q, ok := s.Get("AAPL")
	require.True(t, ok)
	assert.True(t, q.Price.Equal(decimal.NewFromFloat(228.5)))

	all := s.All()
	require.Len(t, all, 2)
	assert.Equal(t, "AAPL", all[0].Symbol)
	assert.Equal(t, "MSFT", all[1].Symbol)
	assert.False(t, s.UpdatedAt().IsZero())

	// A full refresh replaces the map, old symbols drop out
	s.SetAll([]folioapi.Quote{{Symbol: "GOOG"}})
	_, ok = s.Get("AAPL")
	assert.False(t, ok)
}

func TestQuoteStore_ErrorKeepsData(t *testing.T) {
	s := NewQuoteStore(zerolog.Nop())

	s.SetAll([]folioapi.Quote{{Symbol: "AAPL"}})
	require.NoError(t, s.LastError())

	s.SetError(fmt.Errorf("upstream down"))
	assert.Error(t, s.LastError())

	// Old data survives the failed refresh
	_, ok := s.Get("AAPL")
	assert.True(t, ok)

	// Next success clears the error
	s.SetAll([]folioapi.Quote{{Symbol: "AAPL"}})
	assert.NoError(t, s.LastError())
}

func TestSummaryStore(t *testing.T) {
	s := NewSummaryStore(zerolog.Nop())

	_, ok := s.Get()
	assert.False(t, ok)

	s.Set(&folioapi.PortfolioSummary{
		PortfolioID: "default",
		TotalValue:  decimal.NewFromFloat(15230.75),
	})

	summary, ok := s.Get()
	require.True(t, ok)
	assert.Equal(t, "default", summary.PortfolioID)

	// Callers get a copy, not the stored pointer
	summary.PortfolioID = "mutated"
	again, _ := s.Get()
	assert.Equal(t, "default", again.PortfolioID)
}

func TestSummaryStore_Error(t *testing.T) {
	s := NewSummaryStore(zerolog.Nop())

	s.SetError(fmt.Errorf("boom"))
	assert.Error(t, s.LastError())

	s.Set(&folioapi.PortfolioSummary{PortfolioID: "default"})
	assert.NoError(t, s.LastError())
}

func TestMoverStore(t *testing.T) {
	s := NewMoverStore(zerolog.Nop())

	assert.Empty(t, s.All())

	movers := []folioapi.Mover{
		{Symbol: "NVDA", Direction: "up"},
		{Symbol: "INTC", Direction: "down"},
	}
	s.Set(movers)

	all := s.All()
	require.Len(t, all, 2)
	// Ranking order from the API is preserved
	assert.Equal(t, "NVDA", all[0].Symbol)

	// Mutating the returned slice does not affect the store
	all[0].Symbol = "X"
	assert.Equal(t, "NVDA", s.All()[0].Symbol)
}
