package snapshot

import (
	"database/sql"
	"encoding/json"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestDB(t *testing.T) *sql.DB {
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)

	require.NoError(t, InitSchema(db))

	return db
}

func TestNewRepository(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)
	assert.NotNil(t, repo)
}

func TestStore(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	data := map[string]interface{}{
		"symbol": "AAPL",
		"price":  228.5,
	}

	err := repo.Store("quotes", "tracked", data, TTLQuotes)
	require.NoError(t, err)

	// Verify data was stored
	var storedData string
	var expiresAt int64
	err = db.QueryRow("SELECT data, expires_at FROM quotes WHERE cache_key = ?", "tracked").Scan(&storedData, &expiresAt)
	require.NoError(t, err)

	var parsed map[string]interface{}
	err = json.Unmarshal([]byte(storedData), &parsed)
	require.NoError(t, err)
	assert.Equal(t, "AAPL", parsed["symbol"])

	// Verify expiration is roughly TTLQuotes from now
	expectedExpires := time.Now().Add(TTLQuotes).Unix()
	assert.InDelta(t, expectedExpires, expiresAt, 5) // Allow 5 second tolerance
}

func TestStoreUpsert(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// Store initial data
	err := repo.Store("portfolio_summary", "default", map[string]string{"version": "1"}, time.Hour)
	require.NoError(t, err)

	// Store updated data with same key
	err = repo.Store("portfolio_summary", "default", map[string]string{"version": "2"}, time.Hour)
	require.NoError(t, err)

	// Verify only one row exists with updated data
	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM portfolio_summary WHERE cache_key = ?", "default").Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	result, err := repo.GetIfFresh("portfolio_summary", "default")
	require.NoError(t, err)
	require.NotNil(t, result)

	var parsed map[string]string
	err = json.Unmarshal(result, &parsed)
	require.NoError(t, err)
	assert.Equal(t, "2", parsed["version"])
}

func TestGetIfFresh(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	t.Run("missing key returns nil", func(t *testing.T) {
		result, err := repo.GetIfFresh("quotes", "missing")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("fresh data is returned", func(t *testing.T) {
		err := repo.Store("quotes", "tracked", map[string]string{"symbol": "AAPL"}, time.Hour)
		require.NoError(t, err)

		result, err := repo.GetIfFresh("quotes", "tracked")
		require.NoError(t, err)
		require.NotNil(t, result)
	})

	t.Run("expired data returns nil", func(t *testing.T) {
		// Store with negative TTL so it is already expired
		err := repo.Store("quotes", "expired", map[string]string{"symbol": "OLD"}, -time.Hour)
		require.NoError(t, err)

		result, err := repo.GetIfFresh("quotes", "expired")
		require.NoError(t, err)
		assert.Nil(t, result)
	})
}

func TestGetReturnsStaleData(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	err := repo.Store("movers", "board", map[string]string{"symbol": "NVDA"}, -time.Hour)
	require.NoError(t, err)

	// GetIfFresh refuses expired data
	fresh, err := repo.GetIfFresh("movers", "board")
	require.NoError(t, err)
	assert.Nil(t, fresh)

	// Get still returns it
	stale, err := repo.Get("movers", "board")
	require.NoError(t, err)
	require.NotNil(t, stale)

	var parsed map[string]string
	require.NoError(t, json.Unmarshal(stale, &parsed))
	assert.Equal(t, "NVDA", parsed["symbol"])
}

func TestDelete(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	err := repo.Store("quotes", "tracked", map[string]string{"symbol": "AAPL"}, time.Hour)
	require.NoError(t, err)

	require.NoError(t, repo.Delete("quotes", "tracked"))

	result, err := repo.Get("quotes", "tracked")
	require.NoError(t, err)
	assert.Nil(t, result)
}

func TestDeleteExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	// One fresh, two expired
	require.NoError(t, repo.Store("quotes", "fresh", map[string]string{"v": "1"}, time.Hour))
	require.NoError(t, repo.Store("quotes", "old1", map[string]string{"v": "2"}, -time.Hour))
	require.NoError(t, repo.Store("quotes", "old2", map[string]string{"v": "3"}, -time.Hour))

	deleted, err := repo.DeleteExpired("quotes")
	require.NoError(t, err)
	assert.Equal(t, int64(2), deleted)

	// Fresh entry survives
	result, err := repo.GetIfFresh("quotes", "fresh")
	require.NoError(t, err)
	assert.NotNil(t, result)
}

func TestDeleteAllExpired(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	require.NoError(t, repo.Store("quotes", "old", map[string]string{}, -time.Hour))
	require.NoError(t, repo.Store("portfolio_summary", "old", map[string]string{}, -time.Hour))
	require.NoError(t, repo.Store("movers", "fresh", map[string]string{}, time.Hour))

	results, err := repo.DeleteAllExpired()
	require.NoError(t, err)

	assert.Equal(t, int64(1), results["quotes"])
	assert.Equal(t, int64(1), results["portfolio_summary"])
	assert.Equal(t, int64(0), results["movers"])
}

func TestInvalidTableName(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	t.Run("Store", func(t *testing.T) {
		err := repo.Store("users; DROP TABLE quotes", "key", map[string]string{}, time.Hour)
		assert.Error(t, err)
	})

	t.Run("GetIfFresh", func(t *testing.T) {
		_, err := repo.GetIfFresh("nonexistent", "key")
		assert.Error(t, err)
	})

	t.Run("Get", func(t *testing.T) {
		_, err := repo.Get("nonexistent", "key")
		assert.Error(t, err)
	})

	t.Run("Delete", func(t *testing.T) {
		err := repo.Delete("nonexistent", "key")
		assert.Error(t, err)
	})

	t.Run("DeleteExpired", func(t *testing.T) {
		_, err := repo.DeleteExpired("nonexistent")
		assert.Error(t, err)
	})
}

func TestCleanupJob(t *testing.T) {
	db := setupTestDB(t)
	defer db.Close()

	repo := NewRepository(db)

	require.NoError(t, repo.Store("quotes", "old", map[string]string{}, -time.Hour))
	require.NoError(t, repo.Store("movers", "fresh", map[string]string{}, time.Hour))

	job := NewCleanupJob(repo, nil, zerolog.Nop())
	assert.Equal(t, "snapshot_cleanup", job.Name())

	require.NoError(t, job.Run())

	// Expired entry is gone, fresh one survives
	gone, err := repo.Get("quotes", "old")
	require.NoError(t, err)
	assert.Nil(t, gone)

	kept, err := repo.GetIfFresh("movers", "fresh")
	require.NoError(t, err)
	assert.NotNil(t, kept)
}
