package server

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHandleStreams(t *testing.T) {
	env := newTestEnv(t)

	var count atomic.Int32
	unsubA, err := env.coordinator.Subscribe("prices", func(ctx context.Context) error {
		count.Add(1)
		return nil
	}, time.Hour)
	require.NoError(t, err)
	defer unsubA()

	unsubB, err := env.coordinator.Subscribe("top-movers", func(ctx context.Context) error {
		count.Add(1)
		return nil
	}, time.Hour)
	require.NoError(t, err)
	defer unsubB()

	time.Sleep(50 * time.Millisecond)

	rec := env.do(t, http.MethodGet, "/api/v1/refresh/streams")
	assert.Equal(t, http.StatusOK, rec.Code)

	var resp StreamsResponse
	decodeData(t, rec.Body.Bytes(), &resp)

	assert.Equal(t, 2, resp.Count)
	assert.False(t, resp.Paused)
	require.Len(t, resp.Streams, 2)
	assert.Equal(t, "prices", resp.Streams[0].Key)
	assert.Equal(t, "top-movers", resp.Streams[1].Key)
}

func TestHandleRefreshStream(t *testing.T) {
	env := newTestEnv(t)

	var count atomic.Int32
	unsub, err := env.coordinator.Subscribe("prices", func(ctx context.Context) error {
		count.Add(1)
		return nil
	}, time.Hour)
	require.NoError(t, err)
	defer unsub()

	// Let the subscription's immediate fetch settle
	time.Sleep(50 * time.Millisecond)
	require.Equal(t, int32(1), count.Load())

	// Refresh blocks until the fetch settles, so the count is deterministic
	rec := env.do(t, http.MethodPost, "/api/v1/refresh/streams/prices")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, int32(2), count.Load())

	var resp map[string]string
	decodeData(t, rec.Body.Bytes(), &resp)
	assert.Equal(t, "refreshed", resp["status"])
	assert.Equal(t, "prices", resp["stream"])
}

func TestHandleRefreshStream_UnknownKey(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(t, http.MethodPost, "/api/v1/refresh/streams/nope")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleRefreshAll(t *testing.T) {
	env := newTestEnv(t)

	var prices, movers atomic.Int32
	unsubA, err := env.coordinator.Subscribe("prices", func(ctx context.Context) error {
		prices.Add(1)
		return nil
	}, time.Hour)
	require.NoError(t, err)
	defer unsubA()

	unsubB, err := env.coordinator.Subscribe("top-movers", func(ctx context.Context) error {
		movers.Add(1)
		return nil
	}, time.Hour)
	require.NoError(t, err)
	defer unsubB()

	time.Sleep(50 * time.Millisecond)

	rec := env.do(t, http.MethodPost, "/api/v1/refresh/all")
	assert.Equal(t, http.StatusOK, rec.Code)

	// RefreshAll waits for every stream to settle before returning
	assert.Equal(t, int32(2), prices.Load())
	assert.Equal(t, int32(2), movers.Load())
}

func TestHandlePauseAndResume(t *testing.T) {
	env := newTestEnv(t)

	var count atomic.Int32
	unsub, err := env.coordinator.Subscribe("prices", func(ctx context.Context) error {
		count.Add(1)
		return nil
	}, time.Hour)
	require.NoError(t, err)
	defer unsub()

	time.Sleep(50 * time.Millisecond)

	rec := env.do(t, http.MethodPost, "/api/v1/refresh/pause")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, env.coordinator.Paused())

	// Manual refresh while paused is a no-op
	before := count.Load()
	env.do(t, http.MethodPost, "/api/v1/refresh/streams/prices")
	assert.Equal(t, before, count.Load())

	rec = env.do(t, http.MethodPost, "/api/v1/refresh/resume")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, env.coordinator.Paused())

	// Resume refetches every stream
	time.Sleep(100 * time.Millisecond)
	assert.Greater(t, count.Load(), before)
}
