package refresh

import (
	"sort"
	"time"
)

// StreamStatus is a point-in-time snapshot of one stream
type StreamStatus struct {
	Key                 string     `json:"key"`
	Subscribers         int        `json:"subscribers"`
	Fetching            bool       `json:"fetching"`
	ConsecutiveErrors   int        `json:"consecutive_errors"`
	LastFetchedAt       *time.Time `json:"last_fetched_at,omitempty"`
	Stale               bool       `json:"stale"`
	BaseIntervalMs      int64      `json:"base_interval_ms"`
	EffectiveIntervalMs int64      `json:"effective_interval_ms"`
}

// LastFetchedAt returns the time of the most recent successful fetch
// for key, or the zero time when the key is unknown or has never
// succeeded.
func (c *Coordinator) LastFetchedAt(key string) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[key]
	if !ok {
		return time.Time{}
	}
	return s.lastFetchedAt
}

// IsStale reports whether key has no registered stream, or its last
// success is older than 1.5x the current effective interval. Backoff
// does not widen the threshold: a failing stream reads as stale even
// while its retries are spaced out.
func (c *Coordinator) IsStale(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	s, ok := c.streams[key]
	if !ok {
		return true
	}
	return c.staleLocked(s)
}

func (c *Coordinator) staleLocked(s *stream) bool {
	threshold := time.Duration(staleFactor * float64(c.effectiveIntervalLocked(s)))
	return time.Since(s.lastFetchedAt) > threshold
}

// Paused reports whether scheduling is currently suspended
func (c *Coordinator) Paused() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.paused
}

// Status returns a snapshot of every registered stream, sorted by key
func (c *Coordinator) Status() []StreamStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]StreamStatus, 0, len(c.streams))
	for _, s := range c.streams {
		st := StreamStatus{
			Key:                 s.key,
			Subscribers:         len(s.subs),
			Fetching:            s.fetching,
			ConsecutiveErrors:   s.consecutiveErrors,
			Stale:               c.staleLocked(s),
			BaseIntervalMs:      s.baseInterval.Milliseconds(),
			EffectiveIntervalMs: c.effectiveIntervalLocked(s).Milliseconds(),
		}
		if !s.lastFetchedAt.IsZero() {
			t := s.lastFetchedAt
			st.LastFetchedAt = &t
		}
		out = append(out, st)
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Key < out[j].Key
	})
	return out
}
