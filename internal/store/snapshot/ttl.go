package snapshot

import "time"

// TTL constants for each snapshot table.
// These are added to time.Now() when storing to calculate expires_at.
// Snapshots only bridge the gap until the first live fetch, so they
// can be short-lived.
const (
	TTLQuotes  = 15 * time.Minute // Prices go stale fast
	TTLSummary = 30 * time.Minute // Portfolio standing drifts slower
	TTLMovers  = time.Hour        // Daily board, coarse by nature
)
