package snapshot

import "database/sql"

// SnapshotSchema defines the snapshot tables, one per fetch stream.
// Every table has the same shape: a JSON blob keyed by cache key with
// an expiration timestamp.
const SnapshotSchema = `
CREATE TABLE IF NOT EXISTS quotes (
    cache_key TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS portfolio_summary (
    cache_key TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS movers (
    cache_key TEXT PRIMARY KEY,
    data TEXT NOT NULL,
    expires_at INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_quotes_expires ON quotes(expires_at);
CREATE INDEX IF NOT EXISTS idx_portfolio_summary_expires ON portfolio_summary(expires_at);
CREATE INDEX IF NOT EXISTS idx_movers_expires ON movers(expires_at);
`

// InitSchema ensures the snapshot tables exist in snapshots.db
func InitSchema(db *sql.DB) error {
	_, err := db.Exec(SnapshotSchema)
	return err
}
