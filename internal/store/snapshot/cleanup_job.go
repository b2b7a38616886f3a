package snapshot

import (
	"github.com/rs/zerolog"

	"github.com/pocketfolio/pocketfolio/internal/database"
)

// CleanupJob removes expired entries from all snapshot tables and
// truncates the WAL afterwards so the cache file stays small.
type CleanupJob struct {
	repo *Repository
	db   *database.DB
	log  zerolog.Logger
}

// NewCleanupJob creates a new snapshot cleanup job.
// db is optional - if nil, the WAL checkpoint is skipped.
func NewCleanupJob(repo *Repository, db *database.DB, log zerolog.Logger) *CleanupJob {
	return &CleanupJob{
		repo: repo,
		db:   db,
		log:  log.With().Str("job", "snapshot_cleanup").Logger(),
	}
}

// Run executes the cleanup job, removing all expired entries from all tables.
func (j *CleanupJob) Run() error {
	results, err := j.repo.DeleteAllExpired()
	if err != nil {
		j.log.Error().Err(err).Msg("Failed to delete expired snapshots")
		return err
	}

	var totalDeleted int64
	for table, count := range results {
		if count > 0 {
			j.log.Info().
				Str("table", table).
				Int64("deleted", count).
				Msg("Cleaned up expired snapshots")
			totalDeleted += count
		}
	}

	if totalDeleted > 0 {
		j.log.Info().
			Int64("total_deleted", totalDeleted).
			Msg("Snapshot cleanup completed")

		if j.db != nil {
			if err := j.db.WALCheckpoint(""); err != nil {
				j.log.Warn().Err(err).Msg("WAL checkpoint after cleanup failed")
			}
		}
	}

	return nil
}

// Name returns the job name for scheduling and logging.
func (j *CleanupJob) Name() string {
	return "snapshot_cleanup"
}
