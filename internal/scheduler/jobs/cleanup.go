package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/pythia/backend/pkg/logger"
)

// CleanupRepository is the slice of the store the cleanup job needs
type CleanupRepository interface {
	DeleteExpiredFailed(ctx context.Context, before time.Time) (int64, error)
}

// CleanupJob removes stale failed records so retries start from a clean slate
// and the table does not accumulate dead rows.
type CleanupJob struct {
	repo      CleanupRepository
	retention time.Duration
	logger    *logger.Logger
}

// NewCleanupJob creates the nightly cleanup job
func NewCleanupJob(repo CleanupRepository, retention time.Duration, log *logger.Logger) *CleanupJob {
	if retention <= 0 {
		retention = 72 * time.Hour
	}
	return &CleanupJob{repo: repo, retention: retention, logger: log}
}

// Name returns the job name
func (j *CleanupJob) Name() string {
	return "record_cleanup"
}

// Schedule runs nightly at 03:30 local time
func (j *CleanupJob) Schedule() string {
	return "0 30 3 * * *"
}

// Run deletes failed records past the retention cutoff
func (j *CleanupJob) Run(ctx context.Context) error {
	cutoff := time.Now().Add(-j.retention)
	deleted, err := j.repo.DeleteExpiredFailed(ctx, cutoff)
	if err != nil {
		return fmt.Errorf("cleanup failed: %w", err)
	}

	j.logger.WithFields(map[string]interface{}{
		"deleted": deleted,
		"cutoff":  cutoff.Format(time.RFC3339),
	}).Info("Stale failed records removed")

	return nil
}
