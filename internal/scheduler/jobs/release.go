package jobs

import (
	"context"
	"fmt"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/logger"
)

// ReleaseRepository is the slice of the store the release job needs
type ReleaseRepository interface {
	FindDueForRelease(ctx context.Context, now time.Time) ([]*contracts.AnalysisRecord, error)
	MarkReleased(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType) error
}

// ReleaseJob lifts the hold on completed records whose scheduled release time
// has arrived. Held records are served as inProgress until released.
type ReleaseJob struct {
	repo   ReleaseRepository
	logger *logger.Logger
}

// NewReleaseJob creates the scheduled-release job
func NewReleaseJob(repo ReleaseRepository, log *logger.Logger) *ReleaseJob {
	return &ReleaseJob{repo: repo, logger: log}
}

// Name returns the job name
func (j *ReleaseJob) Name() string {
	return "scheduled_release"
}

// Schedule runs every 5 minutes during weekday market hours (KST)
func (j *ReleaseJob) Schedule() string {
	return "0 */5 8-16 * * 1-5"
}

// Run releases every record whose hold has expired
func (j *ReleaseJob) Run(ctx context.Context) error {
	now := time.Now()
	due, err := j.repo.FindDueForRelease(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to find due releases: %w", err)
	}
	if len(due) == 0 {
		return nil
	}

	released := 0
	for _, rec := range due {
		if err := j.repo.MarkReleased(ctx, rec.InstrumentKey, rec.Type); err != nil {
			j.logger.WithError(err).WithField("instrument", rec.InstrumentKey).Error("Release failed")
			continue
		}
		released++
	}

	j.logger.WithFields(map[string]interface{}{
		"due":      len(due),
		"released": released,
	}).Info("Scheduled releases processed")

	return nil
}
