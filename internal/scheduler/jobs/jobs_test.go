package jobs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/pythia/backend/internal/contracts"
	"github.com/wonny/pythia/backend/pkg/config"
	"github.com/wonny/pythia/backend/pkg/logger"
)

var testLog = logger.New(&config.Config{LogLevel: "error"})

type fakeReleaseRepo struct {
	due      []*contracts.AnalysisRecord
	released []string
	markErr  error
}

func (f *fakeReleaseRepo) FindDueForRelease(_ context.Context, _ time.Time) ([]*contracts.AnalysisRecord, error) {
	return f.due, nil
}

func (f *fakeReleaseRepo) MarkReleased(_ context.Context, instrumentKey string, _ contracts.AnalysisType) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.released = append(f.released, instrumentKey)
	return nil
}

func TestReleaseJob_ReleasesDueRecords(t *testing.T) {
	repo := &fakeReleaseRepo{due: []*contracts.AnalysisRecord{
		{InstrumentKey: "KRX|005930", Type: contracts.AnalysisSwing},
		{InstrumentKey: "KRX|000660", Type: contracts.AnalysisSwing},
	}}
	job := NewReleaseJob(repo, testLog)

	require.NoError(t, job.Run(context.Background()))
	assert.Equal(t, []string{"KRX|005930", "KRX|000660"}, repo.released)
}

func TestReleaseJob_NothingDue(t *testing.T) {
	repo := &fakeReleaseRepo{}
	job := NewReleaseJob(repo, testLog)

	require.NoError(t, job.Run(context.Background()))
	assert.Empty(t, repo.released)
}

func TestReleaseJob_MarkFailureDoesNotAbort(t *testing.T) {
	repo := &fakeReleaseRepo{
		due:     []*contracts.AnalysisRecord{{InstrumentKey: "KRX|005930", Type: contracts.AnalysisSwing}},
		markErr: errors.New("db down"),
	}
	job := NewReleaseJob(repo, testLog)

	// 개별 레코드 실패는 작업 전체를 실패시키지 않음
	require.NoError(t, job.Run(context.Background()))
}

type fakeCleanupRepo struct {
	cutoff  time.Time
	deleted int64
	err     error
}

func (f *fakeCleanupRepo) DeleteExpiredFailed(_ context.Context, before time.Time) (int64, error) {
	f.cutoff = before
	return f.deleted, f.err
}

func TestCleanupJob_UsesRetentionCutoff(t *testing.T) {
	repo := &fakeCleanupRepo{deleted: 4}
	job := NewCleanupJob(repo, 48*time.Hour, testLog)

	require.NoError(t, job.Run(context.Background()))
	assert.WithinDuration(t, time.Now().Add(-48*time.Hour), repo.cutoff, time.Minute)
}

func TestCleanupJob_DefaultRetention(t *testing.T) {
	repo := &fakeCleanupRepo{}
	job := NewCleanupJob(repo, 0, testLog)

	require.NoError(t, job.Run(context.Background()))
	assert.WithinDuration(t, time.Now().Add(-72*time.Hour), repo.cutoff, time.Minute)
}

func TestCleanupJob_PropagatesError(t *testing.T) {
	repo := &fakeCleanupRepo{err: errors.New("db down")}
	job := NewCleanupJob(repo, time.Hour, testLog)

	assert.Error(t, job.Run(context.Background()))
}
