package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wonny/pythia/backend/internal/contracts"
)

// MemoryAnalysisRepository is a process-local AnalysisRepository for tests
// and dev runs without Postgres. Postgres 구현과 같은 단일 비행 의미론
type MemoryAnalysisRepository struct {
	mu      sync.Mutex
	records map[string]*contracts.AnalysisRecord
}

// NewMemoryAnalysisRepository creates an in-memory analysis repository
func NewMemoryAnalysisRepository() *MemoryAnalysisRepository {
	return &MemoryAnalysisRepository{records: make(map[string]*contracts.AnalysisRecord)}
}

func recordKey(instrumentKey string, analysisType contracts.AnalysisType) string {
	return instrumentKey + ":" + string(analysisType)
}

func copyRecord(rec *contracts.AnalysisRecord) *contracts.AnalysisRecord {
	cp := *rec
	if rec.Data != nil {
		data := *rec.Data
		cp.Data = &data
	}
	if rec.ScheduledReleaseAt != nil {
		t := *rec.ScheduledReleaseAt
		cp.ScheduledReleaseAt = &t
	}
	return &cp
}

// FindByKey returns the current record for a key, or contracts.ErrNotFound
func (r *MemoryAnalysisRepository) FindByKey(_ context.Context, instrumentKey string, analysisType contracts.AnalysisType) (*contracts.AnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[recordKey(instrumentKey, analysisType)]
	if !ok {
		return nil, contracts.ErrNotFound
	}
	return copyRecord(rec), nil
}

// TryStartPending claims the pipeline slot under one lock
func (r *MemoryAnalysisRepository) TryStartPending(_ context.Context, rec *contracts.AnalysisRecord) (bool, *contracts.AnalysisRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey(rec.InstrumentKey, rec.Type)
	now := time.Now()

	existing, ok := r.records[key]
	if ok {
		claimable := existing.Status == contracts.StatusFailed ||
			(existing.Status == contracts.StatusCompleted && !existing.ValidUntil.After(now))
		if !claimable {
			return false, copyRecord(existing), nil
		}
	}

	pending := copyRecord(rec)
	pending.Status = contracts.StatusPending
	pending.Data = nil
	pending.FailureReason = ""
	pending.ScheduledReleaseAt = nil
	if ok {
		pending.CreatedAt = existing.CreatedAt
	} else {
		pending.CreatedAt = now
	}
	pending.UpdatedAt = now

	r.records[key] = pending
	return true, copyRecord(pending), nil
}

// SetInProgress transitions pending → in_progress
func (r *MemoryAnalysisRepository) SetInProgress(_ context.Context, instrumentKey string, analysisType contracts.AnalysisType) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[recordKey(instrumentKey, analysisType)]
	if !ok || rec.Status != contracts.StatusPending {
		return fmt.Errorf("record %s:%s is not pending", instrumentKey, analysisType)
	}
	rec.Status = contracts.StatusInProgress
	rec.UpdatedAt = time.Now()
	return nil
}

// UpdateProgress writes progress for an in-flight record
func (r *MemoryAnalysisRepository) UpdateProgress(_ context.Context, instrumentKey string, analysisType contracts.AnalysisType, p contracts.Progress) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[recordKey(instrumentKey, analysisType)]
	if !ok {
		return contracts.ErrNotFound
	}
	if rec.Status.IsTerminal() {
		return nil
	}
	rec.Progress = p
	rec.UpdatedAt = time.Now()
	return nil
}

// Complete stores the final data and marks the record completed
func (r *MemoryAnalysisRepository) Complete(_ context.Context, rec *contracts.AnalysisRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	key := recordKey(rec.InstrumentKey, rec.Type)
	stored, ok := r.records[key]
	if !ok {
		return contracts.ErrNotFound
	}

	done := copyRecord(rec)
	done.Status = contracts.StatusCompleted
	done.FailureReason = ""
	done.CreatedAt = stored.CreatedAt
	done.UpdatedAt = time.Now()
	r.records[key] = done
	return nil
}

// Fail marks the record failed with the causing message
func (r *MemoryAnalysisRepository) Fail(_ context.Context, instrumentKey string, analysisType contracts.AnalysisType, reason string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rec, ok := r.records[recordKey(instrumentKey, analysisType)]
	if !ok {
		return contracts.ErrNotFound
	}
	rec.Status = contracts.StatusFailed
	rec.FailureReason = reason
	rec.UpdatedAt = time.Now()
	return nil
}
