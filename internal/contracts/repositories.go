package contracts

import (
	"context"
	"time"
)

// ⭐ SSOT: Repository 인터페이스 정의는 여기서만

// AnalysisRepository persists AnalysisRecords.
// TryStartPending is the single-flight primitive: exactly one caller per key
// may observe started=true while a run is in flight.
type AnalysisRepository interface {
	// FindByKey returns the current record for a key, or ErrNotFound
	FindByKey(ctx context.Context, instrumentKey string, analysisType AnalysisType) (*AnalysisRecord, error)

	// TryStartPending atomically upserts a pending record for the key.
	// Returns (true, rec) when this caller won the slot, or
	// (false, existing) when a reusable or in-flight record already exists.
	TryStartPending(ctx context.Context, rec *AnalysisRecord) (bool, *AnalysisRecord, error)

	// SetInProgress transitions pending → in_progress
	SetInProgress(ctx context.Context, instrumentKey string, analysisType AnalysisType) error

	// UpdateProgress writes progress for an in-flight record
	UpdateProgress(ctx context.Context, instrumentKey string, analysisType AnalysisType, p Progress) error

	// Complete stores the final data and marks the record completed
	Complete(ctx context.Context, rec *AnalysisRecord) error

	// Fail marks the record failed with the causing message
	Fail(ctx context.Context, instrumentKey string, analysisType AnalysisType, reason string) error
}

// UsageRepository appends usage-ledger rows. Append failures must never fail
// the main request path; callers log and continue.
type UsageRepository interface {
	Append(ctx context.Context, entry *UsageEntry) error
}

// QuotaUsage is the outcome of one atomic quota store operation
type QuotaUsage struct {
	Counted        bool // instrument was newly added to the window set
	AlreadyPresent bool // instrument was already in the window set
	Used           int  // distinct instruments after the operation
}

// QuotaStore tracks distinct instruments per (user, window).
// Record is atomic: it adds the instrument only when it is already present
// or the set is below limit.
type QuotaStore interface {
	Record(ctx context.Context, userID, windowKey, instrumentKey string, limit int, ttl time.Duration) (QuotaUsage, error)

	// Peek returns the current usage without modifying the set
	Peek(ctx context.Context, userID, windowKey, instrumentKey string) (QuotaUsage, error)
}
