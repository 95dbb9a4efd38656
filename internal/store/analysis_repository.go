package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/wonny/pythia/backend/internal/contracts"
)

// AnalysisRepository persists analysis records in Postgres.
// ⭐ SSOT: analysis_records 테이블 접근은 여기서만
//
// TryStartPending은 단일 비행 기본 연산: 조건부 upsert가 원자적이라
// 같은 키로 동시에 들어와도 파이프라인은 하나만 시작됨
type AnalysisRepository struct {
	pool *pgxpool.Pool
}

// NewAnalysisRepository creates the Postgres-backed analysis repository
func NewAnalysisRepository(pool *pgxpool.Pool) *AnalysisRepository {
	return &AnalysisRepository{pool: pool}
}

const recordColumns = `
	instrument_key, analysis_type, stock_name, stock_symbol, status,
	current_price, progress, analysis_data, failure_reason,
	valid_until, scheduled_release_at, created_at, updated_at
`

// FindByKey returns the current record for a key, or contracts.ErrNotFound
func (r *AnalysisRepository) FindByKey(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType) (*contracts.AnalysisRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM analysis_records
		WHERE instrument_key = $1 AND analysis_type = $2
	`

	rec, err := scanRecord(r.pool.QueryRow(ctx, query, instrumentKey, string(analysisType)))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, contracts.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find analysis record: %w", err)
	}
	return rec, nil
}

// TryStartPending atomically claims the pipeline slot for a key. The upsert
// only fires when no record exists, the previous run failed, or a completed
// record has expired; otherwise the existing record is returned untouched.
func (r *AnalysisRepository) TryStartPending(ctx context.Context, rec *contracts.AnalysisRecord) (bool, *contracts.AnalysisRecord, error) {
	progressJSON, err := json.Marshal(rec.Progress)
	if err != nil {
		return false, nil, fmt.Errorf("failed to marshal progress: %w", err)
	}

	now := time.Now()
	query := `
		INSERT INTO analysis_records (
			instrument_key, analysis_type, stock_name, stock_symbol, status,
			current_price, progress, analysis_data, failure_reason,
			valid_until, scheduled_release_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, 'pending', $5, $6, NULL, '', $7, NULL, $8, $8)
		ON CONFLICT (instrument_key, analysis_type) DO UPDATE SET
			stock_name = EXCLUDED.stock_name,
			stock_symbol = EXCLUDED.stock_symbol,
			status = 'pending',
			current_price = EXCLUDED.current_price,
			progress = EXCLUDED.progress,
			analysis_data = NULL,
			failure_reason = '',
			valid_until = EXCLUDED.valid_until,
			scheduled_release_at = NULL,
			updated_at = EXCLUDED.updated_at
		WHERE analysis_records.status = 'failed'
		   OR (analysis_records.status = 'completed' AND analysis_records.valid_until <= $8)
		RETURNING ` + recordColumns

	claimed, err := scanRecord(r.pool.QueryRow(ctx, query,
		rec.InstrumentKey, string(rec.Type), rec.StockName, rec.StockSymbol,
		rec.CurrentPrice, progressJSON, rec.ValidUntil, now,
	))
	if err == nil {
		return true, claimed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, nil, fmt.Errorf("failed to claim pending slot: %w", err)
	}

	// Upsert declined: an in-flight or reusable record holds the key
	existing, err := r.FindByKey(ctx, rec.InstrumentKey, rec.Type)
	if err != nil {
		return false, nil, err
	}
	return false, existing, nil
}

// SetInProgress transitions pending → in_progress
func (r *AnalysisRepository) SetInProgress(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType) error {
	query := `
		UPDATE analysis_records
		SET status = 'in_progress', updated_at = $3
		WHERE instrument_key = $1 AND analysis_type = $2 AND status = 'pending'
	`

	tag, err := r.pool.Exec(ctx, query, instrumentKey, string(analysisType), time.Now())
	if err != nil {
		return fmt.Errorf("failed to set in_progress: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record %s:%s is not pending", instrumentKey, analysisType)
	}
	return nil
}

// UpdateProgress writes progress for an in-flight record
func (r *AnalysisRepository) UpdateProgress(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType, p contracts.Progress) error {
	progressJSON, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	query := `
		UPDATE analysis_records
		SET progress = $3, updated_at = $4
		WHERE instrument_key = $1 AND analysis_type = $2
		  AND status IN ('pending', 'in_progress')
	`

	if _, err := r.pool.Exec(ctx, query, instrumentKey, string(analysisType), progressJSON, time.Now()); err != nil {
		return fmt.Errorf("failed to update progress: %w", err)
	}
	return nil
}

// Complete stores the final data and marks the record completed
func (r *AnalysisRepository) Complete(ctx context.Context, rec *contracts.AnalysisRecord) error {
	dataJSON, err := json.Marshal(rec.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal analysis data: %w", err)
	}
	progressJSON, err := json.Marshal(rec.Progress)
	if err != nil {
		return fmt.Errorf("failed to marshal progress: %w", err)
	}

	query := `
		UPDATE analysis_records
		SET status = 'completed',
		    current_price = $3,
		    progress = $4,
		    analysis_data = $5,
		    failure_reason = '',
		    valid_until = $6,
		    scheduled_release_at = $7,
		    updated_at = $8
		WHERE instrument_key = $1 AND analysis_type = $2
	`

	tag, err := r.pool.Exec(ctx, query,
		rec.InstrumentKey, string(rec.Type), rec.CurrentPrice,
		progressJSON, dataJSON, rec.ValidUntil, rec.ScheduledReleaseAt, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to complete record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return contracts.ErrNotFound
	}
	return nil
}

// Fail marks the record failed with the causing message
func (r *AnalysisRepository) Fail(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType, reason string) error {
	query := `
		UPDATE analysis_records
		SET status = 'failed', failure_reason = $3, updated_at = $4
		WHERE instrument_key = $1 AND analysis_type = $2
	`

	if _, err := r.pool.Exec(ctx, query, instrumentKey, string(analysisType), reason, time.Now()); err != nil {
		return fmt.Errorf("failed to mark record failed: %w", err)
	}
	return nil
}

// FindDueForRelease returns completed records whose scheduled release time
// has arrived and has not been cleared yet.
func (r *AnalysisRepository) FindDueForRelease(ctx context.Context, now time.Time) ([]*contracts.AnalysisRecord, error) {
	query := `
		SELECT ` + recordColumns + `
		FROM analysis_records
		WHERE status = 'completed'
		  AND scheduled_release_at IS NOT NULL
		  AND scheduled_release_at <= $1
		ORDER BY scheduled_release_at
	`

	rows, err := r.pool.Query(ctx, query, now)
	if err != nil {
		return nil, fmt.Errorf("failed to query due releases: %w", err)
	}
	defer rows.Close()

	var records []*contracts.AnalysisRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// MarkReleased clears the scheduled release hold on a record
func (r *AnalysisRepository) MarkReleased(ctx context.Context, instrumentKey string, analysisType contracts.AnalysisType) error {
	query := `
		UPDATE analysis_records
		SET scheduled_release_at = NULL, updated_at = $3
		WHERE instrument_key = $1 AND analysis_type = $2
	`

	if _, err := r.pool.Exec(ctx, query, instrumentKey, string(analysisType), time.Now()); err != nil {
		return fmt.Errorf("failed to mark record released: %w", err)
	}
	return nil
}

// DeleteExpiredFailed removes failed records older than the retention cutoff.
// 야간 정리 작업에서 호출
func (r *AnalysisRepository) DeleteExpiredFailed(ctx context.Context, before time.Time) (int64, error) {
	query := `
		DELETE FROM analysis_records
		WHERE status = 'failed' AND updated_at < $1
	`

	tag, err := r.pool.Exec(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("failed to delete expired records: %w", err)
	}
	return tag.RowsAffected(), nil
}

func scanRecord(row pgx.Row) (*contracts.AnalysisRecord, error) {
	var rec contracts.AnalysisRecord
	var analysisType string
	var status string
	var progressJSON []byte
	var dataJSON []byte

	err := row.Scan(
		&rec.InstrumentKey, &analysisType, &rec.StockName, &rec.StockSymbol, &status,
		&rec.CurrentPrice, &progressJSON, &dataJSON, &rec.FailureReason,
		&rec.ValidUntil, &rec.ScheduledReleaseAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	rec.Type = contracts.AnalysisType(analysisType)
	rec.Status = contracts.AnalysisStatus(status)

	if len(progressJSON) > 0 {
		if err := json.Unmarshal(progressJSON, &rec.Progress); err != nil {
			return nil, fmt.Errorf("failed to unmarshal progress: %w", err)
		}
	}
	if len(dataJSON) > 0 && string(dataJSON) != "null" {
		rec.Data = &contracts.AnalysisData{}
		if err := json.Unmarshal(dataJSON, rec.Data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal analysis data: %w", err)
		}
	}

	return &rec, nil
}
