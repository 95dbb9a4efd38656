package contracts

import (
	"errors"
	"fmt"
	"time"
)

// ⭐ SSOT: 도메인 에러 타입 정의는 여기서만
// 모든 실패는 stage와 key 컨텍스트를 달고 보고됨

// ErrNotFound is returned by repositories when no record exists for a key
var ErrNotFound = errors.New("record not found")

// InsufficientDataError means required market inputs are missing.
// Terminal NO_TRADE/failed, not auto-retried.
type InsufficientDataError struct {
	Symbol  string
	Missing []string
}

func (e *InsufficientDataError) Error() string {
	return fmt.Sprintf("insufficient market data for %s: missing %v", e.Symbol, e.Missing)
}

// SchemaViolationError means a stage produced unparsable or malformed output
// after the one local repair attempt.
type SchemaViolationError struct {
	Stage Stage
	Cause error
	Raw   string // truncated raw content, for diagnostics
}

func (e *SchemaViolationError) Error() string {
	return fmt.Sprintf("stage %s produced malformed output: %v", e.Stage.ShortName(), e.Cause)
}

func (e *SchemaViolationError) Unwrap() error { return e.Cause }

// ExternalServiceError means a provider or the completion service failed
// (timeout, unavailable). The record is marked failed and is retryable on
// the next request.
type ExternalServiceError struct {
	Service string
	Stage   Stage
	Cause   error
}

func (e *ExternalServiceError) Error() string {
	return fmt.Sprintf("external service %s failed at %s: %v", e.Service, e.Stage.ShortName(), e.Cause)
}

func (e *ExternalServiceError) Unwrap() error { return e.Cause }

// QuotaExceededError is surfaced to the caller only; never persisted as a
// record failure.
type QuotaExceededError struct {
	UserID   string
	Limit    int
	ResetsAt time.Time
}

func (e *QuotaExceededError) Error() string {
	return fmt.Sprintf("quota exceeded for user %s: limit %d, resets at %s", e.UserID, e.Limit, e.ResetsAt.Format(time.RFC3339))
}

// IsInsufficientData reports whether err is an InsufficientDataError
func IsInsufficientData(err error) bool {
	var target *InsufficientDataError
	return errors.As(err, &target)
}

// IsSchemaViolation reports whether err is a SchemaViolationError
func IsSchemaViolation(err error) bool {
	var target *SchemaViolationError
	return errors.As(err, &target)
}

// IsExternalService reports whether err is an ExternalServiceError
func IsExternalService(err error) bool {
	var target *ExternalServiceError
	return errors.As(err, &target)
}

// IsQuotaExceeded reports whether err is a QuotaExceededError
func IsQuotaExceeded(err error) bool {
	var target *QuotaExceededError
	return errors.As(err, &target)
}
