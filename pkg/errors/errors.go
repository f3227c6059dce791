package errors

import (
	stderrors "errors"
	"fmt"
	"time"
)

// Error codes
const (
	CodeAppError         = "APP_ERROR"
	CodeAPIError         = "API_ERROR"
	CodeValidation       = "VALIDATION_ERROR"
	CodeCache            = "CACHE_ERROR"
	CodeStore            = "STORE_ERROR"
	CodePublish          = "PUBLISH_ERROR"
	CodeQuota            = "QUOTA_EXCEEDED"
	CodeNoCurrentData    = "NO_CURRENT_DATA"
	CodeNoBaselineData   = "NO_BASELINE_DATA"
	CodeDuplicateKey     = "DUPLICATE_SNAPSHOT_KEY"
	CodeSnapshotNotFound = "SNAPSHOT_NOT_FOUND"
	CodeMetadataMissing  = "METADATA_MISSING"
)

// Sentinels for errors.Is checks across package boundaries.
var (
	ErrNoCurrentData        = stderrors.New("no snapshots in current window, fetch today's data first")
	ErrNoBaselineData       = stderrors.New("no snapshots in previous window")
	ErrDuplicateSnapshotKey = stderrors.New("snapshot already exists for video and timestamp")
	ErrSnapshotNotFound     = stderrors.New("snapshot not found")
	ErrMetadataMissing      = stderrors.New("video metadata missing")
	ErrUpstreamPublish      = stderrors.New("upstream publish failed")
)

type AppError struct {
	Message    string
	Code       string
	StatusCode int
	Context    map[string]any
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func NewAppError(message, code string, statusCode int, context map[string]any) *AppError {
	return &AppError{
		Message:    message,
		Code:       code,
		StatusCode: statusCode,
		Context:    context,
	}
}

func (e *AppError) WithCause(cause error) *AppError {
	e.Cause = cause
	return e
}

// App returns the AppError itself; the typed wrappers inherit it by embedding.
func (e *AppError) App() *AppError {
	return e
}

type appCarrier interface {
	App() *AppError
}

// CodeOf returns the code of the first AppError in the chain, or "" if none.
func CodeOf(err error) string {
	var carrier appCarrier
	if stderrors.As(err, &carrier) {
		return carrier.App().Code
	}
	return ""
}

// StatusOf returns the HTTP status of the first AppError in the chain, or 0.
func StatusOf(err error) int {
	var carrier appCarrier
	if stderrors.As(err, &carrier) {
		return carrier.App().StatusCode
	}
	return 0
}

type APIError struct {
	*AppError
}

func NewAPIError(message string, statusCode int, context map[string]any) *APIError {
	return &APIError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeAPIError,
			StatusCode: statusCode,
			Context:    context,
		},
	}
}

type ValidationError struct {
	*AppError
	Field string
	Value any
}

func NewValidationError(message, field string, value any) *ValidationError {
	return &ValidationError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeValidation,
			StatusCode: 400,
			Context: map[string]any{
				"field": field,
				"value": value,
			},
		},
		Field: field,
		Value: value,
	}
}

type CacheError struct {
	*AppError
	Operation string
	Key       string
}

func NewCacheError(message, operation, key string, cause error) *CacheError {
	return &CacheError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeCache,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
				"key":       key,
			},
			Cause: cause,
		},
		Operation: operation,
		Key:       key,
	}
}

// StoreError wraps persistence failures. Connectivity problems surface as
// StoreError and are fatal to the calling cycle.
type StoreError struct {
	*AppError
	Operation string
}

func NewStoreError(message, operation string, cause error) *StoreError {
	return &StoreError{
		AppError: &AppError{
			Message:    message,
			Code:       CodeStore,
			StatusCode: 500,
			Context: map[string]any{
				"operation": operation,
			},
			Cause: cause,
		},
		Operation: operation,
	}
}

type PublishError struct {
	*AppError
	Platform string
}

func NewPublishError(platform string, cause error) *PublishError {
	return &PublishError{
		AppError: &AppError{
			Message:    fmt.Sprintf("publish to %s failed", platform),
			Code:       CodePublish,
			StatusCode: 502,
			Context: map[string]any{
				"platform": platform,
			},
			Cause: cause,
		},
		Platform: platform,
	}
}

// Is lets errors.Is(err, ErrUpstreamPublish) match any PublishError.
func (e *PublishError) Is(target error) bool {
	return target == ErrUpstreamPublish
}

type QuotaExceededError struct {
	*AppError
	Used      int
	Limit     int
	Requested int
	ResetTime time.Time
}

func NewQuotaExceededError(used, limit, requested int, resetTime time.Time) *QuotaExceededError {
	return &QuotaExceededError{
		AppError: &AppError{
			Message: fmt.Sprintf("YouTube API quota exceeded: used %d/%d (requested %d more), resets at %s",
				used, limit, requested, resetTime.Format(time.RFC3339)),
			Code:       CodeQuota,
			StatusCode: 429,
		},
		Used:      used,
		Limit:     limit,
		Requested: requested,
		ResetTime: resetTime,
	}
}
