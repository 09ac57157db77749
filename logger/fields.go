package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging.
// Use these constants instead of raw strings.
const (
	// Identity and context
	FieldJob         = "job"
	FieldExecutionID = "execution_id"
	FieldItemID      = "item_id"
	FieldTitle       = "title"

	// Queues
	FieldQueue  = "queue"
	FieldOrigin = "origin"
	FieldScore  = "score"

	// Operations
	FieldOperation = "operation"
	FieldURL       = "url"
	FieldTopic     = "topic"

	// Timing
	FieldDurationMS = "duration_ms"
	FieldNextRun    = "next_run"
	FieldInterval   = "interval"

	// Errors
	FieldError     = "error"
	FieldErrorType = "error_type"
	FieldStack     = "stack"

	// Counts and sizes
	FieldCount     = "count"
	FieldSize      = "size"
	FieldBatchSize = "batch_size"
	FieldSkipped   = "skipped"

	// Status
	FieldStatus = "status"

	// Files and paths
	FieldPath = "path"

	FieldSymbol = "symbol" // stage glyph (꩜, ✿, ❀, ⊔, ...)
)

// Context keys for propagating logging context
type contextKey string

const jobKey contextKey = "logger_job"

// WithJob adds a job name to the context for logging
func WithJob(ctx context.Context, job string) context.Context {
	return context.WithValue(ctx, jobKey, job)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if job, ok := ctx.Value(jobKey).(string); ok && job != "" {
		fields = append(fields, FieldJob, job)
	}

	return fields
}

// FromContext returns base enriched with the fields carried by ctx.
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	base = OrGlobal(base)
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
