package log

import (
	"context"
	"log/slog"
)

// ContextKey type for context keys
type ContextKey string

const (
	// LoggerContextKey is the context key for the logger
	LoggerContextKey ContextKey = "logger"
)

// WithContext stores logger in ctx.
func WithContext(ctx context.Context, logger *Logger) context.Context {
	return context.WithValue(ctx, LoggerContextKey, logger)
}

// FromContext extracts a logger from the context
func FromContext(ctx context.Context) *Logger {
	if logger, ok := ctx.Value(LoggerContextKey).(*Logger); ok {
		return logger
	}
	return &Logger{
		Logger:    slog.Default(),
		component: "unknown",
	}
}

// StructuredLogger provides structured logging methods with context awareness
type StructuredLogger struct {
	logger *Logger
}

// NewStructuredLogger creates a new structured logger
func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{
		logger: logger,
	}
}

// LogExpenseRecorded logs a newly stored expense
func (sl *StructuredLogger) LogExpenseRecorded(ctx context.Context, chatID, id int64, amount string) {
	fields := NewFields().
		WithChat(chatID).
		WithExpense(id, amount).
		WithOperation(OpRecord)

	sl.logger.InfoContext(ctx, "Expense recorded", fields.ToSlice()...)
}

// LogCategoryAttached logs a label appended to an expense
func (sl *StructuredLogger) LogCategoryAttached(ctx context.Context, chatID, id int64, label string) {
	fields := NewFields().
		WithChat(chatID).
		WithOperation(OpAttach)
	fields[FieldExpenseID] = id
	fields[FieldCategory] = label

	sl.logger.InfoContext(ctx, "Category attached", fields.ToSlice()...)
}

// LogReportSent logs a completed report
func (sl *StructuredLogger) LogReportSent(ctx context.Context, chatID int64, window, start, end string, days, count int, total string) {
	fields := NewFields().
		WithChat(chatID).
		WithRange(window, start, end).
		WithOperation(OpReport)
	fields[FieldDays] = days
	fields[FieldCount] = count
	fields[FieldTotal] = total

	sl.logger.InfoContext(ctx, "Report sent", fields.ToSlice()...)
}

// LogError logs an error with structured context
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	allFields := fields.
		WithError(err).
		WithOperation(operation)

	sl.logger.ErrorContext(ctx, msg, allFields.ToSlice()...)
}
