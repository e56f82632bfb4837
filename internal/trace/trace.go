package trace

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"
)

// ContextKey type for context keys
type ContextKey string

const (
	// TraceIDKey is the context key for the trace ID
	TraceIDKey ContextKey = "trace_id"
)

// Recorder traces handled updates and keeps running totals.
type Recorder struct {
	total    atomic.Int64
	failed   atomic.Int64
	lastUsec atomic.Int64
}

// Metrics is a snapshot of a Recorder.
type Metrics struct {
	TotalUpdates    int64
	FailedUpdates   int64
	LastHandleMicro int64
}

// NewRecorder creates a new recorder
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Start tags ctx with a fresh trace ID and returns a function that logs the
// outcome once the update has been handled.
func (r *Recorder) Start(ctx context.Context, logger *slog.Logger, attrs ...any) (context.Context, func(error)) {
	start := time.Now()
	id := NewID()
	ctx = context.WithValue(ctx, TraceIDKey, id)

	logger = logger.With(append([]any{"trace_id", id}, attrs...)...)
	logger.DebugContext(ctx, "Update received")

	return ctx, func(err error) {
		duration := time.Since(start)
		r.total.Add(1)
		r.lastUsec.Store(duration.Microseconds())

		level := slog.LevelInfo
		if err != nil {
			r.failed.Add(1)
			level = slog.LevelError
		}
		args := []any{
			"duration_ms", duration.Milliseconds(),
			"success", err == nil,
		}
		if err != nil {
			args = append(args, "error", err)
		}
		logger.Log(ctx, level, "Update handled", args...)
	}
}

// Metrics returns current totals
func (r *Recorder) Metrics() Metrics {
	return Metrics{
		TotalUpdates:    r.total.Load(),
		FailedUpdates:   r.failed.Load(),
		LastHandleMicro: r.lastUsec.Load(),
	}
}

// NewID creates a unique trace ID
func NewID() string {
	bytes := make([]byte, 8)
	if _, err := rand.Read(bytes); err != nil {
		return fmt.Sprintf("upd_%d", time.Now().UnixNano())
	}
	return "upd_" + hex.EncodeToString(bytes)
}

// ID extracts the trace ID from context
func ID(ctx context.Context) string {
	if id, ok := ctx.Value(TraceIDKey).(string); ok {
		return id
	}
	return ""
}
