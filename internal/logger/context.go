package logger

import (
	"context"
	"time"
)

// contextKey is a private type for context keys to avoid collisions
type contextKey struct{}

// logContextKey is the key for LogContext in context.Context
var logContextKey = contextKey{}

// LogContext holds request-scoped logging context
type LogContext struct {
	BuildID   string    // Compiler run id producing the served assets
	ChunkID   string    // Chunk the operation concerns
	RequestID string    // Dev server HTTP request id
	Command   string    // CLI command name
	StartTime time.Time // For duration calculation
}

// WithContext returns a new context with the given LogContext
func WithContext(ctx context.Context, lc *LogContext) context.Context {
	return context.WithValue(ctx, logContextKey, lc)
}

// FromContext retrieves the LogContext from context, or nil if not present
func FromContext(ctx context.Context) *LogContext {
	if ctx == nil {
		return nil
	}
	lc, _ := ctx.Value(logContextKey).(*LogContext)
	return lc
}

// NewLogContext creates a new LogContext with the start time set
func NewLogContext() *LogContext {
	return &LogContext{StartTime: time.Now()}
}

// Clone creates a copy of the LogContext
func (lc *LogContext) Clone() *LogContext {
	if lc == nil {
		return nil
	}
	clone := *lc
	return &clone
}

// WithChunk returns a copy with the chunk id set
func (lc *LogContext) WithChunk(id string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.ChunkID = id
	}
	return clone
}

// WithBuild returns a copy with the build id set
func (lc *LogContext) WithBuild(id string) *LogContext {
	clone := lc.Clone()
	if clone != nil {
		clone.BuildID = id
	}
	return clone
}

// DurationMs returns the duration since StartTime in milliseconds
func (lc *LogContext) DurationMs() float64 {
	if lc == nil || lc.StartTime.IsZero() {
		return 0
	}
	return float64(time.Since(lc.StartTime).Microseconds()) / 1000.0
}
