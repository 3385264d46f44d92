package processor

import (
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ExecutionContext carries per-run state: a trace id, a logger annotated
// with it, and a scratch cache steps may use to share intermediate values.
// It lives for exactly one run.
type ExecutionContext struct {
	traceID string
	logger  *zap.Logger
	cache   map[string]any
	mu      sync.RWMutex
}

// NewExecutionContext creates a context with a fresh trace id.
func NewExecutionContext(logger *zap.Logger) *ExecutionContext {
	return newExecutionContext(NewTraceID(), logger)
}

// WithTraceID creates a context that reuses an existing trace id.
func WithTraceID(traceID string, logger *zap.Logger) *ExecutionContext {
	if traceID == "" {
		traceID = NewTraceID()
	}
	return newExecutionContext(traceID, logger)
}

func newExecutionContext(traceID string, logger *zap.Logger) *ExecutionContext {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExecutionContext{
		traceID: traceID,
		logger:  logger.With(zap.String("trace_id", traceID)),
		cache:   make(map[string]any),
	}
}

// NewTraceID returns 32 lowercase hex characters.
func NewTraceID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// TraceID returns the run's trace id.
func (ec *ExecutionContext) TraceID() string {
	return ec.traceID
}

// Logger returns the run's logger.
func (ec *ExecutionContext) Logger() *zap.Logger {
	return ec.logger
}

// WithLogger replaces the logger, keeping the trace_id annotation.
func (ec *ExecutionContext) WithLogger(logger *zap.Logger) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ec.logger = logger.With(zap.String("trace_id", ec.traceID))
}

// Get returns a cached value.
func (ec *ExecutionContext) Get(key string) (any, bool) {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	v, ok := ec.cache[key]
	return v, ok
}

// Set stores a value in the cache.
func (ec *ExecutionContext) Set(key string, value any) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	ec.cache[key] = value
}

// Delete removes a cached value.
func (ec *ExecutionContext) Delete(key string) {
	ec.mu.Lock()
	defer ec.mu.Unlock()
	delete(ec.cache, key)
}

// Len returns the number of cached values.
func (ec *ExecutionContext) Len() int {
	ec.mu.RLock()
	defer ec.mu.RUnlock()
	return len(ec.cache)
}
