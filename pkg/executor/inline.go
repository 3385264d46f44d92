package executor

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/concurrency"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// InlineConfig configures the inline worker pool
type InlineConfig struct {
	// NumWorkers is the pool size; defaults to runtime.NumCPU
	NumWorkers int

	// BufferSize is the job queue capacity; defaults to NumWorkers
	BufferSize int
}

// Inline runs processors on a fixed pool of worker goroutines. A limiter,
// when set, bounds how many steps execute at once across every pool that
// shares it.
type Inline struct {
	config  InlineConfig
	limiter *concurrency.Limiter
	jobs    chan inlineJob
	wg      sync.WaitGroup
	logger  *zap.Logger

	mu     sync.RWMutex
	closed bool

	processed atomic.Int64
	errors    atomic.Int64
}

type inlineJob struct {
	ctx   context.Context
	p     processor.Processor
	bag   article.FieldBag
	ec    *processor.ExecutionContext
	reply chan inlineResult
}

type inlineResult struct {
	fields article.FieldBag
	err    error
}

var _ Executor = (*Inline)(nil)

// NewInline creates and starts an inline executor. limiter and logger may be nil.
func NewInline(config InlineConfig, limiter *concurrency.Limiter, logger *zap.Logger) *Inline {
	if config.NumWorkers <= 0 {
		config.NumWorkers = runtime.NumCPU()
	}
	if config.BufferSize <= 0 {
		config.BufferSize = config.NumWorkers
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	e := &Inline{
		config:  config,
		limiter: limiter,
		jobs:    make(chan inlineJob, config.BufferSize),
		logger:  logger,
	}

	logger.Debug("starting inline executor",
		zap.Int("workers", config.NumWorkers),
		zap.Int("buffer_size", config.BufferSize))

	for i := 0; i < config.NumWorkers; i++ {
		e.wg.Add(1)
		go e.worker(i)
	}
	return e
}

// Submit hands a snapshot of bag to a worker and waits for the result or
// for ctx to end.
func (e *Inline) Submit(ctx context.Context, p processor.Processor, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	if err := ctx.Err(); err != nil {
		return nil, cancelled(ctx)
	}

	job := inlineJob{
		ctx:   ctx,
		p:     p,
		bag:   bag.Clone(),
		ec:    ec,
		reply: make(chan inlineResult, 1),
	}

	e.mu.RLock()
	if e.closed {
		e.mu.RUnlock()
		return nil, pyerrors.ErrExecutorClosed
	}
	select {
	case e.jobs <- job:
		e.mu.RUnlock()
	case <-ctx.Done():
		e.mu.RUnlock()
		return nil, cancelled(ctx)
	}

	select {
	case res := <-job.reply:
		return res.fields, res.err
	case <-ctx.Done():
		return nil, cancelled(ctx)
	}
}

// worker is a single worker goroutine.
func (e *Inline) worker(id int) {
	defer e.wg.Done()

	for job := range e.jobs {
		res := e.processJob(job)
		if res.err != nil {
			e.errors.Add(1)
		} else {
			e.processed.Add(1)
		}
		job.reply <- res
	}

	e.logger.Debug("worker stopping, job channel closed", zap.Int("worker_id", id))
}

// processJob runs one processor with panic recovery.
func (e *Inline) processJob(job inlineJob) (res inlineResult) {
	if job.ctx.Err() != nil {
		return inlineResult{err: cancelled(job.ctx)}
	}

	if e.limiter != nil {
		if err := e.limiter.Acquire(job.ctx); err != nil {
			if job.ctx.Err() != nil {
				return inlineResult{err: cancelled(job.ctx)}
			}
			return inlineResult{err: pyerrors.Execution(err)}
		}
		defer e.limiter.Release()
	}

	name := job.p.Descriptor().Name
	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("processor panicked",
				zap.String("processor", name),
				zap.Any("panic", r))
			res = inlineResult{err: pyerrors.Execution(fmt.Errorf("panic in %s: %v", name, r))}
			if e.limiter != nil {
				e.limiter.Record(res.err)
			}
		}
	}()

	fields, err := job.p.Run(job.ctx, job.bag, job.ec)
	if e.limiter != nil {
		e.limiter.Record(err)
	}
	if err != nil {
		if job.ctx.Err() != nil {
			return inlineResult{err: cancelled(job.ctx)}
		}
		return inlineResult{err: pyerrors.Execution(err)}
	}
	if fields == nil {
		fields = article.FieldBag{}
	}
	return inlineResult{fields: fields}
}

// Shutdown stops accepting work and waits for queued jobs to finish or ctx to end.
func (e *Inline) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		close(e.jobs)
	}
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("inline executor shutdown: %w", ctx.Err())
	}
}

// Stats returns the current processing statistics.
func (e *Inline) Stats() (processed, errors int64) {
	return e.processed.Load(), e.errors.Load()
}

// Workers returns the pool size.
func (e *Inline) Workers() int {
	return e.config.NumWorkers
}
