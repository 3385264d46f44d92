// Package worker serves processor tasks dispatched by the queue executor.
// It subscribes to the task subject in a queue group, builds the requested
// processor from its registry, runs it on a local inline executor and
// replies with the produced fields or the failure message.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/bus"
	"github.com/wehubfusion/Pythia/pkg/concurrency"
	"github.com/wehubfusion/Pythia/pkg/executor"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// DefaultQueue is the queue group workers join
const DefaultQueue = "pythia-workers"

// Config configures a Worker
type Config struct {
	// Subject defaults to executor.DefaultSubject
	Subject string

	// Queue defaults to DefaultQueue
	Queue string

	// NumWorkers sizes the local executor pool; defaults to runtime.NumCPU
	NumWorkers int

	// TaskTimeout bounds a single task
	TaskTimeout time.Duration
}

// Worker answers Tasks arriving on a bus
type Worker struct {
	bus      bus.Bus
	registry *processor.Registry
	exec     *executor.Inline
	config   Config
	logger   *zap.Logger
	tracer   trace.Tracer

	mu      sync.Mutex
	sub     bus.Subscription
	pending chan *bus.Request
	quit    chan struct{}
	wg      sync.WaitGroup

	processed atomic.Int64
	failed    atomic.Int64
}

// New creates a worker. limiter may be nil.
func New(b bus.Bus, reg *processor.Registry, config Config, limiter *concurrency.Limiter, logger *zap.Logger) (*Worker, error) {
	if b == nil {
		return nil, errors.New("bus cannot be nil")
	}
	if reg == nil {
		return nil, errors.New("registry cannot be nil")
	}
	if config.TaskTimeout <= 0 {
		return nil, errors.New("task timeout must be greater than 0")
	}
	if config.Subject == "" {
		config.Subject = executor.DefaultSubject
	}
	if config.Queue == "" {
		config.Queue = DefaultQueue
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &Worker{
		bus:      b,
		registry: reg,
		exec:     executor.NewInline(executor.InlineConfig{NumWorkers: config.NumWorkers}, limiter, logger),
		config:   config,
		logger:   logger,
		tracer:   otel.Tracer("pythia/worker"),
	}, nil
}

// Start launches the task goroutines and subscribes to the task subject.
// The subscription only queues requests; tasks run on one goroutine per
// pool worker, so a slow processor never holds up delivery.
func (w *Worker) Start() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.sub != nil {
		return nil
	}

	n := w.exec.Workers()
	pending := make(chan *bus.Request, n)
	quit := make(chan struct{})
	for i := 0; i < n; i++ {
		w.wg.Add(1)
		go w.serve(pending, quit)
	}

	sub, err := w.bus.Subscribe(w.config.Subject, w.config.Queue, func(ctx context.Context, req *bus.Request) {
		select {
		case pending <- req:
		case <-quit:
		}
	})
	if err != nil {
		close(quit)
		w.wg.Wait()
		return fmt.Errorf("failed to subscribe to %s: %w", w.config.Subject, err)
	}
	w.sub = sub
	w.pending = pending
	w.quit = quit

	w.logger.Info("Worker started",
		zap.String("subject", w.config.Subject),
		zap.String("queue", w.config.Queue),
		zap.Int("workers", n),
		zap.Strings("processors", w.registry.Names()))
	return nil
}

// Run starts the worker and blocks until ctx is done, then stops it.
func (w *Worker) Run(ctx context.Context) error {
	if err := w.Start(); err != nil {
		return err
	}
	<-ctx.Done()
	w.logger.Info("Worker stopped due to context cancellation")

	stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := w.Stop(stopCtx); err != nil {
		return err
	}
	return ctx.Err()
}

// Stop unsubscribes and waits for in-flight tasks. Queued requests that no
// goroutine picked up are left unanswered.
func (w *Worker) Stop(ctx context.Context) error {
	w.mu.Lock()
	sub, quit := w.sub, w.quit
	w.sub, w.quit, w.pending = nil, nil, nil
	w.mu.Unlock()

	if sub != nil {
		if err := sub.Unsubscribe(); err != nil {
			w.logger.Warn("Failed to unsubscribe", zap.Error(err))
		}
	}
	if quit != nil {
		close(quit)
		done := make(chan struct{})
		go func() {
			w.wg.Wait()
			close(done)
		}()
		select {
		case <-done:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return w.exec.Shutdown(ctx)
}

func (w *Worker) serve(pending <-chan *bus.Request, quit <-chan struct{}) {
	defer w.wg.Done()
	for {
		select {
		case req := <-pending:
			w.handle(context.Background(), req)
		case <-quit:
			return
		}
	}
}

// Stats returns how many tasks succeeded and failed.
func (w *Worker) Stats() (processed, failed int64) {
	return w.processed.Load(), w.failed.Load()
}

// handle serves one encoded Task. Undecodable payloads get no reply.
func (w *Worker) handle(ctx context.Context, req *bus.Request) {
	var task executor.Task
	if err := json.Unmarshal(req.Data, &task); err != nil {
		w.logger.Error("Discarding undecodable task", zap.Error(err))
		return
	}

	reply := w.execute(ctx, task)
	out, err := json.Marshal(reply)
	if err != nil {
		// fields that cannot be encoded are reported as a failure
		w.logger.Error("Failed to encode reply", zap.String("task_id", task.ID), zap.Error(err))
		out, err = json.Marshal(executor.Reply{TaskID: task.ID, Error: fmt.Sprintf("failed to encode reply: %v", err)})
		if err != nil {
			return
		}
	}
	if err := req.Respond(out); err != nil {
		w.logger.Warn("Failed to send reply", zap.String("task_id", task.ID), zap.Error(err))
	}
}

func (w *Worker) execute(ctx context.Context, task executor.Task) executor.Reply {
	ec := processor.WithTraceID(task.TraceID, w.logger)
	logger := ec.Logger().With(
		zap.String("processor", task.Processor),
		zap.String("task_id", task.ID))

	ctx, span := w.tracer.Start(ctx, "worker.handleTask",
		trace.WithAttributes(
			attribute.String("task.id", task.ID),
			attribute.String("processor.name", task.Processor),
			attribute.String("trace_id", ec.TraceID()),
		))
	defer span.End()

	ctx, cancel := context.WithTimeout(ctx, w.config.TaskTimeout)
	defer cancel()

	start := time.Now()
	fail := func(err error) executor.Reply {
		w.failed.Add(1)
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("Task failed", zap.Duration("duration", time.Since(start)), zap.Error(err))
		return executor.Reply{TaskID: task.ID, Error: err.Error()}
	}

	p, err := w.registry.Create(task.Processor, task.Config)
	if err != nil {
		return fail(err)
	}
	if v := p.Descriptor().Version; task.Version != "" && v != task.Version {
		logger.Warn("Processor version differs from dispatcher",
			zap.String("requested", task.Version),
			zap.String("local", v))
	}

	fields, err := w.exec.Submit(ctx, p, task.Fields, ec)
	if err != nil {
		return fail(err)
	}

	w.processed.Add(1)
	span.SetStatus(codes.Ok, "task processed")
	logger.Debug("Task processed",
		zap.Duration("duration", time.Since(start)),
		zap.Strings("fields", fields.Keys()))
	return executor.Reply{TaskID: task.ID, Fields: fields}
}
