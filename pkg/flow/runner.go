// Package flow runs a sequence of processor steps over one article at a
// time. Each step is gated on the fields it requires, submitted through an
// executor, and merged into the article's field bag. A failing step is
// recorded in the result and never stops the run; only a bad flow
// definition does.
package flow

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/concurrency"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/executor"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// StepFailure describes one failed step
type StepFailure struct {
	ArticleID string
	Processor string
	TraceID   string
	Err       error
}

// FailureHook is called for every step that fails while running. Steps
// skipped for missing fields are not reported.
type FailureHook func(ctx context.Context, f StepFailure)

// Runner executes a configured list of steps over articles. It is safe for
// concurrent use.
type Runner struct {
	registry     *processor.Registry
	executor     executor.Executor
	ownsExecutor bool
	steps        []Step
	order        Order
	merge        MergePolicy
	logger       *zap.Logger
	tracer       trace.Tracer
	onFailure    FailureHook
	stepTimeout  time.Duration
	limiter      *concurrency.Limiter
	metrics      metricsCollector
}

// plannedStep is a step after resolution and construction
type plannedStep struct {
	step Step
	proc processor.Processor
	desc processor.Descriptor
}

// NewRunner creates a runner. Without WithRegistry it uses the default
// registry; without WithExecutor it starts its own inline executor, which
// Close shuts down.
func NewRunner(opts ...Option) *Runner {
	r := &Runner{
		logger: zap.NewNop(),
		tracer: otel.Tracer("pythia/flow"),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = processor.Default()
	}
	if r.executor == nil {
		r.executor = executor.NewInline(executor.InlineConfig{}, nil, r.logger)
		r.ownsExecutor = true
	}
	return r
}

// Steps returns the configured steps, or every registered name in
// registration order when none were configured.
func (r *Runner) Steps() []Step {
	if len(r.steps) > 0 {
		return append([]Step(nil), r.steps...)
	}
	names := r.registry.Names()
	steps := make([]Step, len(names))
	for i, name := range names {
		steps[i] = Step{Name: name}
	}
	return steps
}

// Validate resolves every step name without running anything.
func (r *Runner) Validate() error {
	_, err := r.resolve(r.Steps())
	return err
}

func (r *Runner) resolve(steps []Step) ([]processor.Constructor, error) {
	ctors := make([]processor.Constructor, len(steps))
	for i, s := range steps {
		ctor, err := r.registry.Resolve(s.Name)
		if err != nil {
			return nil, err
		}
		ctors[i] = ctor
	}
	return ctors, nil
}

// plan resolves and constructs the steps and puts them in run order.
// Construction failures are recorded in errs and the step is dropped.
func (r *Runner) plan(ec *processor.ExecutionContext, errs map[string]string) ([]*plannedStep, error) {
	steps := r.Steps()
	ctors, err := r.resolve(steps)
	if err != nil {
		return nil, err
	}

	planned := make([]*plannedStep, 0, len(steps))
	for i, s := range steps {
		p, err := ctors[i](s.Config.Clone())
		if err != nil {
			ec.Logger().Error("failed to construct processor",
				zap.String("processor", s.Name),
				zap.Error(err))
			errs[s.Name] = fmt.Sprintf("failed to create processor %s: %v", s.Name, err)
			continue
		}
		planned = append(planned, &plannedStep{step: s, proc: p, desc: p.Descriptor()})
	}

	if r.order == OrderTopological {
		return topoSort(planned)
	}
	return planned, nil
}

// Process runs every step over a and returns its result. The only errors
// returned are flow-definition errors; step failures are recorded in
// Result.Errors keyed by step name.
func (r *Runner) Process(ctx context.Context, a article.Article) (*article.Result, error) {
	ec := processor.NewExecutionContext(r.logger.With(zap.String("article_id", a.ID)))

	ctx, span := r.tracer.Start(ctx, "flow.Process",
		trace.WithAttributes(
			attribute.String("article.id", a.ID),
			attribute.String("trace_id", ec.TraceID()),
			attribute.String("flow.order", r.order.String()),
		))
	defer span.End()

	bag := a.Fields()
	errs := make(map[string]string)

	planned, err := r.plan(ec, errs)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		ec.Logger().Error("invalid flow definition", zap.Error(err))
		return nil, err
	}
	r.metrics.recordRun()

	start := time.Now()
	for _, ps := range planned {
		r.runStep(ctx, a.ID, ps, bag, errs, ec)
	}

	result, problems := article.NewResult(a.ID, bag, errs)
	for field, perr := range problems {
		ec.Logger().Warn("dropping unconvertible field",
			zap.String("field", field),
			zap.Error(perr))
	}

	span.SetAttributes(
		attribute.Int("flow.steps", len(planned)),
		attribute.Int("flow.failed_steps", len(errs)),
		attribute.Int64("processing.duration_ms", time.Since(start).Milliseconds()),
	)
	if len(errs) > 0 {
		span.SetStatus(codes.Error, fmt.Sprintf("%d step(s) failed", len(errs)))
	} else {
		span.SetStatus(codes.Ok, "article processed")
	}

	ec.Logger().Debug("article processed",
		zap.Duration("duration", time.Since(start)),
		zap.Strings("failed_steps", result.FailedSteps()))
	return result, nil
}

func (r *Runner) runStep(ctx context.Context, articleID string, ps *plannedStep, bag article.FieldBag, errs map[string]string, ec *processor.ExecutionContext) {
	name := ps.step.Name
	logger := ec.Logger().With(zap.String("processor", name))

	if missing := bag.Missing(ps.desc.Requires); len(missing) > 0 {
		err := pyerrors.MissingDependency(name, missing)
		logger.Warn("skipping step", zap.Strings("missing", missing))
		errs[name] = err.Error()
		r.metrics.recordSkipped()
		return
	}

	ctx, span := r.tracer.Start(ctx, "flow.step",
		trace.WithAttributes(
			attribute.String("processor.name", name),
			attribute.String("processor.version", ps.desc.Version),
		))
	defer span.End()

	stepCtx := ctx
	if r.stepTimeout > 0 {
		var cancel context.CancelFunc
		stepCtx, cancel = context.WithTimeout(ctx, r.stepTimeout)
		defer cancel()
	}

	start := time.Now()
	out, err := r.executor.Submit(stepCtx, ps.proc, bag, ec)
	if err == nil {
		if extra := undeclared(out, ps.desc.Provides); len(extra) > 0 {
			logger.Warn("step returned undeclared fields", zap.Strings("fields", extra))
		}
		err = merge(bag, out, r.merge)
	}
	elapsed := time.Since(start)
	r.metrics.recordStep(elapsed, err)
	span.SetAttributes(attribute.Int64("processing.duration_ms", elapsed.Milliseconds()))

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		logger.Error("step failed", zap.Duration("duration", elapsed), zap.Error(err))

		msg := err.Error()
		if msg == "" {
			msg = fmt.Sprintf("%s failed", name)
		}
		errs[name] = msg

		if r.onFailure != nil {
			r.onFailure(ctx, StepFailure{
				ArticleID: articleID,
				Processor: name,
				TraceID:   ec.TraceID(),
				Err:       err,
			})
		}
		return
	}

	span.SetStatus(codes.Ok, "step completed")
	logger.Debug("step completed",
		zap.Duration("duration", elapsed),
		zap.Strings("fields", out.Keys()))
}

// Metrics returns a snapshot of the runner's counters.
func (r *Runner) Metrics() Metrics {
	return r.metrics.snapshot()
}

// ResetMetrics zeroes the runner's counters.
func (r *Runner) ResetMetrics() {
	r.metrics.reset()
}

// Close shuts down the executor when the runner created it.
func (r *Runner) Close(ctx context.Context) error {
	if !r.ownsExecutor {
		return nil
	}
	if err := r.executor.Shutdown(ctx); err != nil && !errors.Is(err, pyerrors.ErrExecutorClosed) {
		return err
	}
	return nil
}
