package flow

import (
	"time"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/concurrency"
	"github.com/wehubfusion/Pythia/pkg/executor"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// Step names a registered processor variant and its configuration
type Step struct {
	Name   string           `yaml:"name" json:"name"`
	Config processor.Config `yaml:"config,omitempty" json:"config,omitempty"`
}

// Order selects how steps are sequenced
type Order int

const (
	// OrderLinear runs steps in the order given
	OrderLinear Order = iota

	// OrderTopological runs a step after every step providing a field it requires
	OrderTopological
)

func (o Order) String() string {
	switch o {
	case OrderLinear:
		return "linear"
	case OrderTopological:
		return "topological"
	}
	return "unknown"
}

// ParseOrder parses "linear" or "topological"; empty means linear.
func ParseOrder(s string) (Order, bool) {
	switch s {
	case "", "linear":
		return OrderLinear, true
	case "topological":
		return OrderTopological, true
	}
	return OrderLinear, false
}

// Option configures a Runner
type Option func(*Runner)

// WithRegistry sets the registry step names are resolved against
func WithRegistry(reg *processor.Registry) Option {
	return func(r *Runner) {
		r.registry = reg
	}
}

// WithExecutor sets the executor steps are submitted to. The runner does not
// shut down an executor it was given.
func WithExecutor(e executor.Executor) Option {
	return func(r *Runner) {
		r.executor = e
	}
}

// WithSteps sets the steps to run
func WithSteps(steps ...Step) Option {
	return func(r *Runner) {
		r.steps = append([]Step(nil), steps...)
	}
}

// WithStepNames sets the steps to run, each with an empty configuration
func WithStepNames(names ...string) Option {
	return func(r *Runner) {
		r.steps = make([]Step, len(names))
		for i, name := range names {
			r.steps[i] = Step{Name: name}
		}
	}
}

// WithOrder sets the step ordering mode
func WithOrder(o Order) Option {
	return func(r *Runner) {
		r.order = o
	}
}

// WithMergePolicy sets how step outputs are merged into the field bag
func WithMergePolicy(p MergePolicy) Option {
	return func(r *Runner) {
		r.merge = p
	}
}

// WithLogger sets the logger
func WithLogger(logger *zap.Logger) Option {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithTracer sets the tracer used for run and step spans
func WithTracer(t trace.Tracer) Option {
	return func(r *Runner) {
		if t != nil {
			r.tracer = t
		}
	}
}

// WithFailureHook registers a callback invoked for every failed step
func WithFailureHook(h FailureHook) Option {
	return func(r *Runner) {
		r.onFailure = h
	}
}

// WithStepTimeout bounds each step. Zero means no per-step bound.
func WithStepTimeout(d time.Duration) Option {
	return func(r *Runner) {
		r.stepTimeout = d
	}
}

// WithLimiter shares a limiter across ProcessBatch calls instead of
// creating one per batch.
func WithLimiter(l *concurrency.Limiter) Option {
	return func(r *Runner) {
		r.limiter = l
	}
}
