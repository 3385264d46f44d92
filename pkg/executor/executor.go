// Package executor decides where a processor step runs: inline on a local
// worker pool, or on a remote worker reached through the task queue.
package executor

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// Executor runs one processor invocation and returns its output fields.
// Failures use the pkg/errors taxonomy: ErrCancelled, ErrDispatch,
// ErrDispatchTimeout, ErrProcessorExecution and ErrExecutorClosed.
type Executor interface {
	Submit(ctx context.Context, p processor.Processor, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error)
	Shutdown(ctx context.Context) error
}

func cancelled(ctx context.Context) error {
	return fmt.Errorf("%w: %w", pyerrors.ErrCancelled, ctx.Err())
}
