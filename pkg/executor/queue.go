package executor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/bus"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// QueueConfig configures the queue executor
type QueueConfig struct {
	// Subject defaults to DefaultSubject
	Subject string

	// Timeout bounds a task when the caller's context has no deadline
	Timeout time.Duration

	// OwnsBus makes Shutdown close the bus
	OwnsBus bool
}

// Queue dispatches every invocation as a Task over a bus and waits for the
// correlated Reply.
type Queue struct {
	bus    bus.Bus
	config QueueConfig
	logger *zap.Logger
	closed atomic.Bool
}

var _ Executor = (*Queue)(nil)

// NewQueue creates a queue executor on b.
func NewQueue(b bus.Bus, config QueueConfig, logger *zap.Logger) *Queue {
	if config.Subject == "" {
		config.Subject = DefaultSubject
	}
	if config.Timeout <= 0 {
		config.Timeout = 60 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Queue{bus: b, config: config, logger: logger}
}

// Submit implements Executor.
func (q *Queue) Submit(ctx context.Context, p processor.Processor, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	if q.closed.Load() {
		return nil, pyerrors.ErrExecutorClosed
	}
	if ctx.Err() != nil {
		return nil, cancelled(ctx)
	}

	task := NewTask(p, bag, ec.TraceID())
	data, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("%w: encode task for %s: %w", pyerrors.ErrDispatch, task.Processor, err)
	}

	reqCtx := ctx
	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeout(ctx, q.config.Timeout)
		defer cancel()
	}

	ec.Logger().Debug("dispatching task",
		zap.String("processor", task.Processor),
		zap.String("task_id", task.ID),
		zap.String("subject", q.config.Subject))

	raw, err := q.bus.Request(reqCtx, q.config.Subject, data)
	if err != nil {
		switch {
		case errors.Is(err, context.Canceled) && ctx.Err() != nil:
			return nil, cancelled(ctx)
		case pyerrors.IsTimeout(err), errors.Is(err, context.DeadlineExceeded):
			return nil, fmt.Errorf("%w: %s after %s", pyerrors.ErrDispatchTimeout, task.Processor, q.deadline(reqCtx, task.CreatedAt))
		}
		return nil, fmt.Errorf("%w: %s: %w", pyerrors.ErrDispatch, task.Processor, err)
	}

	var reply Reply
	if err := json.Unmarshal(raw, &reply); err != nil {
		return nil, fmt.Errorf("%w: decode reply for %s: %w", pyerrors.ErrDispatch, task.Processor, err)
	}
	if reply.TaskID != task.ID {
		return nil, fmt.Errorf("%w: reply for task %q does not match %q", pyerrors.ErrDispatch, reply.TaskID, task.ID)
	}
	if reply.Error != "" {
		return nil, pyerrors.Execution(errors.New(reply.Error))
	}
	if reply.Fields == nil {
		reply.Fields = article.FieldBag{}
	}
	return reply.Fields, nil
}

func (q *Queue) deadline(ctx context.Context, start time.Time) time.Duration {
	if d, ok := ctx.Deadline(); ok {
		return d.Sub(start).Round(time.Millisecond)
	}
	return q.config.Timeout
}

// Shutdown rejects further submissions and closes the bus when owned.
func (q *Queue) Shutdown(ctx context.Context) error {
	if q.closed.Swap(true) {
		return nil
	}
	if q.config.OwnsBus {
		return q.bus.Close()
	}
	return nil
}
