package executor

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/concurrency"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

func newInline(t *testing.T, workers int, limiter *concurrency.Limiter) *Inline {
	t.Helper()
	e := NewInline(InlineConfig{NumWorkers: workers}, limiter, nil)
	t.Cleanup(func() { _ = e.Shutdown(context.Background()) })
	return e
}

func TestInlineSubmit(t *testing.T) {
	e := newInline(t, 2, nil)

	out, err := e.Submit(context.Background(), upper(), article.FieldBag{"in": "hi"}, processor.NewExecutionContext(nil))
	require.NoError(t, err)
	assert.Equal(t, article.FieldBag{"out": "hi!"}, out)

	processed, failed := e.Stats()
	assert.Equal(t, int64(1), processed)
	assert.Equal(t, int64(0), failed)
}

func TestInlineSnapshotsBag(t *testing.T) {
	e := newInline(t, 1, nil)
	mutating := newFuncProcessor("mutating", func(ctx context.Context, bag article.FieldBag) (article.FieldBag, error) {
		bag["in"] = "changed"
		return nil, nil
	})

	bag := article.FieldBag{"in": "orig"}
	out, err := e.Submit(context.Background(), mutating, bag, processor.NewExecutionContext(nil))
	require.NoError(t, err)
	assert.Equal(t, "orig", bag["in"])
	assert.NotNil(t, out)
	assert.Empty(t, out)
}

func TestInlineProcessorError(t *testing.T) {
	e := newInline(t, 1, nil)
	boom := errors.New("model unavailable")
	failing := newFuncProcessor("failing", func(ctx context.Context, bag article.FieldBag) (article.FieldBag, error) {
		return article.FieldBag{"partial": 1}, boom
	})

	out, err := e.Submit(context.Background(), failing, article.FieldBag{}, processor.NewExecutionContext(nil))
	require.Error(t, err)
	assert.Nil(t, out)
	assert.ErrorIs(t, err, pyerrors.ErrProcessorExecution)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, "model unavailable", err.Error())
}

func TestInlineRecoversPanic(t *testing.T) {
	e := newInline(t, 1, nil)
	panicking := newFuncProcessor("panicking", func(ctx context.Context, bag article.FieldBag) (article.FieldBag, error) {
		panic("index out of range")
	})

	_, err := e.Submit(context.Background(), panicking, article.FieldBag{}, processor.NewExecutionContext(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, pyerrors.ErrProcessorExecution)
	assert.Contains(t, err.Error(), "index out of range")

	// the worker survives
	_, err = e.Submit(context.Background(), upper(), article.FieldBag{}, processor.NewExecutionContext(nil))
	assert.NoError(t, err)
}

func TestInlineCancellation(t *testing.T) {
	e := newInline(t, 1, nil)
	started := make(chan struct{})
	blocking := newFuncProcessor("blocking", func(ctx context.Context, bag article.FieldBag) (article.FieldBag, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := e.Submit(ctx, blocking, article.FieldBag{}, processor.NewExecutionContext(nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, pyerrors.ErrCancelled)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestInlineAlreadyCancelled(t *testing.T) {
	e := newInline(t, 1, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.Submit(ctx, upper(), article.FieldBag{}, processor.NewExecutionContext(nil))
	assert.ErrorIs(t, err, pyerrors.ErrCancelled)
}

func TestInlineShutdown(t *testing.T) {
	e := NewInline(InlineConfig{NumWorkers: 2}, nil, nil)
	require.NoError(t, e.Shutdown(context.Background()))
	require.NoError(t, e.Shutdown(context.Background()))

	_, err := e.Submit(context.Background(), upper(), article.FieldBag{}, processor.NewExecutionContext(nil))
	assert.ErrorIs(t, err, pyerrors.ErrExecutorClosed)
}

func TestInlineLimiterBoundsConcurrency(t *testing.T) {
	limiter := concurrency.NewLimiter(2)
	e := newInline(t, 8, limiter)

	var active, peak atomic.Int32
	slow := newFuncProcessor("slow", func(ctx context.Context, bag article.FieldBag) (article.FieldBag, error) {
		n := active.Add(1)
		for {
			p := peak.Load()
			if n <= p || peak.CompareAndSwap(p, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		active.Add(-1)
		return article.FieldBag{}, nil
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := e.Submit(context.Background(), slow, article.FieldBag{}, processor.NewExecutionContext(nil))
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.LessOrEqual(t, peak.Load(), int32(2))
	assert.Equal(t, int64(10), limiter.GetMetrics().TotalAcquired)
}
