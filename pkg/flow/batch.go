package flow

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/concurrency"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
)

// ProcessBatch runs Process over every article, at most parallelism at a
// time, and returns the results in input order. Runs are independent; the
// first flow-definition error is returned and no articles are processed.
// If ctx ends before every article started, the returned slice holds nil
// for the ones that did not and the error wraps ErrCancelled. A shared
// limiter whose circuit is open stops the batch the same way.
func (r *Runner) ProcessBatch(ctx context.Context, articles []article.Article, parallelism int) ([]*article.Result, error) {
	if err := r.Validate(); err != nil {
		return nil, err
	}
	if parallelism <= 0 {
		parallelism = runtime.NumCPU()
	}

	limiter := r.limiter
	if limiter == nil {
		limiter = concurrency.NewLimiter(parallelism)
	}

	results := make([]*article.Result, len(articles))
	var (
		wg       sync.WaitGroup
		errOnce  sync.Once
		firstErr error
	)
	setErr := func(err error) {
		errOnce.Do(func() { firstErr = err })
	}

	for i := range articles {
		if ctx.Err() != nil {
			setErr(fmt.Errorf("%w: %w", pyerrors.ErrCancelled, ctx.Err()))
			break
		}
		if err := limiter.Acquire(ctx); err != nil {
			if ctx.Err() != nil {
				setErr(fmt.Errorf("%w: %w", pyerrors.ErrCancelled, ctx.Err()))
			} else {
				r.logger.Warn("limiter rejected run", zap.Int("index", i), zap.Error(err))
				setErr(fmt.Errorf("article %d: %w", i, err))
			}
			break
		}

		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			defer limiter.Release()

			res, err := r.Process(ctx, articles[i])
			if err != nil {
				setErr(err)
				return
			}
			results[i] = res
		}(i)
	}
	wg.Wait()

	if firstErr != nil && pyerrors.IsFatal(firstErr) {
		return nil, firstErr
	}
	return results, firstErr
}
