package flow_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/flow"
	"github.com/wehubfusion/Pythia/pkg/processors/cleaner"
	"github.com/wehubfusion/Pythia/pkg/processors/summarizer"
)

func TestProcessBatchPreservesOrder(t *testing.T) {
	r := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithStepNames(cleaner.Name, summarizer.DummyName))

	articles := make([]article.Article, 20)
	for i := range articles {
		articles[i] = article.New("t", fmt.Sprintf("正文 %d", i), article.WithID(fmt.Sprintf("a-%d", i)))
	}

	results, err := r.ProcessBatch(context.Background(), articles, 4)
	require.NoError(t, err)
	require.Len(t, results, len(articles))
	for i, res := range results {
		require.NotNil(t, res)
		assert.Equal(t, fmt.Sprintf("a-%d", i), res.ID)
		require.NotNil(t, res.Summary)
		assert.Equal(t, fmt.Sprintf("正文 %d", i), *res.Summary)
	}
	assert.Equal(t, int64(20), r.Metrics().Runs)
}

func TestProcessBatchUnknownStep(t *testing.T) {
	r := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithStepNames("nope"))

	results, err := r.ProcessBatch(context.Background(), []article.Article{article.New("t", "x")}, 2)
	assert.Nil(t, results)
	assert.ErrorIs(t, err, pyerrors.ErrUnknownProcessor)
	assert.Equal(t, int64(0), r.Metrics().Runs)
}

func TestProcessBatchCancelled(t *testing.T) {
	r := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithStepNames(cleaner.Name))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := r.ProcessBatch(ctx, []article.Article{article.New("t", "x")}, 1)
	assert.ErrorIs(t, err, pyerrors.ErrCancelled)
}

func TestProcessBatchEmpty(t *testing.T) {
	r := newRunner(t, flow.WithRegistry(builtins()), flow.WithStepNames(cleaner.Name))

	results, err := r.ProcessBatch(context.Background(), nil, 0)
	require.NoError(t, err)
	assert.Empty(t, results)
}
