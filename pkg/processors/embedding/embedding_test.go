package embedding

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/llm/llmtest"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

func TestEmbedTitle(t *testing.T) {
	fake := &llmtest.Fake{Vector: []float32{0.1, 0.2, 0.3}}
	p, err := New(fake.Provider())(processor.Config{"dimensions": 3})
	require.NoError(t, err)
	assert.Equal(t, []string{article.FieldTitle}, p.Descriptor().Requires)

	out, err := p.Run(context.Background(), article.FieldBag{article.FieldTitle: " 标题 "}, processor.NewExecutionContext(nil))
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2, 0.3}, out[article.FieldEmbedding])
	assert.Equal(t, [][]string{{"标题"}}, fake.Inputs())
}

func TestEmbedConfiguredField(t *testing.T) {
	fake := &llmtest.Fake{Vector: []float32{1}}
	p, err := New(fake.Provider())(processor.Config{"field": article.FieldSummary})
	require.NoError(t, err)
	assert.Equal(t, []string{article.FieldSummary}, p.Descriptor().Requires)
	assert.Equal(t, []string{article.FieldTitle}, Descriptor.Requires)

	out, err := p.Run(context.Background(), article.FieldBag{article.FieldSummary: "摘要"}, processor.NewExecutionContext(nil))
	require.NoError(t, err)
	assert.Equal(t, []float32{1}, out[article.FieldEmbedding])
}

func TestEmbedDimensionMismatch(t *testing.T) {
	p, err := New((&llmtest.Fake{Vector: []float32{1, 2}}).Provider())(processor.Config{"dimensions": 3})
	require.NoError(t, err)

	_, err = p.Run(context.Background(), article.FieldBag{article.FieldTitle: "t"}, processor.NewExecutionContext(nil))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "2 dimensions")
}

func TestEmbedEmptyField(t *testing.T) {
	fake := &llmtest.Fake{Vector: []float32{1}}
	p, err := New(fake.Provider())(nil)
	require.NoError(t, err)

	out, err := p.Run(context.Background(), article.FieldBag{article.FieldTitle: ""}, processor.NewExecutionContext(nil))
	require.NoError(t, err)
	assert.Empty(t, out)
	assert.Empty(t, fake.Inputs())
}
