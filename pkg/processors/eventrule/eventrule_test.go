package eventrule

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

func extract(t *testing.T, cfg processor.Config, text string) []article.Event {
	t.Helper()
	p, err := New(cfg)
	require.NoError(t, err)

	out, err := p.Run(context.Background(), article.FieldBag{article.FieldCleanText: text}, processor.NewExecutionContext(nil))
	require.NoError(t, err)

	events, ok := out[article.FieldEvents].([]article.Event)
	require.True(t, ok)
	return events
}

func TestExtractFirstTrigger(t *testing.T) {
	events := extract(t, nil, "公司今天宣布完成收购")
	require.Len(t, events, 1)
	assert.Equal(t, "宣布", events[0].Trigger)
	assert.Equal(t, "STATEMENT", events[0].Type)
	assert.Equal(t, []article.EventArg{{Role: "trigger", Text: "宣布"}}, events[0].Arguments)
}

func TestExtractNoMatch(t *testing.T) {
	events := extract(t, nil, "天气晴朗")
	assert.NotNil(t, events)
	assert.Empty(t, events)

	assert.Empty(t, extract(t, nil, ""))
}

func TestCustomTriggers(t *testing.T) {
	cfg := processor.Config{"triggers": []any{"a.b", "launch"}, "event_type": "CUSTOM"}

	assert.Empty(t, extract(t, cfg, "axb"), "triggers are literal")

	events := extract(t, cfg, "we launch a.b today")
	require.Len(t, events, 1)
	assert.Equal(t, "launch", events[0].Trigger)
	assert.Equal(t, "CUSTOM", events[0].Type)
}

func TestInvalidTriggers(t *testing.T) {
	_, err := New(processor.Config{"triggers": []any{""}})
	assert.Error(t, err)
	_, err = New(processor.Config{"triggers": "宣布"})
	assert.Error(t, err)
}
