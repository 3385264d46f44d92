package eventllm

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/llm"
	"github.com/wehubfusion/Pythia/pkg/llm/llmtest"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

const threeEvents = `{"data": [
	{"trigger": "收购", "type": "Acquisition", "arguments": [{"role": "buyer", "text": "甲公司"}], "summary": "甲公司收购乙公司"},
	{"trigger": "发布", "type": "ProductLaunch"},
	{"trigger": "融资", "type": "Financing", "arguments": []}
]}`

func runWith(t *testing.T, fake *llmtest.Fake, cfg processor.Config, text string) (article.FieldBag, error) {
	t.Helper()
	p, err := New(fake.Provider())(cfg)
	require.NoError(t, err)
	return p.Run(context.Background(), article.FieldBag{article.FieldCleanText: text}, processor.NewExecutionContext(nil))
}

func TestExtractEvents(t *testing.T) {
	fake := &llmtest.Fake{Reply: threeEvents}

	out, err := runWith(t, fake, nil, "甲公司宣布收购乙公司")
	require.NoError(t, err)

	events := out[article.FieldEvents].([]article.Event)
	require.Len(t, events, 3)
	assert.Equal(t, "收购", events[0].Trigger)
	assert.Equal(t, []article.EventArg{{Role: "buyer", Text: "甲公司"}}, events[0].Arguments)
	assert.Equal(t, "甲公司收购乙公司", events[0].Summary)
	assert.Empty(t, events[1].Arguments)
	assert.NotNil(t, events[1].Arguments)

	reqs := fake.Requests()
	require.Len(t, reqs, 1)
	assert.True(t, reqs[0].JSON)
	assert.Contains(t, reqs[0].Prompt, "最多 3 条")
	assert.Contains(t, reqs[0].Prompt, "甲公司宣布收购乙公司")
}

func TestTruncatesToMaxEvents(t *testing.T) {
	out, err := runWith(t, &llmtest.Fake{Reply: threeEvents}, processor.Config{"max_events": 2}, "文本")
	require.NoError(t, err)
	assert.Len(t, out[article.FieldEvents].([]article.Event), 2)
}

func TestEmptyTextSkipsModel(t *testing.T) {
	fake := &llmtest.Fake{Reply: threeEvents}
	out, err := runWith(t, fake, nil, "  ")
	require.NoError(t, err)
	assert.Empty(t, out[article.FieldEvents])
	assert.Empty(t, fake.Requests())
}

func TestInvalidModelOutput(t *testing.T) {
	_, err := runWith(t, &llmtest.Fake{Reply: `{"data": [{"type": "Lawsuit"}]}`}, nil, "文本")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trigger")

	_, err = runWith(t, &llmtest.Fake{Reply: `not json`}, nil, "文本")
	assert.Error(t, err)
}

func TestNullEventsRejected(t *testing.T) {
	replies := []string{
		`{"data": [null]}`,
		`{"data": [{"trigger": "宣布", "type": "Lawsuit", "arguments": [null]}]}`,
	}
	for _, reply := range replies {
		assert.NotPanics(t, func() {
			out, err := runWith(t, &llmtest.Fake{Reply: reply}, nil, "文本")
			assert.Error(t, err, reply)
			assert.Nil(t, out)
		})
	}
}

func TestDecodeEventChecksShapes(t *testing.T) {
	_, err := decodeEvent(nil)
	assert.Error(t, err)

	_, err = decodeEvent(map[string]any{"trigger": "宣布", "type": "Lawsuit", "arguments": []any{"x"}})
	assert.Error(t, err)

	evt, err := decodeEvent(map[string]any{"trigger": "宣布", "type": "Lawsuit"})
	require.NoError(t, err)
	assert.Equal(t, "宣布", evt.Trigger)
	assert.Empty(t, evt.Arguments)
}

func TestModelError(t *testing.T) {
	boom := errors.New("connection refused")
	_, err := runWith(t, &llmtest.Fake{Err: boom}, nil, "文本")
	assert.ErrorIs(t, err, boom)
}

func TestNoProvider(t *testing.T) {
	p, err := New(nil)(nil)
	require.NoError(t, err)
	_, err = p.Run(context.Background(), article.FieldBag{article.FieldCleanText: "x"}, processor.NewExecutionContext(nil))
	assert.ErrorIs(t, err, llm.ErrNoProvider)
}

func TestInvalidConfig(t *testing.T) {
	_, err := New(nil)(processor.Config{"max_events": 0})
	assert.ErrorIs(t, err, pyerrors.ErrInvalidConfig)
}
