package reporting

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/getsentry/sentry-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Pythia/pkg/flow"
)

type captured struct {
	mu     sync.Mutex
	events []*sentry.Event
}

func (c *captured) beforeSend(event *sentry.Event, hint *sentry.EventHint) *sentry.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, event)
	return nil
}

func TestReportTagsFailure(t *testing.T) {
	var c captured
	client, err := sentry.NewClient(sentry.ClientOptions{SampleRate: 1.0, BeforeSend: c.beforeSend})
	require.NoError(t, err)

	r := NewWithClient(client, nil)
	assert.True(t, r.Enabled())

	r.Hook()(context.Background(), flow.StepFailure{
		ArticleID: "a-1",
		Processor: "summarizer_llm",
		TraceID:   "0123456789abcdef0123456789abcdef",
		Err:       errors.New("model unavailable"),
	})
	r.Flush(time.Second)

	c.mu.Lock()
	defer c.mu.Unlock()
	require.Len(t, c.events, 1)
	event := c.events[0]
	assert.Equal(t, "summarizer_llm", event.Tags["processor"])
	assert.Equal(t, "a-1", event.Tags["article_id"])
	assert.Equal(t, "0123456789abcdef0123456789abcdef", event.Tags["trace_id"])
	require.NotEmpty(t, event.Exception)
	assert.Equal(t, "model unavailable", event.Exception[len(event.Exception)-1].Value)
}

func TestDisabledReporter(t *testing.T) {
	r, err := New(Config{}, nil)
	require.NoError(t, err)
	assert.False(t, r.Enabled())

	r.Report(context.Background(), flow.StepFailure{Processor: "x", Err: errors.New("boom")})
	assert.True(t, r.Flush(time.Millisecond))
}

func TestReportIgnoresNilError(t *testing.T) {
	var c captured
	client, err := sentry.NewClient(sentry.ClientOptions{SampleRate: 1.0, BeforeSend: c.beforeSend})
	require.NoError(t, err)

	NewWithClient(client, nil).Report(context.Background(), flow.StepFailure{Processor: "x"})
	assert.Empty(t, c.events)
}
