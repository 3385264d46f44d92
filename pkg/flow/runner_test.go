package flow_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/flow"
	"github.com/wehubfusion/Pythia/pkg/processor"
	"github.com/wehubfusion/Pythia/pkg/processors/cleaner"
	"github.com/wehubfusion/Pythia/pkg/processors/eventrule"
	"github.com/wehubfusion/Pythia/pkg/processors/summarizer"
)

// stub is a configurable test processor
type stub struct {
	processor.Base
	run func(bag article.FieldBag) (article.FieldBag, error)
}

func (s *stub) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	return s.run(bag)
}

func stubCtor(d processor.Descriptor, run func(bag article.FieldBag) (article.FieldBag, error)) processor.Constructor {
	return func(cfg processor.Config) (processor.Processor, error) {
		return &stub{Base: processor.NewBase(d, cfg), run: run}, nil
	}
}

func constant(fields article.FieldBag) func(article.FieldBag) (article.FieldBag, error) {
	return func(article.FieldBag) (article.FieldBag, error) {
		return fields, nil
	}
}

func builtins() *processor.Registry {
	reg := processor.NewRegistry()
	reg.Register(cleaner.Name, cleaner.New)
	reg.Register(eventrule.Name, eventrule.New)
	reg.Register(summarizer.DummyName, summarizer.NewDummy)
	return reg
}

func newRunner(t *testing.T, opts ...flow.Option) *flow.Runner {
	t.Helper()
	r := flow.NewRunner(opts...)
	t.Cleanup(func() { _ = r.Close(context.Background()) })
	return r
}

func TestProcessSummarizesCleanText(t *testing.T) {
	r := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithStepNames(cleaner.Name, summarizer.DummyName))

	a := article.New("标题", "苹果公司\n推出新款 iPhone。", article.WithID("a-1"))
	res, err := r.Process(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, "a-1", res.ID)
	require.NotNil(t, res.Summary)
	assert.NotContains(t, *res.Summary, "\n")
	assert.LessOrEqual(t, utf8.RuneCountInString(*res.Summary), 30)
	assert.True(t, strings.HasPrefix(*res.Summary, "苹果公司 推出新款"))
	assert.Nil(t, res.Errors)
}

func TestProcessExtractsEvent(t *testing.T) {
	r := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithStepNames(cleaner.Name, eventrule.Name))

	a := article.New("公告", "公司今天宣布完成新一轮融资。", article.WithID("a-2"))
	res, err := r.Process(context.Background(), a)
	require.NoError(t, err)

	require.Len(t, res.Events, 1)
	assert.Equal(t, "宣布", res.Events[0].Trigger)
	assert.Nil(t, res.Errors)
}

func TestProcessUnknownStepFailsFast(t *testing.T) {
	var calls atomic.Int32
	reg := builtins()
	reg.Register("counter", stubCtor(processor.Descriptor{Name: "counter"}, func(article.FieldBag) (article.FieldBag, error) {
		calls.Add(1)
		return nil, nil
	}))

	r := newRunner(t,
		flow.WithRegistry(reg),
		flow.WithStepNames("counter", "does_not_exist"))

	res, err := r.Process(context.Background(), article.New("t", "x"))
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, pyerrors.ErrUnknownProcessor)
	assert.True(t, pyerrors.IsFatal(err))
	assert.Equal(t, int32(0), calls.Load())
}

func TestProcessRecordsMissingDependencies(t *testing.T) {
	r := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithStepNames(summarizer.DummyName))

	res, err := r.Process(context.Background(), article.New("t", "text", article.WithID("a-3")))
	require.NoError(t, err)

	assert.Equal(t, "a-3", res.ID)
	assert.Nil(t, res.Summary)
	assert.Equal(t, map[string]string{summarizer.DummyName: "missing deps: [clean_text]"}, res.Errors)
	assert.Equal(t, int64(1), r.Metrics().StepsSkipped)
}

func TestProcessRecordsFailedStepWithoutPartialMerge(t *testing.T) {
	reg := builtins()
	reg.Register("flaky", stubCtor(
		processor.Descriptor{Name: "flaky", Requires: []string{article.FieldText}, Provides: []string{article.FieldCategory}},
		func(article.FieldBag) (article.FieldBag, error) {
			return article.FieldBag{article.FieldCategory: "partial"}, errors.New("connection refused")
		}))

	r := newRunner(t,
		flow.WithRegistry(reg),
		flow.WithStepNames("flaky", cleaner.Name, summarizer.DummyName))

	res, err := r.Process(context.Background(), article.New("t", "正文内容"))
	require.NoError(t, err)

	assert.Nil(t, res.Category)
	assert.Equal(t, map[string]string{"flaky": "connection refused"}, res.Errors)
	require.NotNil(t, res.Summary, "later steps still run")
	assert.Equal(t, "正文内容", *res.Summary)

	m := r.Metrics()
	assert.Equal(t, int64(1), m.Runs)
	assert.Equal(t, int64(2), m.StepsProcessed)
	assert.Equal(t, int64(1), m.StepsFailed)
}

func TestProcessRecordsConstructionError(t *testing.T) {
	reg := builtins()
	reg.Register("broken", func(cfg processor.Config) (processor.Processor, error) {
		return nil, errors.New("bad model path")
	})

	r := newRunner(t,
		flow.WithRegistry(reg),
		flow.WithStepNames("broken", cleaner.Name))

	res, err := r.Process(context.Background(), article.New("t", "x"))
	require.NoError(t, err)
	require.Contains(t, res.Errors, "broken")
	assert.Contains(t, res.Errors["broken"], "bad model path")
	assert.Len(t, res.Errors, 1)
}

func TestProcessInvalidConfigIsRecorded(t *testing.T) {
	r := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithSteps(
			flow.Step{Name: cleaner.Name},
			flow.Step{Name: summarizer.DummyName, Config: processor.Config{"max_len": "many"}},
		))

	res, err := r.Process(context.Background(), article.New("t", "x"))
	require.NoError(t, err)
	assert.Contains(t, res.Errors, summarizer.DummyName)
}

func TestProcessIsIdempotent(t *testing.T) {
	r := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithStepNames(cleaner.Name, eventrule.Name, summarizer.DummyName))

	a := article.New("标题", "  腾讯  宣布\t新战略  ", article.WithID("a-4"))
	first, err := r.Process(context.Background(), a)
	require.NoError(t, err)
	second, err := r.Process(context.Background(), a)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestProcessEmptyStepsRunsWholeRegistry(t *testing.T) {
	r := newRunner(t, flow.WithRegistry(builtins()))

	assert.Equal(t, []string{cleaner.Name, eventrule.Name, summarizer.DummyName}, stepNames(r.Steps()))

	res, err := r.Process(context.Background(), article.New("t", "公司宣布新产品"))
	require.NoError(t, err)
	assert.NotNil(t, res.Summary)
	assert.Len(t, res.Events, 1)
	assert.Nil(t, res.Errors)
}

func TestProcessUsesDefaultRegistry(t *testing.T) {
	processor.ResetDefault()
	t.Cleanup(processor.ResetDefault)
	processor.Register(cleaner.Name, cleaner.New)

	r := newRunner(t)
	res, err := r.Process(context.Background(), article.New("t", "x"))
	require.NoError(t, err)
	assert.Nil(t, res.Errors)
}

func TestTopologicalOrder(t *testing.T) {
	steps := []string{summarizer.DummyName, cleaner.Name}

	linear := newRunner(t, flow.WithRegistry(builtins()), flow.WithStepNames(steps...))
	res, err := linear.Process(context.Background(), article.New("t", "正文"))
	require.NoError(t, err)
	assert.Contains(t, res.Errors, summarizer.DummyName)

	topo := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithStepNames(steps...),
		flow.WithOrder(flow.OrderTopological))
	res, err = topo.Process(context.Background(), article.New("t", "正文"))
	require.NoError(t, err)
	assert.Nil(t, res.Errors)
	require.NotNil(t, res.Summary)
	assert.Equal(t, "正文", *res.Summary)
}

func TestTopologicalCycle(t *testing.T) {
	reg := processor.NewRegistry()
	reg.Register("a", stubCtor(processor.Descriptor{Name: "a", Requires: []string{"y"}, Provides: []string{"x"}}, constant(nil)))
	reg.Register("b", stubCtor(processor.Descriptor{Name: "b", Requires: []string{"x"}, Provides: []string{"y"}}, constant(nil)))

	r := newRunner(t,
		flow.WithRegistry(reg),
		flow.WithStepNames("a", "b"),
		flow.WithOrder(flow.OrderTopological))

	_, err := r.Process(context.Background(), article.New("t", "x"))
	require.Error(t, err)
	assert.ErrorIs(t, err, pyerrors.ErrCyclicDependency)
	assert.True(t, pyerrors.IsFatal(err))
}

func mergeRegistry() *processor.Registry {
	reg := processor.NewRegistry()
	reg.Register("first", stubCtor(processor.Descriptor{Name: "first", Provides: []string{article.FieldSummary}},
		constant(article.FieldBag{article.FieldSummary: "one"})))
	reg.Register("second", stubCtor(processor.Descriptor{Name: "second", Provides: []string{article.FieldSummary, article.FieldCategory}},
		constant(article.FieldBag{article.FieldSummary: "two", article.FieldCategory: "tech"})))
	return reg
}

func TestMergePolicies(t *testing.T) {
	tests := []struct {
		name     string
		policy   flow.MergePolicy
		summary  string
		category *string
		failed   bool
	}{
		{name: "last write wins", policy: flow.LastWriteWins, summary: "two", category: ptr("tech")},
		{name: "first write wins", policy: flow.FirstWriteWins, summary: "one", category: ptr("tech")},
		{name: "fail on collision", policy: flow.FailOnCollision, summary: "one", failed: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRunner(t,
				flow.WithRegistry(mergeRegistry()),
				flow.WithStepNames("first", "second"),
				flow.WithMergePolicy(tt.policy))

			res, err := r.Process(context.Background(), article.New("t", "x"))
			require.NoError(t, err)
			require.NotNil(t, res.Summary)
			assert.Equal(t, tt.summary, *res.Summary)
			assert.Equal(t, tt.category, res.Category)
			if tt.failed {
				assert.Equal(t, map[string]string{"second": "field collision: [summary]"}, res.Errors)
			} else {
				assert.Nil(t, res.Errors)
			}
		})
	}
}

func TestUndeclaredOutputIsMergedAndLogged(t *testing.T) {
	core, logs := observer.New(zapcore.WarnLevel)
	reg := processor.NewRegistry()
	reg.Register("chatty", stubCtor(processor.Descriptor{Name: "chatty", Provides: []string{article.FieldSummary}},
		constant(article.FieldBag{article.FieldSummary: "s", article.FieldCategory: "extra"})))

	r := newRunner(t,
		flow.WithRegistry(reg),
		flow.WithStepNames("chatty"),
		flow.WithLogger(zap.New(core)))

	res, err := r.Process(context.Background(), article.New("t", "x"))
	require.NoError(t, err)
	require.NotNil(t, res.Category)
	assert.Equal(t, "extra", *res.Category)
	assert.Equal(t, 1, logs.FilterMessage("step returned undeclared fields").Len())
}

func TestFailureHook(t *testing.T) {
	reg := builtins()
	reg.Register("flaky", stubCtor(processor.Descriptor{Name: "flaky"}, func(article.FieldBag) (article.FieldBag, error) {
		return nil, errors.New("boom")
	}))

	var mu sync.Mutex
	var failures []flow.StepFailure
	r := newRunner(t,
		flow.WithRegistry(reg),
		flow.WithStepNames("flaky", summarizer.DummyName),
		flow.WithFailureHook(func(ctx context.Context, f flow.StepFailure) {
			mu.Lock()
			defer mu.Unlock()
			failures = append(failures, f)
		}))

	_, err := r.Process(context.Background(), article.New("t", "x", article.WithID("a-5")))
	require.NoError(t, err)

	require.Len(t, failures, 1, "missing dependencies are not reported")
	assert.Equal(t, "a-5", failures[0].ArticleID)
	assert.Equal(t, "flaky", failures[0].Processor)
	assert.Len(t, failures[0].TraceID, 32)
	assert.ErrorIs(t, failures[0].Err, pyerrors.ErrProcessorExecution)
}

func TestCancelledRunRecordsEveryStep(t *testing.T) {
	r := newRunner(t,
		flow.WithRegistry(builtins()),
		flow.WithStepNames(cleaner.Name))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res, err := r.Process(ctx, article.New("t", "x"))
	require.NoError(t, err)
	assert.Contains(t, res.Errors, cleaner.Name)
}

func stepNames(steps []flow.Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}

func ptr(s string) *string {
	return &s
}
