package main

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/internal/reporting"
	"github.com/wehubfusion/Pythia/pkg/bus"
	"github.com/wehubfusion/Pythia/pkg/concurrency"
	"github.com/wehubfusion/Pythia/pkg/config"
	"github.com/wehubfusion/Pythia/pkg/executor"
	"github.com/wehubfusion/Pythia/pkg/flow"
	"github.com/wehubfusion/Pythia/pkg/llm"
	"github.com/wehubfusion/Pythia/pkg/processor"
	"github.com/wehubfusion/Pythia/pkg/processors/all"
	"github.com/wehubfusion/Pythia/pkg/repository"
	"github.com/wehubfusion/Pythia/pkg/storage"
)

// app holds the process-wide resources shared by commands. Everything it
// opens is closed in reverse order by close.
type app struct {
	cfg      config.Config
	conc     *concurrency.Config
	reporter *reporting.Reporter
	logger   *zap.Logger
	llm      *llm.Provider

	closers []func(context.Context) error
}

func newApp(cfg config.Config, conc *concurrency.Config, reporter *reporting.Reporter, logger *zap.Logger) *app {
	return &app{
		cfg:      cfg,
		conc:     conc,
		reporter: reporter,
		logger:   logger,
		llm: llm.NewProvider(func() (llm.Client, error) {
			client, err := llm.NewOllamaClient(cfg.Ollama)
			if err != nil {
				return nil, err
			}
			logger.Info("Ollama client ready",
				zap.String("base_url", cfg.Ollama.BaseURL),
				zap.String("model", cfg.Ollama.Model))
			return client, nil
		}),
	}
}

func (a *app) onClose(fn func(context.Context) error) {
	a.closers = append(a.closers, fn)
}

func (a *app) close() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](ctx); err != nil {
			a.logger.Warn("Shutdown step failed", zap.Error(err))
		}
	}
}

func (a *app) registry() *processor.Registry {
	return all.NewRegistry(all.Deps{
		LLM:              a.llm,
		MaxAbstractChars: a.cfg.Summarizer.MaxAbstractChars,
	})
}

// connectBus opens a NATS connection that is closed with the app
func (a *app) connectBus(ctx context.Context) (*bus.NATSBus, error) {
	b := bus.NewNATS(&a.cfg.NATS, a.logger)
	if err := b.Connect(ctx); err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return b.Close() })
	return b, nil
}

func (a *app) executor(ctx context.Context) (executor.Executor, error) {
	var exec executor.Executor
	switch a.conc.ExecutorMode {
	case concurrency.ExecutorModeQueue:
		b, err := a.connectBus(ctx)
		if err != nil {
			return nil, err
		}
		exec = executor.NewQueue(b, executor.QueueConfig{
			Subject: a.cfg.Queue.Subject,
			Timeout: a.conc.TaskTimeout,
		}, a.logger)
	default:
		exec = executor.NewInline(executor.InlineConfig{NumWorkers: a.conc.RunnerWorkers}, a.conc.NewStepLimiter(), a.logger)
	}
	a.onClose(exec.Shutdown)

	a.logger.Info("Executor ready", zap.String("mode", string(a.conc.ExecutorMode)))
	return exec, nil
}

// runner builds a flow runner from the flow configuration. extra options
// are applied last and override it.
func (a *app) runner(ctx context.Context, extra ...flow.Option) (*flow.Runner, error) {
	exec, err := a.executor(ctx)
	if err != nil {
		return nil, err
	}

	opts := append(a.cfg.Flow.Options(),
		flow.WithRegistry(a.registry()),
		flow.WithExecutor(exec),
		flow.WithLogger(a.logger))
	if a.reporter.Enabled() {
		opts = append(opts, flow.WithFailureHook(a.reporter.Hook()))
	}
	opts = append(opts, extra...)

	r := flow.NewRunner(opts...)
	if err := r.Validate(); err != nil {
		return nil, err
	}
	a.logger.Info("Flow ready", zap.Strings("steps", stepNames(r.Steps())))
	return r, nil
}

func (a *app) repository(ctx context.Context) (*repository.Repository, error) {
	if a.cfg.Database.DSN == "" {
		return nil, errors.New("database dsn is not set (PG_CONN)")
	}
	db, err := repository.Open(ctx, a.cfg.Database.DSN)
	if err != nil {
		return nil, err
	}
	a.onClose(func(context.Context) error { return db.Close() })
	return repository.New(db, repository.DefaultOptions()), nil
}

// archive returns nil when no storage is configured
func (a *app) archive() (*storage.Archive, error) {
	if a.cfg.Storage.ConnectionString == "" {
		return nil, nil
	}
	store, err := storage.NewAzureBlobStore(a.cfg.Storage.ConnectionString, a.cfg.Storage.Container, a.logger)
	if err != nil {
		return nil, err
	}
	return storage.NewArchive(store, a.logger), nil
}

func stepNames(steps []flow.Step) []string {
	names := make([]string, len(steps))
	for i, s := range steps {
		names[i] = s.Name
	}
	return names
}
