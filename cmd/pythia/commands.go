package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/batch"
	"github.com/wehubfusion/Pythia/pkg/flow"
	"github.com/wehubfusion/Pythia/pkg/processor"
	"github.com/wehubfusion/Pythia/pkg/processors/embedding"
	"github.com/wehubfusion/Pythia/pkg/repository"
	"github.com/wehubfusion/Pythia/pkg/source"
	"github.com/wehubfusion/Pythia/pkg/worker"
)

type backfillFlags struct {
	since       string
	page        int
	parallelism int
	steps       string
}

func (f *backfillFlags) register(fs *flag.FlagSet, a *app, page int) {
	fs.StringVar(&f.since, "since", "", "only rows created after this RFC3339 time")
	fs.IntVar(&f.page, "page", page, "rows per page")
	fs.IntVar(&f.parallelism, "parallelism", a.conc.BatchParallelism, "articles processed at once")
}

func (f *backfillFlags) options() (batch.Options, error) {
	opts := batch.Options{PageSize: f.page, Parallelism: f.parallelism}
	if f.since != "" {
		t, err := time.Parse(time.RFC3339, f.since)
		if err != nil {
			return opts, fmt.Errorf("invalid -since: %w", err)
		}
		opts.Since = t
	}
	return opts, nil
}

// stepOverride turns a comma-separated -steps value into runner options
func stepOverride(steps string) []flow.Option {
	var names []string
	for _, s := range strings.Split(steps, ",") {
		if s = strings.TrimSpace(s); s != "" {
			names = append(names, s)
		}
	}
	if len(names) == 0 {
		return nil
	}
	return []flow.Option{flow.WithStepNames(names...)}
}

func runEnrich(ctx context.Context, a *app, args []string) error {
	var f backfillFlags
	fs := flag.NewFlagSet("enrich", flag.ContinueOnError)
	f.register(fs, a, a.cfg.Database.BatchSize)
	fs.StringVar(&f.steps, "steps", "", "comma-separated steps overriding the configured flow")
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts, err := f.options()
	if err != nil {
		return err
	}

	repo, err := a.repository(ctx)
	if err != nil {
		return err
	}
	if err := repo.EnsureSchema(ctx); err != nil {
		return err
	}

	r, err := a.runner(ctx, stepOverride(f.steps)...)
	if err != nil {
		return err
	}

	archive, err := a.archive()
	if err != nil {
		return err
	}
	if archive != nil {
		opts.Archive = archive
	}

	stats, err := batch.NewBackfill(repo, r, opts, a.logger).Run(ctx)
	logStats(a.logger, "Enrichment", stats, r.Metrics())
	return err
}

func runEmbed(ctx context.Context, a *app, args []string) error {
	var f backfillFlags
	fs := flag.NewFlagSet("embed", flag.ContinueOnError)
	f.register(fs, a, 128)
	if err := fs.Parse(args); err != nil {
		return err
	}
	opts, err := f.options()
	if err != nil {
		return err
	}

	repo, err := a.repository(ctx)
	if err != nil {
		return err
	}
	if err := repo.EnsureEmbeddingSchema(ctx); err != nil {
		return err
	}

	r, err := a.runner(ctx, flow.WithSteps(flow.Step{
		Name:   embedding.Name,
		Config: processor.Config{"dimensions": repository.DefaultOptions().VectorSize},
	}))
	if err != nil {
		return err
	}

	stats, err := batch.NewEmbeddingBackfill(repo, r, opts, a.logger).Run(ctx)
	logStats(a.logger, "Embedding", stats, r.Metrics())
	return err
}

func runRSS(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("rss", flag.ContinueOnError)
	steps := fs.String("steps", "", "comma-separated steps overriding the configured flow")
	timeout := fs.Duration("timeout", 30*time.Second, "per-feed HTTP timeout")
	if err := fs.Parse(args); err != nil {
		return err
	}

	feeds := fs.Args()
	if len(feeds) == 0 {
		feeds = a.cfg.Feeds
	}
	if len(feeds) == 0 {
		return errors.New("no feeds given on the command line or in the config")
	}

	articles := source.NewRSS(*timeout, a.logger).FetchAll(ctx, feeds, 4)
	a.logger.Info("Fetched articles", zap.Int("feeds", len(feeds)), zap.Int("articles", len(articles)))

	r, err := a.runner(ctx, stepOverride(*steps)...)
	if err != nil {
		return err
	}
	archive, err := a.archive()
	if err != nil {
		return err
	}

	results, runErr := r.ProcessBatch(ctx, articles, a.conc.BatchParallelism)
	enc := json.NewEncoder(os.Stdout)
	enc.SetEscapeHTML(false)
	for _, res := range results {
		if res == nil {
			continue
		}
		if err := enc.Encode(res); err != nil {
			return err
		}
		if archive != nil {
			if _, err := archive.Put(ctx, res); err != nil {
				a.logger.Warn("Failed to archive result", zap.String("article_id", res.ID), zap.Error(err))
			}
		}
	}
	return runErr
}

func runWorker(ctx context.Context, a *app, args []string) error {
	fs := flag.NewFlagSet("worker", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	b, err := a.connectBus(ctx)
	if err != nil {
		return err
	}

	w, err := worker.New(b, a.registry(), worker.Config{
		Subject:     a.cfg.Queue.Subject,
		Queue:       a.cfg.Queue.Group,
		NumWorkers:  a.conc.RunnerWorkers,
		TaskTimeout: a.conc.TaskTimeout,
	}, a.conc.NewStepLimiter(), a.logger)
	if err != nil {
		return err
	}
	err = w.Run(ctx)
	processed, failed := w.Stats()
	a.logger.Info("Worker finished", zap.Int64("processed", processed), zap.Int64("failed", failed))
	return err
}

func logStats(logger *zap.Logger, job string, stats batch.Stats, m flow.Metrics) {
	logger.Info(job+" finished",
		zap.Int("pages", stats.Pages),
		zap.Int("fetched", stats.Fetched),
		zap.Int("saved", stats.Saved),
		zap.Int("partial", stats.Partial),
		zap.Int("failed", stats.Failed),
		zap.Stringer("cursor", stats.Cursor),
		zap.Int64("steps_processed", m.StepsProcessed),
		zap.Int64("steps_failed", m.StepsFailed),
		zap.Duration("avg_step_time", m.AverageStepTime()),
		zap.Float64("error_rate", m.ErrorRate()))
}
