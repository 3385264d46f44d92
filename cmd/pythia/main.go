// Command pythia enriches news articles with summaries, events and
// embeddings.
//
// Usage:
//
//	pythia enrich [-since RFC3339] [-page N] [-parallelism N] [-steps a,b]
//	pythia embed  [-since RFC3339] [-page N]
//	pythia rss    [-steps a,b] [feed-url ...]
//	pythia worker
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/internal/logging"
	"github.com/wehubfusion/Pythia/internal/reporting"
	"github.com/wehubfusion/Pythia/internal/tracing"
	"github.com/wehubfusion/Pythia/pkg/concurrency"
	"github.com/wehubfusion/Pythia/pkg/config"
)

const usage = `usage: pythia <command> [flags]

commands:
  enrich   enrich stored articles that have no summary yet
  embed    fill missing title embeddings
  rss      fetch feeds and print enriched results as JSON lines
  worker   serve queued processor tasks
`

type command func(ctx context.Context, a *app, args []string) error

var commands = map[string]command{
	"enrich": runEnrich,
	"embed":  runEmbed,
	"rss":    runRSS,
	"worker": runWorker,
}

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	cmd, ok := commands[os.Args[1]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n%s", os.Args[1], usage)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger, err := logging.New(cfg.Log.Level, cfg.Log.Development)
	if err != nil {
		log.Fatalf("Failed to create logger: %v", err)
	}
	defer logger.Sync()

	undo := concurrency.InitializeForKubernetes(logger)
	defer undo()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cmd, cfg, logger, os.Args[2:]); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info("Interrupted")
			return
		}
		logger.Error("Command failed", zap.String("command", os.Args[1]), zap.Error(err))
		logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cmd command, cfg config.Config, logger *zap.Logger, args []string) error {
	shutdownTracing, err := tracing.Setup(ctx, cfg.Tracing, logger)
	if err != nil {
		return err
	}
	defer tracing.Shutdown(shutdownTracing, logger)

	reporter, err := reporting.New(cfg.Sentry, logger)
	if err != nil {
		return err
	}
	defer reporter.Flush(5 * time.Second)

	conc := concurrency.LoadConfig()
	logger.Info("Concurrency configured", zap.String("config", conc.String()))

	a := newApp(cfg, conc, reporter, logger)
	defer a.close()

	return cmd(ctx, a, args)
}
