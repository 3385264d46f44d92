// Package batch drives enrichment over stored articles page by page,
// advancing a (created_at, id) cursor until no rows are left.
package batch

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/repository"
)

// Processor enriches a batch of articles; *flow.Runner satisfies it
type Processor interface {
	ProcessBatch(ctx context.Context, articles []article.Article, parallelism int) ([]*article.Result, error)
}

// ResultStore is the part of the repository Backfill uses
type ResultStore interface {
	FetchPending(ctx context.Context, after repository.Cursor, limit int) ([]repository.Row, error)
	SaveResult(ctx context.Context, res *article.Result) error
}

// EmbeddingStore is the part of the repository EmbeddingBackfill uses
type EmbeddingStore interface {
	FetchWithoutEmbedding(ctx context.Context, after repository.Cursor, limit int) ([]repository.Row, error)
	UpdateEmbeddings(ctx context.Context, updates []repository.EmbeddingUpdate) error
}

// Archiver keeps a copy of every result; *storage.Archive satisfies it
type Archiver interface {
	Put(ctx context.Context, res *article.Result) (string, error)
}

// Options tunes a backfill
type Options struct {
	// PageSize is the number of rows fetched per page
	PageSize int

	// Parallelism bounds concurrent article runs within a page
	Parallelism int

	// Since is the initial cursor; zero starts from the beginning
	Since time.Time

	// Archive, when set, receives every result after it is saved
	Archive Archiver
}

// Stats summarises a finished backfill
type Stats struct {
	Pages   int
	Fetched int
	Saved   int
	Partial int
	Failed  int
	Cursor  repository.Cursor
}

// Backfill enriches every article lacking a summary.
type Backfill struct {
	store  ResultStore
	proc   Processor
	opts   Options
	logger *zap.Logger
}

// NewBackfill creates a backfill driver.
func NewBackfill(store ResultStore, proc Processor, opts Options, logger *zap.Logger) *Backfill {
	if opts.PageSize <= 0 {
		opts.PageSize = 20
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Backfill{store: store, proc: proc, opts: opts, logger: logger}
}

// Run pages through pending articles until a page comes back empty. A
// result that cannot be saved is logged and counted; the cursor still moves
// past it.
func (b *Backfill) Run(ctx context.Context) (Stats, error) {
	stats := Stats{Cursor: repository.Cursor{CreatedAt: b.opts.Since}}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		rows, err := b.store.FetchPending(ctx, stats.Cursor, b.opts.PageSize)
		if err != nil {
			return stats, fmt.Errorf("fetch page after %s: %w", stats.Cursor, err)
		}
		if len(rows) == 0 {
			b.logger.Info("Backfill finished",
				zap.Int("pages", stats.Pages),
				zap.Int("saved", stats.Saved),
				zap.Int("failed", stats.Failed))
			return stats, nil
		}

		articles := make([]article.Article, len(rows))
		for i, row := range rows {
			articles[i] = row.Article()
		}

		results, err := b.proc.ProcessBatch(ctx, articles, b.opts.Parallelism)
		if err != nil {
			return stats, err
		}

		for _, res := range results {
			if res == nil {
				continue
			}
			b.save(ctx, res, &stats)
		}

		stats.Pages++
		stats.Fetched += len(rows)
		stats.Cursor = rows[len(rows)-1].After()
		b.logger.Info("Backfill page done",
			zap.Int("page", stats.Pages),
			zap.Int("rows", len(rows)),
			zap.Stringer("cursor", stats.Cursor))
	}
}

func (b *Backfill) save(ctx context.Context, res *article.Result, stats *Stats) {
	if res.HasErrors() {
		stats.Partial++
		b.logger.Warn("Article enriched with failures",
			zap.String("article_id", res.ID),
			zap.Any("errors", res.Errors))
	}

	if err := b.store.SaveResult(ctx, res); err != nil {
		stats.Failed++
		b.logger.Error("Failed to save result", zap.String("article_id", res.ID), zap.Error(err))
		return
	}
	stats.Saved++

	if b.opts.Archive != nil {
		if _, err := b.opts.Archive.Put(ctx, res); err != nil {
			b.logger.Warn("Failed to archive result", zap.String("article_id", res.ID), zap.Error(err))
		}
	}
}

// EmbeddingBackfill fills the embedding column for articles lacking one.
// The processor is expected to run an embedding step.
type EmbeddingBackfill struct {
	store  EmbeddingStore
	proc   Processor
	opts   Options
	logger *zap.Logger
}

// NewEmbeddingBackfill creates an embedding backfill driver.
func NewEmbeddingBackfill(store EmbeddingStore, proc Processor, opts Options, logger *zap.Logger) *EmbeddingBackfill {
	if opts.PageSize <= 0 {
		opts.PageSize = 128
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmbeddingBackfill{store: store, proc: proc, opts: opts, logger: logger}
}

// Run pages through articles without an embedding until a page comes back
// empty. Each page's vectors are written in one transaction.
func (e *EmbeddingBackfill) Run(ctx context.Context) (Stats, error) {
	stats := Stats{Cursor: repository.Cursor{CreatedAt: e.opts.Since}}

	for {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		rows, err := e.store.FetchWithoutEmbedding(ctx, stats.Cursor, e.opts.PageSize)
		if err != nil {
			return stats, fmt.Errorf("fetch page after %s: %w", stats.Cursor, err)
		}
		if len(rows) == 0 {
			e.logger.Info("Embedding backfill finished",
				zap.Int("pages", stats.Pages),
				zap.Int("saved", stats.Saved))
			return stats, nil
		}

		articles := make([]article.Article, len(rows))
		for i, row := range rows {
			articles[i] = row.Article()
		}

		results, err := e.proc.ProcessBatch(ctx, articles, e.opts.Parallelism)
		if err != nil {
			return stats, err
		}

		updates := make([]repository.EmbeddingUpdate, 0, len(results))
		for _, res := range results {
			if res == nil {
				continue
			}
			if len(res.Embedding) == 0 {
				stats.Failed++
				e.logger.Warn("No embedding produced",
					zap.String("article_id", res.ID),
					zap.Any("errors", res.Errors))
				continue
			}
			updates = append(updates, repository.EmbeddingUpdate{ID: res.ID, Vector: res.Embedding})
		}

		if err := e.store.UpdateEmbeddings(ctx, updates); err != nil {
			return stats, fmt.Errorf("store embeddings: %w", err)
		}

		stats.Pages++
		stats.Fetched += len(rows)
		stats.Saved += len(updates)
		stats.Cursor = rows[len(rows)-1].After()
		e.logger.Info("Embedding page done",
			zap.Int("page", stats.Pages),
			zap.Int("updated", len(updates)),
			zap.Stringer("cursor", stats.Cursor))
	}
}
