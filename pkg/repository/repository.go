// Package repository reads articles awaiting enrichment from Postgres and
// writes enrichment results back. It only adds nullable columns to an
// existing articles table.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/wehubfusion/Pythia/pkg/article"
)

// Options names the table and columns the repository works on
type Options struct {
	Table      string
	TimeColumn string
	VectorSize int
}

// DefaultOptions returns the layout of the news articles table
func DefaultOptions() Options {
	return Options{
		Table:      "articles",
		TimeColumn: "created_at",
		VectorSize: 1024,
	}
}

// Row is an article as stored, with its cursor timestamp
type Row struct {
	ID        string
	CreatedAt time.Time
	Title     string
	Text      string
}

// Article converts the row into an article for processing
func (r Row) Article() article.Article {
	return article.New(r.Title, r.Text,
		article.WithID(r.ID),
		article.WithPublishTime(r.CreatedAt.UTC()))
}

// Cursor is a keyset position in (created_at, id) order. A zero ID resumes
// after every row stamped CreatedAt.
type Cursor struct {
	CreatedAt time.Time
	ID        string
}

// After returns the cursor positioned on this row
func (r Row) After() Cursor {
	return Cursor{CreatedAt: r.CreatedAt, ID: r.ID}
}

func (c Cursor) String() string {
	s := c.CreatedAt.Format(time.RFC3339Nano)
	if c.ID != "" {
		s += "/" + c.ID
	}
	return s
}

// EmbeddingUpdate is one vector to store
type EmbeddingUpdate struct {
	ID     string
	Vector []float32
}

// Repository persists enrichment results in Postgres
type Repository struct {
	db   *sql.DB
	opts Options
	psql sq.StatementBuilderType
}

// Open opens a Postgres handle with the lib/pq driver and checks it.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database dsn is empty")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// New wires a repository onto db. Zero option fields take their defaults.
func New(db *sql.DB, opts Options) *Repository {
	def := DefaultOptions()
	if opts.Table == "" {
		opts.Table = def.Table
	}
	if opts.TimeColumn == "" {
		opts.TimeColumn = def.TimeColumn
	}
	if opts.VectorSize <= 0 {
		opts.VectorSize = def.VectorSize
	}
	return &Repository{
		db:   db,
		opts: opts,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// schemaStatements lists the DDL run by EnsureSchema
func (r *Repository) schemaStatements() []string {
	columns := []string{
		"summary TEXT",
		"keywords TEXT[]",
		"events JSONB",
		"sentiment JSONB",
		"category TEXT",
		"topics TEXT[]",
		"enrichment_errors JSONB",
		"enriched_at TIMESTAMPTZ",
	}
	stmts := make([]string, 0, len(columns))
	for _, c := range columns {
		stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS %s", r.opts.Table, c))
	}
	return stmts
}

// EnsureSchema adds the enrichment columns when they are missing.
func (r *Repository) EnsureSchema(ctx context.Context) error {
	for _, stmt := range r.schemaStatements() {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// EnsureEmbeddingSchema enables pgvector and adds the embedding column.
func (r *Repository) EnsureEmbeddingSchema(ctx context.Context) error {
	stmts := []string{
		"CREATE EXTENSION IF NOT EXISTS vector",
		fmt.Sprintf("ALTER TABLE %s ADD COLUMN IF NOT EXISTS embedding vector(%d)", r.opts.Table, r.opts.VectorSize),
	}
	for _, stmt := range stmts {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure embedding schema: %w", err)
		}
	}
	return nil
}

func (r *Repository) fetchQuery(missingColumn string, after Cursor, limit int) sq.SelectBuilder {
	q := r.psql.
		Select("id", r.opts.TimeColumn, "title", "text").
		From(r.opts.Table).
		Where(sq.Eq{missingColumn: nil})
	if after.ID == "" {
		q = q.Where(sq.Gt{r.opts.TimeColumn: after.CreatedAt})
	} else {
		// rows sharing the last timestamp of a full page are ordered by id
		q = q.Where(sq.Expr(fmt.Sprintf("(%s, id) > (?, ?)", r.opts.TimeColumn), after.CreatedAt, after.ID))
	}
	return q.OrderBy(r.opts.TimeColumn, "id").Limit(uint64(limit))
}

// FetchPending returns up to limit articles past the cursor that have no
// summary yet, oldest first.
func (r *Repository) FetchPending(ctx context.Context, after Cursor, limit int) ([]Row, error) {
	return r.fetch(ctx, r.fetchQuery("summary", after, limit))
}

// FetchWithoutEmbedding returns up to limit articles past the cursor that
// have no embedding yet, oldest first.
func (r *Repository) FetchWithoutEmbedding(ctx context.Context, after Cursor, limit int) ([]Row, error) {
	return r.fetch(ctx, r.fetchQuery("embedding", after, limit))
}

func (r *Repository) fetch(ctx context.Context, q sq.SelectBuilder) ([]Row, error) {
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("build query: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query articles: %w", err)
	}

	var result []Row
	for rows.Next() {
		var (
			row   Row
			title sql.NullString
			text  sql.NullString
		)
		if err := rows.Scan(&row.ID, &row.CreatedAt, &title, &text); err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("scan article: %w", err)
		}
		row.Title = title.String
		row.Text = text.String
		result = append(result, row)
	}

	if rowsErr := rows.Err(); rowsErr != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("rows iteration: %w", rowsErr)
	}
	if closeErr := rows.Close(); closeErr != nil {
		return nil, fmt.Errorf("close rows: %w", closeErr)
	}
	return result, nil
}

func (r *Repository) saveQuery(res *article.Result) (sq.UpdateBuilder, error) {
	events, err := jsonOrNull(res.Events)
	if err != nil {
		return sq.UpdateBuilder{}, fmt.Errorf("encode events: %w", err)
	}
	sentiment, err := jsonOrNull(res.Sentiment)
	if err != nil {
		return sq.UpdateBuilder{}, fmt.Errorf("encode sentiment: %w", err)
	}
	errs, err := jsonOrNull(res.Errors)
	if err != nil {
		return sq.UpdateBuilder{}, fmt.Errorf("encode errors: %w", err)
	}

	// columns a run did not produce are left as they are
	q := r.psql.Update(r.opts.Table).
		Set("enrichment_errors", errs).
		Set("enriched_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": res.ID})
	if res.Summary != nil {
		q = q.Set("summary", *res.Summary)
	}
	if res.Keywords != nil {
		q = q.Set("keywords", pq.Array(res.Keywords))
	}
	if res.Events != nil {
		q = q.Set("events", events)
	}
	if res.Sentiment != nil {
		q = q.Set("sentiment", sentiment)
	}
	if res.Category != nil {
		q = q.Set("category", *res.Category)
	}
	if res.Topics != nil {
		q = q.Set("topics", pq.Array(res.Topics))
	}
	if res.Embedding != nil {
		q = q.Set("embedding", sq.Expr("?::vector", VectorLiteral(res.Embedding)))
	}
	return q, nil
}

// SaveResult writes the enrichment result of one article.
func (r *Repository) SaveResult(ctx context.Context, res *article.Result) error {
	q, err := r.saveQuery(res)
	if err != nil {
		return err
	}
	query, args, err := q.ToSql()
	if err != nil {
		return fmt.Errorf("build update: %w", err)
	}
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("save result %s: %w", res.ID, err)
	}
	return nil
}

func (r *Repository) embeddingQuery(u EmbeddingUpdate) sq.UpdateBuilder {
	return r.psql.Update(r.opts.Table).
		Set("embedding", sq.Expr("?::vector", VectorLiteral(u.Vector))).
		Where(sq.Eq{"id": u.ID})
}

// UpdateEmbeddings stores vectors in one transaction.
func (r *Repository) UpdateEmbeddings(ctx context.Context, updates []EmbeddingUpdate) error {
	if len(updates) == 0 {
		return nil
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	for _, u := range updates {
		query, args, err := r.embeddingQuery(u).ToSql()
		if err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("build update: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			_ = tx.Rollback()
			return fmt.Errorf("update embedding %s: %w", u.ID, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// VectorLiteral renders v in pgvector's text format, e.g. [0.1,0.2].
func VectorLiteral(v []float32) string {
	var b strings.Builder
	b.WriteByte('[')
	for i, x := range v {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatFloat(float64(x), 'f', -1, 32))
	}
	b.WriteByte(']')
	return b.String()
}

func jsonOrNull(v any) (any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	if string(data) == "null" {
		return nil, nil
	}
	return string(data), nil
}
