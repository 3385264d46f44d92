package repository

import (
	"testing"
	"time"

	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wehubfusion/Pythia/pkg/article"
)

func TestFetchQuery(t *testing.T) {
	r := New(nil, Options{})
	after := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	query, args, err := r.fetchQuery("summary", Cursor{CreatedAt: after}, 50).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, created_at, title, text FROM articles WHERE summary IS NULL AND created_at > $1 ORDER BY created_at, id LIMIT 50",
		query)
	assert.Equal(t, []any{after}, args)
}

func TestFetchQueryResumesWithinTimestamp(t *testing.T) {
	r := New(nil, Options{})
	row := Row{ID: "17", CreatedAt: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)}

	query, args, err := r.fetchQuery("summary", row.After(), 50).ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"SELECT id, created_at, title, text FROM articles WHERE summary IS NULL AND (created_at, id) > ($1, $2) ORDER BY created_at, id LIMIT 50",
		query)
	assert.Equal(t, []any{row.CreatedAt, "17"}, args)
	assert.Equal(t, "2024-05-01T00:00:00Z/17", row.After().String())
}

func TestFetchQueryCustomLayout(t *testing.T) {
	r := New(nil, Options{Table: "news", TimeColumn: "published_at"})

	query, _, err := r.fetchQuery("embedding", Cursor{}, 10).ToSql()
	require.NoError(t, err)
	assert.Contains(t, query, "FROM news")
	assert.Contains(t, query, "embedding IS NULL")
	assert.Contains(t, query, "ORDER BY published_at, id")
}

func TestSaveQuery(t *testing.T) {
	r := New(nil, Options{})
	summary := "苹果发布新品"
	res := &article.Result{
		ID:       "42",
		Summary:  &summary,
		Keywords: []string{"苹果", "iPhone"},
		Events:   []article.Event{{Trigger: "发布", Type: "STATEMENT"}},
		Errors:   map[string]string{"sentiment_llm": "model unavailable"},
	}

	q, err := r.saveQuery(res)
	require.NoError(t, err)
	query, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Equal(t,
		"UPDATE articles SET enrichment_errors = $1, enriched_at = NOW(), summary = $2, keywords = $3, events = $4 WHERE id = $5",
		query)
	require.Len(t, args, 5)
	assert.JSONEq(t, `{"sentiment_llm":"model unavailable"}`, args[0].(string))
	assert.Equal(t, summary, args[1])
	assert.Equal(t, pq.Array([]string{"苹果", "iPhone"}), args[2])
	assert.JSONEq(t, `[{"trigger":"发布","type":"STATEMENT","arguments":null}]`, args[3].(string))
	assert.Equal(t, "42", args[4])
}

func TestSaveQueryClearsErrors(t *testing.T) {
	r := New(nil, Options{})

	q, err := r.saveQuery(&article.Result{ID: "7", Embedding: []float32{0.5, -1}})
	require.NoError(t, err)
	query, args, err := q.ToSql()
	require.NoError(t, err)

	assert.Equal(t, "UPDATE articles SET enrichment_errors = $1, enriched_at = NOW(), embedding = $2::vector WHERE id = $3", query)
	assert.Equal(t, []any{nil, "[0.5,-1]", "7"}, args)
}

func TestEmbeddingQuery(t *testing.T) {
	r := New(nil, Options{})

	query, args, err := r.embeddingQuery(EmbeddingUpdate{ID: "1", Vector: []float32{0.25}}).ToSql()
	require.NoError(t, err)
	assert.Equal(t, "UPDATE articles SET embedding = $1::vector WHERE id = $2", query)
	assert.Equal(t, []any{"[0.25]", "1"}, args)
}

func TestSchemaStatements(t *testing.T) {
	r := New(nil, Options{Table: "news"})
	stmts := r.schemaStatements()
	require.NotEmpty(t, stmts)
	for _, s := range stmts {
		assert.Contains(t, s, "ALTER TABLE news ADD COLUMN IF NOT EXISTS")
	}
}

func TestVectorLiteral(t *testing.T) {
	assert.Equal(t, "[]", VectorLiteral(nil))
	assert.Equal(t, "[0.1,2,-3.5]", VectorLiteral([]float32{0.1, 2, -3.5}))
}

func TestRowArticle(t *testing.T) {
	ts := time.Date(2024, 5, 1, 8, 0, 0, 0, time.UTC)
	a := Row{ID: "9", CreatedAt: ts, Title: "标题", Text: "正文"}.Article()

	assert.Equal(t, "9", a.ID)
	assert.Equal(t, ts, a.PublishTime)
	assert.Equal(t, "标题", a.Title)
	assert.Equal(t, "正文", a.Text)
}
