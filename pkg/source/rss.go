// Package source turns RSS and Atom feeds into articles.
package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"

	"github.com/wehubfusion/Pythia/pkg/article"
	"github.com/wehubfusion/Pythia/pkg/processors/cleaner"
)

// RSS fetches feeds over HTTP
type RSS struct {
	client *http.Client
	logger *zap.Logger
}

// NewRSS creates a feed fetcher. timeout bounds each HTTP request.
func NewRSS(timeout time.Duration, logger *zap.Logger) *RSS {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RSS{
		client: &http.Client{Timeout: timeout},
		logger: logger,
	}
}

// Fetch downloads and parses one feed.
func (r *RSS) Fetch(ctx context.Context, feedURL string) ([]article.Article, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, feedURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch feed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("feed %s returned status: %d", feedURL, resp.StatusCode)
	}

	articles, err := Parse(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("feed %s: %w", feedURL, err)
	}

	r.logger.Debug("Fetched feed",
		zap.String("url", feedURL),
		zap.Int("articles", len(articles)))
	return articles, nil
}

// FetchAll fetches feeds with up to workers at a time. A feed that fails is
// logged and skipped. Articles keep feed order.
func (r *RSS) FetchAll(ctx context.Context, feeds []string, workers int) []article.Article {
	if workers <= 0 {
		workers = 3
	}

	perFeed := make([][]article.Article, len(feeds))
	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup

	for i, feedURL := range feeds {
		if !strings.HasPrefix(feedURL, "http://") && !strings.HasPrefix(feedURL, "https://") {
			r.logger.Warn("Skipping feed with unsupported scheme", zap.String("url", feedURL))
			continue
		}

		select {
		case sem <- struct{}{}:
		case <-ctx.Done():
			wg.Wait()
			return flatten(perFeed)
		}

		wg.Add(1)
		go func(i int, feedURL string) {
			defer wg.Done()
			defer func() { <-sem }()

			articles, err := r.Fetch(ctx, feedURL)
			if err != nil {
				r.logger.Warn("Failed to fetch feed", zap.String("url", feedURL), zap.Error(err))
				return
			}
			perFeed[i] = articles
		}(i, feedURL)
	}
	wg.Wait()

	return flatten(perFeed)
}

func flatten(perFeed [][]article.Article) []article.Article {
	var all []article.Article
	for _, articles := range perFeed {
		all = append(all, articles...)
	}
	return all
}

// Parse reads a feed document. Items without a title are dropped.
func Parse(reader io.Reader) ([]article.Article, error) {
	feed, err := gofeed.NewParser().Parse(reader)
	if err != nil {
		return nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	articles := make([]article.Article, 0, len(feed.Items))
	for _, item := range feed.Items {
		if a, ok := itemToArticle(item, feed.Title); ok {
			articles = append(articles, a)
		}
	}
	return articles, nil
}

func itemToArticle(item *gofeed.Item, source string) (article.Article, bool) {
	title := strings.TrimSpace(item.Title)
	if title == "" {
		return article.Article{}, false
	}

	body := item.Content
	if strings.TrimSpace(body) == "" {
		body = item.Description
	}
	text, err := cleaner.StripHTML(body)
	if err != nil {
		text = body
	}

	opts := []article.Option{article.WithSource(source)}
	switch {
	case item.GUID != "":
		opts = append(opts, article.WithID(item.GUID))
	case item.Link != "":
		opts = append(opts, article.WithID(item.Link))
	}
	switch {
	case item.PublishedParsed != nil:
		opts = append(opts, article.WithPublishTime(item.PublishedParsed.UTC()))
	case item.UpdatedParsed != nil:
		opts = append(opts, article.WithPublishTime(item.UpdatedParsed.UTC()))
	}

	return article.New(title, strings.TrimSpace(text), opts...), true
}
