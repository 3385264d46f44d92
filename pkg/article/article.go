// Package article defines the data flowing through an enrichment run: the
// input article, the field bag shared between steps, and the final result.
package article

import (
	"errors"
	"strings"
	"time"
)

// ErrInvalidArticle is returned by Validate for articles that cannot be processed
var ErrInvalidArticle = errors.New("invalid article")

// Article is a news item submitted for enrichment
type Article struct {
	ID          string    `json:"id"`
	Source      string    `json:"source,omitempty"`
	PublishTime time.Time `json:"publish_time"`
	Title       string    `json:"title"`
	Text        string    `json:"text"`
}

// Option customises an Article built with New
type Option func(*Article)

// WithID sets the article identifier
func WithID(id string) Option {
	return func(a *Article) { a.ID = id }
}

// WithSource sets the article source
func WithSource(source string) Option {
	return func(a *Article) { a.Source = source }
}

// WithPublishTime sets the publication time
func WithPublishTime(t time.Time) Option {
	return func(a *Article) { a.PublishTime = t }
}

// New creates an article. The publish time defaults to now in UTC.
func New(title, text string, opts ...Option) Article {
	a := Article{
		Title:       title,
		Text:        text,
		PublishTime: time.Now().UTC(),
	}
	for _, opt := range opts {
		opt(&a)
	}
	return a
}

// Validate checks that the article carries a title. Empty text is allowed.
func (a Article) Validate() error {
	if strings.TrimSpace(a.Title) == "" {
		return errors.Join(ErrInvalidArticle, errors.New("title is empty"))
	}
	return nil
}

// Fields seeds a field bag from the article. The identifier is not seeded.
func (a Article) Fields() FieldBag {
	bag := FieldBag{
		FieldTitle:       a.Title,
		FieldText:        a.Text,
		FieldPublishTime: a.PublishTime,
	}
	if a.Source != "" {
		bag[FieldSource] = a.Source
	}
	return bag
}
