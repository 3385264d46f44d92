package article

import (
	"encoding/json"
	"fmt"
	"sort"
)

// Sentiment labels
const (
	SentimentPositive = "positive"
	SentimentNeutral  = "neutral"
	SentimentNegative = "negative"
)

// Entity is a named entity mention. Offset holds [start, end) rune offsets.
type Entity struct {
	Text       string   `json:"text"`
	Type       string   `json:"type"`
	Offset     [2]int   `json:"offset"`
	Confidence *float64 `json:"confidence,omitempty"`
}

// EventArg is a role-labelled argument of an event
type EventArg struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

// Event is an extracted event
type Event struct {
	Trigger   string     `json:"trigger"`
	Type      string     `json:"type"`
	Arguments []EventArg `json:"arguments"`
	Summary   string     `json:"summary,omitempty"`
}

// Sentiment is a document-level polarity judgement
type Sentiment struct {
	Label string  `json:"label"`
	Score float64 `json:"score"`
}

// Result is the externally visible outcome of one run
type Result struct {
	ID        string            `json:"id"`
	Summary   *string           `json:"summary,omitempty"`
	Events    []Event           `json:"events,omitempty"`
	Entities  []Entity          `json:"entities,omitempty"`
	Sentiment *Sentiment        `json:"sentiment,omitempty"`
	Keywords  []string          `json:"keywords,omitempty"`
	Topics    []string          `json:"topics,omitempty"`
	Category  *string           `json:"category,omitempty"`
	Embedding []float32         `json:"embedding,omitempty"`
	Errors    map[string]string `json:"errors,omitempty"`
}

// NewResult builds a Result from the final field bag. Values may be typed
// or generic JSON-decoded values. Fields that cannot be converted are left
// unset and reported through the returned map, keyed by field name.
func NewResult(id string, bag FieldBag, errs map[string]string) (*Result, map[string]error) {
	r := &Result{ID: id}
	problems := make(map[string]error)

	assign := func(key string, dst any) bool {
		v, ok := bag[key]
		if !ok || v == nil {
			return false
		}
		if err := convert(v, dst); err != nil {
			problems[key] = err
			return false
		}
		return true
	}

	var summary string
	if assign(FieldSummary, &summary) {
		r.Summary = &summary
	}
	assign(FieldEvents, &r.Events)
	assign(FieldEntities, &r.Entities)
	var sentiment Sentiment
	if assign(FieldSentiment, &sentiment) {
		r.Sentiment = &sentiment
	}
	assign(FieldKeywords, &r.Keywords)
	assign(FieldTopics, &r.Topics)
	var category string
	if assign(FieldCategory, &category) {
		r.Category = &category
	}
	assign(FieldEmbedding, &r.Embedding)

	if len(errs) > 0 {
		r.Errors = make(map[string]string, len(errs))
		for k, v := range errs {
			r.Errors[k] = v
		}
	}

	if len(problems) == 0 {
		return r, nil
	}
	return r, problems
}

// HasErrors reports whether any step failed
func (r *Result) HasErrors() bool {
	return len(r.Errors) > 0
}

// FailedSteps returns the names of failed steps, sorted
func (r *Result) FailedSteps() []string {
	names := make([]string, 0, len(r.Errors))
	for name := range r.Errors {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func convert(src, dst any) error {
	switch d := dst.(type) {
	case *string:
		s, ok := src.(string)
		if !ok {
			return fmt.Errorf("expected string, got %T", src)
		}
		*d = s
		return nil
	}

	data, err := json.Marshal(src)
	if err != nil {
		return fmt.Errorf("failed to encode %T: %w", src, err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to convert %T: %w", src, err)
	}
	return nil
}
