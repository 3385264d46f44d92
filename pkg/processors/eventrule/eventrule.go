// Package eventrule is a keyword-based event extractor. It needs no model
// and serves as the baseline for event_llm.
package eventrule

import (
	"context"
	"regexp"
	"strings"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// Name is the registry key of the rule-based extractor
const Name = "event_dummy"

// DefaultTriggers are the trigger words matched when none are configured
var DefaultTriggers = []string{"宣布", "发布", "推出", "签署", "完成", "收购"}

// Descriptor declares the extractor's inputs and outputs
var Descriptor = processor.Descriptor{
	Name:     Name,
	Version:  "0.1.0",
	Requires: []string{article.FieldCleanText},
	Provides: []string{article.FieldEvents},
}

// Extractor reports the first trigger word found in clean_text as a single event.
type Extractor struct {
	processor.Base
	pattern   *regexp.Regexp
	eventType string
}

// New creates an extractor. Recognised keys: triggers (list of words) and
// event_type (default STATEMENT).
func New(cfg processor.Config) (processor.Processor, error) {
	triggers, err := cfg.Strings("triggers")
	if err != nil {
		return nil, err
	}
	if len(triggers) == 0 {
		triggers = DefaultTriggers
	}

	quoted := make([]string, 0, len(triggers))
	for _, t := range triggers {
		if t == "" {
			return nil, pyerrors.InvalidConfig("triggers", "empty trigger word")
		}
		quoted = append(quoted, regexp.QuoteMeta(t))
	}

	eventType, err := cfg.StringDefault("event_type", "STATEMENT")
	if err != nil {
		return nil, err
	}

	return &Extractor{
		Base:      processor.NewBase(Descriptor, cfg),
		pattern:   regexp.MustCompile("(" + strings.Join(quoted, "|") + ")"),
		eventType: eventType,
	}, nil
}

func (e *Extractor) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	match := e.pattern.FindString(bag.String(article.FieldCleanText))
	if match == "" {
		return article.FieldBag{article.FieldEvents: []article.Event{}}, nil
	}

	evt := article.Event{
		Trigger:   match,
		Type:      e.eventType,
		Arguments: []article.EventArg{{Role: "trigger", Text: match}},
	}
	return article.FieldBag{article.FieldEvents: []article.Event{evt}}, nil
}
