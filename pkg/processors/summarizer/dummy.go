package summarizer

import (
	"context"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// DummyName is the registry key of the truncating summarizer
const DummyName = "summarizer_dummy"

// DummyDescriptor declares the truncating summarizer's inputs and outputs
var DummyDescriptor = processor.Descriptor{
	Name:     DummyName,
	Version:  "0.1.0",
	Requires: []string{article.FieldCleanText},
	Provides: []string{article.FieldSummary},
}

// Dummy summarises by keeping the first maxLen characters of clean_text.
type Dummy struct {
	processor.Base
	maxLen int
}

// NewDummy creates a truncating summarizer. Recognised key: max_len (default 30).
func NewDummy(cfg processor.Config) (processor.Processor, error) {
	maxLen, err := cfg.IntDefault("max_len", 30)
	if err != nil {
		return nil, err
	}
	if maxLen <= 0 {
		return nil, pyerrors.InvalidConfig("max_len", "must be positive")
	}
	return &Dummy{Base: processor.NewBase(DummyDescriptor, cfg), maxLen: maxLen}, nil
}

func (d *Dummy) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	return article.FieldBag{article.FieldSummary: Truncate(bag.String(article.FieldCleanText), d.maxLen)}, nil
}

// Truncate returns at most n characters of s.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}
