// Package embedding attaches a vector embedding of one text field.
package embedding

import (
	"context"
	"fmt"
	"strings"

	"github.com/wehubfusion/Pythia/pkg/article"
	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
	"github.com/wehubfusion/Pythia/pkg/llm"
	"github.com/wehubfusion/Pythia/pkg/processor"
)

// Name is the registry key of the embedder
const Name = "embedding"

// Descriptor declares the embedder's default inputs and outputs. The
// required field follows the field setting of each instance.
var Descriptor = processor.Descriptor{
	Name:     Name,
	Version:  "1.0.0",
	Requires: []string{article.FieldTitle},
	Provides: []string{article.FieldEmbedding},
}

// Embedder embeds the configured field.
type Embedder struct {
	processor.Base
	provider   *llm.Provider
	field      string
	dimensions int
}

// New returns a constructor bound to the shared model client.
// Recognised keys: field (default title) and dimensions (0 disables the check).
func New(provider *llm.Provider) processor.Constructor {
	return func(cfg processor.Config) (processor.Processor, error) {
		field, err := cfg.StringDefault("field", article.FieldTitle)
		if err != nil {
			return nil, err
		}
		dimensions, err := cfg.Int("dimensions")
		if err != nil {
			return nil, err
		}
		if dimensions < 0 {
			return nil, pyerrors.InvalidConfig("dimensions", "must not be negative")
		}

		d := Descriptor
		d.Requires = []string{field}
		return &Embedder{
			Base:       processor.NewBase(d, cfg),
			provider:   provider,
			field:      field,
			dimensions: dimensions,
		}, nil
	}
}

func (e *Embedder) Run(ctx context.Context, bag article.FieldBag, ec *processor.ExecutionContext) (article.FieldBag, error) {
	text := strings.TrimSpace(bag.String(e.field))
	if text == "" {
		return article.FieldBag{}, nil
	}

	client, err := e.provider.Client()
	if err != nil {
		return nil, err
	}

	vectors, err := client.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	if len(vectors) != 1 {
		return nil, fmt.Errorf("expected 1 embedding, got %d", len(vectors))
	}
	if e.dimensions > 0 && len(vectors[0]) != e.dimensions {
		return nil, fmt.Errorf("embedding has %d dimensions, want %d", len(vectors[0]), e.dimensions)
	}

	return article.FieldBag{article.FieldEmbedding: vectors[0]}, nil
}
