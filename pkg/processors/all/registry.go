// Package all wires every built-in processor into a registry.
package all

import (
	"github.com/wehubfusion/Pythia/pkg/llm"
	"github.com/wehubfusion/Pythia/pkg/processor"
	"github.com/wehubfusion/Pythia/pkg/processors/category"
	"github.com/wehubfusion/Pythia/pkg/processors/cleaner"
	"github.com/wehubfusion/Pythia/pkg/processors/embedding"
	"github.com/wehubfusion/Pythia/pkg/processors/eventllm"
	"github.com/wehubfusion/Pythia/pkg/processors/eventrule"
	"github.com/wehubfusion/Pythia/pkg/processors/sentiment"
	"github.com/wehubfusion/Pythia/pkg/processors/summarizer"
)

// Deps are the shared resources handed to processors that need them
type Deps struct {
	// LLM builds the shared model client on first use. Model-backed steps
	// fail at run time when it is nil.
	LLM *llm.Provider

	// MaxAbstractChars is the default summary limit of summarizer_llm
	MaxAbstractChars int
}

// Register registers every built-in processor in reg. Rule-based variants
// come before their model-backed counterparts so that, run together, the
// model output is merged last.
func Register(reg *processor.Registry, deps Deps) {
	reg.Register(cleaner.Name, cleaner.New)
	reg.Register(eventrule.Name, eventrule.New)
	reg.Register(eventllm.Name, eventllm.New(deps.LLM))
	reg.Register(summarizer.DummyName, summarizer.NewDummy)
	reg.Register(summarizer.LLMName, summarizer.NewLLM(deps.LLM, deps.MaxAbstractChars))
	reg.Register(sentiment.Name, sentiment.New(deps.LLM))
	reg.Register(embedding.Name, embedding.New(deps.LLM))
	reg.Register(category.Name, category.New)
}

// NewRegistry creates a registry with every built-in processor registered
func NewRegistry(deps Deps) *processor.Registry {
	reg := processor.NewRegistry()
	Register(reg, deps)
	return reg
}
