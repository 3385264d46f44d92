// Package llmtest provides an in-memory llm.Client for tests.
package llmtest

import (
	"context"
	"sync"

	"github.com/wehubfusion/Pythia/pkg/llm"
)

// Fake is a scripted llm.Client. ChatFunc and EmbedFunc, when set, override
// the canned Reply and Vector.
type Fake struct {
	Reply     string
	Vector    []float32
	Err       error
	ChatFunc  func(req llm.ChatRequest) (string, error)
	EmbedFunc func(inputs []string) ([][]float32, error)

	mu       sync.Mutex
	requests []llm.ChatRequest
	inputs   [][]string
}

var _ llm.Client = (*Fake)(nil)

func (f *Fake) Chat(ctx context.Context, req llm.ChatRequest) (string, error) {
	f.mu.Lock()
	f.requests = append(f.requests, req)
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return "", err
	}
	if f.ChatFunc != nil {
		return f.ChatFunc(req)
	}
	return f.Reply, f.Err
}

func (f *Fake) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	f.mu.Lock()
	f.inputs = append(f.inputs, append([]string(nil), inputs...))
	f.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if f.EmbedFunc != nil {
		return f.EmbedFunc(inputs)
	}
	if f.Err != nil {
		return nil, f.Err
	}
	out := make([][]float32, len(inputs))
	for i := range inputs {
		out[i] = append([]float32(nil), f.Vector...)
	}
	return out, nil
}

// Requests returns the chat requests received so far
func (f *Fake) Requests() []llm.ChatRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]llm.ChatRequest(nil), f.requests...)
}

// Inputs returns the embedding batches received so far
func (f *Fake) Inputs() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.inputs...)
}

// Provider wraps f in an llm.Provider
func (f *Fake) Provider() *llm.Provider {
	return llm.Static(f)
}
