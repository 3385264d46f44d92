// Package llm provides the language-model client shared by the LLM-backed
// processors, and a provider that builds it lazily on first use.
package llm

import (
	"context"
	"errors"
	"sync"
)

// ErrNoProvider is returned when an LLM-backed processor is used without a client
var ErrNoProvider = errors.New("no LLM provider configured")

// Message is a single chat message
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest describes one non-streaming chat completion
type ChatRequest struct {
	System      string
	Prompt      string
	JSON        bool
	Temperature float64
}

// Client is the subset of a model server the processors rely on
type Client interface {
	// Chat returns the content of the assistant's reply
	Chat(ctx context.Context, req ChatRequest) (string, error)

	// Embed returns one vector per input, in input order
	Embed(ctx context.Context, inputs []string) ([][]float32, error)
}

// Provider builds a Client once and hands the same instance to every caller.
type Provider struct {
	build  func() (Client, error)
	once   sync.Once
	client Client
	err    error
}

// NewProvider creates a provider around a builder that runs at most once.
func NewProvider(build func() (Client, error)) *Provider {
	return &Provider{build: build}
}

// Static wraps an existing client.
func Static(c Client) *Provider {
	return NewProvider(func() (Client, error) { return c, nil })
}

// Client returns the shared client, building it on first call. A build
// failure is remembered and returned to every caller.
func (p *Provider) Client() (Client, error) {
	if p == nil || p.build == nil {
		return nil, ErrNoProvider
	}
	p.once.Do(func() {
		p.client, p.err = p.build()
	})
	return p.client, p.err
}
