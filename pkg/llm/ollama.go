package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// OllamaConfig configures the Ollama HTTP client
type OllamaConfig struct {
	BaseURL    string        `yaml:"base_url"`
	Model      string        `yaml:"model"`
	EmbedModel string        `yaml:"embed_model"`
	Timeout    time.Duration `yaml:"timeout"`
}

// DefaultOllamaConfig returns the settings of a local Ollama install
func DefaultOllamaConfig() OllamaConfig {
	return OllamaConfig{
		BaseURL:    "http://127.0.0.1:11434",
		Model:      "qwen3:4b",
		EmbedModel: "bge-m3",
		Timeout:    120 * time.Second,
	}
}

// OllamaClient implements Client against the Ollama REST API.
type OllamaClient struct {
	baseURL    string
	model      string
	embedModel string
	httpClient *http.Client
}

var _ Client = (*OllamaClient)(nil)

// NewOllamaClient builds a client from configuration.
func NewOllamaClient(cfg OllamaConfig) (*OllamaClient, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, fmt.Errorf("ollama base url is empty")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultOllamaConfig().Timeout
	}
	return &OllamaClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		model:      cfg.Model,
		embedModel: cfg.EmbedModel,
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

type chatPayload struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type chatResponse struct {
	Message Message `json:"message"`
	Error   string  `json:"error"`
}

// Chat posts a single non-streaming chat request.
func (c *OllamaClient) Chat(ctx context.Context, req ChatRequest) (string, error) {
	if c.model == "" {
		return "", fmt.Errorf("ollama chat model is not configured")
	}

	payload := chatPayload{
		Model:   c.model,
		Stream:  false,
		Options: map[string]any{"temperature": req.Temperature},
	}
	if req.System != "" {
		payload.Messages = append(payload.Messages, Message{Role: "system", Content: req.System})
	}
	payload.Messages = append(payload.Messages, Message{Role: "user", Content: req.Prompt})
	if req.JSON {
		// keeps reasoning models from emitting think tags
		payload.Format = "json"
	}

	var out chatResponse
	if err := c.post(ctx, "/api/chat", payload, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", fmt.Errorf("ollama chat: %s", out.Error)
	}
	return out.Message.Content, nil
}

type embedPayload struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type embedResponse struct {
	Embeddings [][]float32 `json:"embeddings"`
	Error      string      `json:"error"`
}

// Embed requests embeddings for inputs.
func (c *OllamaClient) Embed(ctx context.Context, inputs []string) ([][]float32, error) {
	if c.embedModel == "" {
		return nil, fmt.Errorf("ollama embedding model is not configured")
	}
	if len(inputs) == 0 {
		return nil, nil
	}

	var out embedResponse
	if err := c.post(ctx, "/api/embed", embedPayload{Model: c.embedModel, Input: inputs}, &out); err != nil {
		return nil, err
	}
	if out.Error != "" {
		return nil, fmt.Errorf("ollama embed: %s", out.Error)
	}
	if len(out.Embeddings) != len(inputs) {
		return nil, fmt.Errorf("ollama embed: got %d vectors for %d inputs", len(out.Embeddings), len(inputs))
	}
	return out.Embeddings, nil
}

func (c *OllamaClient) post(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal ollama payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("ollama %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("ollama error %s: %s", resp.Status, strings.TrimSpace(string(msg)))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode ollama response: %w", err)
	}
	return nil
}
