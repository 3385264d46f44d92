package llm

import (
	"context"
	"fmt"

	"github.com/wehubfusion/Pythia/pkg/schema"
)

// GenerateJSON runs a JSON-mode chat request and validates the reply
// against s. The decoded document is returned even when validation fails so
// callers can log it.
func GenerateJSON(ctx context.Context, c Client, req ChatRequest, s *schema.Schema) (map[string]any, error) {
	req.JSON = true
	reply, err := c.Chat(ctx, req)
	if err != nil {
		return nil, err
	}

	doc, err := schema.Decode([]byte(reply), s)
	if err != nil {
		return doc, fmt.Errorf("invalid model output: %w", err)
	}
	return doc, nil
}

// StringSlice converts a decoded JSON array of strings
func StringSlice(v any) []string {
	arr, _ := v.([]any)
	out := make([]string, 0, len(arr))
	for _, item := range arr {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
