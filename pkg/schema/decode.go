package schema

import (
	"bytes"
	"encoding/json"
	"errors"
)

// Decode parses a model response into a generic JSON value, fills in
// defaults for absent object properties and validates the outcome.
// Text surrounding the outermost JSON object, such as code fences, is
// ignored.
func Decode(data []byte, s *Schema) (map[string]any, error) {
	body := extractObject(data)
	if body == nil {
		return nil, ParseError(errors.New("no JSON object found"))
	}

	var doc map[string]any
	if err := json.Unmarshal(body, &doc); err != nil {
		return nil, ParseError(err)
	}

	applyDefaults(doc, s.Properties)

	result := NewValidator().Validate(doc, s)
	if !result.Valid {
		return doc, ValidationFailedError(result.Errors)
	}
	return doc, nil
}

func extractObject(data []byte) []byte {
	start := bytes.IndexByte(data, '{')
	end := bytes.LastIndexByte(data, '}')
	if start < 0 || end < start {
		return nil
	}
	return data[start : end+1]
}

func applyDefaults(obj map[string]any, props map[string]*Property) {
	for name, prop := range props {
		value, exists := obj[name]
		if !exists && prop.Default != nil {
			obj[name] = prop.Default
			continue
		}
		switch prop.Type {
		case TypeObject:
			if nested, ok := value.(map[string]any); ok {
				applyDefaults(nested, prop.Properties)
			}
		case TypeArray:
			if prop.Items == nil || prop.Items.Type != TypeObject {
				continue
			}
			if arr, ok := value.([]any); ok {
				for _, item := range arr {
					if nested, ok := item.(map[string]any); ok {
						applyDefaults(nested, prop.Items.Properties)
					}
				}
			}
		}
	}
}
