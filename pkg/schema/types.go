// Package schema validates the JSON documents returned by language models
// before processors turn them into fields.
package schema

// Schema represents a complete schema definition
type Schema struct {
	Type        SchemaType           `json:"type"`
	Properties  map[string]*Property `json:"properties,omitempty"`
	Items       *Property            `json:"items,omitempty"`
	Description string               `json:"description,omitempty"`
}

// Property represents a field property in a schema
type Property struct {
	Type        SchemaType           `json:"type"`
	Required    bool                 `json:"required,omitempty"`
	Default     any                  `json:"default,omitempty"`
	Description string               `json:"description,omitempty"`
	Validation  *ValidationRules     `json:"validation,omitempty"`
	Properties  map[string]*Property `json:"properties,omitempty"` // OBJECT
	Items       *Property            `json:"items,omitempty"`      // ARRAY
}

// SchemaType represents the data type of a field
type SchemaType string

const (
	TypeString  SchemaType = "STRING"
	TypeNumber  SchemaType = "NUMBER"
	TypeBoolean SchemaType = "BOOLEAN"
	TypeObject  SchemaType = "OBJECT"
	TypeArray   SchemaType = "ARRAY"
	TypeAny     SchemaType = "ANY"
)

// ValidationRules contains validation rules for a field
type ValidationRules struct {
	// String validations; lengths count runes
	MinLength *int     `json:"minLength,omitempty"`
	MaxLength *int     `json:"maxLength,omitempty"`
	Pattern   string   `json:"pattern,omitempty"`
	Enum      []string `json:"enum,omitempty"`

	// Number validations
	Minimum *float64 `json:"minimum,omitempty"`
	Maximum *float64 `json:"maximum,omitempty"`

	// Array validations
	MinItems *int `json:"minItems,omitempty"`
	MaxItems *int `json:"maxItems,omitempty"`
}

// ValidationError represents a single validation error
type ValidationError struct {
	Path    string `json:"path"`
	Message string `json:"message"`
	Code    string `json:"code"`
}

// ValidationResult holds the result of validation
type ValidationResult struct {
	Valid  bool              `json:"valid"`
	Errors []ValidationError `json:"errors,omitempty"`
}

// Int returns a pointer to n, for use in ValidationRules literals
func Int(n int) *int { return &n }

// Float returns a pointer to f, for use in ValidationRules literals
func Float(f float64) *float64 { return &f }
