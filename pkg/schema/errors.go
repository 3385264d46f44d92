package schema

import (
	"fmt"
	"strings"
)

// SchemaError represents a schema-related error
type SchemaError struct {
	Message string
	Code    string
	Errors  []ValidationError
	Err     error
}

// Error implements the error interface
func (e *SchemaError) Error() string {
	msg := e.Message
	if len(e.Errors) > 0 {
		parts := make([]string, 0, len(e.Errors))
		for _, ve := range e.Errors {
			parts = append(parts, fmt.Sprintf("%s: %s", ve.Path, ve.Message))
		}
		msg = fmt.Sprintf("%s (%s)", msg, strings.Join(parts, "; "))
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", msg, e.Err)
	}
	return msg
}

// Unwrap returns the underlying error
func (e *SchemaError) Unwrap() error {
	return e.Err
}

// ParseError creates a document parsing error
func ParseError(err error) *SchemaError {
	return &SchemaError{
		Message: "response is not valid JSON",
		Code:    "PARSE_ERROR",
		Err:     err,
	}
}

// ValidationFailedError creates a validation error
func ValidationFailedError(errors []ValidationError) *SchemaError {
	return &SchemaError{
		Message: fmt.Sprintf("validation failed with %d errors", len(errors)),
		Code:    "VALIDATION_FAILED",
		Errors:  errors,
	}
}
