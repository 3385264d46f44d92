package schema

import (
	"fmt"
	"regexp"
	"sort"
	"unicode/utf8"
)

// Validator validates decoded JSON values against schemas
type Validator struct {
	patterns map[string]*regexp.Regexp
}

// NewValidator creates a new schema validator
func NewValidator() *Validator {
	return &Validator{
		patterns: make(map[string]*regexp.Regexp),
	}
}

// Validate validates data against a schema
func (v *Validator) Validate(data any, schema *Schema) *ValidationResult {
	result := &ValidationResult{Valid: true}

	prop := &Property{
		Type:       schema.Type,
		Properties: schema.Properties,
		Items:      schema.Items,
	}

	if errors := v.validateValue(data, prop, "root"); len(errors) > 0 {
		result.Valid = false
		result.Errors = errors
	}

	return result
}

// validateValue validates a value against a property definition
func (v *Validator) validateValue(value any, prop *Property, path string) []ValidationError {
	if value == nil {
		if prop.Required {
			return []ValidationError{{Path: path, Message: "field is required", Code: "REQUIRED"}}
		}
		return nil
	}

	switch prop.Type {
	case TypeString:
		str, ok := value.(string)
		if !ok {
			return typeMismatch(path, "string", value)
		}
		return v.validateString(str, prop.Validation, path)

	case TypeNumber:
		num, ok := toFloat(value)
		if !ok {
			return typeMismatch(path, "number", value)
		}
		return validateNumber(num, prop.Validation, path)

	case TypeBoolean:
		if _, ok := value.(bool); !ok {
			return typeMismatch(path, "boolean", value)
		}

	case TypeArray:
		arr, ok := value.([]any)
		if !ok {
			return typeMismatch(path, "array", value)
		}
		return v.validateArray(arr, prop, path)

	case TypeObject:
		obj, ok := value.(map[string]any)
		if !ok {
			return typeMismatch(path, "object", value)
		}
		return v.validateObject(obj, prop, path)

	case TypeAny:
	}

	return nil
}

func typeMismatch(path, want string, value any) []ValidationError {
	return []ValidationError{{
		Path:    path,
		Message: fmt.Sprintf("expected %s, got %T", want, value),
		Code:    "TYPE_MISMATCH",
	}}
}

func toFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

// validateString validates string-specific rules
func (v *Validator) validateString(value string, rules *ValidationRules, path string) []ValidationError {
	var errors []ValidationError

	if rules == nil {
		return errors
	}

	length := utf8.RuneCountInString(value)
	if rules.MinLength != nil && length < *rules.MinLength {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d is less than minimum %d", length, *rules.MinLength),
			Code:    "MIN_LENGTH",
		})
	}

	if rules.MaxLength != nil && length > *rules.MaxLength {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("length %d exceeds maximum %d", length, *rules.MaxLength),
			Code:    "MAX_LENGTH",
		})
	}

	if rules.Pattern != "" {
		re, err := v.compile(rules.Pattern)
		if err != nil {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("invalid regex pattern: %v", err),
				Code:    "INVALID_PATTERN",
			})
		} else if !re.MatchString(value) {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value does not match pattern '%s'", rules.Pattern),
				Code:    "PATTERN_MISMATCH",
			})
		}
	}

	if len(rules.Enum) > 0 {
		found := false
		for _, allowed := range rules.Enum {
			if value == allowed {
				found = true
				break
			}
		}
		if !found {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("value '%s' not in allowed values %v", value, rules.Enum),
				Code:    "ENUM_MISMATCH",
			})
		}
	}

	return errors
}

// compile caches compiled patterns. Validators are not shared across goroutines.
func (v *Validator) compile(pattern string) (*regexp.Regexp, error) {
	if re, ok := v.patterns[pattern]; ok {
		return re, nil
	}
	re, err := regexp.Compile(pattern)
	if err != nil {
		return nil, err
	}
	v.patterns[pattern] = re
	return re, nil
}

// validateNumber validates number-specific rules
func validateNumber(value float64, rules *ValidationRules, path string) []ValidationError {
	var errors []ValidationError

	if rules == nil {
		return errors
	}

	if rules.Minimum != nil && value < *rules.Minimum {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %g is less than minimum %g", value, *rules.Minimum),
			Code:    "MIN_VALUE",
		})
	}

	if rules.Maximum != nil && value > *rules.Maximum {
		errors = append(errors, ValidationError{
			Path:    path,
			Message: fmt.Sprintf("value %g exceeds maximum %g", value, *rules.Maximum),
			Code:    "MAX_VALUE",
		})
	}

	return errors
}

// validateArray validates array-specific rules
func (v *Validator) validateArray(arr []any, prop *Property, path string) []ValidationError {
	var errors []ValidationError

	if prop.Validation != nil {
		if prop.Validation.MinItems != nil && len(arr) < *prop.Validation.MinItems {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("array length %d is less than minimum %d", len(arr), *prop.Validation.MinItems),
				Code:    "MIN_ITEMS",
			})
		}

		if prop.Validation.MaxItems != nil && len(arr) > *prop.Validation.MaxItems {
			errors = append(errors, ValidationError{
				Path:    path,
				Message: fmt.Sprintf("array length %d exceeds maximum %d", len(arr), *prop.Validation.MaxItems),
				Code:    "MAX_ITEMS",
			})
		}
	}

	if prop.Items != nil {
		for i, item := range arr {
			itemPath := fmt.Sprintf("%s[%d]", path, i)
			if item == nil {
				errors = append(errors, ValidationError{Path: itemPath, Message: "array item is null", Code: "NULL_ITEM"})
				continue
			}
			errors = append(errors, v.validateValue(item, prop.Items, itemPath)...)
		}
	}

	return errors
}

// validateObject validates object properties in name order
func (v *Validator) validateObject(obj map[string]any, prop *Property, path string) []ValidationError {
	var errors []ValidationError

	names := make([]string, 0, len(prop.Properties))
	for name := range prop.Properties {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		def := prop.Properties[name]
		value, exists := obj[name]
		propPath := fmt.Sprintf("%s.%s", path, name)

		if !exists {
			if def.Required {
				errors = append(errors, ValidationError{
					Path:    propPath,
					Message: "required field missing",
					Code:    "REQUIRED",
				})
			}
			continue
		}

		errors = append(errors, v.validateValue(value, def, propPath)...)
	}

	return errors
}
