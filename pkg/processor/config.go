package processor

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	pyerrors "github.com/wehubfusion/Pythia/pkg/errors"
)

// Config is the flat key/value configuration of a processor instance.
// Values may come from Go literals, YAML or JSON, so numeric getters accept
// every numeric kind. Unknown keys are ignored.
type Config map[string]any

// Has checks if a config key exists.
func (c Config) Has(key string) bool {
	_, ok := c[key]
	return ok
}

// Require fails with ErrInvalidConfig when key is absent.
func (c Config) Require(key string) error {
	if !c.Has(key) {
		return pyerrors.InvalidConfig(key, "required")
	}
	return nil
}

// String returns a config value as string.
func (c Config) String(key string) (string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return "", nil
	}
	s, ok := v.(string)
	if !ok {
		return "", pyerrors.InvalidConfig(key, fmt.Sprintf("expected string, got %T", v))
	}
	return s, nil
}

// StringDefault returns a config value as string with default.
func (c Config) StringDefault(key, defaultVal string) (string, error) {
	s, err := c.String(key)
	if err != nil {
		return "", err
	}
	if s == "" {
		return defaultVal, nil
	}
	return s, nil
}

// Int returns a config value as int.
func (c Config) Int(key string) (int, error) {
	return c.IntDefault(key, 0)
}

// IntDefault returns a config value as int with default.
func (c Config) IntDefault(key string, defaultVal int) (int, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	if s, ok := v.(string); ok {
		i, err := strconv.Atoi(strings.TrimSpace(s))
		if err != nil {
			return 0, pyerrors.InvalidConfig(key, fmt.Sprintf("expected integer, got %q", s))
		}
		return i, nil
	}
	n, ok := number(v)
	if !ok {
		return 0, pyerrors.InvalidConfig(key, fmt.Sprintf("expected integer, got %T", v))
	}
	if n != math.Trunc(n) || math.IsInf(n, 0) {
		return 0, pyerrors.InvalidConfig(key, fmt.Sprintf("expected integer, got %v", n))
	}
	return int(n), nil
}

// Float returns a config value as float64 with default. It accepts the same
// values as IntDefault plus fractional ones.
func (c Config) Float(key string, defaultVal float64) (float64, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	if s, ok := v.(string); ok {
		f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
			return 0, pyerrors.InvalidConfig(key, fmt.Sprintf("expected number, got %q", s))
		}
		return f, nil
	}
	n, ok := number(v)
	if !ok {
		return 0, pyerrors.InvalidConfig(key, fmt.Sprintf("expected number, got %T", v))
	}
	return n, nil
}

// number widens any Go or JSON numeric value to float64.
func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int8:
		return float64(n), true
	case int16:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint8:
		return float64(n), true
	case uint16:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, !math.IsNaN(n)
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Bool returns a config value as bool.
func (c Config) Bool(key string) (bool, error) {
	return c.BoolDefault(key, false)
}

// BoolDefault returns a config value as bool with default.
func (c Config) BoolDefault(key string, defaultVal bool) (bool, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return defaultVal, nil
	}
	b, ok := v.(bool)
	if !ok {
		return false, pyerrors.InvalidConfig(key, fmt.Sprintf("expected bool, got %T", v))
	}
	return b, nil
}

// Strings returns a config value as string slice.
func (c Config) Strings(key string) ([]string, error) {
	v, ok := c[key]
	if !ok || v == nil {
		return nil, nil
	}
	switch s := v.(type) {
	case []string:
		return append([]string(nil), s...), nil
	case []any:
		out := make([]string, 0, len(s))
		for i, item := range s {
			str, ok := item.(string)
			if !ok {
				return nil, pyerrors.InvalidConfig(key, fmt.Sprintf("element %d: expected string, got %T", i, item))
			}
			out = append(out, str)
		}
		return out, nil
	}
	return nil, pyerrors.InvalidConfig(key, fmt.Sprintf("expected list of strings, got %T", v))
}

// Clone returns a shallow copy.
func (c Config) Clone() Config {
	out := make(Config, len(c))
	for k, v := range c {
		out[k] = v
	}
	return out
}
