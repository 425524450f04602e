package tools

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/kailas-cloud/vaultctx/internal/domain"
)

// Args are the decoded JSON arguments of a tool call.
type Args map[string]any

// String returns a trimmed string argument or def.
func (a Args) String(name, def string) string {
	v, ok := a[name]
	if !ok || v == nil {
		return def
	}
	s, ok := v.(string)
	if !ok {
		return def
	}
	if s = strings.TrimSpace(s); s == "" {
		return def
	}
	return s
}

// RequireString returns a non-empty string argument or a validation error.
func (a Args) RequireString(name string) (string, error) {
	s := a.String(name, "")
	if s == "" {
		return "", domain.NewValidationError(name, "is required")
	}
	return s, nil
}

// Int accepts JSON numbers, integer values and numeric strings.
func (a Args) Int(name string, def int) (int, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	switch n := v.(type) {
	case float64:
		if n != math.Trunc(n) || math.IsInf(n, 0) {
			return 0, domain.NewValidationError(name, "must be an integer")
		}
		return int(n), nil
	case int:
		return n, nil
	case int64:
		return int(n), nil
	case json.Number:
		i, err := n.Int64()
		if err != nil {
			return 0, domain.NewValidationError(name, "must be an integer")
		}
		return int(i), nil
	case string:
		if strings.TrimSpace(n) == "" {
			return def, nil
		}
		i, err := strconv.Atoi(strings.TrimSpace(n))
		if err != nil {
			return 0, domain.NewValidationError(name, "must be an integer")
		}
		return i, nil
	}
	return 0, domain.NewValidationError(name, "must be an integer")
}

// Bool accepts JSON booleans and "true"/"false" strings.
func (a Args) Bool(name string, def bool) (bool, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return def, nil
	}
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		parsed, err := strconv.ParseBool(strings.TrimSpace(b))
		if err != nil {
			return false, domain.NewValidationError(name, "must be a boolean")
		}
		return parsed, nil
	}
	return false, domain.NewValidationError(name, "must be a boolean")
}
