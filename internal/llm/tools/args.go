package tools

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Args is the decoded argument object of a tool call.
type Args map[string]any

// ParseArgs decodes the raw JSON arguments a model produced. An empty string
// decodes to an empty object.
func ParseArgs(raw string) (Args, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Args{}, nil
	}
	var out Args
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return nil, fmt.Errorf("invalid tool arguments: %w", err)
	}
	if out == nil {
		out = Args{}
	}
	return out, nil
}

// String returns the argument as a string. Numbers and booleans are formatted.
func (a Args) String(key string) string {
	switch v := a[key].(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(b)
	}
}

// Int returns the argument as an int, accepting JSON numbers and numeric strings.
func (a Args) Int(key string, fallback int) int {
	switch v := a[key].(type) {
	case float64:
		return int(v)
	case int:
		return v
	case int64:
		return int(v)
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return int(n)
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			return n
		}
	}
	return fallback
}

func (a Args) Has(key string) bool {
	_, ok := a[key]
	return ok
}

// Validate checks that every required parameter of spec is present.
func (a Args) Validate(spec Spec) error {
	var missing []string
	for _, p := range spec.Params {
		if !p.Required {
			continue
		}
		v, ok := a[p.Name]
		if !ok || v == nil {
			missing = append(missing, p.Name)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required argument(s): %s", strings.Join(missing, ", "))
	}
	return nil
}
