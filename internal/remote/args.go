package remote

import (
	"encoding/json"
	"fmt"
	"math"
)

// Args reads invoke arguments on the backend side. Values may arrive as Go
// numbers from an in-process Client or as float64 and json.Number after a
// JSON hop, so accessors normalize before returning.
type Args struct {
	op     string
	values map[string]any
}

// ReadArgs wraps the arguments of one invoke call.
func ReadArgs(op string, values map[string]any) Args {
	return Args{op: op, values: values}
}

// Float returns a numeric argument.
func (a Args) Float(name string) (float64, error) {
	raw, ok := a.values[name]
	if !ok || raw == nil {
		return 0, a.missing(name)
	}
	switch v := raw.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case uint:
		return float64(v), nil
	case uint32:
		return float64(v), nil
	case uint64:
		return float64(v), nil
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return 0, a.invalid(name, raw)
		}
		return f, nil
	}
	return 0, a.invalid(name, raw)
}

// Int returns an integral argument.
func (a Args) Int(name string) (int, error) {
	f, err := a.Float(name)
	if err != nil {
		return 0, err
	}
	if f != math.Trunc(f) || f > math.MaxInt32 || f < math.MinInt32 {
		return 0, a.invalid(name, f)
	}
	return int(f), nil
}

// Bool returns a boolean argument.
func (a Args) Bool(name string) (bool, error) {
	raw, ok := a.values[name]
	if !ok || raw == nil {
		return false, a.missing(name)
	}
	v, ok := raw.(bool)
	if !ok {
		return false, a.invalid(name, raw)
	}
	return v, nil
}

// String returns a string argument.
func (a Args) String(name string) (string, error) {
	raw, ok := a.values[name]
	if !ok || raw == nil {
		return "", a.missing(name)
	}
	v, ok := raw.(string)
	if !ok {
		return "", a.invalid(name, raw)
	}
	return v, nil
}

func (a Args) missing(name string) error {
	return NewError(ErrorRejected, a.op, fmt.Sprintf("missing argument %q", name))
}

func (a Args) invalid(name string, value any) error {
	return NewError(ErrorRejected, a.op, fmt.Sprintf("invalid argument %q: %v", name, value))
}
