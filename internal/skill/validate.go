package skill

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValidationError reports a parameter that failed validation. It never
// reaches the engine.
type ValidationError struct {
	Skill  string
	Param  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Param == "" {
		return e.Reason
	}
	return fmt.Sprintf("parameter %q %s", e.Param, e.Reason)
}

// Args holds validated, normalized parameters. Numbers are float64,
// indexes are int.
type Args map[string]any

// Float returns a number parameter.
func (a Args) Float(name string) float64 {
	v, _ := a[name].(float64)
	return v
}

// Int returns a track or clip index parameter.
func (a Args) Int(name string) int {
	switch v := a[name].(type) {
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

// Bool returns a bool parameter.
func (a Args) Bool(name string) bool {
	v, _ := a[name].(bool)
	return v
}

// String returns a string or file path parameter.
func (a Args) String(name string) string {
	v, _ := a[name].(string)
	return v
}

// Validate checks params against desc and returns normalized args. It is a
// pure function of its inputs. Parameters are checked in declaration order
// and the first failure is returned.
func Validate(desc Descriptor, params map[string]any) (Args, error) {
	args := make(Args, len(desc.Params))
	for _, p := range desc.Params {
		value, present := params[p.Name]
		if !present || value == nil {
			if p.DefaultValue == nil {
				if p.Required {
					return nil, &ValidationError{Skill: desc.ID, Param: p.Name, Reason: "is required"}
				}
				continue
			}
			value = p.DefaultValue
		}
		normalized, err := checkValue(p.Type, value)
		if err != nil {
			return nil, &ValidationError{Skill: desc.ID, Param: p.Name, Reason: err.Error()}
		}
		args[p.Name] = normalized
	}
	return args, nil
}

func checkValue(t ParamType, value any) (any, error) {
	switch t.Kind {
	case KindNumber:
		n, ok := toFloat(value)
		if !ok {
			return nil, fmt.Errorf("must be a number")
		}
		if (t.Min != nil && n < *t.Min) || (t.Max != nil && n > *t.Max) {
			return nil, fmt.Errorf("must be a %s, got %g", t, n)
		}
		return n, nil
	case KindTrackIndex, KindClipIndex:
		n, ok := toFloat(value)
		if !ok || n < 0 || n != math.Trunc(n) || n > math.MaxInt32 {
			return nil, fmt.Errorf("must be a non-negative integer")
		}
		return int(n), nil
	case KindBool:
		b, ok := value.(bool)
		if !ok {
			return nil, fmt.Errorf("must be a bool")
		}
		return b, nil
	case KindString:
		s, ok := value.(string)
		if !ok {
			return nil, fmt.Errorf("must be a string")
		}
		return s, nil
	case KindFilePath:
		s, ok := value.(string)
		if !ok || s == "" {
			return nil, fmt.Errorf("must be a file path")
		}
		return s, nil
	default:
		return nil, fmt.Errorf("has unsupported type %q", t.Kind)
	}
}

func toFloat(value any) (float64, bool) {
	var n float64
	switch v := value.(type) {
	case int:
		n = float64(v)
	case int8:
		n = float64(v)
	case int16:
		n = float64(v)
	case int32:
		n = float64(v)
	case int64:
		n = float64(v)
	case uint:
		n = float64(v)
	case uint8:
		n = float64(v)
	case uint16:
		n = float64(v)
	case uint32:
		n = float64(v)
	case uint64:
		n = float64(v)
	case float32:
		n = float64(v)
	case float64:
		n = v
	case json.Number:
		f, err := strconv.ParseFloat(string(v), 64)
		if err != nil {
			return 0, false
		}
		n = f
	default:
		return 0, false
	}
	if math.IsNaN(n) || math.IsInf(n, 0) {
		return 0, false
	}
	return n, true
}
