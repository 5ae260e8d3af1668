package remote

import (
	"context"
	"encoding/json"
	"fmt"
)

// Invoker is the opaque invoke(name, args) -> result primitive provided by a
// bridge or engine backend. When result is non-nil the backend decodes its
// reply into it.
type Invoker interface {
	Invoke(ctx context.Context, op string, args map[string]any, result any) error
}

// InvokerFunc adapts a function to Invoker.
type InvokerFunc func(ctx context.Context, op string, args map[string]any, result any) error

// Invoke calls f.
func (f InvokerFunc) Invoke(ctx context.Context, op string, args map[string]any, result any) error {
	return f(ctx, op, args, result)
}

// DecodeResult copies a loosely typed reply into result through JSON so
// backends can hand back maps, structs or raw bytes alike.
func DecodeResult(op string, reply any, result any) error {
	if result == nil || reply == nil {
		return nil
	}
	var data []byte
	switch v := reply.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		encoded, err := json.Marshal(reply)
		if err != nil {
			return &Error{Kind: ErrorUnknown, Op: op, Err: fmt.Errorf("encode result: %w", err)}
		}
		data = encoded
	}
	if len(data) == 0 || string(data) == "null" {
		return nil
	}
	if err := json.Unmarshal(data, result); err != nil {
		return &Error{Kind: ErrorUnknown, Op: op, Err: fmt.Errorf("decode result: %w", err)}
	}
	return nil
}
