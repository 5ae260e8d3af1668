package remote

import (
	"context"

	"github.com/noamisr/maestro/schema"
)

// Mux routes operations to different invokers, such as search operations to
// the sidecar and everything else to the engine.
type Mux struct {
	routes   map[string]Invoker
	fallback Invoker
}

// NewMux constructs a Mux with a fallback invoker for unrouted ops.
func NewMux(fallback Invoker) *Mux {
	return &Mux{routes: make(map[string]Invoker), fallback: fallback}
}

// Route sends ops to target.
func (m *Mux) Route(target Invoker, ops ...string) *Mux {
	for _, op := range ops {
		m.routes[op] = target
	}
	return m
}

// Invoke dispatches op to its routed invoker.
func (m *Mux) Invoke(ctx context.Context, op string, args map[string]any, result any) error {
	target := m.routes[op]
	if target == nil {
		target = m.fallback
	}
	if target == nil {
		return NewError(ErrorUnavailable, op, schema.ErrUnsupportedOperation.Error())
	}
	return target.Invoke(ctx, op, args, result)
}
