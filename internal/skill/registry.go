package skill

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/noamisr/maestro/internal/logx"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/internal/telemetry"
	"github.com/noamisr/maestro/schema"
	"go.opentelemetry.io/otel/attribute"
	"pkt.systems/pslog"
)

// Option configures a Registry.
type Option func(*options)

type options struct {
	shortcuts map[string]string
	logger    pslog.Logger
}

// WithShortcuts overrides keyboard shortcuts by skill id. An empty value
// clears the shortcut.
func WithShortcuts(shortcuts map[string]string) Option {
	return func(o *options) {
		o.shortcuts = shortcuts
	}
}

// WithLogger sets the registry logger.
func WithLogger(logger pslog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// Registry is the immutable skill catalogue.
type Registry struct {
	order  []string
	skills map[string]Skill
	logger pslog.Logger
}

// New builds a registry from skills. Ids must be unique and non-empty.
func New(skills []Skill, opts ...Option) (*Registry, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = pslog.Ctx(context.Background())
	}
	r := &Registry{skills: make(map[string]Skill, len(skills)), logger: o.logger}
	for _, s := range skills {
		id := strings.TrimSpace(s.ID)
		if id == "" {
			return nil, fmt.Errorf("skill registry: empty id for %q", s.Name)
		}
		if _, exists := r.skills[id]; exists {
			return nil, fmt.Errorf("%w: %s", schema.ErrDuplicateSkill, id)
		}
		if s.Execute == nil {
			return nil, fmt.Errorf("skill registry: %s has no executor", id)
		}
		s.Descriptor = s.Descriptor.Clone()
		if shortcut, ok := o.shortcuts[id]; ok {
			s.KeyboardShortcut = shortcut
		}
		r.skills[id] = s
		r.order = append(r.order, id)
	}
	for id := range o.shortcuts {
		if _, ok := r.skills[id]; !ok {
			r.logger.Warn("skill registry shortcut for unknown skill", "skill", id)
		}
	}
	return r, nil
}

// Describe returns every descriptor in registration order.
func (r *Registry) Describe() []Descriptor {
	out := make([]Descriptor, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.skills[id].Descriptor.Clone())
	}
	return out
}

// Lookup returns the descriptor for id.
func (r *Registry) Lookup(id string) (Descriptor, bool) {
	s, ok := r.skills[id]
	if !ok {
		return Descriptor{}, false
	}
	return s.Descriptor.Clone(), true
}

// ByShortcut returns the skill bound to a keyboard shortcut.
func (r *Registry) ByShortcut(shortcut string) (Descriptor, bool) {
	for _, id := range r.order {
		s := r.skills[id]
		if s.KeyboardShortcut != "" && strings.EqualFold(s.KeyboardShortcut, shortcut) {
			return s.Descriptor.Clone(), true
		}
	}
	return Descriptor{}, false
}

// Invoke validates params and runs the skill. Failures of any kind are
// reported in the Result rather than returned.
func (r *Registry) Invoke(ctx context.Context, id string, params map[string]any) (result Result) {
	if ctx == nil {
		ctx = context.Background()
	}
	log := logx.WithSkill(ctx, id)
	s, ok := r.skills[id]
	if !ok {
		log.Info("skill invoke rejected", "reason", "unknown")
		return Result{Success: false, Message: fmt.Sprintf("%s %q", schema.ErrUnknownSkill, id)}
	}
	args, err := Validate(s.Descriptor, params)
	if err != nil {
		log.Info("skill invoke rejected", "err", err)
		return Result{Success: false, Message: err.Error()}
	}
	defer func() {
		if rec := recover(); rec != nil {
			log.Error("skill invoke panic", "panic", rec)
			result = Result{Success: false, Message: fmt.Sprintf("skill %s failed: %v", id, rec)}
		}
	}()
	start := time.Now()
	ctx = logx.ContextWithSkillLogger(ctx, log, id)
	ctx, span := telemetry.Start(ctx, "skill.invoke", attribute.String("skill.id", id))
	message, data, err := s.Execute(ctx, args)
	telemetry.End(span, err)
	if err != nil {
		log.Warn("skill invoke failed", "err", err, "duration_ms", time.Since(start).Milliseconds())
		return Result{Success: false, Message: failureMessage(err)}
	}
	log.Debug("skill invoke done", "duration_ms", time.Since(start).Milliseconds())
	return Result{Success: true, Message: message, Data: data}
}

func failureMessage(err error) string {
	if remoteErr, ok := remote.AsError(err); ok && remoteErr.Message != "" {
		return remoteErr.Message
	}
	return err.Error()
}
