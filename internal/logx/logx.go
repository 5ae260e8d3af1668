package logx

import (
	"context"

	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

type contextKey int

const (
	skillKey contextKey = iota
	originKey
)

// Ctx returns the logger bound to the provided context.
func Ctx(ctx context.Context) pslog.Logger {
	return pslog.Ctx(ctx)
}

// WithSkill annotates the logger with the skill id if present.
func WithSkill(ctx context.Context, skillID string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if skillID != "" {
		if current, ok := ctx.Value(skillKey).(string); ok && current == skillID {
			return log
		}
		log = log.With("skill", skillID)
	}
	return log
}

// WithOrigin annotates the logger with the invocation origin (http, mcp, cli, command).
func WithOrigin(ctx context.Context, origin string) pslog.Logger {
	log := pslog.Ctx(ctx)
	if origin != "" {
		if current, ok := ctx.Value(originKey).(string); ok && current == origin {
			return log
		}
		log = log.With("origin", origin)
	}
	return log
}

// WithChannel annotates the logger with an event channel.
func WithChannel(log pslog.Logger, channel schema.Channel) pslog.Logger {
	if channel != "" {
		log = log.With("channel", string(channel))
	}
	return log
}

// WithOp annotates the logger with a remote operation name.
func WithOp(log pslog.Logger, op string) pslog.Logger {
	if op != "" {
		log = log.With("op", op)
	}
	return log
}

// ContextWithSkill stores the skill marker on the context for log de-duplication.
func ContextWithSkill(ctx context.Context, skillID string) context.Context {
	if ctx == nil || skillID == "" {
		return ctx
	}
	return context.WithValue(ctx, skillKey, skillID)
}

// ContextWithOrigin stores the origin marker on the context for log de-duplication.
func ContextWithOrigin(ctx context.Context, origin string) context.Context {
	if ctx == nil || origin == "" {
		return ctx
	}
	return context.WithValue(ctx, originKey, origin)
}

// ContextWithSkillLogger attaches the logger and skill marker to the context.
func ContextWithSkillLogger(ctx context.Context, log pslog.Logger, skillID string) context.Context {
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithSkill(ctx, skillID)
}

// ContextWithOriginLogger attaches a logger annotated with origin to the context.
func ContextWithOriginLogger(ctx context.Context, origin string) context.Context {
	log := WithOrigin(ctx, origin)
	ctx = pslog.ContextWithLogger(ctx, log)
	return ContextWithOrigin(ctx, origin)
}

// CopyContextFields copies skill/origin markers from src to dst.
func CopyContextFields(dst context.Context, src context.Context) context.Context {
	if src == nil {
		return dst
	}
	if skill, ok := src.Value(skillKey).(string); ok && skill != "" {
		dst = ContextWithSkill(dst, skill)
	}
	if origin, ok := src.Value(originKey).(string); ok && origin != "" {
		dst = ContextWithOrigin(dst, origin)
	}
	return dst
}
