package sidecar

import (
	"context"
	"time"

	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Emitter publishes channel events.
type Emitter interface {
	Emit(ctx context.Context, channel schema.Channel, payload any) error
}

// HealthChecker checks sidecar health.
type HealthChecker interface {
	Health(ctx context.Context) (Health, error)
}

// Monitor polls sidecar health and publishes sidecar-connection-changed on
// every transition. The first check result is always published.
type Monitor struct {
	checker  HealthChecker
	emitter  Emitter
	interval time.Duration
	logger   pslog.Logger
}

// NewMonitor constructs a Monitor.
func NewMonitor(checker HealthChecker, emitter Emitter, interval time.Duration, logger pslog.Logger) *Monitor {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &Monitor{checker: checker, emitter: emitter, interval: interval, logger: logger}
}

// Run polls until ctx ends. On exit it publishes a final false so observers
// never keep a stale flag.
func (m *Monitor) Run(ctx context.Context) error {
	var (
		known    bool
		up       bool
		attempts int
	)
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		healthy := m.check(ctx)
		attempts++
		if !known || healthy != up {
			if healthy {
				m.logger.Info("sidecar ready", "attempt", attempts)
			} else if known {
				m.logger.Warn("sidecar lost")
			} else {
				m.logger.Info("sidecar waiting")
			}
			if err := m.emitter.Emit(ctx, schema.ChannelSidecarConnection, healthy); err != nil && ctx.Err() == nil {
				m.logger.Warn("sidecar status publish failed", "err", err)
			}
			known, up = true, healthy
		}
		select {
		case <-ctx.Done():
			if up {
				finalCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
				_ = m.emitter.Emit(finalCtx, schema.ChannelSidecarConnection, false)
				cancel()
			}
			return nil
		case <-ticker.C:
		}
	}
}

func (m *Monitor) check(ctx context.Context) bool {
	checkCtx, cancel := context.WithTimeout(ctx, m.interval)
	defer cancel()
	health, err := m.checker.Health(checkCtx)
	if err != nil {
		m.logger.Trace("sidecar health check failed", "err", err)
		return false
	}
	return health.Status == "" || health.Status == "ok"
}
