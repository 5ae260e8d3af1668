package bridgegrpc

import (
	"context"
	"time"

	"google.golang.org/grpc"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

const healthCheckTimeout = time.Second

type healthTarget struct {
	service string
	channel schema.Channel
}

// HealthMonitor polls the bridge health services and publishes the engine
// and sidecar connection channels whenever a status flips.
type HealthMonitor struct {
	client   healthpb.HealthClient
	events   Publisher
	interval time.Duration
	logger   pslog.Logger
	targets  []healthTarget
}

// NewHealthMonitor constructs a monitor over conn.
func NewHealthMonitor(conn grpc.ClientConnInterface, events Publisher, interval time.Duration, logger pslog.Logger) *HealthMonitor {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	return &HealthMonitor{
		client:   healthpb.NewHealthClient(conn),
		events:   events,
		interval: interval,
		logger:   logger,
		targets: []healthTarget{
			{service: HealthEngine, channel: schema.ChannelEngineConnection},
			{service: HealthSidecar, channel: schema.ChannelSidecarConnection},
		},
	}
}

// Run polls until ctx is done. The first result for each service is always
// published; later results only when they differ. Flags still up when Run
// returns are published as down.
func (m *HealthMonitor) Run(ctx context.Context) error {
	state := make(map[string]bool, len(m.targets))
	poll := func() {
		for _, target := range m.targets {
			serving := m.check(ctx, target.service)
			if prev, seen := state[target.service]; seen && prev == serving {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			state[target.service] = serving
			m.logger.Info("bridgegrpc health changed", "service", target.service, "serving", serving)
			m.publish(ctx, target.channel, serving)
		}
	}
	poll()
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			downCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), time.Second)
			for _, target := range m.targets {
				if state[target.service] {
					m.publish(downCtx, target.channel, false)
				}
			}
			cancel()
			return nil
		case <-ticker.C:
			poll()
		}
	}
}

func (m *HealthMonitor) check(ctx context.Context, service string) bool {
	callCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
	defer cancel()
	resp, err := m.client.Check(callCtx, &healthpb.HealthCheckRequest{Service: service})
	if err != nil {
		m.logger.Debug("bridgegrpc health check failed", "service", service, "err", err)
		return false
	}
	return resp.GetStatus() == healthpb.HealthCheckResponse_SERVING
}

func (m *HealthMonitor) publish(ctx context.Context, channel schema.Channel, up bool) {
	msg, err := schema.NewEventMessage(channel, up)
	if err != nil {
		return
	}
	if err := m.events.Publish(ctx, msg); err != nil {
		m.logger.Warn("bridgegrpc publish failed", "channel", string(channel), "err", err)
	}
}
