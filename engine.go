package maestro

import (
	"context"
	"fmt"
	"time"

	"github.com/noamisr/maestro/internal/appconfig"
	"github.com/noamisr/maestro/internal/bridgegrpc"
	"github.com/noamisr/maestro/internal/bridgews"
	"github.com/noamisr/maestro/internal/eventbus"
	"github.com/noamisr/maestro/internal/mockengine"
	"github.com/noamisr/maestro/internal/oscengine"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

// Engine is an engine adapter: it serves remote calls and, while Run is
// active, feeds engine events into the runtime event bus.
type Engine interface {
	remote.Invoker
	Run(ctx context.Context) error
}

// lifecycle is an in-process engine with explicit start and close.
type lifecycle interface {
	remote.Invoker
	Start(ctx context.Context) error
	Close(ctx context.Context) error
}

// startStop adapts a lifecycle engine to Engine.
type startStop struct {
	lifecycle
	name string
}

func (e startStop) Run(ctx context.Context) error {
	log := pslog.Ctx(ctx).With("engine", e.name)
	if err := e.Start(ctx); err != nil {
		return fmt.Errorf("%s start: %w", e.name, err)
	}
	log.Info("engine started")
	<-ctx.Done()
	closeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
	defer cancel()
	if err := e.Close(closeCtx); err != nil {
		log.Warn("engine close failed", "err", err)
	}
	log.Info("engine stopped")
	return nil
}

// grpcEngine closes the client connection after Run.
type grpcEngine struct {
	*bridgegrpc.Client
}

func (e grpcEngine) Run(ctx context.Context) error {
	defer e.Client.Close()
	return e.Client.Run(ctx)
}

// MockEngine wraps a simulated engine so it can be handed to WithEngine.
func MockEngine(engine *mockengine.Engine) Engine {
	return startStop{lifecycle: engine, name: string(schema.EngineMock)}
}

// HostEngine builds the in-process engine that a bridge host serves to
// remote runtimes. The bridge kind itself cannot be hosted.
func HostEngine(cfg appconfig.Config, events *eventbus.Events, logger pslog.Logger) (Engine, error) {
	kind, err := schema.NormalizeEngineKind(cfg.Engine.Kind)
	if err != nil {
		return nil, err
	}
	if kind == schema.EngineBridge {
		return nil, fmt.Errorf("%w: a bridge host needs a local engine, got %q", schema.ErrInvalidEngineKind, cfg.Engine.Kind)
	}
	return buildEngine(cfg, events, logger)
}

// buildEngine constructs the adapter selected by cfg.Engine.Kind.
func buildEngine(cfg appconfig.Config, events *eventbus.Events, logger pslog.Logger) (Engine, error) {
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}
	kind, err := schema.NormalizeEngineKind(cfg.Engine.Kind)
	if err != nil {
		return nil, err
	}
	switch kind {
	case schema.EngineMock:
		engine := mockengine.New(events,
			mockengine.WithLogger(logger.With("component", "mockengine")),
			mockengine.WithClock(time.Duration(cfg.Engine.ClockIntervalMS)*time.Millisecond),
			mockengine.WithParams(engineParams(cfg.Engine.Params)...),
		)
		return MockEngine(engine), nil
	case schema.EngineAbletonOSC:
		engine, err := oscengine.New(oscengine.Config{
			SendAddr:   cfg.Engine.OSC.SendAddr,
			ListenAddr: cfg.Engine.OSC.ListenAddr,
		}, events, oscengine.WithLogger(logger.With("component", "oscengine")))
		if err != nil {
			return nil, err
		}
		return startStop{lifecycle: engine, name: string(kind)}, nil
	case schema.EngineBridge:
		return buildBridge(cfg.Bridge, events, logger)
	default:
		return nil, fmt.Errorf("%w: %q", schema.ErrInvalidEngineKind, cfg.Engine.Kind)
	}
}

func buildBridge(cfg appconfig.BridgeConfig, events *eventbus.Events, logger pslog.Logger) (Engine, error) {
	reconnect := seconds(cfg.ReconnectSeconds)
	switch cfg.Transport {
	case appconfig.BridgeGRPC:
		client, err := bridgegrpc.Dial(cfg.GRPCAddr, events,
			bridgegrpc.WithLogger(logger.With("component", "bridgegrpc")),
			bridgegrpc.WithReconnect(reconnect),
			bridgegrpc.WithHealthInterval(seconds(cfg.HealthIntervalSeconds)),
		)
		if err != nil {
			return nil, err
		}
		return grpcEngine{Client: client}, nil
	case appconfig.BridgeWebSocket, "":
		return bridgews.New(cfg.URL, events,
			bridgews.WithLogger(logger.With("component", "bridgews")),
			bridgews.WithReconnect(reconnect),
		), nil
	default:
		return nil, fmt.Errorf("unsupported bridge transport %q", cfg.Transport)
	}
}

func engineParams(params []appconfig.EngineParamConfig) []schema.EngineParam {
	out := make([]schema.EngineParam, 0, len(params))
	for _, p := range params {
		out = append(out, schema.EngineParam{ID: p.ID, Label: p.Label, Min: p.Min, Max: p.Max})
	}
	return out
}
