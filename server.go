package maestro

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/noamisr/maestro/core"
	"github.com/noamisr/maestro/httpapi"
	"github.com/noamisr/maestro/internal/appconfig"
	"github.com/noamisr/maestro/internal/command"
	"github.com/noamisr/maestro/internal/eventbus"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/internal/sidecar"
	"github.com/noamisr/maestro/internal/skill"
	"github.com/noamisr/maestro/internal/telemetry"
	"github.com/noamisr/maestro/schema"
	"github.com/noamisr/maestro/sshserver"
	"pkt.systems/pslog"
)

// Server composes the engine adapter, the state core and the HTTP and SSH
// surfaces.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// Option toggles runtime components.
type Option func(*options)

type options struct {
	enableHTTP  bool
	listener    net.Listener
	enableSSH   bool
	sshListener net.Listener
	sinks       []core.ChangeSink
	engine      Engine
	logger      pslog.Logger
	noTelemetry bool
}

// WithHTTP enables the HTTP API server.
func WithHTTP() Option {
	return func(o *options) { o.enableHTTP = true }
}

// WithListener serves HTTP on lis instead of the configured address. It
// implies WithHTTP.
func WithListener(lis net.Listener) Option {
	return func(o *options) {
		o.enableHTTP = true
		o.listener = lis
	}
}

// WithSSH enables the SSH console.
func WithSSH() Option {
	return func(o *options) { o.enableSSH = true }
}

// WithSSHListener serves the SSH console on lis instead of the configured
// address. It implies WithSSH.
func WithSSHListener(lis net.Listener) Option {
	return func(o *options) {
		o.enableSSH = true
		o.sshListener = lis
	}
}

// WithChangeSink adds an observer of state changes.
func WithChangeSink(sink core.ChangeSink) Option {
	return func(o *options) {
		if sink != nil {
			o.sinks = append(o.sinks, sink)
		}
	}
}

// WithEngine replaces the configured engine adapter.
func WithEngine(engine Engine) Option {
	return func(o *options) { o.engine = engine }
}

// WithLogger sets the runtime logger.
func WithLogger(logger pslog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithoutTelemetry skips tracing setup, for one-shot CLI commands.
func WithoutTelemetry() Option {
	return func(o *options) { o.noTelemetry = true }
}

// Runtime wires one engine adapter to the store, router, skill registry and
// surfaces. It implements Server.
type Runtime struct {
	cfg      appconfig.Config
	options  options
	logger   pslog.Logger
	events   *eventbus.Events
	store    *core.Store
	router   *core.Router
	client   *remote.Client
	registry *skill.Registry
	commands *command.Handler
	engine   Engine
	sidecar  *sidecar.Client
	hub      *httpapi.Hub
	httpSrv  *httpapi.Server
	sshSrv   *sshserver.Server

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	err     error
	started bool
}

// New builds a runtime from cfg.
func New(cfg appconfig.Config, opts ...Option) (*Runtime, error) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	logger := o.logger
	if logger == nil {
		logger = pslog.Ctx(context.Background())
	}

	r := &Runtime{cfg: cfg, options: o, logger: logger}
	r.events = eventbus.NewEvents(logger)

	sinks := append([]core.ChangeSink(nil), o.sinks...)
	if o.enableHTTP {
		r.hub = httpapi.NewHub(cfg.HTTP.History)
		sinks = append(sinks, r.hub)
	}
	storeOpts := []core.StoreOption{core.WithStoreLogger(logger)}
	switch len(sinks) {
	case 0:
	case 1:
		storeOpts = append(storeOpts, core.WithChangeSink(sinks[0]))
	default:
		storeOpts = append(storeOpts, core.WithChangeSink(changeFanout{sinks: sinks}))
	}
	r.store = core.NewStore(storeOpts...)

	engine := o.engine
	if engine == nil {
		built, err := buildEngine(cfg, r.events, logger)
		if err != nil {
			return nil, err
		}
		engine = built
	}
	r.engine = engine

	var invoker remote.Invoker = engine
	if cfg.Sidecar.Enabled && schema.EngineKind(cfg.Engine.Kind) != schema.EngineBridge {
		r.sidecar = sidecar.New(cfg.Sidecar.URL,
			sidecar.WithRequestTimeout(seconds(cfg.Sidecar.RequestTimeoutSeconds)),
			sidecar.WithLogger(logger.With("component", "sidecar")),
		)
		invoker = remote.NewMux(engine).Route(r.sidecar, remote.SearchOps()...)
	}
	r.client = remote.NewClient(invoker)
	r.router = core.NewRouter(r.store,
		core.WithRouterLogger(logger.With("component", "router")),
		core.WithResync(r.client.RequestFullState),
	)

	registry, err := skill.NewBuiltin(r.client,
		skill.WithShortcuts(cfg.Skills.ShortcutMap()),
		skill.WithLogger(logger),
	)
	if err != nil {
		return nil, fmt.Errorf("skill registry: %w", err)
	}
	r.registry = registry
	r.commands = command.NewHandler(registry, command.HandlerConfig{
		DisableAuditLogging: cfg.Logging.DisableAuditTrails,
	})
	if o.enableHTTP {
		r.httpSrv = httpapi.NewServer(httpapi.Config{
			Addr:     cfg.HTTP.Addr,
			BasePath: cfg.HTTP.BasePath,
			History:  cfg.HTTP.History,
		}, r.store, registry, r.commands, r.hub)
	}
	if o.enableSSH {
		r.sshSrv = sshserver.New(sshserver.Config{
			Addr:               cfg.SSH.Addr,
			HostKeyPath:        cfg.SSH.HostKeyPath,
			AuthorizedKeysPath: cfg.SSH.AuthorizedKeysPath,
			Theme:              cfg.SSH.Theme,
		}, r.store, r.commands)
		r.sshSrv.Listener = o.sshListener
	}
	return r, nil
}

// State returns the read handle of the store.
func (r *Runtime) State() core.StateReader {
	return r.store
}

// Skills returns the skill registry.
func (r *Runtime) Skills() *skill.Registry {
	return r.registry
}

// Commands returns the slash command handler.
func (r *Runtime) Commands() *command.Handler {
	return r.commands
}

// Start subscribes the router and launches the engine, the sidecar monitor
// and the enabled surfaces.
func (r *Runtime) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		r.logger.Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	r.started = true
	r.ctx, r.cancel = context.WithCancel(pslog.ContextWithLogger(ctx, r.logger))
	r.done = make(chan struct{})
	runCtx := r.ctx
	r.mu.Unlock()

	log := r.logger
	log.Info("server start",
		"engine", r.cfg.Engine.Kind,
		"bridge", r.cfg.Bridge.Transport,
		"sidecar", r.sidecar != nil,
		"http", r.httpSrv != nil,
		"http_addr", r.cfg.HTTP.Addr,
		"http_base_path", r.cfg.HTTP.BasePath,
		"ssh", r.sshSrv != nil,
	)

	shutdownTelemetry := func(context.Context) error { return nil }
	if !r.options.noTelemetry {
		shutdown, err := telemetry.Setup(runCtx, r.cfg.Telemetry.ServiceName, r.cfg.Telemetry.Endpoint)
		if err != nil {
			log.Warn("telemetry setup failed", "err", err)
		} else {
			shutdownTelemetry = shutdown
		}
	}

	if err := r.router.Start(runCtx, r.events); err != nil {
		r.cancel()
		close(r.done)
		return fmt.Errorf("router start: %w", err)
	}

	g, gctx := errgroup.WithContext(runCtx)
	g.Go(func() error {
		if err := r.engine.Run(gctx); err != nil && gctx.Err() == nil {
			log.Error("engine failed", "err", err)
			return err
		}
		return nil
	})
	if r.sidecar != nil {
		monitor := sidecar.NewMonitor(r.sidecar, r.events, seconds(r.cfg.Sidecar.HealthIntervalSeconds), log.With("component", "sidecar"))
		g.Go(func() error {
			return monitor.Run(gctx)
		})
	}
	if r.httpSrv != nil {
		g.Go(func() error {
			var err error
			if r.options.listener != nil {
				err = httpapi.Serve(gctx, r.options.listener, r.httpSrv.Handler())
			} else {
				err = httpapi.ListenAndServe(gctx, r.cfg.HTTP.Addr, r.httpSrv.Handler())
			}
			if err != nil {
				log.Error("http server failed", "err", err)
			}
			return err
		})
	}

	if r.sshSrv != nil {
		g.Go(func() error {
			err := r.sshSrv.ListenAndServe(gctx)
			if err != nil {
				log.Error("ssh server failed", "err", err)
			}
			return err
		})
	}

	go func() {
		err := g.Wait()
		r.router.Close()
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if terr := shutdownTelemetry(flushCtx); terr != nil {
			log.Warn("telemetry shutdown failed", "err", terr)
		}
		cancel()
		r.mu.Lock()
		r.err = err
		r.mu.Unlock()
		close(r.done)
	}()
	return nil
}

// Wait blocks until every component has stopped and returns the first
// component error.
func (r *Runtime) Wait() error {
	r.mu.Lock()
	done := r.done
	started := r.started
	r.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}
	<-done
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		r.logger.Error("server stopped", "err", r.err)
	}
	return r.err
}

// Stop cancels all components and waits for them within ctx.
func (r *Runtime) Stop(ctx context.Context) error {
	r.mu.Lock()
	cancel := r.cancel
	done := r.done
	started := r.started
	r.mu.Unlock()
	if !started {
		return nil
	}
	r.logger.Info("server stop requested")
	cancel()
	if ctx == nil {
		ctx = context.Background()
	}
	select {
	case <-ctx.Done():
		r.logger.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-done:
		r.logger.Info("server stopped")
		return nil
	}
}

// WaitSynced blocks until the engine is connected and a full-sync has been
// applied, or ctx ends.
func (r *Runtime) WaitSynced(ctx context.Context) error {
	changes, cancel := r.store.Subscribe()
	defer cancel()
	// Change notifications are lossy; the ticker re-reads the snapshot.
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()
	for {
		snap := r.store.Snapshot()
		if snap.Connection.Engine && snap.Synced {
			return nil
		}
		select {
		case <-ctx.Done():
			return fmt.Errorf("waiting for engine sync: %w", ctx.Err())
		case <-changes:
		case <-ticker.C:
		}
	}
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
