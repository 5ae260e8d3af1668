package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/noamisr/maestro"
	"github.com/noamisr/maestro/httpapi"
	"github.com/noamisr/maestro/internal/appconfig"
	"github.com/noamisr/maestro/internal/bridgegrpc"
	"github.com/noamisr/maestro/internal/bridgews"
	"github.com/noamisr/maestro/internal/eventbus"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/internal/sidecar"
	"github.com/noamisr/maestro/schema"
	"pkt.systems/pslog"
)

func newBridgeCmd() *cobra.Command {
	var flags runtimeFlags
	var transport string
	var addr string
	cmd := &cobra.Command{
		Use:   "bridge",
		Short: "Host a local engine for remote maestro runtimes",
		Long:  "Run a mock or AbletonOSC engine in this process and serve it over the websocket or gRPC bridge. Runtimes configured with engine.kind=bridge connect to it.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if flags.engine == "" && schema.EngineKind(cfg.Engine.Kind) == schema.EngineBridge {
				cfg.Engine.Kind = string(schema.EngineMock)
			}
			if transport != "" {
				cfg.Bridge.Transport = transport
			}
			listen, path, err := bridgeListenAddr(cfg.Bridge, addr)
			if err != nil {
				return err
			}

			events := eventbus.NewEvents(logger)
			engine, err := maestro.HostEngine(cfg, events, logger)
			if err != nil {
				return err
			}
			var invoker remote.Invoker = engine
			var monitor *sidecar.Monitor
			if cfg.Sidecar.Enabled {
				client := sidecar.New(cfg.Sidecar.URL,
					sidecar.WithRequestTimeout(seconds(cfg.Sidecar.RequestTimeoutSeconds)),
					sidecar.WithLogger(logger.With("component", "sidecar")),
				)
				invoker = remote.NewMux(engine).Route(client, remote.SearchOps()...)
				monitor = sidecar.NewMonitor(client, events, seconds(cfg.Sidecar.HealthIntervalSeconds), logger.With("component", "sidecar"))
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx = pslog.ContextWithLogger(ctx, logger)
			var serve func(ctx context.Context) error
			switch cfg.Bridge.Transport {
			case appconfig.BridgeGRPC:
				server := bridgegrpc.NewServer(invoker, events, bridgegrpc.WithServerLogger(logger.With("component", "bridgegrpc")))
				if err := server.WatchHealth(ctx); err != nil {
					return err
				}
				lis, err := net.Listen("tcp", listen)
				if err != nil {
					return err
				}
				logger.Info("bridge listening", "transport", cfg.Bridge.Transport, "addr", lis.Addr().String(), "engine", cfg.Engine.Kind)
				serve = func(ctx context.Context) error { return server.Serve(ctx, lis) }
			default:
				mux := http.NewServeMux()
				mux.Handle(path, bridgews.NewHandler(invoker, events, bridgews.WithHandlerLogger(logger.With("component", "bridgews"))))
				logger.Info("bridge listening", "transport", cfg.Bridge.Transport, "addr", listen, "path", path, "engine", cfg.Engine.Kind)
				serve = func(ctx context.Context) error { return httpapi.ListenAndServe(ctx, listen, mux) }
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error { return engine.Run(gctx) })
			if monitor != nil {
				g.Go(func() error { return monitor.Run(gctx) })
			}
			g.Go(func() error { return serve(gctx) })
			return g.Wait()
		},
	}
	flags.bindConfig(cmd)
	cmd.Flags().StringVar(&transport, "transport", "", "override bridge.transport (websocket, grpc)")
	cmd.Flags().StringVar(&addr, "addr", "", "listen address; defaults to the host of bridge.url or bridge.grpc_addr")
	return cmd
}

// bridgeListenAddr derives the host side of the bridge from the client
// settings so one config file serves both ends.
func bridgeListenAddr(cfg appconfig.BridgeConfig, override string) (string, string, error) {
	switch cfg.Transport {
	case appconfig.BridgeGRPC:
		if override != "" {
			return override, "", nil
		}
		return cfg.GRPCAddr, "", nil
	case appconfig.BridgeWebSocket, "":
		u, err := url.Parse(cfg.URL)
		if err != nil {
			return "", "", fmt.Errorf("bridge.url: %w", err)
		}
		path := u.Path
		if path == "" {
			path = "/"
		}
		if override != "" {
			return override, path, nil
		}
		if u.Host == "" {
			return "", "", fmt.Errorf("bridge.url %q has no host", cfg.URL)
		}
		return u.Host, path, nil
	default:
		return "", "", fmt.Errorf("unsupported bridge transport %q", cfg.Transport)
	}
}
