package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"

	"github.com/noamisr/maestro"
	"github.com/noamisr/maestro/internal/appconfig"
	"pkt.systems/pslog"
)

// runtimeFlags are shared by the commands that talk to an engine.
type runtimeFlags struct {
	cfgPath     string
	engine      string
	syncTimeout time.Duration
}

func (f *runtimeFlags) bindConfig(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&f.engine, "engine", "", "override engine.kind (mock, abletonosc, bridge)")
}

func (f *runtimeFlags) bind(cmd *cobra.Command) {
	f.bindConfig(cmd)
	cmd.Flags().DurationVar(&f.syncTimeout, "sync-timeout", 5*time.Second, "how long to wait for the first engine full-sync")
}

func (f *runtimeFlags) load() (appconfig.Config, error) {
	cfg, err := appconfig.Load(f.cfgPath)
	if err != nil {
		return appconfig.Config{}, err
	}
	if f.engine != "" {
		cfg.Engine.Kind = f.engine
	}
	return cfg, nil
}

// withRuntime starts a runtime without HTTP or telemetry, waits for the
// engine to sync and runs fn against it.
func withRuntime(ctx context.Context, flags *runtimeFlags, fn func(ctx context.Context, rt *maestro.Runtime) error) error {
	cfg, err := flags.load()
	if err != nil {
		return err
	}
	logger := pslog.Ctx(ctx)
	rt, err := maestro.New(cfg, maestro.WithLogger(logger), maestro.WithoutTelemetry())
	if err != nil {
		return err
	}
	if err := rt.Start(ctx); err != nil {
		return err
	}
	defer func() {
		stopCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := rt.Stop(stopCtx); err != nil {
			logger.Warn("runtime stop failed", "err", err)
		}
	}()

	syncCtx, cancel := context.WithTimeout(ctx, flags.syncTimeout)
	defer cancel()
	if err := rt.WaitSynced(syncCtx); err != nil {
		return err
	}
	return fn(ctx, rt)
}

func seconds(n int) time.Duration {
	return time.Duration(n) * time.Second
}
