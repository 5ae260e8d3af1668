package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/noamisr/maestro"
	"github.com/noamisr/maestro/internal/mcpserver"
	"github.com/noamisr/maestro/internal/version"
	"pkt.systems/pslog"
)

func newMCPCmd() *cobra.Command {
	var flags runtimeFlags
	cmd := &cobra.Command{
		Use:   "mcp",
		Short: "Serve the skill catalogue to an MCP client over stdio",
		Long:  "Serve list_skills, invoke_skill and get_state over the Model Context Protocol on stdin/stdout. Logs go to stderr.",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			rt, err := maestro.New(cfg, maestro.WithLogger(logger))
			if err != nil {
				return err
			}
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			if err := rt.Start(ctx); err != nil {
				return err
			}
			defer func() {
				stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := rt.Stop(stopCtx); err != nil {
					logger.Warn("runtime stop failed", "err", err)
				}
			}()

			server := mcpserver.New(rt.Skills(), rt.State(), version.Current(),
				mcpserver.WithLogger(logger.With("component", "mcp")))
			logger.Info("mcp server on stdio", "engine", cfg.Engine.Kind)
			return server.RunStdio(ctx)
		},
	}
	flags.bindConfig(cmd)
	return cmd
}
