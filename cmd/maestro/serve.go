package main

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/noamisr/maestro"
	"pkt.systems/pslog"
)

func newServeCmd() *cobra.Command {
	var flags runtimeFlags
	var disableAuditTrails bool
	var httpAddr string
	var enableSSH bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the control surface with the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := pslog.Ctx(cmd.Context())
			cfg, err := flags.load()
			if err != nil {
				return err
			}
			if disableAuditTrails {
				cfg.Logging.DisableAuditTrails = true
			}
			if httpAddr != "" {
				cfg.HTTP.Addr = httpAddr
			}
			if enableSSH {
				cfg.SSH.Enabled = true
			}
			opts := []maestro.Option{maestro.WithHTTP(), maestro.WithLogger(logger)}
			if cfg.SSH.Enabled {
				opts = append(opts, maestro.WithSSH())
			}
			server, err := maestro.New(cfg, opts...)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			go func() {
				<-ctx.Done()
				stopCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				if err := server.Stop(stopCtx); err != nil {
					logger.Warn("server stop failed", "err", err)
				}
			}()
			logger.Info("http server listening", "addr", cfg.HTTP.Addr, "base_path", cfg.HTTP.BasePath)
			if cfg.SSH.Enabled {
				logger.Info("ssh server listening", "addr", cfg.SSH.Addr)
			}
			if err := server.Start(ctx); err != nil {
				return err
			}
			return server.Wait()
		},
	}
	flags.bindConfig(cmd)
	cmd.Flags().BoolVar(&disableAuditTrails, "disable-audit-trails", false, "disable audit trail logging for commands")
	cmd.Flags().StringVar(&httpAddr, "http-addr", "", "override http.addr")
	cmd.Flags().BoolVar(&enableSSH, "ssh", false, "enable the SSH console (ssh.enabled)")
	return cmd
}
