package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/noamisr/maestro/internal/appconfig"
	"pkt.systems/pslog"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage the maestro config file",
	}
	cmd.AddCommand(newConfigInitCmd())
	cmd.AddCommand(newConfigShowCmd())
	return cmd
}

func newConfigInitCmd() *cobra.Command {
	var path string
	var overwrite bool
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write the default config",
		RunE: func(cmd *cobra.Command, args []string) error {
			written, err := appconfig.WriteDefault(path, overwrite)
			if err != nil {
				return err
			}
			pslog.Ctx(cmd.Context()).Info("config wrote", "path", written)
			return nil
		},
	}
	cmd.Flags().StringVarP(&path, "path", "p", "", "config path (default ~/.maestro/config.yaml)")
	cmd.Flags().BoolVar(&overwrite, "force", false, "overwrite an existing config")
	return cmd
}

func newConfigShowCmd() *cobra.Command {
	var cfgPath string
	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective config after defaults and environment overrides",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(cmd.OutOrStdout(), string(data))
			return err
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	return cmd
}
