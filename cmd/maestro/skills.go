package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/noamisr/maestro/internal/appconfig"
	"github.com/noamisr/maestro/internal/remote"
	"github.com/noamisr/maestro/internal/skill"
)

func newSkillsCmd() *cobra.Command {
	var cfgPath string
	var category string
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "skills",
		Short: "List the skill catalogue",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := appconfig.Load(cfgPath)
			if err != nil {
				return err
			}
			// Descriptors need no engine.
			registry, err := skill.NewBuiltin(remote.NewClient(nil), skill.WithShortcuts(cfg.Skills.ShortcutMap()))
			if err != nil {
				return err
			}
			descs := filterSkills(registry.Describe(), category)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				return enc.Encode(descs)
			}
			return writeSkillTable(cmd.OutOrStdout(), descs)
		},
	}
	cmd.Flags().StringVarP(&cfgPath, "config", "c", "", "path to config file")
	cmd.Flags().StringVar(&category, "category", "", "only list skills in this category")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print descriptors as JSON")
	return cmd
}

func filterSkills(descs []skill.Descriptor, category string) []skill.Descriptor {
	category = strings.TrimSpace(category)
	if category == "" {
		return descs
	}
	out := make([]skill.Descriptor, 0, len(descs))
	for _, desc := range descs {
		if strings.EqualFold(string(desc.Category), category) {
			out = append(out, desc)
		}
	}
	return out
}

func writeSkillTable(w io.Writer, descs []skill.Descriptor) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "ID\tCATEGORY\tSHORTCUT\tPARAMS\tDESCRIPTION")
	for _, desc := range descs {
		params := make([]string, 0, len(desc.Params))
		for _, p := range desc.Params {
			name := p.Name
			if !p.Required {
				name += "?"
			}
			params = append(params, name)
		}
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", desc.ID, desc.Category, desc.KeyboardShortcut, strings.Join(params, ","), desc.Description)
	}
	return tw.Flush()
}
