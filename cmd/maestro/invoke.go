package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/noamisr/maestro"
	"github.com/noamisr/maestro/internal/skill"
)

func newInvokeCmd() *cobra.Command {
	var flags runtimeFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "invoke <skill> [key=value...]",
		Short: "Invoke one skill against the configured engine",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(args[1:])
			if err != nil {
				return err
			}
			return withRuntime(cmd.Context(), &flags, func(ctx context.Context, rt *maestro.Runtime) error {
				return printResult(cmd.OutOrStdout(), rt.Skills().Invoke(ctx, args[0], params), asJSON)
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func newCommandCmd() *cobra.Command {
	var flags runtimeFlags
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "command <input>",
		Short: "Run a slash command such as \"/tempo 128\"",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			input := strings.Join(args, " ")
			return withRuntime(cmd.Context(), &flags, func(ctx context.Context, rt *maestro.Runtime) error {
				result, handled, err := rt.Commands().Handle(ctx, input)
				if err != nil {
					return err
				}
				if !handled {
					return fmt.Errorf("not a slash command: %q", input)
				}
				return printResult(cmd.OutOrStdout(), result, asJSON)
			})
		},
	}
	flags.bind(cmd)
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

// parseParams turns key=value pairs into skill params. Values that parse
// as JSON keep their JSON type; anything else is a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid parameter %q; expected key=value", pair)
		}
		if _, dup := params[key]; dup {
			return nil, fmt.Errorf("parameter %q given twice", key)
		}
		var value any
		if err := json.Unmarshal([]byte(raw), &value); err != nil {
			value = raw
		}
		params[key] = value
	}
	return params, nil
}

func printResult(w io.Writer, result skill.Result, asJSON bool) error {
	if asJSON {
		if err := json.NewEncoder(w).Encode(result); err != nil {
			return err
		}
	} else if result.Success {
		_, _ = fmt.Fprintln(w, result.Message)
	}
	if !result.Success {
		return errors.New(result.Message)
	}
	return nil
}
