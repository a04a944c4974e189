package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/soyeahso/clinicbot/internal/config"
)

func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Read and edit the config file",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "get KEY",
			Short: "Print the value at a dotted key, e.g. booking.workingHours.start",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				var val any
				err := withRawConfig(args[0], false, func(raw map[string]any, path []string) error {
					v, ok := config.GetValueAtPath(raw, path)
					if !ok {
						return fmt.Errorf("%s is not set", args[0])
					}
					val = v
					return nil
				})
				if err != nil {
					return err
				}
				return writeValue(cmd.OutOrStdout(), val)
			},
		},
		&cobra.Command{
			Use:   "set KEY VALUE",
			Short: "Store a value; true/false and numbers keep their type",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				value := parseValue(args[1])
				err := withRawConfig(args[0], true, func(raw map[string]any, path []string) error {
					config.SetValueAtPath(raw, path, value)
					return nil
				})
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "%s = %v\n", args[0], value)
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "unset KEY",
			Short: "Remove a key so its default applies again",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				err := withRawConfig(args[0], true, func(raw map[string]any, path []string) error {
					if !config.UnsetValueAtPath(raw, path) {
						return fmt.Errorf("%s is not set", args[0])
					}
					return nil
				})
				if err == nil {
					fmt.Fprintf(cmd.OutOrStdout(), "removed %s\n", args[0])
				}
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print where the config file lives",
			Args:  cobra.NoArgs,
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Fprintln(cmd.OutOrStdout(), paths.Config)
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Report missing or inconsistent settings",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				cfg, err := config.Load(paths.Config)
				if err != nil {
					return err
				}
				issues := config.Validate(&cfg)
				out := cmd.OutOrStdout()
				if len(issues) == 0 {
					fmt.Fprintln(out, "config is valid")
					return nil
				}
				for _, issue := range issues {
					fmt.Fprintln(out, "-", issue)
				}
				return fmt.Errorf("config has %d problem(s)", len(issues))
			},
		},
	)
	return cmd
}

// withRawConfig loads the config document, hands fn the parsed key and
// writes the document back when save is set and fn succeeded.
func withRawConfig(key string, save bool, fn func(raw map[string]any, path []string) error) error {
	path, err := config.ParseConfigPath(key)
	if err != nil {
		return err
	}
	raw, err := config.LoadRaw(paths.Config)
	if err != nil {
		return err
	}
	if err := fn(raw, path); err != nil {
		return err
	}
	if !save {
		return nil
	}
	return config.SaveRaw(paths.Config, raw)
}

// writeValue prints scalars on one line and nested values as YAML.
func writeValue(w io.Writer, v any) error {
	switch v.(type) {
	case map[string]any, []any:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	default:
		_, err := fmt.Fprintln(w, v)
		return err
	}
}

// parseValue keeps the YAML type a user most likely meant: booleans,
// integers and floats, with everything else stored as a string.
func parseValue(s string) any {
	switch {
	case strings.EqualFold(s, "true"):
		return true
	case strings.EqualFold(s, "false"):
		return false
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return f
	}
	return s
}
