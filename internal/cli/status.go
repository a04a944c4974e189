package cli

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/llm"
	"github.com/soyeahso/clinicbot/internal/version"
)

func newStatusCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show clinicbot status and configuration summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			fmt.Fprintf(w, "%s\n\n", version.Current())

			fmt.Fprintf(w, "Config:  %s\n", paths.Config)
			fmt.Fprintf(w, "Data:    %s\n", paths.Data)
			fmt.Fprintf(w, "Logs:    %s\n", paths.Logs)
			fmt.Fprintln(w)

			if _, err := os.Stat(paths.Config); os.IsNotExist(err) {
				fmt.Fprintln(w, "Config:  not found (using defaults)")
			}
			cfg, err := config.Load(paths.Config)
			if err != nil {
				fmt.Fprintf(w, "Config:  error loading: %v\n", err)
				return nil
			}

			fmt.Fprintf(w, "Gateway: port=%d bind=%s auth=%s rate=%d/min\n",
				cfg.Gateway.Port, cfg.Gateway.Bind, cfg.Gateway.Auth.Mode, cfg.Gateway.RateLimit.PerMinute)

			wh := cfg.Booking.WorkingHours
			fmt.Fprintf(w, "Booking: hours=%s-%s window=%dd types=%s\n",
				wh.Start, wh.End, cfg.Booking.WindowDays, strings.Join(cfg.Booking.Catalog, ", "))

			storePath := cfg.Store.Path
			if storePath == "" {
				storePath = paths.Database
			}
			if cfg.Store.Driver == "postgres" {
				fmt.Fprintln(w, "Store:   postgres")
			} else {
				fmt.Fprintf(w, "Store:   sqlite path=%s\n", storePath)
			}

			registry, err := llm.NewRegistryFromConfig(cfg.LLM, log)
			if err != nil {
				fmt.Fprintf(w, "LLM:     error: %v\n", err)
			} else if providers := registry.List(); len(providers) > 0 {
				fmt.Fprintf(w, "LLM:     primary=%s available=%s\n", cfg.LLM.Primary, strings.Join(providers, ", "))
			} else {
				fmt.Fprintln(w, "LLM:     (no provider has credentials)")
			}

			fmt.Fprintf(w, "Mail:    transport=%s archive=%v\n", cfg.Mail.Transport, cfg.Mail.Archive.Enabled)
			if cfg.Events.NATSURL != "" {
				fmt.Fprintf(w, "Events:  nats=%s prefix=%s\n", cfg.Events.NATSURL, cfg.Events.SubjectPrefix)
			}

			if irc := cfg.Channels.IRC; irc != nil {
				fmt.Fprintf(w, "IRC:     server=%s nick=%s channels=%s tls=%v\n",
					irc.Server, irc.Nick, strings.Join(irc.Channels, ","), irc.UseTLS)
			} else {
				fmt.Fprintln(w, "IRC:     (not configured)")
			}

			if issues := config.Validate(&cfg); len(issues) > 0 {
				fmt.Fprintf(w, "\nValidation issues (%d):\n", len(issues))
				for _, issue := range issues {
					fmt.Fprintf(w, "  - %s\n", issue)
				}
			}
			return nil
		},
	}

	return cmd
}
