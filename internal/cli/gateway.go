package cli

import (
	"context"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/soyeahso/clinicbot/internal/channel"
	"github.com/soyeahso/clinicbot/internal/channel/irc"
	"github.com/soyeahso/clinicbot/internal/config"
	"github.com/soyeahso/clinicbot/internal/gateway"
	"github.com/soyeahso/clinicbot/internal/routing"
)

const channelStopTimeout = 10 * time.Second

func newGatewayCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gateway",
		Short: "Serve the assistant to front-ends and chat networks",
	}
	cmd.AddCommand(newGatewayRunCmd())
	return cmd
}

func newGatewayRunCmd() *cobra.Command {
	var (
		port int
		bind string
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the gateway until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(paths.Config)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("port") {
				cfg.Gateway.Port = port
			}
			if cmd.Flags().Changed("bind") {
				cfg.Gateway.Bind = bind
			}
			for _, issue := range config.Validate(&cfg) {
				log.Warn().Str("path", issue.Path).Msg(issue.Message)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			eng, err := newEngine(ctx, cfg)
			if err != nil {
				return err
			}
			defer eng.Close()

			raw, err := config.LoadRaw(paths.Config)
			if err != nil {
				log.Warn().Err(err).Msg("config.get and config.set will see an empty document")
				raw = map[string]any{}
			}

			channels := startChannels(ctx, cfg, eng)
			defer stopChannels(channels)

			srv := gateway.New(cfg, log,
				gateway.WithConfigRaw(raw),
				gateway.WithAssistant(eng.assistant),
				gateway.WithBookings(eng.bookings),
				gateway.WithChannels(channels),
				gateway.WithHooks(eng.hooks),
			)
			return srv.Start(ctx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 0, "listen on this port instead of gateway.port")
	cmd.Flags().StringVar(&bind, "bind", "", "bind mode: loopback, lan, auto or custom")
	return cmd
}

// startChannels registers the configured chat networks, routes their
// messages to the assistant and connects them. The registry is returned
// even when empty so channels.status has something to report.
func startChannels(ctx context.Context, cfg config.Config, eng *engine) *channel.Registry {
	channels := channel.NewRegistry(log)
	if cfg.Channels.IRC != nil {
		channels.Register(irc.New(*cfg.Channels.IRC, log))
	}
	if channels.Count() == 0 {
		return channels
	}

	routing.NewRouter(channels, eng.assistant, cfg.Session.Scope, log).Wire(ctx)
	channels.StartAll(ctx)
	log.Info().Strs("channels", channels.List()).Str("scope", cfg.Session.Scope).Msg("channels started")
	return channels
}

func stopChannels(channels *channel.Registry) {
	if channels.Count() == 0 {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), channelStopTimeout)
	defer cancel()
	if err := channels.StopAll(ctx); err != nil {
		log.Warn().Err(err).Msg("channels did not stop cleanly")
	}
}
