package cli

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/castaldi/frank/internal/gateway"
	"github.com/castaldi/frank/internal/version"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the websocket gateway",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}

			rt, err := buildRuntime(cfg, true)
			if err != nil {
				return err
			}
			defer rt.Close()

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			log.Info().Str("version", version.Info()).Msg("starting frank")
			srv := gateway.New(cfg.Gateway, rt.router, rt.trans, rt.bus, log)
			return srv.Start(ctx)
		},
	}
}
