package cli

import (
	"context"

	"github.com/koustreak/sqlsession/internal/config"
	"github.com/koustreak/sqlsession/internal/filestore/minio"
	"github.com/koustreak/sqlsession/internal/schema"
	"github.com/koustreak/sqlsession/internal/server"
	"github.com/koustreak/sqlsession/internal/session"
	"github.com/spf13/cobra"
)

func newServeCmd(a *app) *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the session over HTTP",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, cfg config.Config, s *session.Session) error {
				log := a.logger(cmd, cfg)
				opts := []server.Option{server.WithLogger(log)}

				if r, err := schema.New(s, cfg.Driver); err == nil {
					opts = append(opts, server.WithSchema(r))
				}

				if cfg.Export.Enabled() {
					store, err := minio.New(ctx, cfg.Export)
					if err != nil {
						return err
					}
					defer store.Close()
					opts = append(opts, server.WithStore(store))
				}

				return server.New(s, opts...).ListenAndServe(ctx, addr)
			})
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "Listen address")
	return cmd
}
