package cli

import (
	"context"

	"github.com/koustreak/sqlsession/internal/config"
	"github.com/koustreak/sqlsession/internal/schema"
	"github.com/koustreak/sqlsession/internal/session"
	"github.com/spf13/cobra"
)

func newTablesCmd(a *app) *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:   "tables",
		Short: "List the tables of a schema",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, cfg config.Config, s *session.Session) error {
				r, err := schema.New(s, cfg.Driver)
				if err != nil {
					return err
				}
				tables, err := r.ListTables(ctx, schemaName)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), tables)
			})
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "Schema to list (default: the connection's current schema)")
	return cmd
}

func newDescribeCmd(a *app) *cobra.Command {
	var schemaName string

	cmd := &cobra.Command{
		Use:   "describe [table]",
		Short: "Describe one table, or every table and foreign key when none is given",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withSession(cmd, func(ctx context.Context, cfg config.Config, s *session.Session) error {
				r, err := schema.New(s, cfg.Driver)
				if err != nil {
					return err
				}

				if len(args) == 0 {
					info, err := r.InspectSchema(ctx, schemaName)
					if err != nil {
						return err
					}
					return printJSON(cmd.OutOrStdout(), info)
				}

				info, err := r.InspectTable(ctx, schemaName, args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), info)
			})
		},
	}

	cmd.Flags().StringVar(&schemaName, "schema", "", "Schema of the table (default: the connection's current schema)")
	return cmd
}
