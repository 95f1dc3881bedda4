package cli

import (
	"context"

	"github.com/koustreak/sqlsession/internal/config"
	"github.com/koustreak/sqlsession/internal/driver"
	"github.com/koustreak/sqlsession/internal/errs"
	"github.com/koustreak/sqlsession/internal/filestore"
	"github.com/koustreak/sqlsession/internal/filestore/minio"
	"github.com/koustreak/sqlsession/internal/session"
	"github.com/spf13/cobra"
)

func newReadCmd(a *app) *cobra.Command {
	var (
		sql    string
		raw    []string
		export string
	)

	cmd := &cobra.Command{
		Use:   "read",
		Short: "Run a query and print its rows as JSON",
		Example: `  sqlsession read -c session.yaml --sql "SELECT * FROM users WHERE id = :id" --param id:Int:42
  sqlsession read -c session.yaml --sql "SELECT * FROM users" --export reports/users.ndjson`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(raw)
			if err != nil {
				return err
			}

			return a.withSession(cmd, func(ctx context.Context, cfg config.Config, s *session.Session) error {
				var rows []driver.Row
				if len(params) == 0 {
					rows, err = s.Read(ctx, sql)
				} else {
					rows, err = s.ReadPrepared(ctx, sql, params)
				}
				if err != nil {
					return err
				}

				if export != "" {
					info, err := exportRows(ctx, cfg.Export, export, rows)
					if err != nil {
						return err
					}
					cmd.PrintErrf("exported %d rows to %s/%s (%d bytes)\n", len(rows), info.Bucket, info.Key, info.Size)
				}
				return printJSON(cmd.OutOrStdout(), rows)
			})
		},
	}

	cmd.Flags().StringVar(&sql, "sql", "", "SQL to run")
	cmd.Flags().StringArrayVarP(&raw, "param", "p", nil, "Parameter as index:Type:value (repeatable)")
	cmd.Flags().StringVar(&export, "export", "", "Upload the rows to bucket/key, or to key inside the configured bucket")
	_ = cmd.MarkFlagRequired("sql")
	return cmd
}

func newWriteCmd(a *app) *cobra.Command {
	var (
		sql string
		raw []string
	)

	cmd := &cobra.Command{
		Use:     "write",
		Short:   "Run an update and print the affected row count",
		Example: `  sqlsession write -c session.yaml --sql "UPDATE users SET status = ? WHERE id = ?" -p 1:String:inactive -p 2:Int:42`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			params, err := parseParams(raw)
			if err != nil {
				return err
			}

			return a.withSession(cmd, func(ctx context.Context, _ config.Config, s *session.Session) error {
				var n int64
				if len(params) == 0 {
					n, err = s.Write(ctx, sql)
				} else {
					n, err = s.WritePrepared(ctx, sql, params)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]int64{"affected": n})
			})
		},
	}

	cmd.Flags().StringVar(&sql, "sql", "", "SQL to run")
	cmd.Flags().StringArrayVarP(&raw, "param", "p", nil, "Parameter as index:Type:value (repeatable)")
	_ = cmd.MarkFlagRequired("sql")
	return cmd
}

func exportRows(ctx context.Context, cfg filestore.Config, target string, rows []driver.Row) (*filestore.ObjectInfo, error) {
	bucket, key, err := exportTarget(target, cfg.Bucket)
	if err != nil {
		return nil, err
	}

	store, err := minio.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	defer store.Close()

	return filestore.Export(ctx, store, bucket, key, rows)
}

// exportTarget resolves --export. A bare key is placed in the configured
// bucket.
func exportTarget(target, defaultBucket string) (string, string, error) {
	bucket, key, err := filestore.SplitTarget(target)
	if err == nil {
		return bucket, key, nil
	}
	if defaultBucket == "" {
		return "", "", err
	}
	if target == "" {
		return "", "", errs.Configuration("export key is required")
	}
	return defaultBucket, target, nil
}
