// Package cli implements the sqlsession command line.
package cli

import (
	"context"
	"encoding/json"
	"io"

	"github.com/koustreak/sqlsession/internal/config"
	"github.com/koustreak/sqlsession/internal/logger"
	"github.com/koustreak/sqlsession/internal/session"
	"github.com/spf13/cobra"
)

const version = "v0.1.0"

// app carries the flags shared by every command.
type app struct {
	configPath string
	logLevel   string
}

// config loads the configuration file, applying --log-level on top.
func (a *app) config() (config.Config, error) {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return config.Config{}, err
	}
	if a.logLevel != "" {
		cfg.Logger.Level = a.logLevel
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
	}
	return cfg, nil
}

// logger builds the process logger. Logs go to stderr so stdout stays
// machine readable.
func (a *app) logger(cmd *cobra.Command, cfg config.Config) *logger.Logger {
	return logger.New(&logger.Config{
		Level:  cfg.Logger.Level,
		Format: cfg.Logger.Format,
		Output: cmd.ErrOrStderr(),
	})
}

// withSession runs fn with a session that is closed afterwards, even when
// fn fails.
func (a *app) withSession(cmd *cobra.Command, fn func(ctx context.Context, cfg config.Config, s *session.Session) error) (err error) {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	log := a.logger(cmd, cfg)

	s, err := session.New(cfg, session.WithLogger(log))
	if err != nil {
		return err
	}
	defer func() {
		// The command context may already be cancelled by a signal.
		if closeErr := s.CloseAll(context.WithoutCancel(cmd.Context())); err == nil {
			err = closeErr
		}
	}()

	return fn(cmd.Context(), cfg, s)
}

// NewRootCmd builds the top-level `sqlsession` command.
func NewRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "sqlsession",
		Short:        "Pooled SQL sessions with parameter binding and keepalive",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVarP(&a.configPath, "config", "c", "", "YAML configuration file (SQLSESSION_* variables override it)")
	root.PersistentFlags().StringVar(&a.logLevel, "log-level", "", "Override the configured log level")

	root.AddCommand(newReadCmd(a))
	root.AddCommand(newWriteCmd(a))
	root.AddCommand(newTablesCmd(a))
	root.AddCommand(newDescribeCmd(a))
	root.AddCommand(newServeCmd(a))
	root.AddCommand(newVersionCmd())
	return root
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Println(version)
		},
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
