// migrate applies the event journal schema in sql/ to the configured
// Postgres database.
package main

import (
	"database/sql"
	"fmt"
	"os"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/leafsii/leafsii-vault/internal/config"
	"github.com/leafsii/leafsii-vault/internal/log"
	"github.com/pressly/goose/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

// gooseLogger routes goose output through zap.
type gooseLogger struct{ *zap.SugaredLogger }

func (l gooseLogger) Printf(format string, v ...interface{}) { l.Infof(format, v...) }

func newRootCmd() *cobra.Command {
	var dir string
	var db *sql.DB

	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Manage the vault event journal schema",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.Database.PostgresDSN == "" {
				return fmt.Errorf("LFS_POSTGRES_DSN is required to run migrations")
			}

			logger, err := log.NewSugar(cfg.Env, cfg.LogLevel)
			if err != nil {
				return fmt.Errorf("create logger: %w", err)
			}
			goose.SetLogger(gooseLogger{logger})
			if err := goose.SetDialect("postgres"); err != nil {
				return fmt.Errorf("set dialect: %w", err)
			}

			db, err = sql.Open("pgx", cfg.Database.PostgresDSN)
			if err != nil {
				return fmt.Errorf("open database: %w", err)
			}
			return db.PingContext(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if db == nil {
				return nil
			}
			return db.Close()
		},
	}
	root.PersistentFlags().StringVar(&dir, "dir", "sql", "directory with migration files")

	steps := []struct {
		use, short string
		run        func(*sql.DB, string, ...goose.OptionsFunc) error
	}{
		{"up", "Apply all pending migrations", goose.Up},
		{"down", "Roll back the latest migration", goose.Down},
		{"redo", "Roll back and reapply the latest migration", goose.Redo},
		{"status", "Print the status of every migration", goose.Status},
		{"version", "Print the current schema version", goose.Version},
	}
	for _, s := range steps {
		s := s
		root.AddCommand(&cobra.Command{
			Use:   s.use,
			Short: s.short,
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := s.run(db, dir); err != nil {
					return fmt.Errorf("migration %s: %w", s.use, err)
				}
				return nil
			},
		})
	}
	return root
}
