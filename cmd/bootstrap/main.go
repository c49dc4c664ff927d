package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"sidewalkd/cmd/internal/cli"
	"sidewalkd/config"
	"sidewalkd/db"
	"sidewalkd/logging"
)

const defaultMaxBackups = 5

func main() {
	var seed bool
	var doBackup bool
	var maxBackups int
	v := config.New()

	rootCmd := &cobra.Command{
		Use:           "bootstrap",
		Short:         "Bootstrap the database schema and optionally seed it with demo data",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cmd, v)
			if err != nil {
				return err
			}
			if doBackup && cfg.DB.Driver == db.DriverSQLite {
				if path := sqliteFile(cfg.DB.ConnString()); path != "" {
					logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
					if err != nil {
						return err
					}
					b := &backupper{logger: logger, now: time.Now, max: maxBackups}
					if _, err := b.Backup(path); err != nil {
						return err
					}
				}
			}

			env, err := cli.Connect(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer env.Close()

			if err := db.Bootstrap(cmd.Context(), env.DB, cfg.DB.Schema, seed); err != nil {
				return fmt.Errorf("bootstrap failed: %w", err)
			}
			env.Logger.Infow("bootstrap completed", "driver", cfg.DB.Driver, "seed", seed)
			return nil
		},
	}
	config.AddFlags(rootCmd, v)
	rootCmd.Flags().BoolVar(&seed, "seed", true, "Whether to load demo data into an empty database")
	rootCmd.Flags().BoolVar(&doBackup, "backup", true, "Whether to back up an existing SQLite database file first")
	rootCmd.Flags().IntVar(&maxBackups, "max-backups", defaultMaxBackups, "Maximum number of backups to retain")

	cli.Execute(rootCmd)
}

