// Package cli holds the setup shared by the sidewalkd command line tools.
package cli

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"sidewalkd/config"
	"sidewalkd/db"
	"sidewalkd/logging"
)

var (
	openDB = db.Open
	pingDB = func(ctx context.Context, gdb *gorm.DB) error {
		return db.NewSQLStore(gdb).Ping(ctx)
	}
)

// Env is everything a command needs once configuration has been loaded.
type Env struct {
	Config *config.Config
	Logger *zap.SugaredLogger
	DB     *gorm.DB
}

// Setup loads configuration, builds the logger and opens the database. The
// caller must release the connection with Close.
func Setup(cmd *cobra.Command, v *viper.Viper) (*Env, error) {
	cfg, err := config.Load(cmd, v)
	if err != nil {
		return nil, err
	}
	return Connect(cmd.Context(), cfg)
}

// Connect builds the logger and opens the database described by cfg. On
// failure no handle is left open.
func Connect(ctx context.Context, cfg *config.Config) (*Env, error) {
	logger, err := logging.New(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, err
	}
	gdb, err := openDB(cfg.DBOptions())
	if err != nil {
		logger.Errorw("unable to connect to the database", "driver", cfg.DB.Driver, "error", err)
		return nil, err
	}
	if err := pingDB(ctx, gdb); err != nil {
		logger.Errorw("database is not reachable", "driver", cfg.DB.Driver, "error", err)
		_ = db.Close(gdb)
		return nil, err
	}
	return &Env{Config: cfg, Logger: logger, DB: gdb}, nil
}

func (e *Env) Store() *db.SQLStore {
	return db.NewSQLStore(e.DB)
}

func (e *Env) Close() {
	if err := db.Close(e.DB); err != nil {
		e.Logger.Warnw("failed to close database", "error", err)
	}
	_ = e.Logger.Sync()
}

// Execute runs cmd with a context cancelled on SIGINT or SIGTERM and exits
// non-zero on failure.
func Execute(cmd *cobra.Command) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := run(ctx, cmd)
	stop()
	if err != nil {
		log.Fatalf("command failed: %v", err)
	}
}

// run executes cmd with cobra's own error printing turned off; the error is
// reported once by the caller.
func run(ctx context.Context, cmd *cobra.Command) error {
	cmd.SilenceErrors = true
	cmd.SilenceUsage = true
	return cmd.ExecuteContext(ctx)
}
