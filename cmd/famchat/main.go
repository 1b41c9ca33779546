package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/famchat/internal/app"
	"github.com/vovakirdan/famchat/internal/config"
	"github.com/vovakirdan/famchat/internal/log"
	"github.com/vovakirdan/famchat/internal/store/sqlite"
)

type flags struct {
	configPath string
	overrides  config.Config
}

func main() {
	// A missing .env file is fine.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	f := &flags{}

	root := &cobra.Command{
		Use:          "famchat",
		Short:        "Family chat server: general room, private dialogs and presence over WebSocket",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServer(cmd.Context(), f)
		},
	}

	pf := root.PersistentFlags()
	pf.StringVar(&f.configPath, "config", "", "path to config.yaml (created with defaults when missing)")
	pf.StringVar(&f.overrides.LogLevel, "log-level", "", "log level: trace, debug, info, warn, error")
	pf.StringVar(&f.overrides.StorageDriver, "storage", "", "storage driver: sqlite or mongo")
	pf.StringVar(&f.overrides.DatabasePath, "db", "", "sqlite database path")
	root.Flags().StringVar(&f.overrides.Addr, "addr", "", "HTTP listen address")
	root.Flags().DurationVar(&f.overrides.ShutdownTimeout, "shutdown-timeout", 0, "graceful shutdown timeout")

	root.AddCommand(newMigrateCmd(f))
	return root
}

func loadConfig(f *flags) (*config.Config, error) {
	bootLogger := log.New("info", "console")
	cfg, path, err := config.Load(bootLogger, f.configPath)
	if err != nil {
		return nil, err
	}
	cfg.UpdateFrom(f.overrides)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	bootLogger.Debug().Str("path", path).Msg("config loaded")
	return &cfg, nil
}

func runServer(parent context.Context, f *flags) error {
	cfg, err := loadConfig(f)
	if err != nil {
		return err
	}
	logger := log.New(cfg.LogLevel, cfg.LogFormat)

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error().Err(err).Msg("failed to start")
		return err
	}

	logger.Info().Str("addr", cfg.Addr).Msg("starting famchat server")
	if err := application.Run(ctx); err != nil {
		logger.Error().Err(err).Msg("server exited with error")
		return err
	}
	logger.Info().Msg("server stopped")
	return nil
}

func newMigrateCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations (sqlite) or ensure indexes (mongo) and exit",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(f)
			if err != nil {
				return err
			}
			logger := log.New(cfg.LogLevel, cfg.LogFormat)

			if cfg.StorageDriver == "mongo" {
				st, err := app.OpenStore(cmd.Context(), cfg)
				if err != nil {
					return err
				}
				logger.Info().Str("database", cfg.MongoDatabase).Msg("mongo indexes ensured")
				return st.Close()
			}

			db, err := sql.Open("sqlite3", cfg.DatabasePath)
			if err != nil {
				return fmt.Errorf("open sqlite: %w", err)
			}
			defer db.Close()

			version, err := sqlite.Migrate(db)
			if err != nil {
				return err
			}
			logger.Info().Str("db", cfg.DatabasePath).Uint("version", version).Msg("migrations applied")
			return nil
		},
	}
}
