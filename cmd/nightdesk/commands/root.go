// Package commands implements the nightdesk CLI subcommands.
package commands

import (
	"database/sql"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nightdesk/nightdesk/config"
	"github.com/nightdesk/nightdesk/db"
	"github.com/nightdesk/nightdesk/logger"
)

// loadConfig resolves the config file from the --config flag or the
// default location and initializes the global logger from it.
func loadConfig(cmd *cobra.Command) (*config.Config, *zap.SugaredLogger, error) {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path, _ = cmd.InheritedFlags().GetString("config")
	}

	var cfg *config.Config
	var err error
	if path != "" {
		cfg, err = config.LoadFromFile(path, logger.Logger)
	} else {
		cfg, err = config.Load(logger.Logger)
	}
	if err != nil {
		return nil, nil, err
	}

	if err := logger.Initialize(cfg.Log.JSON, cfg.Log.Level); err != nil {
		return nil, nil, err
	}
	return cfg, logger.Logger, nil
}

// openDatabase opens the nightdesk database and applies pending
// migrations.
func openDatabase(cfg *config.Config, log *zap.SugaredLogger) (*sql.DB, error) {
	database, err := db.Open(cfg.Database.Path, log)
	if err != nil {
		return nil, err
	}
	if err := db.Migrate(database, log); err != nil {
		database.Close()
		return nil, err
	}
	return database, nil
}
