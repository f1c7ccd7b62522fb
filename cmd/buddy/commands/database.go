package commands

import (
	"database/sql"

	"github.com/spf13/cobra"

	"github.com/HemSoft/hs-buddy-sub001/config"
	"github.com/HemSoft/hs-buddy-sub001/db"
	"github.com/HemSoft/hs-buddy-sub001/errors"
	"github.com/HemSoft/hs-buddy-sub001/logger"
)

// openDatabase opens and migrates the database. The --db flag wins over the
// configured path; an empty configured path falls back to buddy.db in the
// working directory.
func openDatabase(cmd *cobra.Command, cfg *config.Config) (*sql.DB, error) {
	dbPath, _ := cmd.Flags().GetString("db")
	if dbPath == "" {
		dbPath = cfg.Database.Path
	}
	if dbPath == "" {
		dbPath = "buddy.db"
	}

	database, err := db.OpenWithMigrations(dbPath, logger.Logger)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open database at %s", dbPath)
	}
	return database, nil
}

// loadConfig loads configuration, surfacing errors with the file that caused them
func loadConfig() (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, errors.Wrap(err, "failed to load config")
	}
	return cfg, nil
}
