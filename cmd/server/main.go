/*
main.go - Application entry point

PURPOSE:
  Command-line front end for the inventory ledger. Each subcommand loads
  configuration, opens the SQLite store and does one job.

COMMANDS:
  serve            Start the HTTP API (graceful shutdown on SIGINT/SIGTERM)
  migrate          Apply pending schema migrations
  migrate:status   Show each migration and whether it is applied
  seed             Load a demo scenario into an empty database
  report           Print the summary and stock drift to stdout

GLOBAL FLAGS:
  --env-file   .env file to load (default: ./.env when present)
  --db         SQLite database path, overrides OPTOM_DB_PATH
               Use ":memory:" for an in-memory database

ENVIRONMENT:
  See config/config.go for the OPTOM_* variables.

EXAMPLES:
  # Run with file database
  optom serve --db ./data/shop.db

  # Fresh demo server
  optom serve --db :memory: --seed trading-day

  # Inspect schema state
  optom migrate:status

SEE ALSO:
  - api/server.go: Router configuration
  - store/sqlite/migrate.go: Embedded migrations
*/
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/optomapp/ledger-engine/config"
	"github.com/optomapp/ledger-engine/logging"
	"github.com/optomapp/ledger-engine/store/sqlite"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var (
	envFile string
	dbPath  string
)

var rootCmd = &cobra.Command{
	Use:           "optom",
	Short:         "Optom inventory ledger",
	Long:          "Optom records stock acceptances and sales for a small shop and reports profit.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "path to a .env file")
	rootCmd.PersistentFlags().StringVar(&dbPath, "db", "", "SQLite database path (overrides "+config.EnvDBPath+")")

	// Server
	rootCmd.AddCommand(serveCmd)

	// Database
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(migrateStatusCmd)
	rootCmd.AddCommand(seedCmd)

	// Reports
	rootCmd.AddCommand(reportCmd)
}

// app carries what every command needs after boot.
type app struct {
	cfg *config.Config
	log *logging.Logger
}

// boot loads configuration, applies flag overrides and builds the logger.
func boot() (*app, error) {
	cfg, err := config.Load(envFile)
	if err != nil {
		return nil, err
	}
	if dbPath != "" {
		cfg.DB.Path = dbPath
	}

	log := logging.New(logging.Options{
		ServiceName: "optom",
		Level:       logging.ParseLevel(cfg.Log.Level),
		Format:      cfg.Log.Format,
		Output:      os.Stderr,
	})
	return &app{cfg: cfg, log: log}, nil
}

// openStore opens the database, migrating it when asked to.
func (a *app) openStore(ctx context.Context, migrate bool) (*sqlite.Store, error) {
	store, err := sqlite.Open(a.cfg.DB.Path)
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", a.cfg.DB.Path, err)
	}
	if !migrate {
		return store, nil
	}

	applied, err := store.Migrate(ctx)
	if err != nil {
		store.Close()
		return nil, err
	}
	if len(applied) > 0 {
		a.log.Info(a.log.WithField(ctx, "versions", applied), "migrations applied")
	}
	return store, nil
}
