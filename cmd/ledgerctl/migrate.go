package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"ledger/internal/storage"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Manage the SQLite schema",
}

var migrateUpCmd = &cobra.Command{
	Use:   "up",
	Short: "Apply all pending migrations",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dsn, err := sqliteDSN()
		if err != nil {
			return err
		}
		if err := storage.RunMigrations(dsn); err != nil {
			return err
		}
		return printVersion(cmd, dsn)
	},
}

var migrateDownCmd = &cobra.Command{
	Use:   "down [steps]",
	Short: "Revert the last migrations (default 1)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		steps := 1
		if len(args) == 1 {
			n, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("invalid steps %q: %w", args[0], err)
			}
			steps = n
		}
		dsn, err := sqliteDSN()
		if err != nil {
			return err
		}
		if err := storage.RollbackMigrations(dsn, steps); err != nil {
			return err
		}
		logger.Info("rolled back", "steps", steps)
		return printVersion(cmd, dsn)
	},
}

var migrateVersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the applied schema version",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		dsn, err := sqliteDSN()
		if err != nil {
			return err
		}
		return printVersion(cmd, dsn)
	},
}

func sqliteDSN() (string, error) {
	cfg, err := loadConfig()
	if err != nil {
		return "", err
	}
	if cfg.DataBackend != "sqlite" {
		return "", fmt.Errorf("migrations need the sqlite backend, got %q", cfg.DataBackend)
	}
	return storage.DSN(cfg.SQLiteDBPath), nil
}

func printVersion(cmd *cobra.Command, dsn string) error {
	version, dirty, err := storage.MigrationVersion(dsn)
	if err != nil {
		return err
	}
	if dirty {
		fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty)\n", version)
		return nil
	}
	fmt.Fprintf(cmd.OutOrStdout(), "version %d\n", version)
	return nil
}

func init() {
	migrateCmd.AddCommand(migrateUpCmd)
	migrateCmd.AddCommand(migrateDownCmd)
	migrateCmd.AddCommand(migrateVersionCmd)
}
