package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"ledger/internal/backend"
	"ledger/internal/cli"
	"ledger/internal/config"
	"ledger/internal/services"
)

var (
	cfgFile string
	verbose bool

	settings = viper.New()
	logger   = log.NewWithOptions(os.Stderr, log.Options{Prefix: "ledgerctl"})
)

// overridable maps viper keys to the config fields they replace. Keys match
// the environment variable names read by config.Load.
var overridable = map[string]func(*config.Config, string){
	"data_backend":          func(c *config.Config, v string) { c.DataBackend = v },
	"sqlite_db_path":        func(c *config.Config, v string) { c.SQLiteDBPath = v },
	"default_base_currency": func(c *config.Config, v string) { c.DefaultBaseCurrency = v },
	"rate_source":           func(c *config.Config, v string) { c.RateSource = v },
	"rates_seed_file":       func(c *config.Config, v string) { c.RateSeedFile = v },
}

var rootCmd = &cobra.Command{
	Use:   "ledgerctl",
	Short: "Operate a ledger database from the command line",
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if verbose {
			logger.SetLevel(log.DebugLevel)
		}
		return loadSettings(cmd.Root())
	},
	RunE: func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	},
	SilenceUsage: true,
}

// loadSettings layers flags over environment over the optional config file.
func loadSettings(root *cobra.Command) error {
	settings.AutomaticEnv()
	if err := settings.BindPFlag("data_backend", root.PersistentFlags().Lookup("backend")); err != nil {
		return err
	}
	if err := settings.BindPFlag("sqlite_db_path", root.PersistentFlags().Lookup("db")); err != nil {
		return err
	}
	if cfgFile != "" {
		settings.SetConfigFile(cfgFile)
		if err := settings.ReadInConfig(); err != nil {
			return fmt.Errorf("read config %s: %w", cfgFile, err)
		}
		logger.Debug("loaded config file", "path", settings.ConfigFileUsed())
	}
	return nil
}

// loadConfig returns the environment configuration with ledgerctl overrides
// applied and validated.
func loadConfig() (*config.Config, error) {
	cfg := config.Load()
	for key, set := range overridable {
		if settings.IsSet(key) {
			set(cfg, settings.GetString(key))
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// openLedger wires the configured backend. Callers must Close the ledger.
func openLedger(ctx context.Context) (*services.Ledger, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	ledger, err := cli.NewLedger(ctx, slog.New(logger), cfg)
	if err != nil {
		return nil, nil, err
	}
	logger.Debug("opened ledger", "backend", cfg.DataBackend, "path", cfg.SQLiteDBPath)
	return ledger, cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "Config file (yaml, keys named like the environment variables)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("backend", "", "Data backend ("+strings.Join(backend.GetBackendTypeStrings(), " or ")+")")
	rootCmd.PersistentFlags().String("db", "", "SQLite database path")

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(ratesCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(budgetCmd)
}

func main() {
	cli.LoadEnvFile()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		stop()
		logger.Error(err)
		os.Exit(1)
	}
}
