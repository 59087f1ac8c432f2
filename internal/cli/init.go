// Package cli provides common CLI initialization utilities shared by
// cmd/ledger, cmd/ledger-worker and cmd/ledgerctl.
package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"ledger/internal/backend"
	"ledger/internal/config"
	"ledger/internal/log"
	"ledger/internal/rates"
	"ledger/internal/rates/frankfurter"
	ratesheets "ledger/internal/rates/sheets"
	"ledger/internal/services"
)

// SetupLogger builds the logger described by cfg for component and sets it
// as the default logger.
func SetupLogger(cfg *config.Config, component string) *slog.Logger {
	logger := log.New(cfg.LogConfig(component))
	slog.SetDefault(logger)
	return logger
}

// LoadEnvFile loads the .env file for local development.
// Errors are ignored silently as this is optional in production.
func LoadEnvFile() {
	_ = godotenv.Load()
}

// LoadAndValidateConfig loads configuration and validates it.
// Returns the config or exits the process on validation failure.
func LoadAndValidateConfig(logger *slog.Logger) *config.Config {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		logger.Error("Configuration validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

// InitLedger opens the configured backend and wires the ledger services.
// Returns the ledger or exits the process on failure.
func InitLedger(ctx context.Context, logger *slog.Logger, cfg *config.Config) *services.Ledger {
	ledger, err := NewLedger(ctx, logger, cfg)
	if err != nil {
		logger.Error("Failed to initialize backend", "error", err, "backend", cfg.DataBackend)
		os.Exit(1)
	}
	return ledger
}

// NewLedger is InitLedger for callers that handle the error themselves.
func NewLedger(ctx context.Context, logger *slog.Logger, cfg *config.Config) (*services.Ledger, error) {
	bcfg, err := backend.FromAppConfig(cfg)
	if err != nil {
		return nil, err
	}
	res, err := backend.NewFactory(logger).CreateBackend(ctx, bcfg)
	if err != nil {
		return nil, err
	}
	return services.NewLedger(res.Store, services.Options{
		DefaultBaseCurrency: cfg.BaseCurrency(),
		RateCacheSize:       cfg.RateCacheSize,
		RateCacheTTL:        cfg.RateCacheTTL,
		Publisher:           res.Publisher,
	}), nil
}

// GracefulShutdown sets up signal handling for graceful shutdown.
// Returns a context that will be cancelled on shutdown signals,
// and a channel that signals when shutdown is complete.
func GracefulShutdown(logger *slog.Logger, timeout time.Duration, cleanup func(context.Context)) (context.Context, <-chan struct{}) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigChan
		logger.Info("Shutdown signal received", "signal", sig.String())

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), timeout)
		defer shutdownCancel()

		cancel()

		if cleanup != nil {
			cleanup(shutdownCtx)
		}

		if shutdownCtx.Err() != nil {
			logger.Warn("Shutdown timeout reached")
		} else {
			logger.Info("Shutdown complete")
		}
		close(done)
	}()

	return ctx, done
}

// WaitForShutdown blocks until the context is cancelled.
func WaitForShutdown(ctx context.Context, done <-chan struct{}) {
	<-ctx.Done()
	<-done
}

// NewRateSource builds the rate feed selected by RATE_SOURCE. It returns nil
// when RATE_SOURCE is none.
func NewRateSource(ctx context.Context, cfg *config.Config) (rates.Source, error) {
	switch cfg.RateSource {
	case "frankfurter":
		return frankfurter.New(cfg.FrankfurterURL), nil
	case "sheets":
		return ratesheets.New(ctx, ratesheets.Config{
			SpreadsheetID: cfg.GoogleSpreadsheetID,
			SheetName:     cfg.GoogleRatesSheetName,
		})
	default:
		return nil, nil
	}
}
