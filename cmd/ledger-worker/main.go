package main

import (
	"context"
	"errors"
	"time"

	"ledger/internal/amqp"
	"ledger/internal/cli"
	"ledger/internal/log"
	"ledger/internal/rates"
	"ledger/internal/worker"
)

func main() {
	cli.LoadEnvFile()

	cfg := cli.LoadAndValidateConfig(log.New(log.DefaultConfig()))
	logger := cli.SetupLogger(cfg, log.ComponentWorker)

	logger.Info("Starting ledger-worker",
		"rate_source", cfg.RateSource,
		"refresh_interval", cfg.RateRefreshInterval.String(),
		"amqp_enabled", cfg.AMQPURL != "")

	ledger := cli.InitLedger(context.Background(), logger, cfg)

	// Rate refresh (optional)
	var processor *worker.RateProcessor
	source, err := cli.NewRateSource(context.Background(), cfg)
	if err != nil {
		logger.Error("Failed to initialize rate source", log.FieldError, err, "rate_source", cfg.RateSource)
	}
	if source != nil {
		refresher := rates.NewRefresher(source, ledger.Rates, logger)
		processor = worker.NewRateProcessor(refresher, worker.RateProcessorConfig{
			Interval: cfg.RateRefreshInterval,
		})
	} else {
		logger.Info("Rate refresh disabled", "rate_source", cfg.RateSource)
	}

	// Budget alert consumer (optional)
	var consumer *amqp.Client
	if cfg.AMQPURL != "" {
		consumer, err = amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
		if err != nil {
			logger.Error("Failed to initialize AMQP client", log.FieldError, err)
			consumer = nil
		}
	} else {
		logger.Info("Skipping budget alert consumption - no AMQP_URL provided")
	}

	ctx, done := cli.GracefulShutdown(logger, 30*time.Second, func(ctx context.Context) {
		if processor != nil {
			if err := processor.Stop(ctx); err != nil {
				logger.Error("Rate processor stop error", log.FieldError, err)
			}
		}
		if consumer != nil {
			if err := consumer.Close(); err != nil {
				logger.Error("AMQP close error", log.FieldError, err)
			}
		}
		if err := ledger.Close(); err != nil {
			logger.Error("Ledger close error", log.FieldError, err)
		}
	})

	if processor != nil {
		if err := processor.Start(ctx); err != nil {
			logger.Error("Failed to start rate processor", log.FieldError, err)
		}
	}

	if consumer != nil {
		alerts := worker.NewAlertWorker(worker.LogNotifier{Logger: logger})
		go func() {
			if err := consumer.ConsumeBudgetAlerts(ctx, alerts.HandleBudgetAlert); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Budget alert consumption failed", log.FieldError, err)
			}
		}()
	}

	cli.WaitForShutdown(ctx, done)
}
