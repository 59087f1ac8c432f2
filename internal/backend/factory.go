package backend

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/log"
	"ledger/internal/rates"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

// DefaultFactory implements the Factory interface
type DefaultFactory struct {
	logger *slog.Logger
	// dialAMQP is swapped in tests.
	dialAMQP func(url, exchange, queue string) (*amqp.Client, error)
}

// NewFactory creates a new backend factory
func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{
		logger:   log.WithComponent(logger, log.ComponentBackend),
		dialAMQP: amqp.NewClient,
	}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	var (
		store storage.Store
		err   error
	)
	switch config.Type {
	case SQLiteBackend:
		store, err = f.createSQLiteBackend(config)
	case MemoryBackend:
		store = f.createMemoryBackend()
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
	if err != nil {
		return nil, err
	}

	if config.RateSeedFile != "" {
		if err := f.seedRates(ctx, store, config.RateSeedFile); err != nil {
			store.Close()
			return nil, err
		}
	}

	result := &BackendResult{Store: store}
	if client := f.connectAMQP(config); client != nil {
		result.Publisher = client
	}
	return result, nil
}

func (f *DefaultFactory) createSQLiteBackend(config Config) (storage.Store, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)
	return repo, nil
}

func (f *DefaultFactory) createMemoryBackend() storage.Store {
	store := memory.New(storage.DefaultCategories())

	f.logger.Info("Initialized memory backend", "default_categories", len(storage.DefaultCategories()))
	return store
}

// connectAMQP returns nil when AMQP is not configured or the broker cannot
// be reached; the ledger keeps working without alert publishing.
func (f *DefaultFactory) connectAMQP(config Config) *amqp.Client {
	if config.AMQPURL == "" {
		return nil
	}
	client, err := f.dialAMQP(config.AMQPURL, config.AMQPExchange, config.AMQPQueue)
	if err != nil {
		f.logger.Warn("Failed to initialize AMQP client, continuing without budget alert publishing", "error", err)
		return nil
	}
	f.logger.Info("Initialized AMQP client",
		"exchange", config.AMQPExchange,
		"queue", config.AMQPQueue)
	return client
}

func (f *DefaultFactory) seedRates(ctx context.Context, store storage.RateStore, path string) error {
	seed, err := rates.LoadRateFile(path)
	if err != nil {
		return fmt.Errorf("load rate seed file: %w", err)
	}
	n, err := store.AppendRates(ctx, seed)
	if err != nil {
		return fmt.Errorf("seed rates: %w", err)
	}
	f.logger.Info("Seeded exchange rates", "file", path, "rates", len(seed), "inserted", n)
	return nil
}
