// Package services implements the ledger operations on top of a storage
// backend and the exchange rate provider.
package services

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/rates"
	"ledger/internal/storage"
)

// Options tunes NewLedger.
type Options struct {
	DefaultBaseCurrency core.Currency
	RateCacheSize       int
	RateCacheTTL        time.Duration
	// Publisher receives newly crossed budget tiers; nil disables publishing.
	Publisher AlertPublisher
}

// Ledger groups the services that share one store and one rate provider.
type Ledger struct {
	Transactions *TransactionService
	Categories   *CategoryService
	Profiles     *ProfileService
	Summaries    *SummaryService
	Budgets      *BudgetService
	Rates        *rates.Provider
	Converter    *rates.Converter

	store     storage.Store
	publisher AlertPublisher
}

func NewLedger(store storage.Store, opts Options) *Ledger {
	if opts.RateCacheSize <= 0 {
		opts.RateCacheSize = 1024
	}
	if opts.RateCacheTTL <= 0 {
		opts.RateCacheTTL = time.Hour
	}

	provider := rates.NewProvider(store, opts.RateCacheSize, opts.RateCacheTTL)
	converter := rates.NewConverter(provider)
	profiles := NewProfileService(store, opts.DefaultBaseCurrency)
	summaries := NewSummaryService(store, profiles, converter)

	return &Ledger{
		Transactions: NewTransactionService(store, store, provider),
		Categories:   NewCategoryService(store),
		Profiles:     profiles,
		Summaries:    summaries,
		Budgets:      NewBudgetService(store, profiles, summaries, opts.Publisher),
		Rates:        provider,
		Converter:    converter,
		store:        store,
		publisher:    opts.Publisher,
	}
}

// SetClock replaces the time source of every service.
func (l *Ledger) SetClock(now func() time.Time) {
	l.Transactions.now = now
	l.Categories.now = now
	l.Budgets.now = now
}

// CreateTransaction stores a transaction and evaluates the budget of its
// month. The returned status holds only tiers crossed by this write; it is
// nil when the evaluation failed, which does not undo the write.
func (l *Ledger) CreateTransaction(ctx context.Context, ownerID string, in core.TransactionInput) (core.Transaction, *core.BudgetStatus, error) {
	t, err := l.Transactions.Create(ctx, ownerID, in)
	if err != nil {
		return core.Transaction{}, nil, err
	}
	return t, l.budgetAfterWrite(ctx, t), nil
}

// UpdateTransaction is CreateTransaction for an existing transaction.
func (l *Ledger) UpdateTransaction(ctx context.Context, ownerID, id string, in core.TransactionInput) (core.Transaction, *core.BudgetStatus, error) {
	t, err := l.Transactions.Update(ctx, ownerID, id, in)
	if err != nil {
		return core.Transaction{}, nil, err
	}
	return t, l.budgetAfterWrite(ctx, t), nil
}

func (l *Ledger) budgetAfterWrite(ctx context.Context, t core.Transaction) *core.BudgetStatus {
	status, err := l.Budgets.CheckAfterWrite(ctx, t.OwnerID, t.Date.Period())
	if err != nil {
		slog.WarnContext(ctx, "Budget evaluation after write failed",
			log.FieldComponent, log.ComponentBudget,
			log.FieldOwnerID, t.OwnerID,
			log.FieldTransactionID, t.ID,
			log.FieldError, err)
		return nil
	}
	return &status
}

func (l *Ledger) Ping(ctx context.Context) error {
	return l.store.Ping(ctx)
}

// Close closes the store and the publisher when it holds a connection.
func (l *Ledger) Close() error {
	var errs []error

	if l.store != nil {
		if err := l.store.Close(); err != nil {
			errs = append(errs, fmt.Errorf("storage: %w", err))
		}
	}

	if c, ok := l.publisher.(io.Closer); ok && c != nil {
		if err := c.Close(); err != nil {
			errs = append(errs, fmt.Errorf("amqp: %w", err))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("close ledger: %v", errs)
	}

	return nil
}
