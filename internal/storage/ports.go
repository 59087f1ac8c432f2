package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// Ports implemented by the SQLite and in-memory backends.
type (
	TransactionStore interface {
		// CreateTransaction inserts t and returns it with Seq assigned.
		CreateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		// GetTransaction returns core.ErrNotFound when id is absent or owned by someone else.
		GetTransaction(ctx context.Context, ownerID, id string) (core.Transaction, error)
		// UpdateTransaction replaces the editable fields of an existing transaction.
		UpdateTransaction(ctx context.Context, t core.Transaction) (core.Transaction, error)
		DeleteTransaction(ctx context.Context, ownerID, id string) error
		// ListTransactions orders by date descending, then Seq descending.
		ListTransactions(ctx context.Context, ownerID string, filter core.TransactionFilter) ([]core.Transaction, error)
	}

	CategoryStore interface {
		// ListCategories returns global defaults plus the owner's categories, ordered by name.
		ListCategories(ctx context.Context, ownerID string) ([]core.Category, error)
		// GetCategory returns core.ErrNotFound unless the category is visible to ownerID.
		GetCategory(ctx context.Context, ownerID, id string) (core.Category, error)
		// CreateCategory returns core.ErrDuplicate when the name is taken in the owner scope.
		CreateCategory(ctx context.Context, c core.Category) (core.Category, error)
		UpdateCategory(ctx context.Context, c core.Category) (core.Category, error)
		// DeleteCategory removes an owned category; global defaults are not deletable.
		DeleteCategory(ctx context.Context, ownerID, id string) error
	}

	ProfileStore interface {
		// EnsureProfile creates the profile with base if missing and returns the stored one.
		EnsureProfile(ctx context.Context, ownerID string, base core.Currency) (core.UserProfile, error)
		UpdateBaseCurrency(ctx context.Context, ownerID string, base core.Currency) (core.UserProfile, error)
		// SetBudgetLimit replaces the limit in a single atomic write.
		SetBudgetLimit(ctx context.Context, ownerID string, limit decimal.Decimal) (core.UserProfile, error)
	}

	RateStore interface {
		// AppendRates inserts rates whose (source, target, as_of) is new and
		// leaves existing ones untouched. It returns the number inserted.
		AppendRates(ctx context.Context, rates []core.ExchangeRate) (int, error)
		// LatestRate returns the most recent rate dated on or before asOf,
		// or core.ErrNotFound.
		LatestRate(ctx context.Context, source, target core.Currency, asOf core.Date) (core.ExchangeRate, error)
		// ListRates returns the newest rates for a pair, most recent first.
		ListRates(ctx context.Context, source, target core.Currency, limit int) ([]core.ExchangeRate, error)
	}

	AlertStore interface {
		// RecordAlert stores a tier crossing. It reports false when the
		// (owner, period, tier) triple was already recorded.
		RecordAlert(ctx context.Context, a core.BudgetAlert) (bool, error)
		ListAlerts(ctx context.Context, ownerID string, limit int) ([]core.BudgetAlert, error)
	}

	// SnapshotReader reads everything a summary needs from one consistent view.
	SnapshotReader interface {
		Snapshot(ctx context.Context, ownerID string, filter core.TransactionFilter) (Snapshot, error)
	}

	Store interface {
		TransactionStore
		CategoryStore
		ProfileStore
		RateStore
		AlertStore
		SnapshotReader
		Ping(ctx context.Context) error
		Close() error
	}
)

// Snapshot is a point-in-time view of an owner's ledger.
type Snapshot struct {
	Profile      core.UserProfile
	Transactions []core.Transaction
	// Categories is keyed by ID and holds every category visible to the owner.
	Categories map[string]core.Category
}
