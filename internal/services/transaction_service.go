package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/rates"
	"ledger/internal/storage"
)

// TransactionView is a stored transaction decorated for display: its
// category and the rate to the owner's base currency on the transaction date.
type TransactionView struct {
	core.Transaction
	CategoryName  string
	CategoryColor string
	BaseCurrency  core.Currency
	// ExchangeRate is nil when no rate is known for the transaction date.
	ExchangeRate *decimal.Decimal
}

// TransactionService validates and persists transactions in their original
// currency.
type TransactionService struct {
	transactions storage.TransactionStore
	categories   storage.CategoryStore
	rates        *rates.Provider
	now          func() time.Time
	newID        func() string
}

func NewTransactionService(transactions storage.TransactionStore, categories storage.CategoryStore, provider *rates.Provider) *TransactionService {
	return &TransactionService{
		transactions: transactions,
		categories:   categories,
		rates:        provider,
		now:          time.Now,
		newID:        uuid.NewString,
	}
}

// Create validates in and stores it for ownerID. Nothing is written when
// validation fails.
func (s *TransactionService) Create(ctx context.Context, ownerID string, in core.TransactionInput) (core.Transaction, error) {
	in, err := s.validate(ctx, ownerID, in)
	if err != nil {
		return core.Transaction{}, err
	}

	now := s.now().UTC()
	t, err := s.transactions.CreateTransaction(ctx, core.Transaction{
		ID:          s.newID(),
		OwnerID:     ownerID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		CategoryID:  in.CategoryID,
		Date:        in.Date,
		Description: in.Description,
		CreatedAt:   now,
		UpdatedAt:   now,
	})
	if err != nil {
		return core.Transaction{}, fmt.Errorf("save transaction: %w", err)
	}
	return t, nil
}

func (s *TransactionService) Get(ctx context.Context, ownerID, id string) (core.Transaction, error) {
	return s.transactions.GetTransaction(ctx, ownerID, id)
}

// Update replaces the editable fields of an owned transaction.
func (s *TransactionService) Update(ctx context.Context, ownerID, id string, in core.TransactionInput) (core.Transaction, error) {
	if _, err := s.transactions.GetTransaction(ctx, ownerID, id); err != nil {
		return core.Transaction{}, err
	}
	in, err := s.validate(ctx, ownerID, in)
	if err != nil {
		return core.Transaction{}, err
	}
	return s.transactions.UpdateTransaction(ctx, core.Transaction{
		ID:          id,
		OwnerID:     ownerID,
		Amount:      in.Amount,
		Currency:    in.Currency,
		CategoryID:  in.CategoryID,
		Date:        in.Date,
		Description: in.Description,
		UpdatedAt:   s.now().UTC(),
	})
}

// Delete removes the transaction permanently. A second delete of the same
// id reports core.ErrNotFound.
func (s *TransactionService) Delete(ctx context.Context, ownerID, id string) error {
	return s.transactions.DeleteTransaction(ctx, ownerID, id)
}

func (s *TransactionService) List(ctx context.Context, ownerID string, filter core.TransactionFilter) ([]core.Transaction, error) {
	txs, err := s.transactions.ListTransactions(ctx, ownerID, filter)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}
	return txs, nil
}

// ListDetailed is List with category details and the display rate to base.
func (s *TransactionService) ListDetailed(ctx context.Context, ownerID string, base core.Currency, filter core.TransactionFilter) ([]TransactionView, error) {
	txs, err := s.List(ctx, ownerID, filter)
	if err != nil {
		return nil, err
	}
	cats, err := s.categories.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	byID := make(map[string]core.Category, len(cats))
	for _, c := range cats {
		byID[c.ID] = c
	}

	out := make([]TransactionView, 0, len(txs))
	for _, t := range txs {
		v := TransactionView{
			Transaction:   t,
			CategoryName:  core.UncategorizedName,
			CategoryColor: core.UncategorizedColor,
			BaseCurrency:  base,
		}
		if c, ok := byID[t.CategoryID]; ok {
			v.CategoryName, v.CategoryColor = c.Name, c.Color
		}
		rate, err := s.rates.Rate(ctx, t.Currency, base, t.Date)
		switch {
		case err == nil:
			v.ExchangeRate = &rate
		case !errors.Is(err, core.ErrRateUnavailable):
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

// validate normalises in and checks its fields in the order amount,
// currency, category, description, date. The category must exist and be
// visible to the owner.
func (s *TransactionService) validate(ctx context.Context, ownerID string, in core.TransactionInput) (core.TransactionInput, error) {
	in = in.Normalize()
	if in.Currency.Validate() == nil {
		in.Amount = in.Currency.Round(in.Amount)
	}

	err := in.Validate()
	if ve, ok := core.AsValidationError(err); ok {
		switch ve.Field {
		case "amount", "currency", "category_id":
			return in, err
		}
	} else if err != nil {
		return in, err
	}

	if _, cerr := s.categories.GetCategory(ctx, ownerID, in.CategoryID); cerr != nil {
		if errors.Is(cerr, core.ErrNotFound) {
			return in, &core.ValidationError{Field: "category_id", Message: "does not exist", Err: cerr}
		}
		return in, fmt.Errorf("check category: %w", cerr)
	}
	return in, err
}
