package core

import (
	"time"

	"github.com/shopspring/decimal"
)

// CategorySummaryEntry is the converted spend of one category in a period.
type CategorySummaryEntry struct {
	CategoryID string // empty for the Uncategorized bucket
	Name       string
	Color      string
	Total      decimal.Decimal
	Percentage decimal.Decimal
	Count      int
}

// Summary is the per-category breakdown of a month in the owner's base currency.
type Summary struct {
	Period       Period
	BaseCurrency Currency
	// BudgetLimit is read from the same view as the transactions.
	BudgetLimit decimal.Decimal
	Total       decimal.Decimal
	Entries     []CategorySummaryEntry
}

// Tier classifies how close spending is to the budget limit.
type Tier string

const (
	TierNone    Tier = ""
	TierInfo    Tier = "info"
	TierWarning Tier = "warning"
	TierDanger  Tier = "danger"
)

type Notification struct {
	Type       Tier
	Message    string
	Percentage decimal.Decimal
}

// BudgetStatus is derived on demand and never persisted.
type BudgetStatus struct {
	Period       Period
	BaseCurrency Currency
	BudgetLimit  decimal.Decimal
	CurrentSpend decimal.Decimal
	// Percentage is nil when no budget is set.
	Percentage    *decimal.Decimal
	Notifications []Notification
}

// HighestTier returns the tier of the first notification, if any.
func (s BudgetStatus) HighestTier() Tier {
	if len(s.Notifications) == 0 {
		return TierNone
	}
	return s.Notifications[0].Type
}

// BudgetAlert records that an owner crossed a tier during a period.
type BudgetAlert struct {
	ID           int64
	OwnerID      string
	Period       Period
	Tier         Tier
	Message      string
	Percentage   decimal.Decimal
	Spend        decimal.Decimal
	BudgetLimit  decimal.Decimal
	BaseCurrency Currency
	CreatedAt    time.Time
}
