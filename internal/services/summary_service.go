package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/rates"
	"ledger/internal/storage"
)

var hundred = decimal.NewFromInt(100)

// SummaryService aggregates a month of spending per category in the owner's
// base currency.
type SummaryService struct {
	snapshots storage.SnapshotReader
	profiles  *ProfileService
	converter *rates.Converter
}

func NewSummaryService(snapshots storage.SnapshotReader, profiles *ProfileService, converter *rates.Converter) *SummaryService {
	return &SummaryService{snapshots: snapshots, profiles: profiles, converter: converter}
}

// Summarize converts every transaction of the period at its own date and
// groups the results by category. Transactions whose category no longer
// exists are reported under Uncategorized. Any conversion failure aborts the
// whole summary.
func (s *SummaryService) Summarize(ctx context.Context, ownerID string, period core.Period) (core.Summary, error) {
	if _, err := s.profiles.Get(ctx, ownerID); err != nil {
		return core.Summary{}, err
	}
	snap, err := s.snapshots.Snapshot(ctx, ownerID, core.TransactionFilter{Period: &period})
	if err != nil {
		return core.Summary{}, fmt.Errorf("read snapshot: %w", err)
	}

	base := snap.Profile.BaseCurrency
	groups := make(map[string]*core.CategorySummaryEntry)
	grand := decimal.Zero

	for _, t := range snap.Transactions {
		amount, err := s.converter.Convert(ctx, t.Amount, t.Currency, base, t.Date)
		if err != nil {
			return core.Summary{}, fmt.Errorf("convert transaction %s: %w", t.ID, err)
		}

		key := t.CategoryID
		cat, ok := snap.Categories[key]
		if !ok {
			key = ""
		}
		e, ok := groups[key]
		if !ok {
			e = &core.CategorySummaryEntry{
				CategoryID: key,
				Name:       core.UncategorizedName,
				Color:      core.UncategorizedColor,
				Total:      decimal.Zero,
			}
			if key != "" {
				e.Name, e.Color = cat.Name, cat.Color
			}
			groups[key] = e
		}
		e.Total = e.Total.Add(amount)
		e.Count++
		grand = grand.Add(amount)
	}

	entries := make([]core.CategorySummaryEntry, 0, len(groups))
	for _, e := range groups {
		e.Percentage = decimal.Zero
		if grand.IsPositive() {
			e.Percentage = e.Total.Mul(hundred).Div(grand).Round(2)
		}
		entries = append(entries, *e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		if c := entries[i].Total.Cmp(entries[j].Total); c != 0 {
			return c > 0
		}
		a, b := strings.ToLower(entries[i].Name), strings.ToLower(entries[j].Name)
		if a != b {
			return a < b
		}
		return entries[i].CategoryID < entries[j].CategoryID
	})

	return core.Summary{
		Period:       period,
		BaseCurrency: base,
		BudgetLimit:  snap.Profile.BudgetLimit,
		Total:        grand,
		Entries:      entries,
	}, nil
}
