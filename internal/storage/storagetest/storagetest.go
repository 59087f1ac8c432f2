// Package storagetest holds behaviour tests shared by every storage.Store
// implementation.
package storagetest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// Run exercises store against the storage.Store contract. newStore must
// return an empty store seeded with storage.DefaultCategories.
func Run(t *testing.T, newStore func(t *testing.T) storage.Store) {
	t.Run("TransactionCRUD", func(t *testing.T) { testTransactionCRUD(t, newStore(t)) })
	t.Run("TransactionOrdering", func(t *testing.T) { testTransactionOrdering(t, newStore(t)) })
	t.Run("Categories", func(t *testing.T) { testCategories(t, newStore(t)) })
	t.Run("Profiles", func(t *testing.T) { testProfiles(t, newStore(t)) })
	t.Run("RatesAppendOnly", func(t *testing.T) { testRates(t, newStore(t)) })
	t.Run("Alerts", func(t *testing.T) { testAlerts(t, newStore(t)) })
	t.Run("Snapshot", func(t *testing.T) { testSnapshot(t, newStore(t)) })
	t.Run("ConcurrentWritesAndSnapshots", func(t *testing.T) { testConcurrentSnapshots(t, newStore(t)) })
}

var created = time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)

func tx(id, owner, amount string, cur core.Currency, cat string, d core.Date) core.Transaction {
	return core.Transaction{
		ID:          id,
		OwnerID:     owner,
		Amount:      decimal.RequireFromString(amount),
		Currency:    cur,
		CategoryID:  cat,
		Date:        d,
		Description: "item " + id,
		CreatedAt:   created,
		UpdatedAt:   created,
	}
}

func testTransactionCRUD(t *testing.T, s storage.Store) {
	ctx := context.Background()

	in := tx("t1", "alice", "12.50", core.USD, "default-food", core.NewDate(2024, 3, 5))
	got, err := s.CreateTransaction(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if got.Seq == 0 {
		t.Fatalf("expected seq to be assigned")
	}

	read, err := s.GetTransaction(ctx, "alice", "t1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !read.Amount.Equal(in.Amount) || read.Currency != core.USD || read.Date.String() != "2024-03-05" {
		t.Fatalf("unexpected transaction: %+v", read)
	}

	if _, err := s.GetTransaction(ctx, "bob", "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign owner get: want ErrNotFound, got %v", err)
	}

	upd := read
	upd.Amount = decimal.RequireFromString("20")
	upd.Description = "changed"
	upd.UpdatedAt = created.Add(time.Hour)
	after, err := s.UpdateTransaction(ctx, upd)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !after.Amount.Equal(decimal.NewFromInt(20)) || after.Description != "changed" {
		t.Fatalf("update not applied: %+v", after)
	}
	if after.Seq != got.Seq {
		t.Fatalf("update changed seq: %d -> %d", got.Seq, after.Seq)
	}

	upd.OwnerID = "bob"
	if _, err := s.UpdateTransaction(ctx, upd); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign owner update: want ErrNotFound, got %v", err)
	}
	if err := s.DeleteTransaction(ctx, "bob", "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign owner delete: want ErrNotFound, got %v", err)
	}

	if err := s.DeleteTransaction(ctx, "alice", "t1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteTransaction(ctx, "alice", "t1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func testTransactionOrdering(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rows := []core.Transaction{
		tx("a", "alice", "1", core.USD, "default-food", core.NewDate(2024, 3, 10)),
		tx("b", "alice", "2", core.USD, "default-travel", core.NewDate(2024, 3, 12)),
		tx("c", "alice", "3", core.USD, "default-food", core.NewDate(2024, 3, 10)),
		tx("d", "alice", "4", core.USD, "default-food", core.NewDate(2024, 2, 29)),
		tx("e", "bob", "5", core.USD, "default-food", core.NewDate(2024, 3, 11)),
	}
	for _, r := range rows {
		if _, err := s.CreateTransaction(ctx, r); err != nil {
			t.Fatalf("create %s: %v", r.ID, err)
		}
	}

	ids := func(list []core.Transaction) []string {
		out := make([]string, len(list))
		for i, x := range list {
			out[i] = x.ID
		}
		return out
	}

	march := core.Period{Year: 2024, Month: time.March}
	tests := []struct {
		name   string
		filter core.TransactionFilter
		want   []string
	}{
		{"all", core.TransactionFilter{}, []string{"b", "c", "a", "d"}},
		{"month", core.TransactionFilter{Period: &march}, []string{"b", "c", "a"}},
		{"category", core.TransactionFilter{CategoryID: "default-food"}, []string{"c", "a", "d"}},
		{"limit", core.TransactionFilter{Limit: 2}, []string{"b", "c"}},
		{"zero limit means all", core.TransactionFilter{Limit: 0, Period: &march, CategoryID: "default-food"}, []string{"c", "a"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := s.ListTransactions(ctx, "alice", tt.filter)
			if err != nil {
				t.Fatalf("list: %v", err)
			}
			g := ids(got)
			if len(g) != len(tt.want) {
				t.Fatalf("got %v, want %v", g, tt.want)
			}
			for i := range g {
				if g[i] != tt.want[i] {
					t.Fatalf("got %v, want %v", g, tt.want)
				}
			}
		})
	}
}

func testCategories(t *testing.T, s storage.Store) {
	ctx := context.Background()

	cats, err := s.ListCategories(ctx, "alice")
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(cats) != len(storage.DefaultCategories()) {
		t.Fatalf("expected %d defaults, got %d", len(storage.DefaultCategories()), len(cats))
	}

	mine := core.Category{ID: "c1", OwnerID: "alice", Name: "Pets", Color: "#123456", CreatedAt: created}
	if _, err := s.CreateCategory(ctx, mine); err != nil {
		t.Fatalf("create: %v", err)
	}

	dupe := mine
	dupe.ID = "c2"
	dupe.Name = "pets"
	if _, err := s.CreateCategory(ctx, dupe); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("duplicate name: want ErrDuplicate, got %v", err)
	}
	shadow := core.Category{ID: "c3", OwnerID: "alice", Name: "Travel", Color: "#123456", CreatedAt: created}
	if _, err := s.CreateCategory(ctx, shadow); !errors.Is(err, core.ErrDuplicate) {
		t.Fatalf("shadowing a default: want ErrDuplicate, got %v", err)
	}
	other := core.Category{ID: "c4", OwnerID: "bob", Name: "Pets", Color: "#123456", CreatedAt: created}
	if _, err := s.CreateCategory(ctx, other); err != nil {
		t.Fatalf("same name for another owner should be allowed: %v", err)
	}

	if _, err := s.GetCategory(ctx, "bob", "c1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("foreign category: want ErrNotFound, got %v", err)
	}
	if _, err := s.GetCategory(ctx, "bob", "default-food"); err != nil {
		t.Fatalf("global category should be visible: %v", err)
	}

	mine.Name = "Pet care"
	upd, err := s.UpdateCategory(ctx, mine)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if upd.Name != "Pet care" {
		t.Fatalf("unexpected name %q", upd.Name)
	}

	global := storage.DefaultCategories()[0]
	global.OwnerID = "alice"
	global.Name = "Mine now"
	if _, err := s.UpdateCategory(ctx, global); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("update global: want ErrNotFound, got %v", err)
	}
	if err := s.DeleteCategory(ctx, "alice", "default-food"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("delete global: want ErrNotFound, got %v", err)
	}

	if err := s.DeleteCategory(ctx, "alice", "c1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteCategory(ctx, "alice", "c1"); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
}

func testProfiles(t *testing.T, s storage.Store) {
	ctx := context.Background()

	if _, err := s.SetBudgetLimit(ctx, "alice", decimal.NewFromInt(10)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("limit before profile: want ErrNotFound, got %v", err)
	}

	p, err := s.EnsureProfile(ctx, "alice", core.IDR)
	if err != nil {
		t.Fatalf("ensure: %v", err)
	}
	if p.BaseCurrency != core.IDR || !p.BudgetLimit.IsZero() {
		t.Fatalf("unexpected new profile: %+v", p)
	}

	p, err = s.SetBudgetLimit(ctx, "alice", decimal.RequireFromString("1000.50"))
	if err != nil {
		t.Fatalf("set limit: %v", err)
	}
	if !p.BudgetLimit.Equal(decimal.RequireFromString("1000.5")) {
		t.Fatalf("limit not stored: %s", p.BudgetLimit)
	}

	// A second ensure with another default must not reset anything.
	p, err = s.EnsureProfile(ctx, "alice", core.USD)
	if err != nil {
		t.Fatalf("ensure again: %v", err)
	}
	if p.BaseCurrency != core.IDR || !p.HasBudget() {
		t.Fatalf("existing profile was modified: %+v", p)
	}

	p, err = s.UpdateBaseCurrency(ctx, "alice", core.EUR)
	if err != nil {
		t.Fatalf("update base: %v", err)
	}
	if p.BaseCurrency != core.EUR || !p.HasBudget() {
		t.Fatalf("unexpected profile after base change: %+v", p)
	}
}

func testRates(t *testing.T, s storage.Store) {
	ctx := context.Background()
	rate := func(d core.Date, v string) core.ExchangeRate {
		return core.ExchangeRate{
			Source: core.EUR, Target: core.USD, AsOf: d,
			Rate: decimal.RequireFromString(v), Provider: "test", FetchedAt: created,
		}
	}

	n, err := s.AppendRates(ctx, []core.ExchangeRate{
		rate(core.NewDate(2024, 3, 1), "1.08"),
		rate(core.NewDate(2024, 3, 10), "1.09"),
	})
	if err != nil || n != 2 {
		t.Fatalf("append: n=%d err=%v", n, err)
	}

	n, err = s.AppendRates(ctx, []core.ExchangeRate{
		rate(core.NewDate(2024, 3, 1), "9.99"),
		rate(core.NewDate(2024, 3, 5), "1.085"),
	})
	if err != nil || n != 1 {
		t.Fatalf("append with existing date: n=%d err=%v", n, err)
	}

	tests := []struct {
		asOf core.Date
		want string
	}{
		{core.NewDate(2024, 3, 1), "1.08"},
		{core.NewDate(2024, 3, 4), "1.08"},
		{core.NewDate(2024, 3, 5), "1.085"},
		{core.NewDate(2024, 4, 1), "1.09"},
	}
	for _, tt := range tests {
		got, err := s.LatestRate(ctx, core.EUR, core.USD, tt.asOf)
		if err != nil {
			t.Fatalf("latest %s: %v", tt.asOf, err)
		}
		if !got.Rate.Equal(decimal.RequireFromString(tt.want)) {
			t.Fatalf("latest %s: got %s, want %s", tt.asOf, got.Rate, tt.want)
		}
	}

	if _, err := s.LatestRate(ctx, core.EUR, core.USD, core.NewDate(2024, 2, 28)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("before history: want ErrNotFound, got %v", err)
	}
	if _, err := s.LatestRate(ctx, core.USD, core.EUR, core.NewDate(2024, 4, 1)); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("inverse pair is not stored: want ErrNotFound, got %v", err)
	}

	list, err := s.ListRates(ctx, core.EUR, core.USD, 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].AsOf.String() != "2024-03-10" || list[1].AsOf.String() != "2024-03-05" {
		t.Fatalf("unexpected list: %+v", list)
	}

	if _, err := s.AppendRates(ctx, []core.ExchangeRate{rate(core.NewDate(2024, 3, 20), "0")}); err == nil {
		t.Fatalf("expected zero rate to be rejected")
	}
}

func testAlerts(t *testing.T, s storage.Store) {
	ctx := context.Background()
	march := core.Period{Year: 2024, Month: time.March}
	alert := func(owner string, tier core.Tier, at time.Time) core.BudgetAlert {
		return core.BudgetAlert{
			OwnerID: owner, Period: march, Tier: tier, Message: string(tier),
			Percentage: decimal.NewFromInt(90), Spend: decimal.NewFromInt(900),
			BudgetLimit: decimal.NewFromInt(1000), BaseCurrency: core.USD, CreatedAt: at,
		}
	}

	ok, err := s.RecordAlert(ctx, alert("alice", core.TierWarning, created))
	if err != nil || !ok {
		t.Fatalf("first record: ok=%v err=%v", ok, err)
	}
	ok, err = s.RecordAlert(ctx, alert("alice", core.TierWarning, created.Add(time.Minute)))
	if err != nil || ok {
		t.Fatalf("repeat record: ok=%v err=%v", ok, err)
	}
	if ok, _ := s.RecordAlert(ctx, alert("alice", core.TierDanger, created.Add(time.Hour))); !ok {
		t.Fatalf("new tier should record")
	}
	if ok, _ := s.RecordAlert(ctx, alert("bob", core.TierWarning, created)); !ok {
		t.Fatalf("other owner should record")
	}

	list, err := s.ListAlerts(ctx, "alice", 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 || list[0].Tier != core.TierDanger || list[1].Tier != core.TierWarning {
		t.Fatalf("unexpected alerts: %+v", list)
	}
	if list[0].Period != march || !list[0].Spend.Equal(decimal.NewFromInt(900)) {
		t.Fatalf("alert fields not round-tripped: %+v", list[0])
	}
}

func testSnapshot(t *testing.T, s storage.Store) {
	ctx := context.Background()
	march := core.Period{Year: 2024, Month: time.March}

	if _, err := s.Snapshot(ctx, "alice", core.TransactionFilter{Period: &march}); !errors.Is(err, core.ErrNotFound) {
		t.Fatalf("snapshot without profile: want ErrNotFound, got %v", err)
	}
	if _, err := s.EnsureProfile(ctx, "alice", core.USD); err != nil {
		t.Fatalf("ensure: %v", err)
	}
	for _, r := range []core.Transaction{
		tx("a", "alice", "1", core.USD, "default-food", core.NewDate(2024, 3, 1)),
		tx("b", "alice", "2", core.USD, "default-food", core.NewDate(2024, 3, 31)),
		tx("c", "alice", "3", core.USD, "default-food", core.NewDate(2024, 4, 1)),
	} {
		if _, err := s.CreateTransaction(ctx, r); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	snap, err := s.Snapshot(ctx, "alice", core.TransactionFilter{Period: &march})
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if snap.Profile.BaseCurrency != core.USD {
		t.Fatalf("unexpected profile: %+v", snap.Profile)
	}
	if len(snap.Transactions) != 2 {
		t.Fatalf("expected both month-boundary days, got %d", len(snap.Transactions))
	}
	if _, ok := snap.Categories["default-food"]; !ok {
		t.Fatalf("snapshot is missing global categories")
	}
}

// testConcurrentSnapshots races writers against snapshot readers. Every
// snapshot must hold whole transactions only, and nothing may be lost.
func testConcurrentSnapshots(t *testing.T, s storage.Store) {
	ctx := context.Background()
	march := core.Period{Year: 2024, Month: time.March}
	filter := core.TransactionFilter{Period: &march}
	if _, err := s.EnsureProfile(ctx, "alice", core.USD); err != nil {
		t.Fatalf("ensure: %v", err)
	}

	const writers, perWriter = 4, 10
	amount := decimal.RequireFromString("2.50")
	errs := make(chan error, writers+2)
	done := make(chan struct{})

	var readers sync.WaitGroup
	for i := 0; i < 2; i++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				snap, err := s.Snapshot(ctx, "alice", filter)
				if err != nil {
					errs <- fmt.Errorf("snapshot: %w", err)
					return
				}
				if n := len(snap.Transactions); n > writers*perWriter {
					errs <- fmt.Errorf("snapshot holds %d transactions", n)
					return
				}
				for _, tr := range snap.Transactions {
					if !tr.Amount.Equal(amount) || tr.Seq == 0 {
						errs <- fmt.Errorf("partial transaction in snapshot: %+v", tr)
						return
					}
				}
				select {
				case <-done:
					return
				default:
				}
			}
		}()
	}

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				id := fmt.Sprintf("w%d-%d", w, i)
				if _, err := s.CreateTransaction(ctx, tx(id, "alice", "2.50", core.USD, "default-food", core.NewDate(2024, 3, 1+i))); err != nil {
					errs <- fmt.Errorf("create %s: %w", id, err)
					return
				}
			}
		}(w)
	}
	wg.Wait()
	close(done)
	readers.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	snap, err := s.Snapshot(ctx, "alice", filter)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(snap.Transactions) != writers*perWriter {
		t.Fatalf("expected %d transactions, got %d", writers*perWriter, len(snap.Transactions))
	}
	total := decimal.Zero
	seqs := make(map[int64]bool)
	for _, tr := range snap.Transactions {
		total = total.Add(tr.Amount)
		seqs[tr.Seq] = true
	}
	if !total.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("total = %s, want 100", total)
	}
	if len(seqs) != writers*perWriter {
		t.Fatalf("seq values are not unique: %d distinct", len(seqs))
	}
}
