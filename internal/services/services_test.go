package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

var testNow = time.Date(2024, 3, 20, 12, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	alerts []core.BudgetAlert
	err    error
	closed bool
}

func (p *recordingPublisher) PublishBudgetAlert(_ context.Context, a core.BudgetAlert) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.alerts = append(p.alerts, a)
	return p.err
}

func (p *recordingPublisher) Close() error {
	p.closed = true
	return nil
}

func (p *recordingPublisher) published() []core.BudgetAlert {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]core.BudgetAlert(nil), p.alerts...)
}

func newTestLedger(t *testing.T, pub AlertPublisher) *Ledger {
	t.Helper()
	l := NewLedger(memory.New(storage.DefaultCategories()), Options{
		DefaultBaseCurrency: core.USD,
		Publisher:           pub,
	})
	l.SetClock(func() time.Time { return testNow })
	return l
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func input(amount string, cur core.Currency, category string, date core.Date) core.TransactionInput {
	return core.TransactionInput{
		Amount:      dec(amount),
		Currency:    cur,
		CategoryID:  category,
		Date:        date,
		Description: "test " + amount,
	}
}

func march(day int) core.Date {
	return core.NewDate(2024, time.March, day)
}

var march2024 = core.Period{Year: 2024, Month: time.March}

func mustCreate(t *testing.T, l *Ledger, owner string, in core.TransactionInput) core.Transaction {
	t.Helper()
	tx, _, err := l.CreateTransaction(context.Background(), owner, in)
	if err != nil {
		t.Fatalf("CreateTransaction() error = %v", err)
	}
	return tx
}

func appendRate(t *testing.T, l *Ledger, from, to core.Currency, date core.Date, rate string) {
	t.Helper()
	_, err := l.Rates.Append(context.Background(), core.ExchangeRate{
		Source: from, Target: to, AsOf: date, Rate: dec(rate), Provider: "test",
	})
	if err != nil {
		t.Fatalf("Append() error = %v", err)
	}
}

func TestTransactionService_CreateValidation(t *testing.T) {
	valid := input("12.50", core.USD, "default-food", march(1))

	tests := []struct {
		name   string
		modify func(*core.TransactionInput)
		field  string
	}{
		{"zero amount", func(in *core.TransactionInput) { in.Amount = decimal.Zero }, "amount"},
		{"negative amount", func(in *core.TransactionInput) { in.Amount = dec("-3") }, "amount"},
		{"rounds to zero", func(in *core.TransactionInput) { in.Amount = dec("0.001") }, "amount"},
		{"unsupported currency", func(in *core.TransactionInput) { in.Currency = "XYZ" }, "currency"},
		{"missing category", func(in *core.TransactionInput) { in.CategoryID = " " }, "category_id"},
		{"unknown category", func(in *core.TransactionInput) { in.CategoryID = "nope" }, "category_id"},
		{"blank description", func(in *core.TransactionInput) { in.Description = "   " }, "description"},
		{"long description", func(in *core.TransactionInput) { in.Description = strings.Repeat("x", 201) }, "description"},
		{"missing date", func(in *core.TransactionInput) { in.Date = core.Date{} }, "date"},
		{"amount before currency", func(in *core.TransactionInput) {
			in.Amount = decimal.Zero
			in.Currency = "XYZ"
		}, "amount"},
		{"category before description", func(in *core.TransactionInput) {
			in.CategoryID = "nope"
			in.Description = ""
		}, "category_id"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l := newTestLedger(t, nil)
			in := valid
			tt.modify(&in)

			_, _, err := l.CreateTransaction(context.Background(), "alice", in)
			ve, ok := core.AsValidationError(err)
			if !ok {
				t.Fatalf("error = %v, want *ValidationError", err)
			}
			if ve.Field != tt.field {
				t.Errorf("Field = %q, want %q", ve.Field, tt.field)
			}

			txs, _ := l.Transactions.List(context.Background(), "alice", core.TransactionFilter{})
			if len(txs) != 0 {
				t.Errorf("%d transactions stored after a failed validation", len(txs))
			}
		})
	}
}

func TestTransactionService_CreateNormalizes(t *testing.T) {
	l := newTestLedger(t, nil)
	in := input("100.6", core.JPY, "default-food", march(2))
	in.Description = "  ramen  "

	tx := mustCreate(t, l, "alice", in)

	if !tx.Amount.Equal(dec("101")) {
		t.Errorf("Amount = %s, want 101", tx.Amount)
	}
	if tx.Description != "ramen" {
		t.Errorf("Description = %q, want %q", tx.Description, "ramen")
	}
	if tx.ID == "" || tx.OwnerID != "alice" {
		t.Errorf("unexpected identity: id=%q owner=%q", tx.ID, tx.OwnerID)
	}
	if !tx.CreatedAt.Equal(testNow) || !tx.UpdatedAt.Equal(testNow) {
		t.Errorf("timestamps = %v/%v, want %v", tx.CreatedAt, tx.UpdatedAt, testNow)
	}
}

func TestTransactionService_OwnerIsolation(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	tx := mustCreate(t, l, "alice", input("10", core.USD, "default-food", march(1)))

	if _, err := l.Transactions.Get(ctx, "bob", tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Get by other owner error = %v, want ErrNotFound", err)
	}
	if _, _, err := l.UpdateTransaction(ctx, "bob", tx.ID, input("20", core.USD, "default-food", march(1))); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Update by other owner error = %v, want ErrNotFound", err)
	}
	if err := l.Transactions.Delete(ctx, "bob", tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("Delete by other owner error = %v, want ErrNotFound", err)
	}
	if _, err := l.Transactions.Get(ctx, "alice", tx.ID); err != nil {
		t.Errorf("owner lost access: %v", err)
	}
}

func TestTransactionService_OtherOwnersCategoryIsInvalid(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	cat, err := l.Categories.Create(ctx, "bob", core.CategoryInput{Name: "Hobbies"})
	if err != nil {
		t.Fatalf("Create category error = %v", err)
	}

	_, _, err = l.CreateTransaction(ctx, "alice", input("10", core.USD, cat.ID, march(1)))
	if ve, ok := core.AsValidationError(err); !ok || ve.Field != "category_id" {
		t.Errorf("error = %v, want category_id validation error", err)
	}
}

func TestTransactionService_DoubleDelete(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	tx := mustCreate(t, l, "alice", input("10", core.USD, "default-food", march(1)))

	if err := l.Transactions.Delete(ctx, "alice", tx.ID); err != nil {
		t.Fatalf("first Delete() error = %v", err)
	}
	if err := l.Transactions.Delete(ctx, "alice", tx.ID); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("second Delete() error = %v, want ErrNotFound", err)
	}
}

func TestTransactionService_Update(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	tx := mustCreate(t, l, "alice", input("10", core.USD, "default-food", march(1)))

	later := testNow.Add(time.Hour)
	l.SetClock(func() time.Time { return later })

	updated, _, err := l.UpdateTransaction(ctx, "alice", tx.ID, input("25", core.EUR, "default-travel", march(4)))
	if err != nil {
		t.Fatalf("UpdateTransaction() error = %v", err)
	}
	if !updated.Amount.Equal(dec("25")) || updated.Currency != core.EUR || updated.CategoryID != "default-travel" {
		t.Errorf("update not applied: %+v", updated)
	}
	if !updated.UpdatedAt.Equal(later) {
		t.Errorf("UpdatedAt = %v, want %v", updated.UpdatedAt, later)
	}
	if !updated.CreatedAt.Equal(tx.CreatedAt) {
		t.Errorf("CreatedAt changed to %v", updated.CreatedAt)
	}

	_, _, err = l.UpdateTransaction(ctx, "alice", tx.ID, input("0", core.USD, "default-food", march(1)))
	if ve, ok := core.AsValidationError(err); !ok || ve.Field != "amount" {
		t.Errorf("invalid update error = %v, want amount validation error", err)
	}
	got, _ := l.Transactions.Get(ctx, "alice", tx.ID)
	if !got.Amount.Equal(dec("25")) {
		t.Errorf("failed update changed amount to %s", got.Amount)
	}
}

func TestTransactionService_ListDetailed(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	cat, _ := l.Categories.Create(ctx, "alice", core.CategoryInput{Name: "Pets", Color: "#123456"})

	mustCreate(t, l, "alice", input("10", core.USD, "default-food", march(1)))
	mustCreate(t, l, "alice", input("20", core.EUR, cat.ID, march(2)))
	mustCreate(t, l, "alice", input("3000", core.JPY, "default-food", march(3)))
	appendRate(t, l, core.EUR, core.USD, march(1), "1.08")

	if err := l.Categories.Delete(ctx, "alice", cat.ID); err != nil {
		t.Fatalf("Delete category error = %v", err)
	}

	views, err := l.Transactions.ListDetailed(ctx, "alice", core.USD, core.TransactionFilter{})
	if err != nil {
		t.Fatalf("ListDetailed() error = %v", err)
	}
	if len(views) != 3 {
		t.Fatalf("got %d views, want 3", len(views))
	}

	jpy, eur, usd := views[0], views[1], views[2]
	if jpy.ExchangeRate != nil {
		t.Errorf("JPY rate = %s, want nil", jpy.ExchangeRate)
	}
	if eur.ExchangeRate == nil || !eur.ExchangeRate.Equal(dec("1.08")) {
		t.Errorf("EUR rate = %v, want 1.08", eur.ExchangeRate)
	}
	if eur.CategoryName != core.UncategorizedName || eur.CategoryColor != core.UncategorizedColor {
		t.Errorf("deleted category shown as %q %q", eur.CategoryName, eur.CategoryColor)
	}
	if usd.ExchangeRate == nil || !usd.ExchangeRate.Equal(decimal.NewFromInt(1)) {
		t.Errorf("USD rate = %v, want 1", usd.ExchangeRate)
	}
	if usd.CategoryName != "Food & Dining" {
		t.Errorf("CategoryName = %q, want Food & Dining", usd.CategoryName)
	}
}

func TestSummaryService_ScenarioUSDBudget(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	if _, _, err := l.Budgets.SetBudgetLimit(ctx, "alice", dec("1000")); err != nil {
		t.Fatalf("SetBudgetLimit() error = %v", err)
	}

	mustCreate(t, l, "alice", input("500", core.USD, "default-food", march(1)))
	mustCreate(t, l, "alice", input("400", core.USD, "default-food", march(15)))

	summary, err := l.Summaries.Summarize(ctx, "alice", march2024)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !summary.Total.Equal(dec("900")) {
		t.Errorf("Total = %s, want 900", summary.Total)
	}

	status, err := l.Budgets.Evaluate(ctx, "alice", march2024)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if status.Percentage == nil || !status.Percentage.Equal(dec("90")) {
		t.Errorf("Percentage = %v, want 90", status.Percentage)
	}
	if status.HighestTier() != core.TierWarning {
		t.Errorf("tier = %q, want warning", status.HighestTier())
	}
}

func TestSummaryService_DeletedCategory(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	cat, err := l.Categories.Create(ctx, "alice", core.CategoryInput{Name: "Garden"})
	if err != nil {
		t.Fatalf("Create category error = %v", err)
	}
	mustCreate(t, l, "alice", input("30", core.USD, cat.ID, march(2)))
	mustCreate(t, l, "alice", input("45.50", core.USD, cat.ID, march(9)))
	mustCreate(t, l, "alice", input("24.50", core.USD, "default-food", march(9)))

	before, err := l.Summaries.Summarize(ctx, "alice", march2024)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if err := l.Categories.Delete(ctx, "alice", cat.ID); err != nil {
		t.Fatalf("Delete category error = %v", err)
	}
	after, err := l.Summaries.Summarize(ctx, "alice", march2024)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	if !after.Total.Equal(before.Total) {
		t.Errorf("Total changed from %s to %s", before.Total, after.Total)
	}
	if len(after.Entries) != 2 {
		t.Fatalf("got %d entries, want 2", len(after.Entries))
	}
	e := after.Entries[0]
	if e.Name != core.UncategorizedName || e.CategoryID != "" || e.Color != core.UncategorizedColor {
		t.Errorf("first entry = %+v, want Uncategorized", e)
	}
	if !e.Total.Equal(dec("75.50")) || e.Count != 2 {
		t.Errorf("Uncategorized total = %s count = %d, want 75.50 and 2", e.Total, e.Count)
	}
}

func TestSummaryService_ConvertsAtTransactionDate(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	appendRate(t, l, core.EUR, core.USD, march(1), "1.10")
	appendRate(t, l, core.EUR, core.USD, march(10), "1.20")

	mustCreate(t, l, "alice", input("100", core.EUR, "default-travel", march(5)))
	mustCreate(t, l, "alice", input("100", core.EUR, "default-travel", march(12)))

	summary, err := l.Summaries.Summarize(ctx, "alice", march2024)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !summary.Total.Equal(dec("230")) {
		t.Errorf("Total = %s, want 230", summary.Total)
	}
	if summary.BaseCurrency != core.USD {
		t.Errorf("BaseCurrency = %s, want USD", summary.BaseCurrency)
	}
}

func TestSummaryService_RateUnavailableAborts(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	mustCreate(t, l, "alice", input("10", core.USD, "default-food", march(1)))
	mustCreate(t, l, "alice", input("1500", core.JPY, "default-food", march(2)))

	_, err := l.Summaries.Summarize(ctx, "alice", march2024)
	if !errors.Is(err, core.ErrRateUnavailable) {
		t.Errorf("Summarize() error = %v, want ErrRateUnavailable", err)
	}
}

func TestSummaryService_OrderingAndPercentages(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	mustCreate(t, l, "alice", input("50", core.USD, "default-food", march(1)))
	mustCreate(t, l, "alice", input("25", core.USD, "default-health", march(1)))
	mustCreate(t, l, "alice", input("25", core.USD, "default-entertainment", march(1)))
	mustCreate(t, l, "alice", input("1", core.USD, "default-food", core.NewDate(2024, time.April, 1)))

	summary, err := l.Summaries.Summarize(ctx, "alice", march2024)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}

	wantNames := []string{"Food & Dining", "Entertainment", "Healthcare"}
	wantPct := []string{"50", "25", "25"}
	if len(summary.Entries) != len(wantNames) {
		t.Fatalf("got %d entries, want %d", len(summary.Entries), len(wantNames))
	}
	sum, pct := decimal.Zero, decimal.Zero
	for i, e := range summary.Entries {
		if e.Name != wantNames[i] {
			t.Errorf("entry %d = %q, want %q", i, e.Name, wantNames[i])
		}
		if !e.Percentage.Equal(dec(wantPct[i])) {
			t.Errorf("entry %d percentage = %s, want %s", i, e.Percentage, wantPct[i])
		}
		sum = sum.Add(e.Total)
		pct = pct.Add(e.Percentage)
	}
	if !sum.Equal(summary.Total) {
		t.Errorf("entries sum to %s, total is %s", sum, summary.Total)
	}
	if !pct.Equal(dec("100")) {
		t.Errorf("percentages sum to %s, want 100", pct)
	}
}

func TestSummaryService_EmptyPeriod(t *testing.T) {
	l := newTestLedger(t, nil)

	summary, err := l.Summaries.Summarize(context.Background(), "alice", march2024)
	if err != nil {
		t.Fatalf("Summarize() error = %v", err)
	}
	if !summary.Total.IsZero() || len(summary.Entries) != 0 {
		t.Errorf("summary = %+v, want empty", summary)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name    string
		limit   string
		spend   string
		wantPct string // empty means no percentage
		tier    core.Tier
	}{
		{"no budget", "0", "500", "", core.TierNone},
		{"well below", "1000", "500", "50", core.TierNone},
		{"just below info", "1000", "799.99", "79.99", core.TierNone},
		{"info", "1000", "850", "85", core.TierInfo},
		{"warning boundary", "1000", "900", "90", core.TierWarning},
		{"not yet danger", "1000", "999.999", "99.99", core.TierWarning},
		{"danger at limit", "1000", "1000", "100", core.TierDanger},
		{"danger above", "1000", "1200", "120", core.TierDanger},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := evaluate(march2024, core.USD, dec(tt.limit), dec(tt.spend))

			if tt.wantPct == "" {
				if status.Percentage != nil {
					t.Errorf("Percentage = %s, want none", status.Percentage)
				}
			} else if status.Percentage == nil || !status.Percentage.Equal(dec(tt.wantPct)) {
				t.Errorf("Percentage = %v, want %s", status.Percentage, tt.wantPct)
			}

			if tt.tier == core.TierNone {
				if len(status.Notifications) != 0 {
					t.Errorf("Notifications = %+v, want none", status.Notifications)
				}
				return
			}
			if len(status.Notifications) != 1 {
				t.Fatalf("got %d notifications, want exactly 1", len(status.Notifications))
			}
			if status.Notifications[0].Type != tt.tier {
				t.Errorf("tier = %q, want %q", status.Notifications[0].Type, tt.tier)
			}
		})
	}
}

func TestEvaluate_Messages(t *testing.T) {
	status := evaluate(march2024, core.USD, dec("1000"), dec("1000"))
	msg := status.Notifications[0].Message
	for _, want := range []string{"exceeded", "100.0%", "$1,000.00 / $1,000.00"} {
		if !strings.Contains(msg, want) {
			t.Errorf("message %q does not contain %q", msg, want)
		}
	}

	status = evaluate(march2024, core.IDR, dec("1000000"), dec("920000"))
	if msg := status.Notifications[0].Message; !strings.Contains(msg, "Rp 920,000 / Rp 1,000,000") {
		t.Errorf("IDR message = %q", msg)
	}
}

func TestBudgetService_SetBudgetLimit(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	_, _, err := l.Budgets.SetBudgetLimit(ctx, "alice", dec("-1"))
	if ve, ok := core.AsValidationError(err); !ok || ve.Field != "budget_limit" {
		t.Fatalf("negative limit error = %v, want budget_limit validation error", err)
	}

	mustCreate(t, l, "alice", input("850", core.USD, "default-food", march(3)))
	profile, status, err := l.Budgets.SetBudgetLimit(ctx, "alice", dec("1000"))
	if err != nil {
		t.Fatalf("SetBudgetLimit() error = %v", err)
	}
	if !profile.BudgetLimit.Equal(dec("1000")) {
		t.Errorf("BudgetLimit = %s, want 1000", profile.BudgetLimit)
	}
	if status.Period != march2024 {
		t.Errorf("status period = %s, want current month 2024-03", status.Period)
	}
	if status.HighestTier() != core.TierInfo {
		t.Errorf("tier = %q, want info", status.HighestTier())
	}

	_, status, err = l.Budgets.SetBudgetLimit(ctx, "alice", decimal.Zero)
	if err != nil {
		t.Fatalf("clearing limit error = %v", err)
	}
	if status.Percentage != nil || len(status.Notifications) != 0 {
		t.Errorf("cleared budget status = %+v, want no percentage and no notifications", status)
	}
}

// limitChangingSnapshots moves the budget limit right before each snapshot
// is taken, as a concurrent SetBudgetLimit would.
type limitChangingSnapshots struct {
	store storage.Store
	limit decimal.Decimal
}

func (s limitChangingSnapshots) Snapshot(ctx context.Context, ownerID string, filter core.TransactionFilter) (storage.Snapshot, error) {
	if _, err := s.store.SetBudgetLimit(ctx, ownerID, s.limit); err != nil {
		return storage.Snapshot{}, err
	}
	return s.store.Snapshot(ctx, ownerID, filter)
}

func TestBudgetService_EvaluateUsesSnapshotLimit(t *testing.T) {
	ctx := context.Background()
	store := memory.New(storage.DefaultCategories())
	l := NewLedger(store, Options{DefaultBaseCurrency: core.USD})
	l.SetClock(func() time.Time { return testNow })

	mustCreate(t, l, "alice", input("950", core.USD, "default-food", march(3)))
	if _, _, err := l.Budgets.SetBudgetLimit(ctx, "alice", dec("2000")); err != nil {
		t.Fatalf("SetBudgetLimit() error = %v", err)
	}

	summaries := NewSummaryService(limitChangingSnapshots{store: store, limit: dec("1000")}, l.Profiles, l.Converter)
	budgets := NewBudgetService(store, l.Profiles, summaries, nil)

	status, err := budgets.Evaluate(ctx, "alice", march2024)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !status.BudgetLimit.Equal(dec("1000")) {
		t.Errorf("BudgetLimit = %s, want the snapshot's 1000", status.BudgetLimit)
	}
	if status.Percentage == nil || !status.Percentage.Equal(dec("95")) {
		t.Errorf("Percentage = %v, want 95", status.Percentage)
	}
	if status.HighestTier() != core.TierWarning {
		t.Errorf("tier = %q, want warning", status.HighestTier())
	}
}

func TestBudgetService_ConcurrentLimitChanges(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)
	mustCreate(t, l, "alice", input("900", core.USD, "default-food", march(3)))

	limits := []decimal.Decimal{dec("1000"), dec("2000")}
	var wg sync.WaitGroup
	errs := make(chan error, 64)

	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				if _, _, err := l.Budgets.SetBudgetLimit(ctx, "alice", limits[(i+j)%2]); err != nil {
					errs <- err
					return
				}
			}
		}(i)
	}
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				status, err := l.Budgets.Evaluate(ctx, "alice", march2024)
				if err != nil {
					errs <- err
					return
				}
				if status.Percentage == nil {
					continue
				}
				want := status.CurrentSpend.Mul(hundred).Div(status.BudgetLimit).Truncate(2)
				if !status.BudgetLimit.Equal(limits[0]) && !status.BudgetLimit.Equal(limits[1]) {
					errs <- errors.New("unexpected limit " + status.BudgetLimit.String())
					return
				}
				if !status.Percentage.Equal(want) {
					errs <- errors.New("percentage " + status.Percentage.String() + " does not match limit " + status.BudgetLimit.String())
					return
				}
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Error(err)
	}

	status, err := l.Budgets.Evaluate(ctx, "alice", march2024)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if !status.CurrentSpend.Equal(dec("900")) {
		t.Errorf("CurrentSpend = %s, want 900", status.CurrentSpend)
	}
}

func TestBudgetService_NewlyCrossedTiersOnly(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	l := newTestLedger(t, pub)
	if _, _, err := l.Budgets.SetBudgetLimit(ctx, "alice", dec("1000")); err != nil {
		t.Fatalf("SetBudgetLimit() error = %v", err)
	}

	steps := []struct {
		amount string
		tier   core.Tier // tier expected in the write response
	}{
		{"700", core.TierNone},
		{"150", core.TierInfo},
		{"10", core.TierNone},
		{"100", core.TierWarning},
		{"5", core.TierNone},
	}
	for i, step := range steps {
		_, status, err := l.CreateTransaction(ctx, "alice", input(step.amount, core.USD, "default-food", march(i+1)))
		if err != nil {
			t.Fatalf("step %d: CreateTransaction() error = %v", i, err)
		}
		if status == nil {
			t.Fatalf("step %d: budget status missing", i)
		}
		if got := status.HighestTier(); got != step.tier {
			t.Errorf("step %d: tier = %q, want %q", i, got, step.tier)
		}
	}

	published := pub.published()
	if len(published) != 2 {
		t.Fatalf("published %d alerts, want 2", len(published))
	}
	if published[0].Tier != core.TierInfo || published[1].Tier != core.TierWarning {
		t.Errorf("published tiers = %q, %q", published[0].Tier, published[1].Tier)
	}

	history, err := l.Budgets.History(ctx, "alice")
	if err != nil {
		t.Fatalf("History() error = %v", err)
	}
	if len(history) != 2 || history[0].Tier != core.TierWarning {
		t.Errorf("history = %+v, want warning then info", history)
	}

	status, err := l.Budgets.Evaluate(ctx, "alice", march2024)
	if err != nil {
		t.Fatalf("Evaluate() error = %v", err)
	}
	if status.HighestTier() != core.TierWarning {
		t.Errorf("budget check tier = %q, want warning", status.HighestTier())
	}
}

func TestLedger_WriteSurvivesBudgetFailures(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{err: errors.New("broker down")}
	l := newTestLedger(t, pub)
	if _, _, err := l.Budgets.SetBudgetLimit(ctx, "alice", dec("100")); err != nil {
		t.Fatalf("SetBudgetLimit() error = %v", err)
	}

	_, status, err := l.CreateTransaction(ctx, "alice", input("100", core.USD, "default-food", march(1)))
	if err != nil {
		t.Fatalf("publish failure broke the write: %v", err)
	}
	if status == nil || status.HighestTier() != core.TierDanger {
		t.Errorf("status = %+v, want danger", status)
	}

	tx, status, err := l.CreateTransaction(ctx, "alice", input("500", core.JPY, "default-food", march(2)))
	if err != nil {
		t.Fatalf("rate failure broke the write: %v", err)
	}
	if status != nil {
		t.Errorf("status = %+v, want nil when evaluation fails", status)
	}
	if _, err := l.Transactions.Get(ctx, "alice", tx.ID); err != nil {
		t.Errorf("transaction not stored: %v", err)
	}
}

func TestCategoryService(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	cat, err := l.Categories.Create(ctx, "alice", core.CategoryInput{Name: "  Pets "})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if cat.Name != "Pets" || cat.Color != core.DefaultCategoryColor {
		t.Errorf("category = %+v, want trimmed name and default color", cat)
	}

	tests := []struct {
		name  string
		owner string
		in    core.CategoryInput
		field string
	}{
		{"duplicate", "alice", core.CategoryInput{Name: "pets"}, "name"},
		{"shadows global", "alice", core.CategoryInput{Name: "food & dining"}, "name"},
		{"reserved", "alice", core.CategoryInput{Name: "Uncategorized"}, "name"},
		{"bad color", "alice", core.CategoryInput{Name: "Kids", Color: "blue"}, "color"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := l.Categories.Create(ctx, tt.owner, tt.in)
			if ve, ok := core.AsValidationError(err); !ok || ve.Field != tt.field {
				t.Errorf("error = %v, want %s validation error", err, tt.field)
			}
		})
	}

	if _, err := l.Categories.Create(ctx, "bob", core.CategoryInput{Name: "Pets"}); err != nil {
		t.Errorf("another owner could not reuse the name: %v", err)
	}
	if _, err := l.Categories.Update(ctx, "alice", "default-food", core.CategoryInput{Name: "Food"}); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("updating a global category error = %v, want ErrNotFound", err)
	}
	if err := l.Categories.Delete(ctx, "alice", "default-food"); !errors.Is(err, core.ErrNotFound) {
		t.Errorf("deleting a global category error = %v, want ErrNotFound", err)
	}

	cats, err := l.Categories.List(ctx, "alice")
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(cats) != len(storage.DefaultCategories())+1 {
		t.Errorf("alice sees %d categories, want defaults plus one", len(cats))
	}
}

func TestProfileService(t *testing.T) {
	ctx := context.Background()
	l := newTestLedger(t, nil)

	p, err := l.Profiles.Get(ctx, "alice")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if p.BaseCurrency != core.USD || !p.BudgetLimit.IsZero() {
		t.Errorf("lazy profile = %+v, want USD without budget", p)
	}

	if _, err := l.Profiles.SetBaseCurrency(ctx, "alice", "XYZ"); err == nil {
		t.Error("SetBaseCurrency accepted an unsupported currency")
	} else if ve, ok := core.AsValidationError(err); !ok || ve.Field != "base_currency" {
		t.Errorf("error = %v, want base_currency validation error", err)
	}

	p, err = l.Profiles.SetBaseCurrency(ctx, "alice", core.IDR)
	if err != nil {
		t.Fatalf("SetBaseCurrency() error = %v", err)
	}
	if p.BaseCurrency != core.IDR {
		t.Errorf("BaseCurrency = %s, want IDR", p.BaseCurrency)
	}
}

func TestLedger_Close(t *testing.T) {
	pub := &recordingPublisher{}
	l := newTestLedger(t, pub)

	if err := l.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}
	if !pub.closed {
		t.Error("publisher was not closed")
	}

	if err := newTestLedger(t, nil).Close(); err != nil {
		t.Errorf("Close() without publisher error = %v", err)
	}
}
