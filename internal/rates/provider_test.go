package rates

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/storage"
	"ledger/internal/storage/memory"
)

// countingStore counts LatestRate calls on top of the memory store.
type countingStore struct {
	storage.RateStore
	lookups atomic.Int32
}

func (c *countingStore) LatestRate(ctx context.Context, s, t core.Currency, asOf core.Date) (core.ExchangeRate, error) {
	c.lookups.Add(1)
	return c.RateStore.LatestRate(ctx, s, t, asOf)
}

// failingStore fails every call.
type failingStore struct{ storage.RateStore }

func (failingStore) LatestRate(context.Context, core.Currency, core.Currency, core.Date) (core.ExchangeRate, error) {
	return core.ExchangeRate{}, errors.New("database is locked")
}

func rate(src, tgt core.Currency, d core.Date, v string) core.ExchangeRate {
	return core.ExchangeRate{Source: src, Target: tgt, AsOf: d, Rate: decimal.RequireFromString(v), Provider: "test", FetchedAt: time.Now()}
}

func newTestProvider(t *testing.T, seed ...core.ExchangeRate) (*Provider, *countingStore) {
	t.Helper()
	store := &countingStore{RateStore: memory.New(nil)}
	p := NewProvider(store, 16, time.Hour)
	if _, err := p.Append(context.Background(), seed...); err != nil {
		t.Fatalf("seed rates: %v", err)
	}
	return p, store
}

func TestProviderIdentityNeedsNoLookup(t *testing.T) {
	p := NewProvider(failingStore{}, 4, time.Hour)
	for _, c := range core.SupportedCodes() {
		got, err := p.Rate(context.Background(), c, c, core.NewDate(2024, 3, 1))
		if err != nil {
			t.Fatalf("%s: %v", c, err)
		}
		if !got.Equal(decimal.NewFromInt(1)) {
			t.Fatalf("%s->%s: got %s, want 1", c, c, got)
		}
	}
}

func TestProviderRejectsUnsupportedCurrency(t *testing.T) {
	p, _ := newTestProvider(t)
	_, err := p.Rate(context.Background(), core.Currency("XAU"), core.USD, core.NewDate(2024, 3, 1))
	if !errors.Is(err, core.ErrUnsupportedCurrency) {
		t.Fatalf("want ErrUnsupportedCurrency, got %v", err)
	}
	_, err = p.Rate(context.Background(), core.USD, core.Currency("usd "), core.NewDate(2024, 3, 1))
	if !errors.Is(err, core.ErrUnsupportedCurrency) {
		t.Fatalf("want ErrUnsupportedCurrency for non-normalized code, got %v", err)
	}
}

func TestProviderResolution(t *testing.T) {
	p, _ := newTestProvider(t,
		rate(core.USD, core.EUR, core.NewDate(2024, 3, 1), "0.90"),
		rate(core.EUR, core.USD, core.NewDate(2024, 3, 10), "1.25"),
		rate(core.GBP, core.USD, core.NewDate(2024, 3, 5), "1.27"),
		rate(core.USD, core.GBP, core.NewDate(2024, 3, 5), "0.80"),
	)

	tests := []struct {
		name    string
		src     core.Currency
		tgt     core.Currency
		asOf    core.Date
		want    string
		inverse bool
		wantErr error
	}{
		{"direct exact", core.USD, core.EUR, core.NewDate(2024, 3, 1), "0.9", false, nil},
		{"direct fallback", core.USD, core.EUR, core.NewDate(2024, 3, 9), "0.9", false, nil},
		{"later inverse wins", core.USD, core.EUR, core.NewDate(2024, 3, 12), "0.8", true, nil},
		{"inverse only", core.EUR, core.USD, core.NewDate(2024, 3, 9), "1.111111111111", true, nil},
		{"direct wins ties", core.USD, core.GBP, core.NewDate(2024, 3, 5), "0.8", false, nil},
		{"before history", core.USD, core.EUR, core.NewDate(2024, 2, 28), "", false, core.ErrRateUnavailable},
		{"unknown pair", core.JPY, core.CHF, core.NewDate(2024, 3, 5), "", false, core.ErrRateUnavailable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := p.Quote(context.Background(), tt.src, tt.tgt, tt.asOf)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("want %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("quote: %v", err)
			}
			if !q.Rate.Equal(decimal.RequireFromString(tt.want)) {
				t.Fatalf("rate: got %s, want %s", q.Rate, tt.want)
			}
			if q.Inverse != tt.inverse {
				t.Fatalf("inverse: got %v, want %v", q.Inverse, tt.inverse)
			}
		})
	}
}

func TestProviderNeverDefaultsToOne(t *testing.T) {
	p, _ := newTestProvider(t)
	r, err := p.Rate(context.Background(), core.USD, core.IDR, core.NewDate(2024, 3, 1))
	if !errors.Is(err, core.ErrRateUnavailable) {
		t.Fatalf("want ErrRateUnavailable, got %v", err)
	}
	if !r.IsZero() {
		t.Fatalf("expected zero rate alongside error, got %s", r)
	}
}

func TestProviderStoreErrorIsNotRateUnavailable(t *testing.T) {
	p := NewProvider(failingStore{}, 4, time.Hour)
	_, err := p.Rate(context.Background(), core.USD, core.EUR, core.NewDate(2024, 3, 1))
	if err == nil || errors.Is(err, core.ErrRateUnavailable) {
		t.Fatalf("expected a storage error, got %v", err)
	}
}

func TestProviderCachesOnlyExactDirectHits(t *testing.T) {
	ctx := context.Background()
	p, store := newTestProvider(t, rate(core.USD, core.EUR, core.NewDate(2024, 3, 1), "0.90"))

	for i := 0; i < 3; i++ {
		if _, err := p.Rate(ctx, core.USD, core.EUR, core.NewDate(2024, 3, 1)); err != nil {
			t.Fatalf("rate: %v", err)
		}
	}
	if n := store.lookups.Load(); n != 2 {
		t.Fatalf("expected one direct and one inverse lookup, got %d", n)
	}

	// A fallback answer must reflect rates appended afterwards.
	got, _ := p.Rate(ctx, core.USD, core.EUR, core.NewDate(2024, 3, 10))
	if !got.Equal(decimal.RequireFromString("0.90")) {
		t.Fatalf("unexpected fallback rate %s", got)
	}
	if _, err := p.Append(ctx, rate(core.USD, core.EUR, core.NewDate(2024, 3, 5), "0.95")); err != nil {
		t.Fatalf("append: %v", err)
	}
	got, _ = p.Rate(ctx, core.USD, core.EUR, core.NewDate(2024, 3, 10))
	if !got.Equal(decimal.RequireFromString("0.95")) {
		t.Fatalf("fallback answer was cached: got %s", got)
	}
}

func TestProviderAppendIsAppendOnly(t *testing.T) {
	ctx := context.Background()
	p, _ := newTestProvider(t, rate(core.USD, core.EUR, core.NewDate(2024, 3, 1), "0.90"))

	n, err := p.Append(ctx, rate(core.USD, core.EUR, core.NewDate(2024, 3, 1), "5"))
	if err != nil || n != 0 {
		t.Fatalf("expected existing date to be ignored: n=%d err=%v", n, err)
	}
	got, _ := p.Rate(ctx, core.USD, core.EUR, core.NewDate(2024, 3, 1))
	if !got.Equal(decimal.RequireFromString("0.9")) {
		t.Fatalf("rate was overwritten: %s", got)
	}

	hist, err := p.History(ctx, core.USD, core.EUR, 0)
	if err != nil || len(hist) != 1 {
		t.Fatalf("history: %v %v", hist, err)
	}
}
