package sheets

import (
	"context"
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

func TestParseRateRows(t *testing.T) {
	values := [][]any{
		{"Rate", "Date", "From", "To", "Note"},
		{"0.92", "2024-03-01", "USD", "EUR", "ecb"},
		{15600.0, 45352.0, "usd", "idr"},
		{"1,25", "2024-03-02", "EUR", "CHF"},
		{},
		{"1", "2024-03-01", "USD", "XAU"},
		{"1", "2024-03-01", "USD", "USD"},
	}
	got, err := parseRateRows(values)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("expected 3 rates, got %d: %+v", len(got), got)
	}
	if got[0].Source != core.USD || got[0].Target != core.EUR || !got[0].Rate.Equal(decimal.RequireFromString("0.92")) {
		t.Fatalf("unexpected first rate: %+v", got[0])
	}
	// 45352 is 2024-03-01 in the sheet serial calendar.
	if got[1].AsOf.String() != "2024-03-01" || got[1].Target != core.IDR || !got[1].Rate.Equal(decimal.NewFromInt(15600)) {
		t.Fatalf("unexpected serial-dated rate: %+v", got[1])
	}
	if !got[2].Rate.Equal(decimal.RequireFromString("1.25")) {
		t.Fatalf("comma decimal not parsed: %+v", got[2])
	}
}

func TestParseRateRowsErrors(t *testing.T) {
	tests := []struct {
		name   string
		values [][]any
	}{
		{"missing header", [][]any{{"Date", "From", "To"}}},
		{"bad date", [][]any{{"Date", "From", "To", "Rate"}, {"March", "USD", "EUR", "0.9"}}},
		{"negative rate", [][]any{{"Date", "From", "To", "Rate"}, {"2024-03-01", "USD", "EUR", "-0.9"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := parseRateRows(tt.values); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}

type fakeReader struct {
	values [][]any
	err    error
	rng    string
}

func (f *fakeReader) ReadRange(_ context.Context, _ string, rng string) ([][]any, error) {
	f.rng = rng
	return f.values, f.err
}

func TestClientFetchFiltersByBaseTargetsAndDate(t *testing.T) {
	r := &fakeReader{values: [][]any{
		{"Date", "From", "To", "Rate"},
		{"2024-03-01", "USD", "EUR", "0.92"},
		{"2024-03-05", "USD", "EUR", "0.93"},
		{"2024-03-01", "USD", "GBP", "0.79"},
		{"2024-03-01", "EUR", "USD", "1.08"},
	}}
	c := newClient(r, Config{SpreadsheetID: "sheet-id"})

	got, err := c.Fetch(context.Background(), core.USD, []core.Currency{core.EUR}, core.NewDate(2024, 3, 4))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if r.rng != "Rates!A:Z" {
		t.Fatalf("unexpected range %q", r.rng)
	}
	if len(got) != 1 || got[0].AsOf.String() != "2024-03-01" || got[0].Provider != "sheets" {
		t.Fatalf("unexpected rates: %+v", got)
	}

	all, err := c.Fetch(context.Background(), core.USD, []core.Currency{core.EUR, core.GBP}, core.Date{})
	if err != nil || len(all) != 3 {
		t.Fatalf("expected full history, got %d rates err=%v", len(all), err)
	}
}

func TestClientFetchPropagatesReadError(t *testing.T) {
	c := newClient(&fakeReader{err: errors.New("quota")}, Config{SpreadsheetID: "x", SheetName: "FX"})
	if _, err := c.Fetch(context.Background(), core.USD, []core.Currency{core.EUR}, core.Date{}); err == nil {
		t.Fatalf("expected error")
	}
}
