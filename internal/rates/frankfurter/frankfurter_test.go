package frankfurter

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

func TestFetchLatest(t *testing.T) {
	var gotPath, gotFrom, gotTo string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotFrom = r.URL.Query().Get("from")
		gotTo = r.URL.Query().Get("to")
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"amount":1.0,"base":"USD","date":"2024-03-15","rates":{"EUR":0.91743,"IDR":15632,"XAU":0.0005}}`))
	}))
	defer srv.Close()

	c := New(srv.URL)
	got, err := c.Fetch(context.Background(), core.USD, []core.Currency{core.EUR, core.IDR, core.USD}, core.Date{})
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/latest" || gotFrom != "USD" || gotTo != "EUR,IDR" {
		t.Fatalf("unexpected request: path=%s from=%s to=%s", gotPath, gotFrom, gotTo)
	}

	sort.Slice(got, func(i, j int) bool { return got[i].Target < got[j].Target })
	if len(got) != 2 {
		t.Fatalf("expected 2 supported rates, got %d: %+v", len(got), got)
	}
	if got[0].Target != core.EUR || !got[0].Rate.Equal(decimal.RequireFromString("0.91743")) {
		t.Fatalf("unexpected EUR rate: %+v", got[0])
	}
	if got[1].Target != core.IDR || got[1].AsOf.String() != "2024-03-15" || got[1].Provider != "frankfurter" {
		t.Fatalf("unexpected IDR rate: %+v", got[1])
	}
}

func TestFetchHistoricalDate(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		w.Write([]byte(`{"base":"EUR","date":"2024-03-01","rates":{"USD":1.0834}}`))
	}))
	defer srv.Close()

	got, err := New(srv.URL).Fetch(context.Background(), core.EUR, []core.Currency{core.USD}, core.NewDate(2024, 3, 2))
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gotPath != "/2024-03-02" {
		t.Fatalf("unexpected path %s", gotPath)
	}
	if len(got) != 1 || got[0].AsOf.String() != "2024-03-01" {
		t.Fatalf("expected the published date to be kept, got %+v", got)
	}
}

func TestFetchErrors(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
	}{
		{"server error", http.StatusBadGateway, "upstream down"},
		{"wrong base", http.StatusOK, `{"base":"GBP","date":"2024-03-01","rates":{"USD":1.2}}`},
		{"bad json", http.StatusOK, `{"base":`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				w.Write([]byte(tt.body))
			}))
			defer srv.Close()

			if _, err := New(srv.URL).Fetch(context.Background(), core.EUR, []core.Currency{core.USD}, core.Date{}); err == nil {
				t.Fatalf("expected error")
			}
		})
	}
}
