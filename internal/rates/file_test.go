package rates

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

func TestDecodeRates(t *testing.T) {
	doc := `
provider: ecb-manual
rates:
  - date: 2024-03-01
    from: usd
    to: EUR
    rate: 0.9174
  - date: "2024-03-02"
    from: EUR
    to: IDR
    rate: "17050.25"
`
	got, err := DecodeRates(strings.NewReader(doc), time.Date(2024, 3, 3, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 rates, got %d", len(got))
	}
	if got[0].Source != core.USD || got[0].Target != core.EUR || got[0].AsOf.String() != "2024-03-01" {
		t.Fatalf("unexpected first rate: %+v", got[0])
	}
	if !got[1].Rate.Equal(decimal.RequireFromString("17050.25")) || got[1].Provider != "ecb-manual" {
		t.Fatalf("unexpected second rate: %+v", got[1])
	}
}

func TestDecodeRatesRejectsBadEntries(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"unsupported currency", "rates:\n  - {date: 2024-03-01, from: USD, to: XAU, rate: 1}\n", core.ErrUnsupportedCurrency},
		{"zero rate", "rates:\n  - {date: 2024-03-01, from: USD, to: EUR, rate: 0}\n", nil},
		{"same currency", "rates:\n  - {date: 2024-03-01, from: USD, to: USD, rate: 1}\n", nil},
		{"unknown field", "rates:\n  - {date: 2024-03-01, from: USD, to: EUR, rate: 1, note: x}\n", nil},
		{"bad date", "rates:\n  - {date: March, from: USD, to: EUR, rate: 1}\n", nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeRates(strings.NewReader(tt.doc), time.Now())
			if err == nil {
				t.Fatalf("expected error")
			}
			if tt.want != nil && !errors.Is(err, tt.want) {
				t.Fatalf("want %v, got %v", tt.want, err)
			}
		})
	}
}

func TestEncodeRatesIsReadable(t *testing.T) {
	in := []core.ExchangeRate{rate(core.GBP, core.JPY, core.NewDate(2024, 2, 29), "190.123456")}
	var buf bytes.Buffer
	if err := EncodeRates(&buf, in); err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := DecodeRates(&buf, time.Now())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 1 || out[0].AsOf.String() != "2024-02-29" || !out[0].Rate.Equal(in[0].Rate) {
		t.Fatalf("unexpected decode of encoded file: %+v", out)
	}
}

func TestDecodeEmptyFile(t *testing.T) {
	got, err := DecodeRates(strings.NewReader(""), time.Now())
	if err != nil || len(got) != 0 {
		t.Fatalf("expected no rates, got %v %v", got, err)
	}
}
