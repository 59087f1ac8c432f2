package core

import (
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// Currency is an ISO-4217 code from the supported set.
type Currency string

const (
	IDR Currency = "IDR"
	USD Currency = "USD"
	EUR Currency = "EUR"
	GBP Currency = "GBP"
	JPY Currency = "JPY"
	SGD Currency = "SGD"
	MYR Currency = "MYR"
	AUD Currency = "AUD"
	CAD Currency = "CAD"
	CHF Currency = "CHF"
)

// CurrencyInfo is the display and rounding configuration for a currency.
type CurrencyInfo struct {
	Code       Currency
	Name       string
	Symbol     string
	MinorUnits int32
}

var currencyTable = map[Currency]CurrencyInfo{
	IDR: {Code: IDR, Name: "Indonesian Rupiah", Symbol: "Rp", MinorUnits: 0},
	USD: {Code: USD, Name: "US Dollar", Symbol: "$", MinorUnits: 2},
	EUR: {Code: EUR, Name: "Euro", Symbol: "€", MinorUnits: 2},
	GBP: {Code: GBP, Name: "British Pound", Symbol: "£", MinorUnits: 2},
	JPY: {Code: JPY, Name: "Japanese Yen", Symbol: "¥", MinorUnits: 0},
	SGD: {Code: SGD, Name: "Singapore Dollar", Symbol: "S$", MinorUnits: 2},
	MYR: {Code: MYR, Name: "Malaysian Ringgit", Symbol: "RM", MinorUnits: 2},
	AUD: {Code: AUD, Name: "Australian Dollar", Symbol: "A$", MinorUnits: 2},
	CAD: {Code: CAD, Name: "Canadian Dollar", Symbol: "C$", MinorUnits: 2},
	CHF: {Code: CHF, Name: "Swiss Franc", Symbol: "CHF", MinorUnits: 2},
}

// ParseCurrency normalizes s and checks it against the supported set.
func ParseCurrency(s string) (Currency, error) {
	c := Currency(strings.ToUpper(strings.TrimSpace(s)))
	if err := c.Validate(); err != nil {
		return "", err
	}
	return c, nil
}

// Validate returns ErrUnsupportedCurrency for codes outside the supported set.
func (c Currency) Validate() error {
	if _, ok := currencyTable[c]; !ok {
		return fmt.Errorf("%w: %q", ErrUnsupportedCurrency, string(c))
	}
	return nil
}

func (c Currency) String() string {
	return string(c)
}

// Info returns the configuration entry for c.
func (c Currency) Info() (CurrencyInfo, bool) {
	info, ok := currencyTable[c]
	return info, ok
}

// MinorUnits returns the number of decimal places used by c.
// Unknown currencies fall back to 2.
func (c Currency) MinorUnits() int32 {
	if info, ok := currencyTable[c]; ok {
		return info.MinorUnits
	}
	return 2
}

// MinorUnit returns the smallest representable amount of c (1, 0.01, ...).
func (c Currency) MinorUnit() decimal.Decimal {
	return decimal.New(1, -c.MinorUnits())
}

// Round rounds d half away from zero to the minor-unit precision of c.
func (c Currency) Round(d decimal.Decimal) decimal.Decimal {
	return d.Round(c.MinorUnits())
}

// Format renders d with the currency symbol and thousands separators,
// e.g. "$1,025.00" or "Rp 1,500,000".
func (c Currency) Format(d decimal.Decimal) string {
	info, ok := currencyTable[c]
	if !ok {
		return d.String() + " " + string(c)
	}
	s := c.Round(d).StringFixed(info.MinorUnits)
	neg := strings.HasPrefix(s, "-")
	s = strings.TrimPrefix(s, "-")

	intPart, frac, _ := strings.Cut(s, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(',')
		}
		b.WriteRune(r)
	}
	if frac != "" {
		b.WriteByte('.')
		b.WriteString(frac)
	}

	sym := info.Symbol
	runes := []rune(sym)
	if unicode.IsLetter(runes[len(runes)-1]) {
		sym += " "
	}
	if neg {
		return "-" + sym + b.String()
	}
	return sym + b.String()
}

// SupportedCurrencies returns the currency table ordered by code.
func SupportedCurrencies() []CurrencyInfo {
	out := make([]CurrencyInfo, 0, len(currencyTable))
	for _, info := range currencyTable {
		out = append(out, info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Code < out[j].Code })
	return out
}

// SupportedCodes returns the supported currency codes ordered by code.
func SupportedCodes() []Currency {
	infos := SupportedCurrencies()
	out := make([]Currency, len(infos))
	for i, info := range infos {
		out[i] = info.Code
	}
	return out
}
