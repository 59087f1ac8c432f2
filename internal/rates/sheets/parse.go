package sheets

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

// sheetsEpoch is day zero of the spreadsheet serial date system.
var sheetsEpoch = time.Date(1899, time.December, 30, 0, 0, 0, 0, time.UTC)

// parseRateRows converts a values matrix (as returned by the Sheets API)
// into rates. Rows with unsupported currencies or blank cells are skipped;
// a row with a malformed date or rate is an error naming the sheet row.
func parseRateRows(values [][]any) ([]core.ExchangeRate, error) {
	if len(values) == 0 {
		return nil, nil
	}
	headers := toStrings(values[0])
	colDate := indexOf(headers, "Date")
	colFrom := indexOf(headers, "From")
	colTo := indexOf(headers, "To")
	colRate := indexOf(headers, "Rate")
	if colDate == -1 || colFrom == -1 || colTo == -1 || colRate == -1 {
		return nil, fmt.Errorf("unexpected rates header: want Date, From, To, Rate; got headers=%v", headers)
	}

	var out []core.ExchangeRate
	for i := 1; i < len(values); i++ {
		row := values[i]
		dateCell, from, to, rateCell := safeGet(row, colDate), safeGet(row, colFrom), safeGet(row, colTo), safeGet(row, colRate)
		if isBlank(dateCell) && isBlank(from) && isBlank(to) && isBlank(rateCell) {
			continue
		}

		src, err := core.ParseCurrency(cellString(from))
		if err != nil {
			continue
		}
		tgt, err := core.ParseCurrency(cellString(to))
		if err != nil || tgt == src {
			continue
		}
		asOf, err := parseDateCell(dateCell)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		rate, err := parseRateCell(rateCell)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+1, err)
		}
		out = append(out, core.ExchangeRate{Source: src, Target: tgt, AsOf: asOf, Rate: rate})
	}
	return out, nil
}

// parseDateCell accepts YYYY-MM-DD text or a serial day number.
func parseDateCell(v any) (core.Date, error) {
	switch x := v.(type) {
	case float64:
		return core.DateOf(sheetsEpoch.AddDate(0, 0, int(x))), nil
	default:
		return core.ParseDate(cellString(v))
	}
}

func parseRateCell(v any) (decimal.Decimal, error) {
	var (
		d   decimal.Decimal
		err error
	)
	switch x := v.(type) {
	case float64:
		d = decimal.NewFromFloat(x)
	default:
		s := strings.ReplaceAll(cellString(v), ",", ".")
		d, err = decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("invalid rate %q", s)
		}
	}
	if !d.IsPositive() {
		return decimal.Zero, fmt.Errorf("rate must be positive, got %s", d)
	}
	return d, nil
}

func toStrings(in []any) []string {
	out := make([]string, len(in))
	for i, v := range in {
		out[i] = cellString(v)
	}
	return out
}

func cellString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

func isBlank(v any) bool {
	return cellString(v) == ""
}

func indexOf(arr []string, target string) int {
	for i, v := range arr {
		if strings.EqualFold(strings.TrimSpace(v), target) {
			return i
		}
	}
	return -1
}

func safeGet(arr []any, idx int) any {
	if idx >= 0 && idx < len(arr) {
		return arr[idx]
	}
	return nil
}
