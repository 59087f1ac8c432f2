package core

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ParseAmount converts a user-typed decimal string into a positive amount.
//
// Both dot (12.34) and comma (12,34) decimal separators are accepted.
// Signs, exponents, grouping characters and zero are rejected; rounding to
// the currency's minor units is left to the caller.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := parseUnsigned(s)
	if err != nil {
		return decimal.Zero, err
	}
	if !d.IsPositive() {
		return decimal.Zero, NewValidationError("amount", "must be greater than zero")
	}
	return d, nil
}

// ParseLimit is like ParseAmount but accepts zero, which clears a budget.
// Negative inputs are reported on the budget_limit field.
func ParseLimit(s string) (decimal.Decimal, error) {
	if strings.HasPrefix(strings.TrimSpace(s), "-") {
		return decimal.Zero, NewValidationError("budget_limit", "cannot be negative")
	}
	d, err := parseUnsigned(s)
	if err != nil {
		return decimal.Zero, NewValidationError("budget_limit", "is not a valid number")
	}
	return d, nil
}

func parseUnsigned(s string) (decimal.Decimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, NewValidationError("amount", "is required")
	}
	s = strings.ReplaceAll(s, ",", ".")
	if strings.HasPrefix(s, "+") || strings.HasPrefix(s, "-") {
		return decimal.Zero, NewValidationError("amount", "must not be signed")
	}
	intPart, fracPart, _ := strings.Cut(s, ".")
	if strings.Contains(fracPart, ".") {
		return decimal.Zero, NewValidationError("amount", "is not a valid number")
	}
	for _, r := range intPart + fracPart {
		if r < '0' || r > '9' {
			return decimal.Zero, NewValidationError("amount", "is not a valid number")
		}
	}
	if intPart == "" && fracPart == "" {
		return decimal.Zero, NewValidationError("amount", "is not a valid number")
	}
	if intPart == "" {
		s = "0" + s
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, NewValidationError("amount", "is not a valid number")
	}
	return d, nil
}
