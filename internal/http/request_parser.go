// Package http provides HTTP server and handler implementations.
//
// This file implements utilities for parsing and validating HTTP request data:
// the owner header, month and limit query parameters and JSON bodies whose
// numeric fields may arrive either as JSON numbers or as strings.

package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

const (
	// HeaderUserID carries the authenticated owner, set by the gateway.
	HeaderUserID = "X-User-ID"

	maxOwnerIDLength = 128
	maxBodyBytes     = 1 << 20
	maxListLimit     = 1000
)

type ownerKey struct{}

var errMissingOwner = errors.New("missing or invalid " + HeaderUserID + " header")

// ownerFromRequest returns the owner named by the X-User-ID header.
func ownerFromRequest(r *http.Request) (string, error) {
	owner := sanitizeInput(r.Header.Get(HeaderUserID))
	if owner == "" || len(owner) > maxOwnerIDLength {
		return "", errMissingOwner
	}
	return owner, nil
}

func withOwner(ctx context.Context, owner string) context.Context {
	return context.WithValue(ctx, ownerKey{}, owner)
}

// ownerFromContext is only valid inside handlers wrapped by requireOwner.
func ownerFromContext(ctx context.Context) string {
	owner, _ := ctx.Value(ownerKey{}).(string)
	return owner
}

// parseMonth reads the month query parameter (YYYY-MM). ok is false when the
// parameter is absent.
func parseMonth(r *http.Request) (period core.Period, ok bool, err error) {
	v := strings.TrimSpace(r.URL.Query().Get("month"))
	if v == "" {
		return core.Period{}, false, nil
	}
	p, err := core.ParsePeriod(v)
	if err != nil {
		return core.Period{}, false, &core.ValidationError{Field: "month", Message: "must be formatted as YYYY-MM", Err: err}
	}
	return p, true, nil
}

// parseLimit reads the limit query parameter; 0 means no limit.
func parseLimit(r *http.Request) (int, error) {
	v := strings.TrimSpace(r.URL.Query().Get("limit"))
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, core.NewValidationError("limit", "must be a non-negative integer")
	}
	if n > maxListLimit {
		n = maxListLimit
	}
	return n, nil
}

// parseCurrencyParam reads a currency query parameter, falling back to def.
func parseCurrencyParam(r *http.Request, name string, def core.Currency) (core.Currency, error) {
	v := strings.TrimSpace(r.URL.Query().Get(name))
	if v == "" {
		return def, nil
	}
	return parseCurrencyField(name, v)
}

func parseCurrencyField(field, v string) (core.Currency, error) {
	c, err := core.ParseCurrency(v)
	if err != nil {
		return "", &core.ValidationError{Field: field, Message: "not a supported currency", Err: err}
	}
	return c, nil
}

// decodeJSON reads a single JSON object from the request body into dst.
// Unknown fields are ignored.
func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	body := http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(body)
	if err := dec.Decode(dst); err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.Is(err, io.EOF):
			return core.NewValidationError("body", "is required")
		case errors.As(err, &maxErr):
			return core.NewValidationError("body", "too large")
		default:
			return core.NewValidationError("body", "is not valid JSON")
		}
	}
	if dec.More() {
		return core.NewValidationError("body", "must contain a single JSON object")
	}
	return nil
}

// decimalField accepts 12.5, "12.5" and "12,5". The raw text is kept so
// that parsing errors are reported on the field that carried it.
type decimalField struct {
	raw string
	set bool
}

func (f *decimalField) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if bytes.Equal(b, []byte("null")) {
		*f = decimalField{}
		return nil
	}
	f.set = true
	if len(b) > 0 && b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		f.raw = s
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("decimal field: %w", err)
	}
	f.raw = n.String()
	return nil
}

// amount parses f as a positive amount.
func (f decimalField) amount() (decimal.Decimal, error) {
	if !f.set {
		return decimal.Zero, core.NewValidationError("amount", "is required")
	}
	return core.ParseAmount(f.raw)
}

// limit parses f as a non-negative budget limit.
func (f decimalField) limit() (decimal.Decimal, error) {
	if !f.set {
		return decimal.Zero, core.NewValidationError("budget_limit", "is required")
	}
	return core.ParseLimit(f.raw)
}

type transactionRequest struct {
	Amount      decimalField `json:"amount"`
	Currency    string       `json:"currency"`
	CategoryID  string       `json:"category_id"`
	Date        string       `json:"date"`
	Description string       `json:"description"`
}

// input converts the request into a TransactionInput; a missing date means
// today and RFC 3339 timestamps keep only their calendar day. Field problems are reported in the same order
// TransactionInput.Validate uses.
func (req transactionRequest) input(today core.Date) (core.TransactionInput, error) {
	amount, err := req.Amount.amount()
	if err != nil {
		return core.TransactionInput{}, err
	}
	in := core.TransactionInput{
		Amount:      amount,
		Currency:    core.Currency(strings.ToUpper(strings.TrimSpace(req.Currency))),
		CategoryID:  sanitizeInput(req.CategoryID),
		Description: sanitizeInput(req.Description),
		Date:        today,
	}
	v := strings.TrimSpace(req.Date)
	if v == "" {
		return in, nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		in.Date = core.Date{}
		in.DateErr = err
		return in, nil
	}
	in.Date = d
	return in, nil
}

type categoryRequest struct {
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
}

func (req categoryRequest) input() core.CategoryInput {
	return core.CategoryInput{
		Name:        sanitizeInput(req.Name),
		Color:       sanitizeInput(req.Color),
		Description: sanitizeInput(req.Description),
	}
}

type baseCurrencyRequest struct {
	BaseCurrency string `json:"base_currency"`
}

type budgetLimitRequest struct {
	BudgetLimit decimalField `json:"budget_limit"`
}

type convertRequest struct {
	Amount       decimalField `json:"amount"`
	FromCurrency string       `json:"from_currency"`
	ToCurrency   string       `json:"to_currency"`
	Date         string       `json:"date"`
}
