// Package http provides HTTP server and handler implementations.
//
// This file implements the Builder Pattern for JSON responses and the
// response shapes of the ledger API. Every decimal is written as a JSON
// number with the precision of its currency.

package http

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/services"
)

// JSONResponseBuilder provides a fluent API for building JSON responses.
type JSONResponseBuilder struct {
	statusCode int
	body       any
	headers    map[string]string
}

// NewJSONResponse creates a new response builder with default 200 status.
func NewJSONResponse() *JSONResponseBuilder {
	return &JSONResponseBuilder{
		statusCode: http.StatusOK,
		headers:    make(map[string]string),
	}
}

func (b *JSONResponseBuilder) Status(code int) *JSONResponseBuilder {
	b.statusCode = code
	return b
}

func (b *JSONResponseBuilder) Header(name, value string) *JSONResponseBuilder {
	b.headers[name] = value
	return b
}

// Body sets the value encoded as the response body.
func (b *JSONResponseBuilder) Body(v any) *JSONResponseBuilder {
	b.body = v
	return b
}

// Write sends the built response to the http.ResponseWriter.
func (b *JSONResponseBuilder) Write(w http.ResponseWriter) {
	for name, value := range b.headers {
		w.Header().Set(name, value)
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(b.statusCode)
	if b.body != nil {
		_ = json.NewEncoder(w).Encode(b.body)
	}
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

// ErrorResponse creates a standard {"error": ...} response.
func ErrorResponse(statusCode int, message string) *JSONResponseBuilder {
	return NewJSONResponse().Status(statusCode).Body(errorBody{Error: message})
}

// MethodNotAllowedError creates a 405 Method Not Allowed error response.
func MethodNotAllowedError(allowedMethods string) *JSONResponseBuilder {
	return ErrorResponse(http.StatusMethodNotAllowed, "method not allowed").Header("Allow", allowedMethods)
}

// errorResponse maps a service error onto a status code and body. Owner
// mismatches are reported as not found.
func errorResponse(err error) *JSONResponseBuilder {
	if ve, ok := core.AsValidationError(err); ok {
		return NewJSONResponse().
			Status(http.StatusBadRequest).
			Body(errorBody{Error: ve.Error(), Field: ve.Field})
	}
	switch {
	case errors.Is(err, errMissingOwner):
		return ErrorResponse(http.StatusUnauthorized, err.Error())
	case errors.Is(err, core.ErrUnsupportedCurrency):
		return ErrorResponse(http.StatusBadRequest, err.Error())
	case errors.Is(err, core.ErrNotFound), errors.Is(err, core.ErrUnauthorized):
		return ErrorResponse(http.StatusNotFound, "not found")
	case errors.Is(err, core.ErrRateUnavailable):
		return ErrorResponse(http.StatusUnprocessableEntity, err.Error())
	default:
		return ErrorResponse(http.StatusInternalServerError, "internal server error")
	}
}

// writeError logs server-side failures and writes the mapped response.
func writeError(w http.ResponseWriter, r *http.Request, op string, err error) {
	resp := errorResponse(err)
	if resp.statusCode >= http.StatusInternalServerError {
		log.FromContext(r.Context()).ErrorContext(r.Context(), "Request failed",
			log.FieldOperation, op,
			log.FieldPath, r.URL.Path,
			log.FieldError, err)
	} else {
		log.FromContext(r.Context()).DebugContext(r.Context(), "Request rejected",
			log.FieldOperation, op,
			log.FieldStatusCode, resp.statusCode,
			log.FieldError, err)
	}
	resp.Write(w)
}

// money renders d with the minor units of c.
func money(d decimal.Decimal, c core.Currency) json.Number {
	return json.Number(c.Round(d).StringFixed(c.MinorUnits()))
}

func number(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}

func fixed(d decimal.Decimal, places int32) json.Number {
	return json.Number(d.StringFixed(places))
}

type transactionJSON struct {
	ID            string      `json:"id"`
	Amount        json.Number `json:"amount"`
	Currency      string      `json:"currency"`
	Description   string      `json:"description"`
	CategoryID    string      `json:"category_id"`
	CategoryName  string      `json:"category_name,omitempty"`
	CategoryColor string      `json:"category_color,omitempty"`
	Date          string      `json:"date"`
	BaseCurrency  string      `json:"base_currency,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

func newTransactionJSON(t core.Transaction) transactionJSON {
	return transactionJSON{
		ID:          t.ID,
		Amount:      money(t.Amount, t.Currency),
		Currency:    string(t.Currency),
		Description: t.Description,
		CategoryID:  t.CategoryID,
		Date:        t.Date.String(),
		CreatedAt:   t.CreatedAt,
		UpdatedAt:   t.UpdatedAt,
	}
}

// listedTransactionJSON always carries exchange_rate, null when unknown.
type listedTransactionJSON struct {
	transactionJSON
	ExchangeRate *json.Number `json:"exchange_rate"`
}

func newListedTransactionJSON(v services.TransactionView) listedTransactionJSON {
	out := listedTransactionJSON{transactionJSON: newTransactionJSON(v.Transaction)}
	out.CategoryName = v.CategoryName
	out.CategoryColor = v.CategoryColor
	out.BaseCurrency = string(v.BaseCurrency)
	if v.ExchangeRate != nil {
		n := number(*v.ExchangeRate)
		out.ExchangeRate = &n
	}
	return out
}

type categoryJSON struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Color       string `json:"color"`
	Description string `json:"description"`
	Global      bool   `json:"global"`
}

func newCategoryJSON(c core.Category) categoryJSON {
	return categoryJSON{
		ID:          c.ID,
		Name:        c.Name,
		Color:       c.Color,
		Description: c.Description,
		Global:      c.IsGlobal(),
	}
}

type userJSON struct {
	ID           string      `json:"id"`
	BaseCurrency string      `json:"base_currency"`
	BudgetLimit  json.Number `json:"budget_limit"`
}

func newUserJSON(p core.UserProfile) userJSON {
	return userJSON{
		ID:           p.OwnerID,
		BaseCurrency: string(p.BaseCurrency),
		BudgetLimit:  money(p.BudgetLimit, p.BaseCurrency),
	}
}

type currencyJSON struct {
	Name       string `json:"name"`
	Symbol     string `json:"symbol"`
	MinorUnits int32  `json:"minor_units"`
}

type summaryEntryJSON struct {
	CategoryID *string     `json:"category_id"`
	Name       string      `json:"name"`
	Color      string      `json:"color"`
	Total      json.Number `json:"total"`
	Percentage json.Number `json:"percentage"`
	Count      int         `json:"count"`
}

type summaryJSON struct {
	Month         string             `json:"month"`
	BaseCurrency  string             `json:"base_currency"`
	TotalExpenses json.Number        `json:"total_expenses"`
	Summary       []summaryEntryJSON `json:"summary"`
}

func newSummaryJSON(s core.Summary) summaryJSON {
	out := summaryJSON{
		Month:         s.Period.String(),
		BaseCurrency:  string(s.BaseCurrency),
		TotalExpenses: money(s.Total, s.BaseCurrency),
		Summary:       make([]summaryEntryJSON, 0, len(s.Entries)),
	}
	for _, e := range s.Entries {
		entry := summaryEntryJSON{
			Name:       e.Name,
			Color:      e.Color,
			Total:      money(e.Total, s.BaseCurrency),
			Percentage: fixed(e.Percentage, 2),
			Count:      e.Count,
		}
		if e.CategoryID != "" {
			id := e.CategoryID
			entry.CategoryID = &id
		}
		out.Summary = append(out.Summary, entry)
	}
	return out
}

type notificationJSON struct {
	Type       string      `json:"type"`
	Message    string      `json:"message"`
	Percentage json.Number `json:"percentage"`
}

type budgetStatusJSON struct {
	Month           string             `json:"month"`
	BaseCurrency    string             `json:"base_currency"`
	BudgetLimit     json.Number        `json:"budget_limit"`
	CurrentSpending json.Number        `json:"current_spending"`
	Percentage      *json.Number       `json:"percentage,omitempty"`
	Notifications   []notificationJSON `json:"notifications"`
}

func newBudgetStatusJSON(s core.BudgetStatus) budgetStatusJSON {
	out := budgetStatusJSON{
		Month:           s.Period.String(),
		BaseCurrency:    string(s.BaseCurrency),
		BudgetLimit:     money(s.BudgetLimit, s.BaseCurrency),
		CurrentSpending: money(s.CurrentSpend, s.BaseCurrency),
		Notifications:   make([]notificationJSON, 0, len(s.Notifications)),
	}
	if s.Percentage != nil {
		n := fixed(*s.Percentage, 2)
		out.Percentage = &n
	}
	for _, n := range s.Notifications {
		out.Notifications = append(out.Notifications, notificationJSON{
			Type:       string(n.Type),
			Message:    n.Message,
			Percentage: fixed(n.Percentage, 2),
		})
	}
	return out
}

// optionalBudgetStatus renders nil as JSON null.
func optionalBudgetStatus(s *core.BudgetStatus) *budgetStatusJSON {
	if s == nil {
		return nil
	}
	out := newBudgetStatusJSON(*s)
	return &out
}

type alertJSON struct {
	ID         int64       `json:"id"`
	Month      string      `json:"month"`
	Type       string      `json:"type"`
	Message    string      `json:"message"`
	Percentage json.Number `json:"percentage"`
	CreatedAt  time.Time   `json:"created_at"`
}

func newAlertJSON(a core.BudgetAlert) alertJSON {
	return alertJSON{
		ID:         a.ID,
		Month:      a.Period.String(),
		Type:       string(a.Tier),
		Message:    a.Message,
		Percentage: fixed(a.Percentage, 2),
		CreatedAt:  a.CreatedAt,
	}
}

type messageJSON struct {
	Message string `json:"message"`
}

// logOp attaches the owner to a handler's log lines.
func logOp(r *http.Request, component string) *slog.Logger {
	return log.FromContext(r.Context()).With(
		log.FieldComponent, component,
		log.FieldOwnerID, ownerFromContext(r.Context()))
}
