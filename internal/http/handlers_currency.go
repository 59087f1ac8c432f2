package http

import (
	"encoding/json"
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
)

type exchangeRateJSON struct {
	FromCurrency string      `json:"from_currency"`
	ToCurrency   string      `json:"to_currency"`
	ExchangeRate json.Number `json:"exchange_rate"`
	Date         string      `json:"date"`
	Provider     string      `json:"provider,omitempty"`
	Inverse      bool        `json:"inverse"`
}

type conversionJSON struct {
	OriginalAmount    json.Number `json:"original_amount"`
	OriginalCurrency  string      `json:"original_currency"`
	ConvertedAmount   json.Number `json:"converted_amount"`
	ConvertedCurrency string      `json:"converted_currency"`
	ExchangeRate      json.Number `json:"exchange_rate"`
	Date              string      `json:"date"`
}

func (s *Server) handleSupportedCurrencies(w http.ResponseWriter, r *http.Request) {
	out := make(map[string]currencyJSON)
	for _, info := range core.SupportedCurrencies() {
		out[string(info.Code)] = currencyJSON{
			Name:       info.Name,
			Symbol:     info.Symbol,
			MinorUnits: info.MinorUnits,
		}
	}
	NewJSONResponse().Body(map[string]any{"currencies": out}).Write(w)
}

// handleExchangeRate answers from, to and date query parameters; they default
// to USD, IDR and today.
func (s *Server) handleExchangeRate(w http.ResponseWriter, r *http.Request) {
	from, err := parseCurrencyParam(r, "from", core.USD)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	to, err := parseCurrencyParam(r, "to", core.IDR)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	asOf, err := s.dateParam(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}

	q, err := s.ledger.Rates.Quote(r.Context(), from, to, asOf)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(exchangeRateJSON{
		FromCurrency: string(from),
		ToCurrency:   string(to),
		ExchangeRate: number(q.Rate),
		Date:         q.AsOf.String(),
		Provider:     q.Provider,
		Inverse:      q.Inverse,
	}).Write(w)
}

func (s *Server) handleConvert(w http.ResponseWriter, r *http.Request) {
	var req convertRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	amount, err := req.Amount.amount()
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	from, err := parseCurrencyField("from_currency", req.FromCurrency)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	to, err := parseCurrencyField("to_currency", req.ToCurrency)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	asOf, err := s.dateParam(strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}

	conv, err := s.ledger.Converter.Conversion(r.Context(), amount, from, to, asOf)
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(conversionJSON{
		OriginalAmount:    number(conv.Amount),
		OriginalCurrency:  string(conv.From),
		ConvertedAmount:   money(conv.Converted, conv.To),
		ConvertedCurrency: string(conv.To),
		ExchangeRate:      number(conv.Rate),
		Date:              conv.RateAsOf.String(),
	}).Write(w)
}

// dateParam parses an optional YYYY-MM-DD value, defaulting to today.
func (s *Server) dateParam(v string) (core.Date, error) {
	if v == "" {
		return core.DateOf(s.now()), nil
	}
	d, err := core.ParseDate(v)
	if err != nil {
		return core.Date{}, &core.ValidationError{Field: "date", Message: "must be formatted as YYYY-MM-DD", Err: err}
	}
	return d, nil
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	p, err := s.ledger.Profiles.Get(ctx, ownerFromContext(ctx))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"user": newUserJSON(p)}).Write(w)
}

func (s *Server) handleUpdateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := s.setBaseCurrency(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(map[string]any{"user": newUserJSON(p)}).Write(w)
}

func (s *Server) handleSetBaseCurrency(w http.ResponseWriter, r *http.Request) {
	p, ok := s.setBaseCurrency(w, r)
	if !ok {
		return
	}
	NewJSONResponse().Body(map[string]any{
		"message":       "base currency updated",
		"base_currency": string(p.BaseCurrency),
	}).Write(w)
}

// setBaseCurrency writes the error response itself when it fails.
func (s *Server) setBaseCurrency(w http.ResponseWriter, r *http.Request) (core.UserProfile, bool) {
	ctx := r.Context()
	var req baseCurrencyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return core.UserProfile{}, false
	}
	p, err := s.ledger.Profiles.SetBaseCurrency(ctx, ownerFromContext(ctx), core.Currency(strings.ToUpper(strings.TrimSpace(req.BaseCurrency))))
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return core.UserProfile{}, false
	}

	logOp(r, log.ComponentApp).InfoContext(ctx, "Base currency updated",
		log.FieldBaseCurrency, string(p.BaseCurrency))

	return p, true
}
