// Package frankfurter fetches ECB reference rates from the Frankfurter API.
package frankfurter

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
)

const DefaultBaseURL = "https://api.frankfurter.app"

// Client implements rates.Source.
type Client struct {
	baseURL string
	http    *http.Client
	now     func() time.Time
}

type Option func(*Client)

// WithHTTPClient replaces the default client (10s timeout).
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.http = hc }
}

func New(baseURL string, opts ...Option) *Client {
	if strings.TrimSpace(baseURL) == "" {
		baseURL = DefaultBaseURL
	}
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 10 * time.Second},
		now:     time.Now,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func (c *Client) Name() string {
	return "frankfurter"
}

// response is the body of /latest and /{date}. Rates are decoded as
// json.Number so no precision is lost on the way to decimal.
type response struct {
	Base  string                 `json:"base"`
	Date  string                 `json:"date"`
	Rates map[string]json.Number `json:"rates"`
}

// Fetch returns base->target rates for the given targets. A zero on asks for
// the latest rates; otherwise the rates published on (or, on weekends and
// holidays, just before) that date. Currencies the API does not return are
// skipped.
func (c *Client) Fetch(ctx context.Context, base core.Currency, targets []core.Currency, on core.Date) ([]core.ExchangeRate, error) {
	if err := base.Validate(); err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	path := "/latest"
	if !on.IsZero() {
		path = "/" + on.String()
	}
	codes := make([]string, 0, len(targets))
	for _, t := range targets {
		if t != base {
			codes = append(codes, string(t))
		}
	}
	q := url.Values{}
	q.Set("from", string(base))
	q.Set("to", strings.Join(codes, ","))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+q.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch rates: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("fetch rates: status %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var body response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode rates: %w", err)
	}
	return c.toRates(base, body)
}

func (c *Client) toRates(base core.Currency, body response) ([]core.ExchangeRate, error) {
	if !strings.EqualFold(body.Base, string(base)) {
		return nil, fmt.Errorf("unexpected base %q, want %s", body.Base, base)
	}
	asOf, err := core.ParseDate(body.Date)
	if err != nil {
		return nil, fmt.Errorf("parse rate date: %w", err)
	}

	fetchedAt := c.now().UTC()
	var out []core.ExchangeRate
	for code, raw := range body.Rates {
		target, err := core.ParseCurrency(code)
		if err != nil {
			continue
		}
		rate, err := decimal.NewFromString(raw.String())
		if err != nil {
			return nil, fmt.Errorf("parse rate %s: %w", code, err)
		}
		if !rate.IsPositive() {
			continue
		}
		out = append(out, core.ExchangeRate{
			Source:    base,
			Target:    target,
			AsOf:      asOf,
			Rate:      rate,
			Provider:  c.Name(),
			FetchedAt: fetchedAt,
		})
	}
	return out, nil
}
