// Package sheets reads a rate history maintained in a Google Sheet.
//
// The sheet holds one rate per row under a header row naming the columns
// Date, From, To and Rate (in any order; extra columns are ignored).
package sheets

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"

	"ledger/internal/core"
	"ledger/internal/log"
)

// DefaultSheetName is used when Config.SheetName is empty.
const DefaultSheetName = "Rates"

type Config struct {
	SpreadsheetID string
	SheetName     string
}

// rangeReader is the part of the Sheets API the client needs.
type rangeReader interface {
	ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]any, error)
}

type apiReader struct {
	svc *gsheet.Service
}

func (a apiReader) ReadRange(ctx context.Context, spreadsheetID, rng string) ([][]any, error) {
	resp, err := a.svc.Spreadsheets.Values.Get(spreadsheetID, rng).
		ValueRenderOption("UNFORMATTED_VALUE").
		Context(ctx).Do()
	if err != nil {
		return nil, err
	}
	return resp.Values, nil
}

// Client implements rates.Source.
type Client struct {
	reader        rangeReader
	spreadsheetID string
	sheetName     string
	now           func() time.Time
}

// New creates a Sheets client authenticated with service account credentials
// from GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE or
// GOOGLE_APPLICATION_CREDENTIALS.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	svc, err := newSheetsService(ctx)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return newClient(apiReader{svc: svc}, cfg), nil
}

func newClient(r rangeReader, cfg Config) *Client {
	name := strings.TrimSpace(cfg.SheetName)
	if name == "" {
		name = DefaultSheetName
	}
	return &Client{
		reader:        r,
		spreadsheetID: cfg.SpreadsheetID,
		sheetName:     name,
		now:           time.Now,
	}
}

func newSheetsService(ctx context.Context) (*gsheet.Service, error) {
	inline := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_JSON"))
	file := strings.TrimSpace(os.Getenv("GOOGLE_SERVICE_ACCOUNT_FILE"))
	if inline == "" && file == "" {
		file = strings.TrimSpace(os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"))
	}

	var creds []byte
	switch {
	case inline != "":
		creds = []byte(inline)
	case file != "":
		b, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
		creds = b
	default:
		return nil, errors.New("missing service account credentials (set GOOGLE_SERVICE_ACCOUNT_JSON, GOOGLE_SERVICE_ACCOUNT_FILE, or GOOGLE_APPLICATION_CREDENTIALS)")
	}

	svc, err := gsheet.NewService(ctx,
		goption.WithCredentialsJSON(creds),
		goption.WithScopes(gsheet.SpreadsheetsReadonlyScope))
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}
	slog.InfoContext(ctx, "Google Sheets rate source ready", log.FieldComponent, log.ComponentRates)
	return svc, nil
}

func (c *Client) Name() string {
	return "sheets"
}

// Fetch returns every row quoting base against one of targets. With a
// non-zero on, rows dated after it are left out.
func (c *Client) Fetch(ctx context.Context, base core.Currency, targets []core.Currency, on core.Date) ([]core.ExchangeRate, error) {
	values, err := c.reader.ReadRange(ctx, c.spreadsheetID, c.sheetName+"!A:Z")
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", c.sheetName, err)
	}
	all, err := parseRateRows(values)
	if err != nil {
		return nil, err
	}

	want := make(map[core.Currency]bool, len(targets))
	for _, t := range targets {
		want[t] = true
	}
	fetchedAt := c.now().UTC()

	var out []core.ExchangeRate
	for _, r := range all {
		if r.Source != base || !want[r.Target] {
			continue
		}
		if !on.IsZero() && on.Before(r.AsOf) {
			continue
		}
		r.Provider = c.Name()
		r.FetchedAt = fetchedAt
		out = append(out, r)
	}
	return out, nil
}
