package rates

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"ledger/internal/core"
	"ledger/internal/log"
)

// Source fetches rates from an external feed. A zero on date asks for the
// latest published rates.
type Source interface {
	Name() string
	Fetch(ctx context.Context, base core.Currency, targets []core.Currency, on core.Date) ([]core.ExchangeRate, error)
}

// Appender stores fetched rates; *Provider implements it.
type Appender interface {
	Append(ctx context.Context, rates ...core.ExchangeRate) (int, error)
}

// RefreshResult summarises one refresh run.
type RefreshResult struct {
	Fetched  int
	Inserted int
	Failed   []core.Currency
}

// Refresher pulls rates for every base currency from a Source and appends
// them to the rate history. It never overwrites stored rates.
type Refresher struct {
	source      Source
	store       Appender
	bases       []core.Currency
	concurrency int
	logger      *slog.Logger
}

// NewRefresher refreshes all supported currencies unless bases is given.
func NewRefresher(source Source, store Appender, logger *slog.Logger, bases ...core.Currency) *Refresher {
	if len(bases) == 0 {
		bases = core.SupportedCodes()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Refresher{
		source:      source,
		store:       store,
		bases:       bases,
		concurrency: 4,
		logger:      logger.With(log.FieldComponent, log.ComponentRates, log.FieldProvider, source.Name()),
	}
}

// Refresh fetches the latest rates.
func (r *Refresher) Refresh(ctx context.Context) (RefreshResult, error) {
	return r.RefreshOn(ctx, core.Date{})
}

// RefreshOn fetches the rates published for on. A failing base currency does
// not stop the others; all failures are joined into the returned error.
func (r *Refresher) RefreshOn(ctx context.Context, on core.Date) (RefreshResult, error) {
	start := time.Now()

	var (
		mu     sync.Mutex
		result RefreshResult
		errs   []error
	)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)

	for _, base := range r.bases {
		g.Go(func() error {
			fetched, err := r.source.Fetch(gctx, base, targetsFor(base), on)
			if err == nil {
				var n int
				n, err = r.store.Append(gctx, fetched...)
				mu.Lock()
				result.Fetched += len(fetched)
				result.Inserted += n
				mu.Unlock()
			}
			if err != nil {
				mu.Lock()
				result.Failed = append(result.Failed, base)
				errs = append(errs, fmt.Errorf("refresh %s: %w", base, err))
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	r.logger.InfoContext(ctx, "Rate refresh completed",
		"fetched", result.Fetched,
		"inserted", result.Inserted,
		"failed", len(result.Failed),
		"duration_ms", time.Since(start).Milliseconds())

	return result, errors.Join(errs...)
}

func targetsFor(base core.Currency) []core.Currency {
	all := core.SupportedCodes()
	out := make([]core.Currency, 0, len(all)-1)
	for _, c := range all {
		if c != base {
			out = append(out, c)
		}
	}
	return out
}
