// Package rates resolves exchange rates from the append-only rate history
// and converts amounts between supported currencies.
package rates

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"

	"ledger/internal/cache"
	"ledger/internal/core"
	"ledger/internal/storage"
)

// InverseScale is the number of decimal places kept when a rate is derived
// from the inverse pair.
const InverseScale = 12

var one = decimal.NewFromInt(1)

// Quote is a resolved rate together with where it came from.
type Quote struct {
	Source core.Currency
	Target core.Currency
	Rate   decimal.Decimal
	// AsOf is the date of the stored rate that answered the lookup, which
	// can be earlier than the requested date.
	AsOf     core.Date
	Provider string
	// Inverse is set when Rate was computed as 1 / (Target->Source).
	Inverse bool
}

// Provider answers "rate from source to target as of a date" using the most
// recent stored rate on or before that date.
type Provider struct {
	store storage.RateStore
	cache *cache.LRUCache[Quote]
	group singleflight.Group
}

// NewProvider wraps store. cacheSize bounds the number of exact-date quotes
// kept in memory; ttl bounds their age.
func NewProvider(store storage.RateStore, cacheSize int, ttl time.Duration) *Provider {
	return &Provider{
		store: store,
		cache: cache.NewLRUCache[Quote](cacheSize, ttl),
	}
}

// Cache exposes the quote cache so it can be registered for cleanup and metrics.
func (p *Provider) Cache() *cache.LRUCache[Quote] {
	return p.cache
}

// Rate returns the multiplier that converts an amount in source to target.
func (p *Provider) Rate(ctx context.Context, source, target core.Currency, asOf core.Date) (decimal.Decimal, error) {
	q, err := p.Quote(ctx, source, target, asOf)
	if err != nil {
		return decimal.Zero, err
	}
	return q.Rate, nil
}

// Quote resolves the rate for (source, target) as of asOf.
//
// The direct pair and the inverse pair are both considered; the later-dated
// one wins and the direct pair wins ties. When neither has a rate on or
// before asOf the result is core.ErrRateUnavailable.
func (p *Provider) Quote(ctx context.Context, source, target core.Currency, asOf core.Date) (Quote, error) {
	if err := source.Validate(); err != nil {
		return Quote{}, err
	}
	if err := target.Validate(); err != nil {
		return Quote{}, err
	}
	if source == target {
		return Quote{Source: source, Target: target, Rate: one, AsOf: asOf, Provider: "identity"}, nil
	}

	key := cacheKey(source, target, asOf)
	if q, ok := p.cache.Get(key); ok {
		return q, nil
	}

	v, err, _ := p.group.Do(key, func() (any, error) {
		return p.lookup(ctx, source, target, asOf)
	})
	if err != nil {
		return Quote{}, err
	}
	q := v.(Quote)

	// Only an exact-date direct hit is stable: an append for an earlier
	// missing date, or a direct rate on the same date as an inverse one,
	// would change any other answer.
	if !q.Inverse && q.AsOf.Equal(asOf.Time) {
		p.cache.Set(key, q)
	}
	return q, nil
}

func (p *Provider) lookup(ctx context.Context, source, target core.Currency, asOf core.Date) (Quote, error) {
	direct, derr := p.store.LatestRate(ctx, source, target, asOf)
	if derr != nil && !errors.Is(derr, core.ErrNotFound) {
		return Quote{}, fmt.Errorf("lookup rate %s/%s: %w", source, target, derr)
	}
	inverse, ierr := p.store.LatestRate(ctx, target, source, asOf)
	if ierr != nil && !errors.Is(ierr, core.ErrNotFound) {
		return Quote{}, fmt.Errorf("lookup rate %s/%s: %w", target, source, ierr)
	}

	haveDirect, haveInverse := derr == nil, ierr == nil
	switch {
	case !haveDirect && !haveInverse:
		return Quote{}, fmt.Errorf("%w: %s/%s on or before %s", core.ErrRateUnavailable, source, target, asOf)
	case haveDirect && (!haveInverse || !direct.AsOf.Before(inverse.AsOf)):
		return Quote{
			Source:   source,
			Target:   target,
			Rate:     direct.Rate,
			AsOf:     direct.AsOf,
			Provider: direct.Provider,
		}, nil
	default:
		return Quote{
			Source:   source,
			Target:   target,
			Rate:     one.DivRound(inverse.Rate, InverseScale),
			AsOf:     inverse.AsOf,
			Provider: inverse.Provider,
			Inverse:  true,
		}, nil
	}
}

// Append stores rates; dates already present for a pair are left untouched.
func (p *Provider) Append(ctx context.Context, rates ...core.ExchangeRate) (int, error) {
	if len(rates) == 0 {
		return 0, nil
	}
	n, err := p.store.AppendRates(ctx, rates)
	if err != nil {
		return 0, fmt.Errorf("append rates: %w", err)
	}
	return n, nil
}

// History lists stored rates for a pair, newest first.
func (p *Provider) History(ctx context.Context, source, target core.Currency, limit int) ([]core.ExchangeRate, error) {
	if err := source.Validate(); err != nil {
		return nil, err
	}
	if err := target.Validate(); err != nil {
		return nil, err
	}
	return p.store.ListRates(ctx, source, target, limit)
}

func cacheKey(source, target core.Currency, asOf core.Date) string {
	return string(source) + "/" + string(target) + "@" + asOf.String()
}
