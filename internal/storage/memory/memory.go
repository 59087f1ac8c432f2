package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/storage"
)

type rateKey struct {
	source, target core.Currency
}

type alertKey struct {
	owner  string
	period core.Period
	tier   core.Tier
}

// Store is an in-process implementation of storage.Store. Every method holds
// the lock for its whole duration, so each call is atomic.
type Store struct {
	mu sync.RWMutex

	seq          int64
	transactions map[string]core.Transaction
	categories   map[string]core.Category
	profiles     map[string]core.UserProfile
	rates        map[rateKey][]core.ExchangeRate // ascending by AsOf
	alerts       []core.BudgetAlert
	alertKeys    map[alertKey]struct{}

	now func() time.Time
}

var _ storage.Store = (*Store)(nil)

// New returns an empty store holding the given global categories.
func New(categories []core.Category) *Store {
	s := &Store{
		transactions: make(map[string]core.Transaction),
		categories:   make(map[string]core.Category),
		profiles:     make(map[string]core.UserProfile),
		rates:        make(map[rateKey][]core.ExchangeRate),
		alertKeys:    make(map[alertKey]struct{}),
		now:          time.Now,
	}
	for _, c := range categories {
		s.categories[c.ID] = c
	}
	return s
}

func (s *Store) Ping(context.Context) error {
	return nil
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) CreateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.transactions[t.ID]; ok {
		return core.Transaction{}, fmt.Errorf("create transaction %s: %w", t.ID, core.ErrDuplicate)
	}
	s.seq++
	t.Seq = s.seq
	s.transactions[t.ID] = t
	return t, nil
}

func (s *Store) GetTransaction(_ context.Context, ownerID, id string) (core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	return t, nil
}

func (s *Store) UpdateTransaction(_ context.Context, t core.Transaction) (core.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.transactions[t.ID]
	if !ok || cur.OwnerID != t.OwnerID {
		return core.Transaction{}, fmt.Errorf("transaction %s: %w", t.ID, core.ErrNotFound)
	}
	cur.Amount = t.Amount
	cur.Currency = t.Currency
	cur.CategoryID = t.CategoryID
	cur.Date = t.Date
	cur.Description = t.Description
	cur.UpdatedAt = t.UpdatedAt
	s.transactions[t.ID] = cur
	return cur, nil
}

func (s *Store) DeleteTransaction(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.transactions[id]
	if !ok || t.OwnerID != ownerID {
		return fmt.Errorf("transaction %s: %w", id, core.ErrNotFound)
	}
	delete(s.transactions, id)
	return nil
}

func (s *Store) ListTransactions(_ context.Context, ownerID string, filter core.TransactionFilter) ([]core.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listTransactions(ownerID, filter), nil
}

func (s *Store) listTransactions(ownerID string, filter core.TransactionFilter) []core.Transaction {
	var out []core.Transaction
	for _, t := range s.transactions {
		if t.OwnerID != ownerID {
			continue
		}
		if filter.Period != nil && !filter.Period.Contains(t.Date) {
			continue
		}
		if filter.CategoryID != "" && t.CategoryID != filter.CategoryID {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date.Time) {
			return out[j].Date.Before(out[i].Date)
		}
		return out[i].Seq > out[j].Seq
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out
}

func (s *Store) ListCategories(_ context.Context, ownerID string) ([]core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.visibleCategories(ownerID), nil
}

func (s *Store) visibleCategories(ownerID string) []core.Category {
	var out []core.Category
	for _, c := range s.categories {
		if c.VisibleTo(ownerID) {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out
}

func (s *Store) GetCategory(_ context.Context, ownerID, id string) (core.Category, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.categories[id]
	if !ok || !c.VisibleTo(ownerID) {
		return core.Category{}, fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	return c, nil
}

func (s *Store) CreateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.categories[c.ID]; ok {
		return core.Category{}, fmt.Errorf("category %s: %w", c.ID, core.ErrDuplicate)
	}
	if s.nameTaken(c.OwnerID, c.Name, "") {
		return core.Category{}, fmt.Errorf("category %q: %w", c.Name, core.ErrDuplicate)
	}
	s.categories[c.ID] = c
	return c, nil
}

func (s *Store) UpdateCategory(_ context.Context, c core.Category) (core.Category, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.categories[c.ID]
	if !ok || cur.IsGlobal() || cur.OwnerID != c.OwnerID {
		return core.Category{}, fmt.Errorf("category %s: %w", c.ID, core.ErrNotFound)
	}
	if s.nameTaken(c.OwnerID, c.Name, c.ID) {
		return core.Category{}, fmt.Errorf("category %q: %w", c.Name, core.ErrDuplicate)
	}
	cur.Name = c.Name
	cur.Color = c.Color
	cur.Description = c.Description
	s.categories[c.ID] = cur
	return cur, nil
}

func (s *Store) DeleteCategory(_ context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.categories[id]
	if !ok || c.IsGlobal() || c.OwnerID != ownerID {
		return fmt.Errorf("category %s: %w", id, core.ErrNotFound)
	}
	delete(s.categories, id)
	return nil
}

func (s *Store) nameTaken(ownerID, name, exceptID string) bool {
	for _, c := range s.categories {
		if c.ID != exceptID && c.VisibleTo(ownerID) && strings.EqualFold(c.Name, name) {
			return true
		}
	}
	return false
}

func (s *Store) EnsureProfile(_ context.Context, ownerID string, base core.Currency) (core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if p, ok := s.profiles[ownerID]; ok {
		return p, nil
	}
	p := core.UserProfile{OwnerID: ownerID, BaseCurrency: base, UpdatedAt: s.now().UTC()}
	s.profiles[ownerID] = p
	return p, nil
}

func (s *Store) UpdateBaseCurrency(_ context.Context, ownerID string, base core.Currency) (core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p := s.profiles[ownerID]
	p.OwnerID = ownerID
	p.BaseCurrency = base
	p.UpdatedAt = s.now().UTC()
	s.profiles[ownerID] = p
	return p, nil
}

func (s *Store) SetBudgetLimit(_ context.Context, ownerID string, limit decimal.Decimal) (core.UserProfile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[ownerID]
	if !ok {
		return core.UserProfile{}, fmt.Errorf("profile %s: %w", ownerID, core.ErrNotFound)
	}
	p.BudgetLimit = limit
	p.UpdatedAt = s.now().UTC()
	s.profiles[ownerID] = p
	return p, nil
}

func (s *Store) AppendRates(_ context.Context, rates []core.ExchangeRate) (int, error) {
	for _, r := range rates {
		if err := r.Validate(); err != nil {
			return 0, fmt.Errorf("rate %s/%s %s: %w", r.Source, r.Target, r.AsOf, err)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	inserted := 0
	for _, r := range rates {
		key := rateKey{r.Source, r.Target}
		hist := s.rates[key]
		i := sort.Search(len(hist), func(i int) bool { return !hist[i].AsOf.Before(r.AsOf) })
		if i < len(hist) && hist[i].AsOf.Equal(r.AsOf.Time) {
			continue
		}
		hist = append(hist, core.ExchangeRate{})
		copy(hist[i+1:], hist[i:])
		hist[i] = r
		s.rates[key] = hist
		inserted++
	}
	return inserted, nil
}

func (s *Store) LatestRate(_ context.Context, source, target core.Currency, asOf core.Date) (core.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.rates[rateKey{source, target}]
	// First index dated after asOf; the one before it is the answer.
	i := sort.Search(len(hist), func(i int) bool { return asOf.Before(hist[i].AsOf) })
	if i == 0 {
		return core.ExchangeRate{}, fmt.Errorf("rate %s/%s on %s: %w", source, target, asOf, core.ErrNotFound)
	}
	return hist[i-1], nil
}

func (s *Store) ListRates(_ context.Context, source, target core.Currency, limit int) ([]core.ExchangeRate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	hist := s.rates[rateKey{source, target}]
	out := make([]core.ExchangeRate, 0, len(hist))
	for i := len(hist) - 1; i >= 0; i-- {
		out = append(out, hist[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) RecordAlert(_ context.Context, a core.BudgetAlert) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := alertKey{a.OwnerID, a.Period, a.Tier}
	if _, ok := s.alertKeys[key]; ok {
		return false, nil
	}
	s.alertKeys[key] = struct{}{}
	a.ID = int64(len(s.alerts) + 1)
	s.alerts = append(s.alerts, a)
	return true, nil
}

func (s *Store) ListAlerts(_ context.Context, ownerID string, limit int) ([]core.BudgetAlert, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []core.BudgetAlert
	for i := len(s.alerts) - 1; i >= 0; i-- {
		if s.alerts[i].OwnerID != ownerID {
			continue
		}
		out = append(out, s.alerts[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func (s *Store) Snapshot(_ context.Context, ownerID string, filter core.TransactionFilter) (storage.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[ownerID]
	if !ok {
		return storage.Snapshot{}, fmt.Errorf("profile %s: %w", ownerID, core.ErrNotFound)
	}
	snap := storage.Snapshot{
		Profile:      p,
		Transactions: s.listTransactions(ownerID, filter),
		Categories:   make(map[string]core.Category),
	}
	for _, c := range s.visibleCategories(ownerID) {
		snap.Categories[c.ID] = c
	}
	return snap, nil
}
