package services

import (
	"context"
	"fmt"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// ProfileService creates profiles lazily with the configured base currency.
type ProfileService struct {
	store       storage.ProfileStore
	defaultBase core.Currency
}

func NewProfileService(store storage.ProfileStore, defaultBase core.Currency) *ProfileService {
	if defaultBase == "" {
		defaultBase = core.USD
	}
	return &ProfileService{store: store, defaultBase: defaultBase}
}

// Get returns the owner's profile, creating it on first access.
func (s *ProfileService) Get(ctx context.Context, ownerID string) (core.UserProfile, error) {
	p, err := s.store.EnsureProfile(ctx, ownerID, s.defaultBase)
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("load profile: %w", err)
	}
	return p, nil
}

// SetBaseCurrency changes the currency summaries and budgets are expressed in.
// Stored transactions keep their original currency.
func (s *ProfileService) SetBaseCurrency(ctx context.Context, ownerID string, base core.Currency) (core.UserProfile, error) {
	if err := base.Validate(); err != nil {
		return core.UserProfile{}, &core.ValidationError{Field: "base_currency", Message: "not a supported currency", Err: err}
	}
	p, err := s.store.UpdateBaseCurrency(ctx, ownerID, base)
	if err != nil {
		return core.UserProfile{}, fmt.Errorf("update base currency: %w", err)
	}
	return p, nil
}
