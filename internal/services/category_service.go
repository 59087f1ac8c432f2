package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
	"ledger/internal/storage"
)

// CategoryService manages owner categories next to the global defaults.
type CategoryService struct {
	store storage.CategoryStore
	now   func() time.Time
	newID func() string
}

func NewCategoryService(store storage.CategoryStore) *CategoryService {
	return &CategoryService{store: store, now: time.Now, newID: uuid.NewString}
}

func (s *CategoryService) List(ctx context.Context, ownerID string) ([]core.Category, error) {
	cats, err := s.store.ListCategories(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("list categories: %w", err)
	}
	return cats, nil
}

func (s *CategoryService) Get(ctx context.Context, ownerID, id string) (core.Category, error) {
	return s.store.GetCategory(ctx, ownerID, id)
}

// Create adds an owner category. A name already used by the owner or by a
// global default is reported as a validation error on name.
func (s *CategoryService) Create(ctx context.Context, ownerID string, in core.CategoryInput) (core.Category, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}
	c, err := s.store.CreateCategory(ctx, core.Category{
		ID:          s.newID(),
		OwnerID:     ownerID,
		Name:        in.Name,
		Color:       in.Color,
		Description: in.Description,
		CreatedAt:   s.now().UTC(),
	})
	if err != nil {
		return core.Category{}, duplicateName(err)
	}
	return c, nil
}

// Update edits an owned category; global defaults report core.ErrNotFound.
func (s *CategoryService) Update(ctx context.Context, ownerID, id string, in core.CategoryInput) (core.Category, error) {
	in = in.Normalize()
	if err := in.Validate(); err != nil {
		return core.Category{}, err
	}
	c, err := s.store.UpdateCategory(ctx, core.Category{
		ID:          id,
		OwnerID:     ownerID,
		Name:        in.Name,
		Color:       in.Color,
		Description: in.Description,
	})
	if err != nil {
		return core.Category{}, duplicateName(err)
	}
	return c, nil
}

// Delete removes an owned category. Transactions that referenced it are
// kept and summarised as Uncategorized.
func (s *CategoryService) Delete(ctx context.Context, ownerID, id string) error {
	return s.store.DeleteCategory(ctx, ownerID, id)
}

func duplicateName(err error) error {
	if errors.Is(err, core.ErrDuplicate) {
		return &core.ValidationError{Field: "name", Message: "already exists", Err: err}
	}
	return err
}
