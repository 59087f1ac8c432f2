package storage

import (
	"time"

	"ledger/internal/core"
)

var defaultsCreatedAt = time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)

// DefaultCategories returns the global categories every owner can use.
// The SQLite backend seeds the same rows in migration 000002.
func DefaultCategories() []core.Category {
	seed := []struct{ id, name, color, desc string }{
		{"default-food", "Food & Dining", "#EF4444", "Groceries, restaurants and coffee"},
		{"default-transport", "Transportation", "#F59E0B", "Fuel, fares and parking"},
		{"default-shopping", "Shopping", "#8B5CF6", "Clothes and household goods"},
		{"default-entertainment", "Entertainment", "#EC4899", "Movies, games and subscriptions"},
		{"default-bills", "Bills & Utilities", "#3B82F6", "Electricity, water and internet"},
		{"default-health", "Healthcare", "#10B981", "Doctors and medicine"},
		{"default-education", "Education", "#6366F1", "Courses and books"},
		{"default-travel", "Travel", "#14B8A6", "Flights and accommodation"},
		{"default-other", "Others", "#6B7280", ""},
	}
	out := make([]core.Category, len(seed))
	for i, s := range seed {
		out[i] = core.Category{
			ID:          s.id,
			Name:        s.name,
			Color:       s.color,
			Description: s.desc,
			CreatedAt:   defaultsCreatedAt,
		}
	}
	return out
}
