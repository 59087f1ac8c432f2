package core

import (
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

const (
	DateLayout   = "2006-01-02"
	PeriodLayout = "2006-01"

	MaxDescriptionLength  = 200
	MaxCategoryNameLength = 100

	DefaultCategoryColor = "#6B7280"
	UncategorizedName    = "Uncategorized"
	UncategorizedColor   = "#9CA3AF"
)

type (
	// Date is a calendar day in UTC with no time component.
	Date struct {
		time.Time
	}

	// Period is a calendar month.
	Period struct {
		Year  int
		Month time.Month
	}

	Transaction struct {
		ID          string
		OwnerID     string
		Amount      decimal.Decimal
		Currency    Currency
		CategoryID  string
		Date        Date
		Description string
		CreatedAt   time.Time
		UpdatedAt   time.Time
		// Seq orders transactions by creation; later writes get larger values.
		Seq int64
	}

	// TransactionInput carries the user-editable fields of a transaction.
	TransactionInput struct {
		Amount      decimal.Decimal
		Currency    Currency
		CategoryID  string
		Date        Date
		Description string
		// DateErr holds the parse failure of a submitted date. Validate reports
		// it after the other fields.
		DateErr error
	}

	TransactionFilter struct {
		Period     *Period
		CategoryID string
		Limit      int
	}

	Category struct {
		ID          string
		OwnerID     string // empty for global defaults
		Name        string
		Color       string
		Description string
		CreatedAt   time.Time
	}

	CategoryInput struct {
		Name        string
		Color       string
		Description string
	}

	ExchangeRate struct {
		Source    Currency
		Target    Currency
		AsOf      Date
		Rate      decimal.Decimal
		Provider  string
		FetchedAt time.Time
	}

	UserProfile struct {
		OwnerID      string
		BaseCurrency Currency
		// BudgetLimit is expressed in BaseCurrency; zero means no budget.
		BudgetLimit decimal.Decimal
		UpdatedAt   time.Time
	}
)

var (
	ErrInvalidDate   = errors.New("invalid date")
	ErrInvalidPeriod = errors.New("invalid period")

	colorPattern = regexp.MustCompile(`^#[0-9A-Fa-f]{6}$`)
)

// NewDate creates a new Date from year, month, day.
func NewDate(year int, month time.Month, day int) Date {
	return Date{Time: time.Date(year, month, day, 0, 0, 0, 0, time.UTC)}
}

// DateOf truncates t to its UTC calendar day.
func DateOf(t time.Time) Date {
	t = t.UTC()
	return NewDate(t.Year(), t.Month(), t.Day())
}

// ParseDate accepts YYYY-MM-DD and full RFC 3339 timestamps; the time
// component of the latter is dropped.
func ParseDate(s string) (Date, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse(DateLayout, s); err == nil {
		return DateOf(t), nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return NewDate(t.Year(), t.Month(), t.Day()), nil
	}
	return Date{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

func (d Date) Validate() error {
	if d.IsZero() {
		return fmt.Errorf("%w: date cannot be zero", ErrInvalidDate)
	}
	return nil
}

func (d Date) String() string {
	return d.Format(DateLayout)
}

// Before reports whether d is strictly before o.
func (d Date) Before(o Date) bool {
	return d.Time.Before(o.Time)
}

// Period returns the calendar month containing d.
func (d Date) Period() Period {
	return Period{Year: d.Year(), Month: d.Month()}
}

// ParsePeriod parses YYYY-MM.
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse(PeriodLayout, strings.TrimSpace(s))
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q (want YYYY-MM)", ErrInvalidPeriod, s)
	}
	return Period{Year: t.Year(), Month: t.Month()}, nil
}

// PeriodOf returns the calendar month containing t in UTC.
func PeriodOf(t time.Time) Period {
	t = t.UTC()
	return Period{Year: t.Year(), Month: t.Month()}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Start returns the first day of the month.
func (p Period) Start() Date {
	return NewDate(p.Year, p.Month, 1)
}

// End returns the last day of the month.
func (p Period) End() Date {
	return Date{Time: p.Start().AddDate(0, 1, -1)}
}

// Contains reports whether d falls inside the month, inclusive of all days.
func (p Period) Contains(d Date) bool {
	return d.Year() == p.Year && d.Month() == p.Month
}

// Validate checks the fields in the order amount, currency, category,
// description, date and returns the first violation.
func (in TransactionInput) Validate() error {
	if !in.Amount.IsPositive() {
		return NewValidationError("amount", "must be greater than zero")
	}
	if err := in.Currency.Validate(); err != nil {
		return &ValidationError{Field: "currency", Message: "not a supported currency", Err: err}
	}
	if strings.TrimSpace(in.CategoryID) == "" {
		return NewValidationError("category_id", "is required")
	}
	desc := strings.TrimSpace(in.Description)
	if desc == "" {
		return NewValidationError("description", "cannot be empty")
	}
	if len([]rune(desc)) > MaxDescriptionLength {
		return NewValidationError("description", fmt.Sprintf("too long (max %d characters)", MaxDescriptionLength))
	}
	if in.DateErr != nil {
		return &ValidationError{Field: "date", Message: "must be formatted as YYYY-MM-DD", Err: in.DateErr}
	}
	if err := in.Date.Validate(); err != nil {
		return &ValidationError{Field: "date", Message: "is required", Err: err}
	}
	return nil
}

// Normalize trims free-text fields.
func (in TransactionInput) Normalize() TransactionInput {
	in.Description = strings.TrimSpace(in.Description)
	in.CategoryID = strings.TrimSpace(in.CategoryID)
	return in
}

// IsGlobal reports whether c is a shared default category.
func (c Category) IsGlobal() bool {
	return c.OwnerID == ""
}

// VisibleTo reports whether owner may reference c.
func (c Category) VisibleTo(owner string) bool {
	return c.IsGlobal() || c.OwnerID == owner
}

func (in CategoryInput) Validate() error {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return NewValidationError("name", "cannot be empty")
	}
	if len([]rune(name)) > MaxCategoryNameLength {
		return NewValidationError("name", fmt.Sprintf("too long (max %d characters)", MaxCategoryNameLength))
	}
	if strings.EqualFold(name, UncategorizedName) {
		return NewValidationError("name", "is reserved")
	}
	if in.Color != "" && !colorPattern.MatchString(in.Color) {
		return NewValidationError("color", "must be a hex color like #3B82F6")
	}
	return nil
}

// Normalize trims fields and applies the default color.
func (in CategoryInput) Normalize() CategoryInput {
	in.Name = strings.TrimSpace(in.Name)
	in.Description = strings.TrimSpace(in.Description)
	in.Color = strings.TrimSpace(in.Color)
	if in.Color == "" {
		in.Color = DefaultCategoryColor
	}
	return in
}

func (r ExchangeRate) Validate() error {
	if err := r.Source.Validate(); err != nil {
		return err
	}
	if err := r.Target.Validate(); err != nil {
		return err
	}
	if r.Source == r.Target {
		return NewValidationError("target", "must differ from source")
	}
	if err := r.AsOf.Validate(); err != nil {
		return &ValidationError{Field: "as_of", Message: "is required", Err: err}
	}
	if !r.Rate.IsPositive() {
		return NewValidationError("rate", "must be greater than zero")
	}
	return nil
}

// HasBudget reports whether a positive budget limit is configured.
func (p UserProfile) HasBudget() bool {
	return p.BudgetLimit.IsPositive()
}
