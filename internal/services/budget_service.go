package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"ledger/internal/core"
	"ledger/internal/log"
	"ledger/internal/storage"
)

// AlertHistoryLimit is how many recorded alerts History returns.
const AlertHistoryLimit = 10

var (
	dangerThreshold  = decimal.NewFromInt(100)
	warningThreshold = decimal.NewFromInt(90)
	infoThreshold    = decimal.NewFromInt(80)
)

// AlertPublisher announces tier crossings; *amqp.Client implements it.
type AlertPublisher interface {
	PublishBudgetAlert(ctx context.Context, a core.BudgetAlert) error
}

type budgetStore interface {
	storage.ProfileStore
	storage.AlertStore
}

// BudgetService compares monthly spend with the owner's budget limit.
type BudgetService struct {
	store     budgetStore
	profiles  *ProfileService
	summaries *SummaryService
	publisher AlertPublisher
	now       func() time.Time
}

// NewBudgetService wires the evaluator. publisher may be nil, in which case
// crossings are only recorded.
func NewBudgetService(store budgetStore, profiles *ProfileService, summaries *SummaryService, publisher AlertPublisher) *BudgetService {
	return &BudgetService{
		store:     store,
		profiles:  profiles,
		summaries: summaries,
		publisher: publisher,
		now:       time.Now,
	}
}

// CurrentPeriod is the calendar month containing now, in UTC.
func (s *BudgetService) CurrentPeriod() core.Period {
	return core.PeriodOf(s.now())
}

// Evaluate returns the budget status of period. Without a budget limit the
// status carries neither a percentage nor notifications. The limit and the
// spend come from one snapshot.
func (s *BudgetService) Evaluate(ctx context.Context, ownerID string, period core.Period) (core.BudgetStatus, error) {
	summary, err := s.summaries.Summarize(ctx, ownerID, period)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	return evaluate(period, summary.BaseCurrency, summary.BudgetLimit, summary.Total), nil
}

// evaluate classifies spend against limit. Only the highest matching tier is
// reported. The percentage is truncated to two places, which never moves it
// across a whole-number threshold.
func evaluate(period core.Period, base core.Currency, limit, spend decimal.Decimal) core.BudgetStatus {
	status := core.BudgetStatus{
		Period:       period,
		BaseCurrency: base,
		BudgetLimit:  limit,
		CurrentSpend: spend,
	}
	if !limit.IsPositive() {
		return status
	}

	pct := spend.Mul(hundred).Div(limit).Truncate(2)
	status.Percentage = &pct

	var tier core.Tier
	var headline string
	switch {
	case pct.GreaterThanOrEqual(dangerThreshold):
		tier, headline = core.TierDanger, "Budget exceeded! "
	case pct.GreaterThanOrEqual(warningThreshold):
		tier, headline = core.TierWarning, "Budget almost used up! "
	case pct.GreaterThanOrEqual(infoThreshold):
		tier, headline = core.TierInfo, ""
	default:
		return status
	}

	status.Notifications = []core.Notification{{
		Type: tier,
		Message: fmt.Sprintf("%sYou have spent %s%% of your monthly budget (%s / %s)",
			headline, pct.StringFixed(1), base.Format(spend), base.Format(limit)),
		Percentage: pct,
	}}
	return status
}

// SetBudgetLimit stores a new limit for the owner and returns the status of
// the current month under it. Zero clears the budget.
func (s *BudgetService) SetBudgetLimit(ctx context.Context, ownerID string, limit decimal.Decimal) (core.UserProfile, core.BudgetStatus, error) {
	if limit.IsNegative() {
		return core.UserProfile{}, core.BudgetStatus{}, core.NewValidationError("budget_limit", "cannot be negative")
	}
	profile, err := s.profiles.Get(ctx, ownerID)
	if err != nil {
		return core.UserProfile{}, core.BudgetStatus{}, err
	}
	profile, err = s.store.SetBudgetLimit(ctx, ownerID, profile.BaseCurrency.Round(limit))
	if err != nil {
		return core.UserProfile{}, core.BudgetStatus{}, fmt.Errorf("set budget limit: %w", err)
	}

	status, err := s.Evaluate(ctx, ownerID, s.CurrentPeriod())
	if err != nil {
		return profile, core.BudgetStatus{}, err
	}
	return profile, status, nil
}

// CheckAfterWrite evaluates period after a write and keeps the notification
// only when its tier is crossed for the first time in that period. The
// first writer to record a tier wins; the crossing is then published.
func (s *BudgetService) CheckAfterWrite(ctx context.Context, ownerID string, period core.Period) (core.BudgetStatus, error) {
	status, err := s.Evaluate(ctx, ownerID, period)
	if err != nil {
		return core.BudgetStatus{}, err
	}
	if len(status.Notifications) == 0 {
		return status, nil
	}

	n := status.Notifications[0]
	alert := core.BudgetAlert{
		OwnerID:      ownerID,
		Period:       period,
		Tier:         n.Type,
		Message:      n.Message,
		Percentage:   n.Percentage,
		Spend:        status.CurrentSpend,
		BudgetLimit:  status.BudgetLimit,
		BaseCurrency: status.BaseCurrency,
		CreatedAt:    s.now().UTC(),
	}
	created, err := s.store.RecordAlert(ctx, alert)
	if err != nil {
		return core.BudgetStatus{}, fmt.Errorf("record budget alert: %w", err)
	}
	if !created {
		status.Notifications = nil
		return status, nil
	}

	slog.InfoContext(ctx, "Budget tier crossed",
		log.FieldComponent, log.ComponentBudget,
		log.FieldOwnerID, ownerID,
		log.FieldPeriod, period.String(),
		log.FieldTier, string(n.Type),
		log.FieldPercentage, n.Percentage.String())

	s.publish(ctx, alert)
	return status, nil
}

func (s *BudgetService) publish(ctx context.Context, alert core.BudgetAlert) {
	if s.publisher == nil {
		slog.WarnContext(ctx, "AMQP client not available, skipping budget alert",
			log.FieldComponent, log.ComponentBudget,
			log.FieldOwnerID, alert.OwnerID)
		return
	}
	if err := s.publisher.PublishBudgetAlert(ctx, alert); err != nil {
		// The alert is recorded; publishing is best effort.
		slog.ErrorContext(ctx, "Failed to publish budget alert",
			log.FieldComponent, log.ComponentBudget,
			log.FieldOwnerID, alert.OwnerID,
			log.FieldError, err)
	}
}

// History returns the owner's most recent recorded alerts.
func (s *BudgetService) History(ctx context.Context, ownerID string) ([]core.BudgetAlert, error) {
	alerts, err := s.store.ListAlerts(ctx, ownerID, AlertHistoryLimit)
	if err != nil {
		return nil, fmt.Errorf("list budget alerts: %w", err)
	}
	return alerts, nil
}
