package worker

import (
	"context"
	"fmt"
	"log/slog"

	"ledger/internal/amqp"
	"ledger/internal/log"
)

// Notifier delivers a budget alert to the owner.
type Notifier interface {
	Notify(ctx context.Context, msg *amqp.BudgetAlertMessage) error
}

// LogNotifier writes alerts to the structured log. It stands in for a
// delivery channel such as email or push.
type LogNotifier struct {
	Logger *slog.Logger
}

func (n LogNotifier) Notify(ctx context.Context, msg *amqp.BudgetAlertMessage) error {
	logger := n.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "Budget alert",
		log.FieldOwnerID, msg.OwnerID,
		log.FieldPeriod, msg.Period,
		log.FieldTier, msg.Tier,
		log.FieldPercentage, msg.Percentage,
		log.FieldBaseCurrency, msg.BaseCurrency,
		"message", msg.Message)
	return nil
}

// AlertWorker handles budget alerts consumed from AMQP.
type AlertWorker struct {
	notifier Notifier
}

func NewAlertWorker(notifier Notifier) *AlertWorker {
	return &AlertWorker{notifier: notifier}
}

// HandleBudgetAlert processes a single alert message. Returning an error
// makes the consumer requeue the message once.
func (w *AlertWorker) HandleBudgetAlert(ctx context.Context, msg *amqp.BudgetAlertMessage) error {
	slog.InfoContext(ctx, "Processing budget alert",
		log.FieldComponent, log.ComponentWorker,
		"message_id", msg.ID,
		log.FieldOwnerID, msg.OwnerID,
		log.FieldTier, msg.Tier)

	if err := w.notifier.Notify(ctx, msg); err != nil {
		return fmt.Errorf("notify owner %s: %w", msg.OwnerID, err)
	}
	return nil
}
