package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledger/internal/core"
)

// BudgetAlertMessage announces that an owner crossed a budget tier for a
// period. Amounts travel as decimal strings.
type BudgetAlertMessage struct {
	ID           string    `json:"id"`
	OwnerID      string    `json:"owner_id"`
	Period       string    `json:"period"`
	Tier         string    `json:"tier"`
	Message      string    `json:"message"`
	Percentage   string    `json:"percentage"`
	Spend        string    `json:"spend"`
	BudgetLimit  string    `json:"budget_limit"`
	BaseCurrency string    `json:"base_currency"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewBudgetAlertMessage builds a message with a fresh ID.
func NewBudgetAlertMessage(a core.BudgetAlert) *BudgetAlertMessage {
	ts := a.CreatedAt
	if ts.IsZero() {
		ts = time.Now()
	}
	return &BudgetAlertMessage{
		ID:           uuid.NewString(),
		OwnerID:      a.OwnerID,
		Period:       a.Period.String(),
		Tier:         string(a.Tier),
		Message:      a.Message,
		Percentage:   a.Percentage.StringFixed(2),
		Spend:        a.Spend.String(),
		BudgetLimit:  a.BudgetLimit.String(),
		BaseCurrency: string(a.BaseCurrency),
		Timestamp:    ts.UTC(),
	}
}

func (m *BudgetAlertMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// BudgetAlertMessageFromJSON decodes and checks the fields a consumer relies on.
func BudgetAlertMessageFromJSON(data []byte) (*BudgetAlertMessage, error) {
	var msg BudgetAlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if msg.OwnerID == "" {
		return nil, fmt.Errorf("budget alert %s: missing owner_id", msg.ID)
	}
	if _, err := core.ParsePeriod(msg.Period); err != nil {
		return nil, fmt.Errorf("budget alert %s: %w", msg.ID, err)
	}
	switch core.Tier(msg.Tier) {
	case core.TierInfo, core.TierWarning, core.TierDanger:
	default:
		return nil, fmt.Errorf("budget alert %s: unknown tier %q", msg.ID, msg.Tier)
	}
	return &msg, nil
}
