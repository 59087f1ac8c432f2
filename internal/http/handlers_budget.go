package http

import (
	"encoding/json"
	"net/http"

	"ledger/internal/log"
)

type budgetLimitJSON struct {
	Message      string           `json:"message"`
	BudgetLimit  json.Number      `json:"budget_limit"`
	BudgetStatus budgetStatusJSON `json:"budget_status"`
}

// handleBudgetCheck evaluates the month parameter, or the current month.
func (s *Server) handleBudgetCheck(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	period, ok, err := parseMonth(r)
	if err != nil {
		writeError(w, r, log.OpEvaluate, err)
		return
	}
	if !ok {
		period = s.ledger.Budgets.CurrentPeriod()
	}

	status, err := s.ledger.Budgets.Evaluate(ctx, ownerFromContext(ctx), period)
	if err != nil {
		writeError(w, r, log.OpEvaluate, err)
		return
	}
	NewJSONResponse().Body(newBudgetStatusJSON(status)).Write(w)
}

func (s *Server) handleSetBudgetLimit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req budgetLimitRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	limit, err := req.BudgetLimit.limit()
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	profile, status, err := s.ledger.Budgets.SetBudgetLimit(ctx, ownerFromContext(ctx), limit)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	logOp(r, log.ComponentBudget).InfoContext(ctx, "Budget limit updated",
		log.FieldAmount, profile.BudgetLimit.String(),
		log.FieldBaseCurrency, string(profile.BaseCurrency))

	NewJSONResponse().Body(budgetLimitJSON{
		Message:      "budget limit updated",
		BudgetLimit:  money(profile.BudgetLimit, profile.BaseCurrency),
		BudgetStatus: newBudgetStatusJSON(status),
	}).Write(w)
}

// handleListNotifications returns the most recently recorded tier crossings.
func (s *Server) handleListNotifications(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	alerts, err := s.ledger.Budgets.History(ctx, ownerFromContext(ctx))
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	out := make([]alertJSON, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, newAlertJSON(a))
	}
	NewJSONResponse().Body(map[string]any{"notifications": out}).Write(w)
}
