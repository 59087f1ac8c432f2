package http

import (
	"net/http"
	"strings"

	"ledger/internal/core"
	"ledger/internal/log"
)

type transactionWriteJSON struct {
	Message      string            `json:"message"`
	Transaction  transactionJSON   `json:"transaction"`
	BudgetStatus *budgetStatusJSON `json:"budget_status"`
}

func (s *Server) handleListTransactions(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	owner := ownerFromContext(ctx)

	var filter core.TransactionFilter
	period, ok, err := parseMonth(r)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	if ok {
		filter.Period = &period
	}
	if filter.Limit, err = parseLimit(r); err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	filter.CategoryID = strings.TrimSpace(r.URL.Query().Get("category_id"))

	profile, err := s.ledger.Profiles.Get(ctx, owner)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	views, err := s.ledger.Transactions.ListDetailed(ctx, owner, profile.BaseCurrency, filter)
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}

	out := make([]listedTransactionJSON, 0, len(views))
	for _, v := range views {
		out = append(out, newListedTransactionJSON(v))
	}
	NewJSONResponse().Body(map[string]any{"transactions": out}).Write(w)
}

func (s *Server) handleCreateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	in, err := req.input(core.DateOf(s.now()))
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	t, status, err := s.ledger.CreateTransaction(ctx, ownerFromContext(ctx), in)
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	logOp(r, log.ComponentTransaction).InfoContext(ctx, "Transaction created",
		log.FieldTransactionID, t.ID,
		log.FieldAmount, t.Amount.String(),
		log.FieldCurrency, string(t.Currency))

	NewJSONResponse().Status(http.StatusCreated).Body(transactionWriteJSON{
		Message:      "transaction created",
		Transaction:  newTransactionJSON(t),
		BudgetStatus: optionalBudgetStatus(status),
	}).Write(w)
}

func (s *Server) handleGetTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	t, err := s.ledger.Transactions.Get(ctx, ownerFromContext(ctx), r.PathValue("id"))
	if err != nil {
		writeError(w, r, log.OpRead, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"transaction": newTransactionJSON(t)}).Write(w)
}

func (s *Server) handleUpdateTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req transactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	in, err := req.input(core.DateOf(s.now()))
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	t, status, err := s.ledger.UpdateTransaction(ctx, ownerFromContext(ctx), r.PathValue("id"), in)
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}

	logOp(r, log.ComponentTransaction).InfoContext(ctx, "Transaction updated",
		log.FieldTransactionID, t.ID)

	NewJSONResponse().Body(transactionWriteJSON{
		Message:      "transaction updated",
		Transaction:  newTransactionJSON(t),
		BudgetStatus: optionalBudgetStatus(status),
	}).Write(w)
}

func (s *Server) handleDeleteTransaction(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.ledger.Transactions.Delete(ctx, ownerFromContext(ctx), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}

	logOp(r, log.ComponentTransaction).InfoContext(ctx, "Transaction deleted",
		log.FieldTransactionID, id)

	NewJSONResponse().Body(messageJSON{Message: "transaction deleted"}).Write(w)
}

// handleSummary requires the month parameter.
func (s *Server) handleSummary(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	period, ok, err := parseMonth(r)
	if err == nil && !ok {
		err = core.NewValidationError("month", "is required (YYYY-MM)")
	}
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}

	summary, err := s.ledger.Summaries.Summarize(ctx, ownerFromContext(ctx), period)
	if err != nil {
		writeError(w, r, log.OpSummary, err)
		return
	}
	NewJSONResponse().Body(newSummaryJSON(summary)).Write(w)
}
