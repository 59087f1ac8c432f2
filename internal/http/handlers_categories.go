package http

import (
	"net/http"

	"ledger/internal/log"
)

func (s *Server) handleListCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	cats, err := s.ledger.Categories.List(ctx, ownerFromContext(ctx))
	if err != nil {
		writeError(w, r, log.OpList, err)
		return
	}
	out := make([]categoryJSON, 0, len(cats))
	for _, c := range cats {
		out = append(out, newCategoryJSON(c))
	}
	NewJSONResponse().Body(map[string]any{"categories": out}).Write(w)
}

func (s *Server) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}
	c, err := s.ledger.Categories.Create(ctx, ownerFromContext(ctx), req.input())
	if err != nil {
		writeError(w, r, log.OpCreate, err)
		return
	}

	logOp(r, log.ComponentCategory).InfoContext(ctx, "Category created", log.FieldCategoryID, c.ID)

	NewJSONResponse().Status(http.StatusCreated).Body(map[string]any{"category": newCategoryJSON(c)}).Write(w)
}

func (s *Server) handleUpdateCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req categoryRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	c, err := s.ledger.Categories.Update(ctx, ownerFromContext(ctx), r.PathValue("id"), req.input())
	if err != nil {
		writeError(w, r, log.OpUpdate, err)
		return
	}
	NewJSONResponse().Body(map[string]any{"category": newCategoryJSON(c)}).Write(w)
}

// handleDeleteCategory leaves referencing transactions in place; summaries
// report them as Uncategorized.
func (s *Server) handleDeleteCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := r.PathValue("id")
	if err := s.ledger.Categories.Delete(ctx, ownerFromContext(ctx), id); err != nil {
		writeError(w, r, log.OpDelete, err)
		return
	}

	logOp(r, log.ComponentCategory).InfoContext(ctx, "Category deleted", log.FieldCategoryID, id)

	NewJSONResponse().Body(messageJSON{Message: "category deleted"}).Write(w)
}
