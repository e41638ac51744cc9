package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/middleware"
	"github.com/vairify/vaicheck-server-go/internal/service"
)

// ReviewHandler serves the manual review queue. It expects ReviewerAuth in
// front of it.
type ReviewHandler struct {
	sessions *service.SessionService
}

func NewReviewHandler(sessions *service.SessionService) *ReviewHandler {
	return &ReviewHandler{sessions: sessions}
}

func (h *ReviewHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Use(middleware.NewBodyLimit(middleware.DefaultMaxBodySize).Handler)
	r.Get("/pending", h.ListPending)
	r.Post("/{sessionId}", h.Resolve)
	return r
}

// GET /v1/reviews/pending
func (h *ReviewHandler) ListPending(w http.ResponseWriter, r *http.Request) {
	items, err := h.sessions.ListPendingReviews(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"reviews": items,
		"total":   len(items),
	})
}

// POST /v1/reviews/{sessionId}
func (h *ReviewHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Outcome string `json:"outcome"`
	}
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Outcome == "" {
		writeError(w, r, apperrors.MissingRequired("outcome"))
		return
	}

	view, err := h.sessions.ResolveManualReview(r.Context(), chi.URLParam(r, "sessionId"), req.Outcome, middleware.GetReviewer(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}
