package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vairify/vaicheck-server-go/internal/middleware"
	"github.com/vairify/vaicheck-server-go/internal/service"
)

type EncounterHandler struct {
	sessions *service.SessionService
}

func NewEncounterHandler(sessions *service.SessionService) *EncounterHandler {
	return &EncounterHandler{sessions: sessions}
}

func (h *EncounterHandler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/{encounterId}", h.GetEncounter)
	return r
}

// GET /v1/encounters/{encounterId}
func (h *EncounterHandler) GetEncounter(w http.ResponseWriter, r *http.Request) {
	enc, err := h.sessions.GetEncounter(r.Context(), chi.URLParam(r, "encounterId"), middleware.GetParticipant(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, enc)
}
