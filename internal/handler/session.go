package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/vairify/vaicheck-server-go/internal/config"
	apperrors "github.com/vairify/vaicheck-server-go/internal/errors"
	"github.com/vairify/vaicheck-server-go/internal/middleware"
	"github.com/vairify/vaicheck-server-go/internal/model"
	"github.com/vairify/vaicheck-server-go/internal/service"
)

type Middleware = func(http.Handler) http.Handler

func passthrough(next http.Handler) http.Handler { return next }

// SessionHandler exposes the session protocol to authenticated participants.
type SessionHandler struct {
	sessions *service.SessionService
	guard    Middleware
	poll     Middleware
}

// NewSessionHandler wires the participant routes. guard throttles join and
// biometric submissions; poll throttles status reads. Either may be nil.
func NewSessionHandler(sessions *service.SessionService, guard, poll Middleware) *SessionHandler {
	if guard == nil {
		guard = passthrough
	}
	if poll == nil {
		poll = passthrough
	}
	return &SessionHandler{sessions: sessions, guard: guard, poll: poll}
}

func (h *SessionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	small := middleware.NewBodyLimit(middleware.DefaultMaxBodySize).Handler
	images := middleware.NewBodyLimit(config.MaxLiveImageBodySize).Handler

	r.With(small).Post("/", h.CreateSession)
	r.With(small, h.guard).Post("/join", h.JoinSession)
	r.With(images, h.guard).Post("/{sessionId}/initial-verification", h.CompleteInitialVerification)
	r.With(small).Post("/{sessionId}/decision", h.RecordDecision)
	r.With(small).Post("/{sessionId}/contract", h.RecordContract)
	r.With(images, h.guard).Post("/{sessionId}/final-verification", h.SubmitFinalVerification)
	r.With(h.poll).Get("/{sessionId}/status", h.GetSessionStatus)

	return r
}

type verdictRequest struct {
	Role    string `json:"role"`
	Verdict string `json:"verdict"`
}

type captureRequest struct {
	Role      string `json:"role"`
	LiveImage string `json:"liveImage"`
}

type joinRequest struct {
	QRPayload string `json:"qrPayload"`
	Code      string `json:"code"`
}

// POST /v1/sessions
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.CreateSession(r.Context(), middleware.GetParticipant(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

// POST /v1/sessions/{sessionId}/initial-verification
func (h *SessionHandler) CompleteInitialVerification(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.sessions.CompleteInitialVerification(
		r.Context(), chi.URLParam(r, "sessionId"), middleware.GetParticipant(r.Context()), req.LiveImage,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeGateResult(w, view)
}

// POST /v1/sessions/join
func (h *SessionHandler) JoinSession(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.sessions.JoinSession(r.Context(), service.JoinRequest{
		QRPayload: req.QRPayload,
		Code:      req.Code,
	}, middleware.GetParticipant(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /v1/sessions/{sessionId}/decision
func (h *SessionHandler) RecordDecision(w http.ResponseWriter, r *http.Request) {
	h.recordVerdict(w, r, h.sessions.RecordDecision)
}

// POST /v1/sessions/{sessionId}/contract
func (h *SessionHandler) RecordContract(w http.ResponseWriter, r *http.Request) {
	h.recordVerdict(w, r, h.sessions.RecordContract)
}

type verdictFunc func(ctx context.Context, sessionID, callerID, role, verdict string) (*service.StatusView, error)

func (h *SessionHandler) recordVerdict(w http.ResponseWriter, r *http.Request, record verdictFunc) {
	var req verdictRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}
	if req.Verdict == "" {
		writeError(w, r, apperrors.MissingRequired("verdict"))
		return
	}

	view, err := record(r.Context(), chi.URLParam(r, "sessionId"), middleware.GetParticipant(r.Context()), req.Role, req.Verdict)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// POST /v1/sessions/{sessionId}/final-verification
func (h *SessionHandler) SubmitFinalVerification(w http.ResponseWriter, r *http.Request) {
	var req captureRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.sessions.SubmitFinalVerification(
		r.Context(), chi.URLParam(r, "sessionId"), middleware.GetParticipant(r.Context()), req.Role, req.LiveImage,
	)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeGateResult(w, view)
}

// GET /v1/sessions/{sessionId}/status
func (h *SessionHandler) GetSessionStatus(w http.ResponseWriter, r *http.Request) {
	view, err := h.sessions.GetSessionStatus(r.Context(), chi.URLParam(r, "sessionId"), middleware.GetParticipant(r.Context()))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// writeGateResult answers 202 when the capture was handed to a reviewer.
func writeGateResult(w http.ResponseWriter, view *service.StatusView) {
	status := http.StatusOK
	if view.Status == model.SessionStatusManualReviewPending {
		status = http.StatusAccepted
	}
	writeJSON(w, status, view)
}
