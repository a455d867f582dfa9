package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/ashureev/interview-funnel/internal/identity"
	"github.com/ashureev/interview-funnel/internal/interview"
	"github.com/ashureev/interview-funnel/internal/modality"
	"github.com/ashureev/interview-funnel/internal/sessionctx"
	"github.com/go-chi/chi/v5"
)

// InterviewHandler handles the interview endpoints.
type InterviewHandler struct {
	*Handler
}

// NewInterviewHandler creates an interview handler.
func NewInterviewHandler(base *Handler) *InterviewHandler {
	return &InterviewHandler{Handler: base}
}

// RegisterRoutes registers interview routes.
func (h *InterviewHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/interview", func(r chi.Router) {
		r.Get("/", h.Get)
		r.Post("/start", h.Start)
		r.Put("/draft", h.SetDraft)
		r.Post("/messages", h.Submit)
		r.Post("/mode", h.SetMode)
		r.Post("/finish", h.Finish)
	})
}

// interviewView is the session snapshot plus the input controls state.
type interviewView struct {
	interview.Snapshot
	Input modality.Snapshot `json:"input"`
}

func (h *InterviewHandler) view(s *interview.Session) interviewView {
	c := h.controller(s)
	return interviewView{Snapshot: s.Snapshot(), Input: c.Snapshot()}
}

// session resolves the live session or writes the error response.
func (h *InterviewHandler) session(w http.ResponseWriter, r *http.Request) (*interview.Session, bool) {
	sid, ok := h.requireSessionID(w, r)
	if !ok {
		return nil, false
	}
	s, ok := h.sessions.Get(sid)
	if !ok {
		ErrorWithAction(w, http.StatusNotFound, "interview_not_started",
			"Your interview session has expired. Reload the page to start again.", ActionReload)
		return nil, false
	}
	return s, true
}

// Start loads the session context and runs the greeting. Starting an
// interview that already exists returns its current state.
func (h *InterviewHandler) Start(w http.ResponseWriter, r *http.Request) {
	sid := identity.SessionIDFromContext(r.Context())

	s, err := h.sessions.Start(r.Context(), sid)
	if err != nil {
		if errors.Is(err, sessionctx.ErrContextUnavailable) {
			slog.Info("Interview context unavailable", "session_id", sid)
			h.contextUnavailable(w)
			return
		}
		slog.Error("Failed to start interview", "session_id", sid, "error", err)
		ErrorWithAction(w, http.StatusInternalServerError, "start_failed",
			"We couldn't start your interview. Please reload the page.", ActionReload)
		return
	}

	JSON(w, http.StatusOK, h.view(s))
}

// Get returns the interview state.
func (h *InterviewHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, h.view(s))
}

type draftRequest struct {
	Draft string `json:"draft"`
}

// SetDraft updates the pending input buffer.
func (h *InterviewHandler) SetDraft(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req draftRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	s.SetDraft(req.Draft)
	w.WriteHeader(http.StatusNoContent)
}

const msgRateLimited = "You're sending messages too quickly. Please wait a moment."

type submitRequest struct {
	Content string `json:"content"`
}

// Submit sends one typed message.
func (h *InterviewHandler) Submit(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req submitRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	// The exchange outlives a dropped client so the transcript stays consistent.
	res, err := h.submitter(s).Submit(context.WithoutCancel(r.Context()), req.Content)
	switch {
	case errors.Is(err, ErrRateLimited):
		ErrorWithAction(w, http.StatusTooManyRequests, "rate_limited", msgRateLimited, ActionRetry)
		return
	case errors.Is(err, interview.ErrEmptyMessage):
		ErrorWithAction(w, http.StatusUnprocessableEntity, "empty_message", "Please enter a message.", "")
		return
	case errors.Is(err, interview.ErrNotAcceptingMessages):
		ErrorWithAction(w, http.StatusConflict, "not_accepting_messages",
			"The interview is no longer accepting messages.", ActionReload)
		return
	case err != nil:
		slog.Error("Interview submit failed", "session_id", s.ID(), "error", err)
		ErrorWithAction(w, http.StatusInternalServerError, "submit_failed",
			"Something went wrong. Please try again.", ActionRetry)
		return
	}

	if res.Ignored {
		JSON(w, http.StatusAccepted, res)
		return
	}

	if c, ok := h.inputs.Peek(s.ID()); ok {
		c.ClearError()
	}
	JSON(w, http.StatusOK, res)
}

type modeRequest struct {
	Mode string `json:"mode"`
}

// SetMode switches between text and voice input.
func (h *InterviewHandler) SetMode(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	var req modeRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}
	mode, err := modality.ParseMode(req.Mode)
	if err != nil {
		Error(w, http.StatusBadRequest, err.Error())
		return
	}
	h.controller(s).SetMode(mode)
	JSON(w, http.StatusOK, h.view(s))
}

// Finish finalizes the interview from the summary phase.
func (h *InterviewHandler) Finish(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	completion, err := s.Finish(context.WithoutCancel(r.Context()))
	if err != nil {
		if errors.Is(err, interview.ErrInvalidTransition) {
			ErrorWithAction(w, http.StatusConflict, "not_ready_to_finish",
				"The interview isn't ready to finish yet.", "")
			return
		}
		slog.Error("Interview finish failed", "session_id", s.ID(), "error", err)
		ErrorWithAction(w, http.StatusInternalServerError, "finish_failed",
			"Something went wrong. Please try again.", ActionRetry)
		return
	}

	JSON(w, http.StatusOK, map[string]interface{}{
		"phase":      s.Phase(),
		"completion": completion,
	})
}
