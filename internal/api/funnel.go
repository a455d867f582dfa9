package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/ashureev/interview-funnel/internal/backend"
	"github.com/ashureev/interview-funnel/internal/domain"
	"github.com/go-chi/chi/v5"
)

// CheckoutInitiator starts a payment checkout and returns the redirect URL.
type CheckoutInitiator interface {
	Initiate(ctx context.Context, req backend.CheckoutRequest) (string, error)
}

// FunnelHandler handles the quiz artifact handoff and checkout.
type FunnelHandler struct {
	*Handler
	checkout CheckoutInitiator
}

// NewFunnelHandler creates a funnel handler.
func NewFunnelHandler(base *Handler, checkout CheckoutInitiator) *FunnelHandler {
	return &FunnelHandler{Handler: base, checkout: checkout}
}

// RegisterRoutes registers funnel routes.
func (h *FunnelHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.Get("/quiz/artifacts", h.GetArtifacts)
		r.Put("/quiz/artifacts", h.PutArtifacts)
		r.Post("/checkout", h.Checkout)
	})
}

type artifactsRequest struct {
	QuizAnswers      domain.QuizAnswers       `json:"quiz_answers"`
	QuizResults      json.RawMessage          `json:"quiz_results"`
	QuizCompleted    bool                     `json:"quiz_completed"`
	Email            string                   `json:"email"`
	CompanyProfile   domain.CompanyProfile    `json:"company_profile"`
	ResearchFindings []domain.ResearchFinding `json:"research_findings"`
}

// PutArtifacts stores the quiz artifacts for the funnel session. A running
// interview keeps the context it was started with.
func (h *FunnelHandler) PutArtifacts(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.requireSessionID(w, r)
	if !ok {
		return
	}
	var req artifactsRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	a := &domain.QuizArtifacts{
		SessionID:        sid,
		QuizAnswers:      req.QuizAnswers,
		QuizResults:      req.QuizResults,
		QuizCompleted:    req.QuizCompleted,
		Email:            strings.TrimSpace(req.Email),
		CompanyProfile:   req.CompanyProfile,
		ResearchFindings: req.ResearchFindings,
		UpdatedAt:        time.Now().UTC(),
	}
	if err := h.repo.UpsertArtifacts(r.Context(), a); err != nil {
		slog.Error("Failed to store quiz artifacts", "session_id", sid, "error", err)
		ErrorWithAction(w, http.StatusInternalServerError, "store_failed",
			"We couldn't save your quiz results. Please try again.", ActionRetry)
		return
	}

	stored, err := h.repo.GetArtifacts(r.Context(), sid)
	if err != nil || stored == nil {
		JSON(w, http.StatusOK, a)
		return
	}
	JSON(w, http.StatusOK, stored)
}

// GetArtifacts returns the stored quiz artifacts.
func (h *FunnelHandler) GetArtifacts(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.requireSessionID(w, r)
	if !ok {
		return
	}
	a, err := h.repo.GetArtifacts(r.Context(), sid)
	if err != nil {
		slog.Error("Failed to read quiz artifacts", "session_id", sid, "error", err)
		Error(w, http.StatusInternalServerError, "failed to read artifacts")
		return
	}
	if a == nil {
		h.contextUnavailable(w)
		return
	}
	JSON(w, http.StatusOK, a)
}

type checkoutRequest struct {
	Tier  string `json:"tier"`
	Email string `json:"email"`
}

// Checkout validates the email, starts a checkout and returns the redirect
// URL. Failures are reported once; the client decides whether to retry.
func (h *FunnelHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	sid, ok := h.requireSessionID(w, r)
	if !ok {
		return
	}
	var req checkoutRequest
	if !h.decodeJSON(w, r, &req) {
		return
	}

	req.Email = strings.TrimSpace(req.Email)
	if err := backend.ValidateEmail(req.Email); err != nil {
		ErrorWithAction(w, http.StatusUnprocessableEntity, "invalid_email",
			"Please enter a valid email address.", "")
		return
	}
	if strings.TrimSpace(req.Tier) == "" {
		ErrorWithAction(w, http.StatusUnprocessableEntity, "invalid_tier", "Please choose a plan.", "")
		return
	}

	a, err := h.repo.GetArtifacts(r.Context(), sid)
	if err != nil {
		slog.Warn("Failed to read quiz artifacts for checkout", "session_id", sid, "error", err)
	}
	if a == nil {
		a = &domain.QuizArtifacts{SessionID: sid}
	}

	// Remember the email for the rest of the funnel.
	a.Email = req.Email
	a.UpdatedAt = time.Now().UTC()
	if err := h.repo.UpsertArtifacts(r.Context(), a); err != nil {
		slog.Warn("Failed to store checkout email", "session_id", sid, "error", err)
	}

	url, err := h.checkout.Initiate(r.Context(), backend.CheckoutRequest{
		Tier:        req.Tier,
		Email:       req.Email,
		QuizAnswers: a.QuizAnswers,
		QuizResults: a.QuizResults,
	})
	if err != nil {
		if errors.Is(err, backend.ErrInvalidEmail) {
			ErrorWithAction(w, http.StatusUnprocessableEntity, "invalid_email",
				"Please enter a valid email address.", "")
			return
		}
		slog.Error("Checkout initiation failed", "session_id", sid, "tier", req.Tier, "error", err)
		ErrorWithAction(w, http.StatusBadGateway, "checkout_failed",
			"We couldn't start checkout. Please try again.", ActionRetry)
		return
	}

	slog.Info("Checkout initiated", "session_id", sid, "tier", req.Tier)
	JSON(w, http.StatusOK, backend.CheckoutResponse{CheckoutURL: url})
}
