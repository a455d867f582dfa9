// Package api provides HTTP handlers for the funnel API.
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ashureev/interview-funnel/internal/config"
	"github.com/ashureev/interview-funnel/internal/identity"
	"github.com/ashureev/interview-funnel/internal/interview"
	"github.com/ashureev/interview-funnel/internal/modality"
	"github.com/ashureev/interview-funnel/internal/store"
)

// defaultMaxRequestBodySize is the default maximum allowed request body size (1MB).
const defaultMaxRequestBodySize = 1 << 20

// Recovery actions offered alongside user-visible errors.
const (
	ActionRestartQuiz = "restart_quiz"
	ActionRetry       = "retry"
	ActionReload      = "reload"
)

// Handler provides common handler utilities.
type Handler struct {
	repo     store.Repository
	sessions *interview.Registry
	inputs   *modality.Registry
	limiter  *RateLimiter
	cfg      *config.Config
}

// NewHandler creates a new Handler with common dependencies. A nil limiter
// disables submission throttling.
func NewHandler(repo store.Repository, sessions *interview.Registry, inputs *modality.Registry, limiter *RateLimiter, cfg *config.Config) *Handler {
	return &Handler{
		repo:     repo,
		sessions: sessions,
		inputs:   inputs,
		limiter:  limiter,
		cfg:      cfg,
	}
}

// submitter returns the throttled submission path for s.
func (h *Handler) submitter(s *interview.Session) modality.Submitter {
	return limitedSubmitter{session: s, limiter: h.limiter}
}

// controller returns the input controller for s. Voice transcripts it
// submits go through the same throttle as typed messages.
func (h *Handler) controller(s *interview.Session) *modality.Controller {
	return h.inputs.Get(s.ID(), h.submitter(s))
}

// ErrorBody is the JSON error envelope.
type ErrorBody struct {
	Error      string `json:"error"`
	Message    string `json:"message,omitempty"`
	Action     string `json:"action,omitempty"`
	RestartURL string `json:"restart_url,omitempty"`
}

// JSON writes a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		http.Error(w, `{"error": "failed to encode response"}`, http.StatusInternalServerError)
	}
}

// Error writes a JSON error response.
func Error(w http.ResponseWriter, status int, message string) {
	JSON(w, status, ErrorBody{Error: message})
}

// ErrorWithAction writes a JSON error response carrying a human-readable
// message and a single recovery action.
func ErrorWithAction(w http.ResponseWriter, status int, code, message, action string) {
	JSON(w, status, ErrorBody{Error: code, Message: message, Action: action})
}

func (h *Handler) maxBodySize() int64 {
	if h.cfg != nil && h.cfg.SSE.MaxRequestBodySize > 0 {
		return h.cfg.SSE.MaxRequestBodySize
	}
	return defaultMaxRequestBodySize
}

// decodeJSON reads a bounded JSON body into v. It writes the error response
// itself and reports whether decoding succeeded.
func (h *Handler) decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBodySize())
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			Error(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

// requireSessionID returns the funnel session id or writes a restart error.
func (h *Handler) requireSessionID(w http.ResponseWriter, r *http.Request) (string, bool) {
	sid := identity.SessionIDFromContext(r.Context())
	if sid == "" {
		h.contextUnavailable(w)
		return "", false
	}
	return sid, true
}

func (h *Handler) contextUnavailable(w http.ResponseWriter) {
	restart := "/quiz"
	if h.cfg != nil && h.cfg.Interview.RestartURL != "" {
		restart = h.cfg.Interview.RestartURL
	}
	JSON(w, http.StatusNotFound, ErrorBody{
		Error:      "context_unavailable",
		Message:    "We couldn't find your quiz results. Please take the quiz again to start your interview.",
		Action:     ActionRestartQuiz,
		RestartURL: restart,
	})
}
