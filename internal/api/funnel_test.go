package api

import (
	"errors"
	"net/http"
	"testing"

	"github.com/ashureev/interview-funnel/internal/backend"
	"github.com/ashureev/interview-funnel/internal/domain"
)

func TestArtifactsHandoff(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	if w := env.do(t, http.MethodGet, "/api/quiz/artifacts", "sess-1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("missing artifacts: expected 404, got %d", w.Code)
	}

	w := env.do(t, http.MethodPut, "/api/quiz/artifacts", "sess-1", artifactsRequest{
		QuizAnswers:    domain.QuizAnswers{"q1": "b"},
		QuizCompleted:  true,
		CompanyProfile: domain.CompanyProfile{"company_name": "Globex"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("put: expected 200, got %d: %s", w.Code, w.Body.String())
	}

	w = env.do(t, http.MethodGet, "/api/quiz/artifacts", "sess-1", nil)
	var got domain.QuizArtifacts
	decodeBody(t, w, &got)
	if got.CompanyProfile.Name() != "Globex" || !got.QuizCompleted {
		t.Fatalf("unexpected artifacts %+v", got)
	}

	// The stored profile is enough to start an interview.
	if w := env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil); w.Code != http.StatusOK {
		t.Fatalf("start: expected 200, got %d", w.Code)
	}
}

func TestArtifactsRequireSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPut, "/api/quiz/artifacts", "", artifactsRequest{})
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
}

func TestCheckout(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		req        checkoutRequest
		initErr    error
		wantStatus int
		wantError  string
	}{
		{
			name:       "success",
			req:        checkoutRequest{Tier: "growth", Email: " owner@acme.test "},
			wantStatus: http.StatusOK,
		},
		{
			name:       "invalid email",
			req:        checkoutRequest{Tier: "growth", Email: "not-an-email"},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_email",
		},
		{
			name:       "missing tier",
			req:        checkoutRequest{Email: "owner@acme.test"},
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_tier",
		},
		{
			name:       "backend failure",
			req:        checkoutRequest{Tier: "growth", Email: "owner@acme.test"},
			initErr:    errors.New("payment provider down"),
			wantStatus: http.StatusBadGateway,
			wantError:  "checkout_failed",
		},
		{
			name:       "backend rejects email",
			req:        checkoutRequest{Tier: "growth", Email: "owner@acme.test"},
			initErr:    backend.ErrInvalidEmail,
			wantStatus: http.StatusUnprocessableEntity,
			wantError:  "invalid_email",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			env := newTestEnv(t)
			env.seed(t, "sess-1")
			env.checkout.err = tt.initErr

			w := env.do(t, http.MethodPost, "/api/checkout", "sess-1", tt.req)
			if w.Code != tt.wantStatus {
				t.Fatalf("Expected status %d, got %d: %s", tt.wantStatus, w.Code, w.Body.String())
			}

			if tt.wantError != "" {
				var body ErrorBody
				decodeBody(t, w, &body)
				if body.Error != tt.wantError {
					t.Errorf("expected error %q, got %+v", tt.wantError, body)
				}
				return
			}

			var resp backend.CheckoutResponse
			decodeBody(t, w, &resp)
			if resp.CheckoutURL != "https://pay.example.test/session/1" {
				t.Errorf("unexpected checkout url %q", resp.CheckoutURL)
			}
			if len(env.checkout.got) != 1 || env.checkout.got[0].QuizAnswers["q1"] != "a" {
				t.Errorf("expected quiz answers forwarded, got %+v", env.checkout.got)
			}

			a, err := env.repo.GetArtifacts(t.Context(), "sess-1")
			if err != nil || a == nil || a.Email != "owner@acme.test" {
				t.Errorf("expected email stored, got %+v, %v", a, err)
			}
		})
	}
}
