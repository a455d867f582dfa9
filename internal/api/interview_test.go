package api

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/ashureev/interview-funnel/internal/backend"
	"github.com/ashureev/interview-funnel/internal/domain"
	"github.com/ashureev/interview-funnel/internal/interview"
	"github.com/ashureev/interview-funnel/internal/sessionctx"
)

func TestStartWithoutContextOffersRestart(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)

	for _, sid := range []string{"", "unknown-session"} {
		w := env.do(t, http.MethodPost, "/api/interview/start", sid, nil)
		if w.Code != http.StatusNotFound {
			t.Fatalf("sid %q: expected 404, got %d", sid, w.Code)
		}
		var body ErrorBody
		decodeBody(t, w, &body)
		if body.Error != "context_unavailable" || body.Action != ActionRestartQuiz || body.RestartURL != "/quiz" {
			t.Errorf("sid %q: unexpected body %+v", sid, body)
		}
	}

	if env.sessions.Len() != 0 {
		t.Fatalf("expected no sessions, got %d", env.sessions.Len())
	}
	if len(env.reasoner.requests) != 0 {
		t.Fatalf("expected no reasoning calls, got %d", len(env.reasoner.requests))
	}
}

func TestStartGreetsOnce(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "sess-1")

	var first, second interviewView
	w := env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	decodeBody(t, w, &first)

	w = env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)
	decodeBody(t, w, &second)

	if first.Phase != domain.PhaseConversation {
		t.Fatalf("expected conversation phase, got %s", first.Phase)
	}
	if len(second.Messages) != 1 || second.Messages[0].Role != domain.RoleAssistant {
		t.Fatalf("expected a single greeting, got %+v", second.Messages)
	}
	if second.CompanyName != "Acme" {
		t.Errorf("expected company Acme, got %q", second.CompanyName)
	}
	if second.Input.Mode != "text" || second.Input.Capture != "idle" {
		t.Errorf("unexpected input state %+v", second.Input)
	}
}

func TestSubmitExchange(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	w := env.do(t, http.MethodPost, "/api/interview/messages", "sess-1", submitRequest{Content: "  We sell shoes  "})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}
	var res interview.ExchangeResult
	decodeBody(t, w, &res)
	if res.User == nil || res.User.Content != "We sell shoes" {
		t.Fatalf("unexpected user message %+v", res.User)
	}
	if res.Assistant == nil || res.Assistant.Content != "Tell me more." {
		t.Fatalf("unexpected assistant message %+v", res.Assistant)
	}
	if res.QuestionCount != 1 {
		t.Errorf("expected question count 1, got %d", res.QuestionCount)
	}

	req := env.reasoner.requests[0]
	if req.SessionID != "sess-1" || req.Context.CompanyProfile.Name() != "Acme" {
		t.Errorf("unexpected reasoning request %+v", req)
	}
}

func TestSubmitEmptyMessage(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	w := env.do(t, http.MethodPost, "/api/interview/messages", "sess-1", submitRequest{Content: "   "})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected status 422, got %d", w.Code)
	}
	if len(env.reasoner.requests) != 0 {
		t.Fatal("blank input must not reach the reasoning service")
	}
}

func TestSubmitFallbackKeepsConversationGoing(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.reasoner.err = errors.New("upstream down")
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	w := env.do(t, http.MethodPost, "/api/interview/messages", "sess-1", submitRequest{Content: "hello"})
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	var res interview.ExchangeResult
	decodeBody(t, w, &res)
	if !res.Fallback || res.Assistant == nil || res.Assistant.Content != interview.FallbackReply {
		t.Fatalf("expected fallback reply, got %+v", res)
	}
	if res.Phase != domain.PhaseConversation {
		t.Errorf("expected conversation phase, got %s", res.Phase)
	}
}

func TestSubmitWithoutSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	w := env.do(t, http.MethodPost, "/api/interview/messages", "never-started", submitRequest{Content: "hi"})
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	var body ErrorBody
	decodeBody(t, w, &body)
	if body.Action != ActionReload {
		t.Errorf("expected reload action, got %+v", body)
	}
}

func TestSubmitRateLimited(t *testing.T) {
	t.Parallel()

	env := newTestEnvWith(t, envOptions{limiter: NewRateLimiter(1, 1)})
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	if w := env.do(t, http.MethodPost, "/api/interview/messages", "sess-1", submitRequest{Content: "   "}); w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("empty submit: expected 422, got %d", w.Code)
	}
	if w := env.do(t, http.MethodPost, "/api/interview/messages", "sess-1", submitRequest{Content: "real answer"}); w.Code != http.StatusOK {
		t.Fatalf("submit after a rejected one: expected 200, got %d", w.Code)
	}
	w := env.do(t, http.MethodPost, "/api/interview/messages", "sess-1", submitRequest{Content: "two"})
	if w.Code != http.StatusTooManyRequests {
		t.Fatalf("second submit: expected 429, got %d", w.Code)
	}
	var body ErrorBody
	decodeBody(t, w, &body)
	if body.Error != "rate_limited" || body.Action != ActionRetry {
		t.Errorf("unexpected body %+v", body)
	}
}

type gatedReasoner struct {
	entered chan struct{}
	release chan struct{}
}

func (g *gatedReasoner) Respond(ctx context.Context, _ backend.RespondRequest) (*backend.RespondResponse, error) {
	g.entered <- struct{}{}
	select {
	case <-g.release:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	return &backend.RespondResponse{Response: "Go on."}, nil
}

func (g *gatedReasoner) Complete(context.Context, backend.CompleteRequest) error { return nil }

func TestIgnoredDuplicateKeepsToken(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "sess-1")
	reasoner := &gatedReasoner{entered: make(chan struct{}, 2), release: make(chan struct{})}
	sessions := interview.NewRegistry(
		sessionctx.NewLoader(env.repo, nil, nil),
		interview.Options{Reasoner: reasoner, Transcripts: env.repo},
	)
	s, err := sessions.Start(context.Background(), "sess-1")
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	sub := limitedSubmitter{session: s, limiter: NewRateLimiter(1, 2)}

	done := make(chan error, 1)
	go func() {
		_, err := sub.Submit(context.Background(), "first")
		done <- err
	}()
	<-reasoner.entered

	res, err := sub.Submit(context.Background(), "duplicate")
	if err != nil || !res.Ignored {
		t.Fatalf("duplicate while in flight should be ignored, got %+v, %v", res, err)
	}
	close(reasoner.release)
	if err := <-done; err != nil {
		t.Fatalf("first submit failed: %v", err)
	}

	if _, err := sub.Submit(context.Background(), "second"); err != nil {
		t.Fatalf("ignored duplicate should not spend a token, got %v", err)
	}
	if _, err := sub.Submit(context.Background(), "third"); !errors.Is(err, ErrRateLimited) {
		t.Fatalf("expected ErrRateLimited once the burst is spent, got %v", err)
	}
}

func TestFinishFlow(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.reasoner.reply.IsComplete = true
	env.reasoner.reply.TopicsCovered = []string{domain.IntroductionTopic, "Goals"}
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	if w := env.do(t, http.MethodPost, "/api/interview/finish", "sess-1", nil); w.Code != http.StatusConflict {
		t.Fatalf("finish during conversation: expected 409, got %d", w.Code)
	}

	w := env.do(t, http.MethodPost, "/api/interview/messages", "sess-1", submitRequest{Content: "That's all"})
	var res interview.ExchangeResult
	decodeBody(t, w, &res)
	if res.Phase != domain.PhaseSummary {
		t.Fatalf("expected summary phase, got %s", res.Phase)
	}

	if w := env.do(t, http.MethodPost, "/api/interview/messages", "sess-1", submitRequest{Content: "more"}); w.Code != http.StatusConflict {
		t.Fatalf("submit during summary: expected 409, got %d", w.Code)
	}

	w = env.do(t, http.MethodPost, "/api/interview/finish", "sess-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("finish: expected 200, got %d", w.Code)
	}
	var body struct {
		Phase      domain.Phase          `json:"phase"`
		Completion *interview.Completion `json:"completion"`
	}
	decodeBody(t, w, &body)
	if body.Phase != domain.PhaseComplete || body.Completion == nil || body.Completion.CompanyName != "Acme" {
		t.Fatalf("unexpected finish body %+v", body)
	}

	tr, err := env.repo.GetTranscript(t.Context(), "sess-1")
	if err != nil || tr == nil {
		t.Fatalf("expected saved transcript, got %v, %v", tr, err)
	}
}

func TestDraftSurvivesModeSwitch(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	if w := env.do(t, http.MethodPut, "/api/interview/draft", "sess-1", draftRequest{Draft: "half typed"}); w.Code != http.StatusNoContent {
		t.Fatalf("draft: expected 204, got %d", w.Code)
	}
	for _, mode := range []string{"voice", "text"} {
		w := env.do(t, http.MethodPost, "/api/interview/mode", "sess-1", modeRequest{Mode: mode})
		if w.Code != http.StatusOK {
			t.Fatalf("mode %s: expected 200, got %d", mode, w.Code)
		}
		var view interviewView
		decodeBody(t, w, &view)
		if view.Draft != "half typed" || string(view.Input.Mode) != mode {
			t.Fatalf("mode %s: unexpected view draft=%q mode=%s", mode, view.Draft, view.Input.Mode)
		}
	}

	if w := env.do(t, http.MethodPost, "/api/interview/mode", "sess-1", modeRequest{Mode: "telepathy"}); w.Code != http.StatusBadRequest {
		t.Fatalf("invalid mode: expected 400, got %d", w.Code)
	}
}
