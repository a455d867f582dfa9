package main

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/ashureev/interview-funnel/internal/backend"
	"github.com/ashureev/interview-funnel/internal/domain"
	"github.com/ashureev/interview-funnel/internal/interview"
	"github.com/ashureev/interview-funnel/internal/progress"
)

type scriptedReasoner struct {
	replies []backend.RespondResponse
}

func (r *scriptedReasoner) Respond(context.Context, backend.RespondRequest) (*backend.RespondResponse, error) {
	reply := r.replies[0]
	if len(r.replies) > 1 {
		r.replies = r.replies[1:]
	}
	return &reply, nil
}

func (r *scriptedReasoner) Complete(context.Context, backend.CompleteRequest) error { return nil }

func TestChatLoopRunsToCompletion(t *testing.T) {
	t.Parallel()

	reasoner := &scriptedReasoner{replies: []backend.RespondResponse{
		{Response: "What are your goals?", TopicsCovered: []string{domain.IntroductionTopic}},
		{Response: "Thanks, that's everything.", TopicsCovered: []string{domain.IntroductionTopic, "Goals"}, IsComplete: true},
	}}
	s := interview.NewSession(&domain.SessionContext{SessionID: "sess-1", CompanyName: "Acme"},
		interview.Options{Reasoner: reasoner})
	s.Begin(context.Background())

	in := strings.NewReader("I run sales\n\nGrow revenue\n/finish\n")
	var out bytes.Buffer
	if err := chatLoop(context.Background(), s, in, &out); err != nil {
		t.Fatalf("chatLoop failed: %v", err)
	}

	text := out.String()
	for _, want := range []string{"**Acme**", "What are your goals?", "Type /finish", "complete after 2 questions", "Introduction, Goals"} {
		if !strings.Contains(text, want) {
			t.Errorf("output missing %q:\n%s", want, text)
		}
	}
	if s.Phase() != domain.PhaseComplete {
		t.Fatalf("expected complete phase, got %s", s.Phase())
	}
}

func TestChatLoopFinishTooEarly(t *testing.T) {
	t.Parallel()

	s := interview.NewSession(&domain.SessionContext{SessionID: "sess-1"},
		interview.Options{Reasoner: &scriptedReasoner{replies: []backend.RespondResponse{{Response: "ok"}}}})
	s.Begin(context.Background())

	var out bytes.Buffer
	if err := chatLoop(context.Background(), s, strings.NewReader("/finish\n"), &out); err != nil {
		t.Fatalf("chatLoop failed: %v", err)
	}
	if !strings.Contains(out.String(), "isn't ready to finish") {
		t.Fatalf("expected not-ready notice, got:\n%s", out.String())
	}
}

func TestPrintSnapshot(t *testing.T) {
	t.Parallel()

	steps := domain.DefaultReportSteps()
	steps[0].Status = domain.StepCompleted
	steps[1].Status = domain.StepActive

	var out bytes.Buffer
	printSnapshot(&out, progress.Snapshot{
		Steps:     steps,
		Progress:  20,
		State:     progress.StateStreaming,
		Estimated: true,
	})

	got := out.String()
	if !strings.Contains(got, "[ 20%]") || !strings.Contains(got, "(estimated)") ||
		!strings.Contains(got, "+research") || !strings.Contains(got, "*analysis") {
		t.Fatalf("unexpected line %q", got)
	}
}
