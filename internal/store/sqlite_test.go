package store

import (
	"context"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/ashureev/interview-funnel/internal/domain"
)

func newTestStore(t *testing.T) Repository {
	t.Helper()
	repo, err := NewSQLite(filepath.Join(t.TempDir(), "funnel.db"))
	if err != nil {
		t.Fatalf("NewSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestArtifactsRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	got, err := repo.GetArtifacts(ctx, "missing")
	if err != nil || got != nil {
		t.Fatalf("expected nil artifacts for unknown session, got %v, %v", got, err)
	}

	in := &domain.QuizArtifacts{
		SessionID:      "sess-1",
		QuizAnswers:    domain.QuizAnswers{"q1": "b"},
		QuizResults:    json.RawMessage(`{"tier":"growth"}`),
		QuizCompleted:  true,
		Email:          "owner@acme.test",
		CompanyProfile: domain.CompanyProfile{"company_name": "Acme"},
		ResearchFindings: []domain.ResearchFinding{
			{Field: "employees", Value: "40", Confidence: 0.8},
		},
	}
	if err := repo.UpsertArtifacts(ctx, in); err != nil {
		t.Fatalf("UpsertArtifacts failed: %v", err)
	}

	got, err = repo.GetArtifacts(ctx, "sess-1")
	if err != nil {
		t.Fatalf("GetArtifacts failed: %v", err)
	}
	if got.CompanyProfile.Name() != "Acme" {
		t.Errorf("unexpected profile %v", got.CompanyProfile)
	}
	if len(got.ResearchFindings) != 1 || got.ResearchFindings[0].Field != "employees" {
		t.Errorf("unexpected findings %v", got.ResearchFindings)
	}
	if got.Email != "owner@acme.test" || !got.QuizCompleted {
		t.Errorf("unexpected email/completed: %q %v", got.Email, got.QuizCompleted)
	}
	if string(got.QuizResults) != `{"tier":"growth"}` {
		t.Errorf("unexpected quiz results %s", got.QuizResults)
	}
}

func TestUpsertArtifactsRequiresSessionID(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	if err := repo.UpsertArtifacts(context.Background(), &domain.QuizArtifacts{}); err == nil {
		t.Fatal("expected error for missing session id")
	}
}

func TestTranscriptRoundTrip(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	now := time.Now().Truncate(time.Second)
	in := &domain.Transcript{
		SessionID:   "sess-2",
		CompanyName: "Acme",
		Phase:       domain.PhaseComplete,
		Messages: []domain.Message{
			{ID: "m1", Role: domain.RoleAssistant, Content: "Hi", Timestamp: now},
			{ID: "m2", Role: domain.RoleUser, Content: "Hello", Timestamp: now},
		},
		Topics:        domain.Topics{domain.IntroductionTopic, "Goals"},
		Progress:      100,
		QuestionCount: 1,
		CompletedAt:   now,
	}
	if err := repo.SaveTranscript(ctx, in); err != nil {
		t.Fatalf("SaveTranscript failed: %v", err)
	}

	got, err := repo.GetTranscript(ctx, "sess-2")
	if err != nil {
		t.Fatalf("GetTranscript failed: %v", err)
	}
	if got.Phase != domain.PhaseComplete || len(got.Messages) != 2 || len(got.Topics) != 2 {
		t.Fatalf("unexpected transcript %+v", got)
	}
	if !got.CompletedAt.Equal(now) {
		t.Errorf("expected completed_at %v, got %v", now, got.CompletedAt)
	}
}

func TestCleanupExpired(t *testing.T) {
	t.Parallel()

	repo := newTestStore(t)
	ctx := context.Background()

	if err := repo.UpsertArtifacts(ctx, &domain.QuizArtifacts{SessionID: "old"}); err != nil {
		t.Fatalf("UpsertArtifacts failed: %v", err)
	}

	artifacts, transcripts, err := repo.CleanupExpired(ctx, time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if artifacts != 0 || transcripts != 0 {
		t.Fatalf("fresh rows must survive, deleted %d/%d", artifacts, transcripts)
	}

	artifacts, _, err = repo.CleanupExpired(ctx, -time.Hour)
	if err != nil {
		t.Fatalf("CleanupExpired failed: %v", err)
	}
	if artifacts != 1 {
		t.Fatalf("expected 1 expired artifact row, got %d", artifacts)
	}
}
