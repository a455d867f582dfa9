// Package backend provides clients for the services the funnel depends on:
// the reasoning service, research status, checkout and transcription.
package backend

import (
	"context"
	"encoding/json"

	"github.com/ashureev/interview-funnel/internal/domain"
)

// Reasoner drives the interview conversation.
type Reasoner interface {
	// Respond sends one user message and returns the assistant turn.
	Respond(ctx context.Context, req RespondRequest) (*RespondResponse, error)

	// Complete records the finished interview.
	Complete(ctx context.Context, req CompleteRequest) error
}

// RespondRequest is the interview response request body.
type RespondRequest struct {
	SessionID string         `json:"session_id"`
	Message   string         `json:"message"`
	Context   RespondContext `json:"context"`
}

// RespondContext carries the conversational context of one exchange.
type RespondContext struct {
	CompanyProfile   domain.CompanyProfile `json:"company_profile"`
	PreviousMessages []domain.Message      `json:"previous_messages"`
	QuestionCount    int                   `json:"question_count"`
	TopicsCovered    []string              `json:"topics_covered"`
}

// RespondResponse is the reasoning service reply. Optional fields are nil when absent.
type RespondResponse struct {
	Response      string   `json:"response"`
	TopicsCovered []string `json:"topics_covered,omitempty"`
	Progress      *int     `json:"progress,omitempty"`
	IsComplete    bool     `json:"is_complete,omitempty"`
}

// CompleteRequest is the interview completion request body.
type CompleteRequest struct {
	SessionID     string           `json:"session_id"`
	Messages      []domain.Message `json:"messages"`
	TopicsCovered []string         `json:"topics_covered"`
}

// ResearchFetcher fetches the partial research record for a funnel session.
type ResearchFetcher interface {
	FetchResearchStatus(ctx context.Context, sessionID string) (*domain.ResearchStatus, error)
}

// Transcriber turns recorded audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error)
}

// CheckoutRequest is the checkout initiation request body.
type CheckoutRequest struct {
	Tier        string             `json:"tier"`
	Email       string             `json:"email"`
	QuizAnswers domain.QuizAnswers `json:"quiz_answers"`
	QuizResults json.RawMessage    `json:"quiz_results,omitempty"`
}

// CheckoutResponse is the checkout initiation reply.
type CheckoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
}
