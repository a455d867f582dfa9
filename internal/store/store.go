// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"github.com/ashureev/interview-funnel/internal/domain"
)

// Repository persists funnel artifacts and interview transcripts.
type Repository interface {
	// GetArtifacts returns the quiz artifacts for a funnel session, or nil when none exist.
	GetArtifacts(ctx context.Context, sessionID string) (*domain.QuizArtifacts, error)

	// UpsertArtifacts creates or replaces the quiz artifacts for a funnel session.
	UpsertArtifacts(ctx context.Context, artifacts *domain.QuizArtifacts) error

	// SaveTranscript creates or replaces the interview transcript for a session.
	SaveTranscript(ctx context.Context, transcript *domain.Transcript) error

	// GetTranscript returns a saved transcript, or nil when none exists.
	GetTranscript(ctx context.Context, sessionID string) (*domain.Transcript, error)

	// CleanupExpired removes artifacts and transcripts not updated within ttl.
	CleanupExpired(ctx context.Context, ttl time.Duration) (artifacts int64, transcripts int64, err error)

	// Ping verifies database connectivity.
	Ping(ctx context.Context) error

	// Close closes the database connection.
	Close() error
}
