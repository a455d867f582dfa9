// Package sessionctx builds the Session Context an interview is personalized with.
package sessionctx

import (
	"context"
	"errors"
	"log/slog"
	"strings"

	"github.com/ashureev/interview-funnel/internal/backend"
	"github.com/ashureev/interview-funnel/internal/domain"
)

// ErrContextUnavailable means neither persisted artifacts nor the research
// service produced a company profile. It is terminal: callers send the user
// back to the quiz and never retry.
var ErrContextUnavailable = errors.New("session context unavailable")

// ArtifactReader reads persisted quiz artifacts.
type ArtifactReader interface {
	GetArtifacts(ctx context.Context, sessionID string) (*domain.QuizArtifacts, error)
}

// Loader resolves a Session Context from persisted artifacts, falling back
// to a single research status fetch.
type Loader struct {
	artifacts ArtifactReader
	research  backend.ResearchFetcher
	logger    *slog.Logger
}

// NewLoader creates a Loader. research may be nil to disable the fallback.
func NewLoader(artifacts ArtifactReader, research backend.ResearchFetcher, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{artifacts: artifacts, research: research, logger: logger}
}

// Load returns a fresh Session Context for sessionID.
func (l *Loader) Load(ctx context.Context, sessionID string) (*domain.SessionContext, error) {
	sessionID = strings.TrimSpace(sessionID)

	if sessionID != "" && l.artifacts != nil {
		a, err := l.artifacts.GetArtifacts(ctx, sessionID)
		if err != nil {
			l.logger.Warn("failed to read quiz artifacts", "session_id", sessionID, "error", err)
		} else if a.HasProfile() {
			return &domain.SessionContext{
				SessionID:        sessionID,
				CompanyName:      companyName("", a.CompanyProfile),
				CompanyProfile:   a.CompanyProfile.Clone(),
				ResearchFindings: append([]domain.ResearchFinding(nil), a.ResearchFindings...),
				QuizAnswers:      a.QuizAnswers.Clone(),
			}, nil
		}
	}

	if sessionID == "" || l.research == nil {
		return nil, ErrContextUnavailable
	}

	status, err := l.research.FetchResearchStatus(ctx, sessionID)
	if err != nil {
		l.logger.Warn("research status fetch failed", "session_id", sessionID, "error", err)
		return nil, ErrContextUnavailable
	}
	if status == nil || len(status.CompanyProfile) == 0 {
		return nil, ErrContextUnavailable
	}

	sc := &domain.SessionContext{
		SessionID:      sessionID,
		CompanyName:    companyName(status.CompanyName, status.CompanyProfile),
		CompanyProfile: status.CompanyProfile.Clone(),
	}

	// Quiz answers may still exist without a profile.
	if l.artifacts != nil {
		if a, err := l.artifacts.GetArtifacts(ctx, sessionID); err == nil && a != nil {
			sc.QuizAnswers = a.QuizAnswers.Clone()
			sc.ResearchFindings = append([]domain.ResearchFinding(nil), a.ResearchFindings...)
		}
	}

	return sc, nil
}

func companyName(explicit string, profile domain.CompanyProfile) string {
	if name := strings.TrimSpace(explicit); name != "" {
		return name
	}
	if name := profile.Name(); name != "" {
		return name
	}
	return domain.DefaultCompanyName
}
