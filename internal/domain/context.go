// Package domain contains core domain types for the interview funnel.
package domain

import (
	"encoding/json"
	"strings"
	"time"
)

// DefaultCompanyName is used when neither the profile nor the research
// record carries a company name.
const DefaultCompanyName = "your company"

// CompanyProfile is an opaque structured record describing the prospect's company.
type CompanyProfile map[string]any

// ResearchFinding is one fact discovered during pre-interview research.
type ResearchFinding struct {
	Field      string  `json:"field"`
	Value      string  `json:"value"`
	Confidence float64 `json:"confidence"`
}

// QuizAnswers maps quiz question IDs to the answer given.
type QuizAnswers map[string]any

// SessionContext personalizes one interview. It is built once at load and
// never mutated afterwards.
type SessionContext struct {
	SessionID        string            `json:"session_id"`
	CompanyName      string            `json:"company_name"`
	CompanyProfile   CompanyProfile    `json:"company_profile"`
	ResearchFindings []ResearchFinding `json:"research_findings"`
	QuizAnswers      QuizAnswers       `json:"quiz_answers"`
}

// QuizArtifacts are the intermediate funnel artifacts persisted per session
// between the quiz, checkout and interview stages.
type QuizArtifacts struct {
	SessionID        string            `json:"session_id"`
	QuizAnswers      QuizAnswers       `json:"quiz_answers,omitempty"`
	QuizResults      json.RawMessage   `json:"quiz_results,omitempty"`
	QuizCompleted    bool              `json:"quiz_completed"`
	Email            string            `json:"email,omitempty"`
	CompanyProfile   CompanyProfile    `json:"company_profile,omitempty"`
	ResearchFindings []ResearchFinding `json:"research_findings,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
	UpdatedAt        time.Time         `json:"updated_at"`
}

// HasProfile reports whether the artifacts carry enough data to personalize an interview.
func (a *QuizArtifacts) HasProfile() bool {
	return a != nil && len(a.CompanyProfile) > 0
}

// ResearchStatus is the partial research record returned by the research
// service. A nil CompanyProfile means "no data".
type ResearchStatus struct {
	CompanyName    string         `json:"company_name,omitempty"`
	CompanyProfile CompanyProfile `json:"company_profile,omitempty"`
}

// Name returns the company name recorded in the profile, if any.
func (p CompanyProfile) Name() string {
	for _, key := range []string{"company_name", "name", "companyName"} {
		if v, ok := p[key].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

// Clone returns a deep copy so a session never shares mutable state with its source.
func (p CompanyProfile) Clone() CompanyProfile {
	if p == nil {
		return nil
	}
	return CompanyProfile(cloneMap(p))
}

// Clone returns a deep copy of the answers.
func (q QuizAnswers) Clone() QuizAnswers {
	if q == nil {
		return nil
	}
	return QuizAnswers(cloneMap(q))
}

func cloneMap(src map[string]any) map[string]any {
	dst := make(map[string]any, len(src))
	for k, v := range src {
		dst[k] = cloneValue(v)
	}
	return dst
}

func cloneValue(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneMap(t)
	case []any:
		out := make([]any, len(t))
		for i := range t {
			out[i] = cloneValue(t[i])
		}
		return out
	default:
		return v
	}
}
