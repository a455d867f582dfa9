package backend

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// HTTPReasoner talks to the reasoning service over JSON/HTTP.
type HTTPReasoner struct {
	baseURL string
	client  *http.Client
}

// NewHTTPReasoner creates a reasoning client for baseURL. A nil client gets
// one with no overall timeout; callers bound each exchange through ctx.
func NewHTTPReasoner(baseURL string, client *http.Client) *HTTPReasoner {
	if client == nil {
		client = &http.Client{}
	}
	return &HTTPReasoner{baseURL: baseURL, client: client}
}

// Respond posts one user message with its conversational context.
func (r *HTTPReasoner) Respond(ctx context.Context, req RespondRequest) (*RespondResponse, error) {
	var resp RespondResponse
	if err := postJSON(ctx, r.client, joinURL(r.baseURL, "/api/interview/respond"), req, &resp); err != nil {
		return nil, fmt.Errorf("interview respond: %w", err)
	}
	if err := validateRespond(&resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Complete posts the finished conversation. No response body is required.
func (r *HTTPReasoner) Complete(ctx context.Context, req CompleteRequest) error {
	if err := postJSON(ctx, r.client, joinURL(r.baseURL, "/api/interview/complete"), req, nil); err != nil {
		return fmt.Errorf("interview complete: %w", err)
	}
	return nil
}

func validateRespond(resp *RespondResponse) error {
	if strings.TrimSpace(resp.Response) == "" {
		return fmt.Errorf("%w: empty assistant response", ErrProtocol)
	}
	if resp.Progress != nil {
		p := *resp.Progress
		if p < 0 {
			p = 0
		}
		if p > 100 {
			p = 100
		}
		resp.Progress = &p
	}
	return nil
}

var _ Reasoner = (*HTTPReasoner)(nil)
