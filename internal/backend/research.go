package backend

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ashureev/interview-funnel/internal/domain"
)

// ResearchClient fetches research status records.
type ResearchClient struct {
	baseURL string
	client  *http.Client
}

// NewResearchClient creates a research status client for baseURL.
func NewResearchClient(baseURL string, client *http.Client) *ResearchClient {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &ResearchClient{baseURL: baseURL, client: client}
}

// FetchResearchStatus returns the research record for sessionID. A 404 or a
// record without a company profile yields (nil, nil).
func (c *ResearchClient) FetchResearchStatus(ctx context.Context, sessionID string) (*domain.ResearchStatus, error) {
	var status domain.ResearchStatus
	err := getJSON(ctx, c.client, joinURL(c.baseURL, "/api/research/status/"+url.PathEscape(sessionID)), &status)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && se.StatusCode == http.StatusNotFound {
			return nil, nil
		}
		return nil, fmt.Errorf("research status: %w", err)
	}
	if len(status.CompanyProfile) == 0 {
		return nil, nil
	}
	return &status, nil
}

var _ ResearchFetcher = (*ResearchClient)(nil)
