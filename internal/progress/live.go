package progress

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ashureev/interview-funnel/internal/domain"
)

// LiveSource follows the report progress event stream.
type LiveSource struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
}

// NewStreamClient returns an HTTP client suited to long-lived streams: no
// overall timeout, but bounded connection setup.
func NewStreamClient() *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.ResponseHeaderTimeout = 15 * time.Second
	return &http.Client{Transport: transport}
}

// NewLiveSource creates a live source reading {baseURL}/api/reports/{id}/stream.
func NewLiveSource(baseURL string, client *http.Client, logger *slog.Logger) *LiveSource {
	if client == nil {
		client = NewStreamClient()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &LiveSource{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  client,
		logger:  logger,
	}
}

// Name implements Source.
func (l *LiveSource) Name() string { return "live" }

// Stream implements Source. Any failure to connect or read, including the
// stream ending before a terminal event, is reported as ErrTransport.
func (l *LiveSource) Stream(ctx context.Context, reportID string, _ []domain.ProgressStep, emit func(Event)) error {
	endpoint := l.baseURL + "/api/reports/" + url.PathEscape(reportID) + "/stream"

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("%w: create request: %v", ErrTransport, err)
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := l.client.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return fmt.Errorf("%w: connect: %v", ErrTransport, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("%w: unexpected status %d", ErrTransport, resp.StatusCode)
	}

	reader := NewSSEReader(resp.Body)
	for {
		name, data, err := reader.ReadEvent()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return fmt.Errorf("%w: stream closed before completion", ErrTransport)
			}
			return fmt.Errorf("%w: read: %v", ErrTransport, err)
		}

		ev, ok := ParseEvent(name, data)
		if !ok {
			l.logger.Debug("discarding malformed progress frame", "report_id", reportID)
			continue
		}

		emit(ev)
		if ev.Type.Terminal() {
			return nil
		}
	}
}
