package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"regexp"
	"time"

	"github.com/ashureev/interview-funnel/internal/config"
	"github.com/ashureev/interview-funnel/internal/progress"
	"github.com/go-chi/chi/v5"
)

var reportIDPattern = regexp.MustCompile(`^[A-Za-z0-9._:-]{1,128}$`)

// MonitorFactory builds a progress monitor for one report. onUpdate
// receives every state change.
type MonitorFactory func(reportID string, onUpdate func(progress.Snapshot)) *progress.Monitor

// ProgressHandler relays report generation progress to the browser over SSE.
type ProgressHandler struct {
	newMonitor MonitorFactory
	cfg        config.SSEConfig
}

// NewProgressHandler creates a progress relay.
func NewProgressHandler(newMonitor MonitorFactory, cfg config.SSEConfig) *ProgressHandler {
	if cfg.KeepaliveInterval <= 0 {
		cfg.KeepaliveInterval = 10 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 5 * time.Second
	}
	return &ProgressHandler{newMonitor: newMonitor, cfg: cfg}
}

// RegisterRoutes registers the progress stream route.
func (h *ProgressHandler) RegisterRoutes(r chi.Router) {
	r.Get("/api/reports/{reportID}/progress", h.Stream)
}

// Stream runs a Monitor for the report and forwards its snapshots until a
// terminal state. A client disconnect tears the monitor down.
//
//nolint:gocognit // SSE lifecycle handling intentionally keeps branches together.
func (h *ProgressHandler) Stream(w http.ResponseWriter, r *http.Request) {
	reportID := chi.URLParam(r, "reportID")
	if !reportIDPattern.MatchString(reportID) {
		Error(w, http.StatusBadRequest, "invalid report id")
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, `{"error": "streaming not supported"}`, http.StatusInternalServerError)
		return
	}

	if err := writeSSERetry(w, h.cfg.RetryDelay.Milliseconds()); err != nil {
		slog.Warn("failed to write SSE retry header", "error", err, "report_id", reportID)
		return
	}
	flusher.Flush()

	// Only the latest snapshot matters; a slow client skips intermediate ones.
	updates := make(chan progress.Snapshot, 1)
	publish := func(s progress.Snapshot) {
		for {
			select {
			case updates <- s:
				return
			default:
			}
			select {
			case <-updates:
			default:
			}
		}
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	monitor := h.newMonitor(reportID, publish)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := monitor.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Warn("progress monitor stopped", "report_id", reportID, "error", err)
		}
	}()
	defer func() {
		cancel()
		<-done
	}()

	slog.Info("Progress stream connected", "report_id", reportID)

	keepalive := time.NewTicker(h.cfg.KeepaliveInterval)
	defer keepalive.Stop()

	var eventID int64
	send := func(s progress.Snapshot) bool {
		event := "progress"
		switch s.State {
		case progress.StateComplete:
			event = "complete"
		case progress.StateError:
			event = "error"
		}
		data, err := json.Marshal(snapshotView(s))
		if err != nil {
			slog.Warn("failed to marshal progress snapshot", "error", err)
			return false
		}
		eventID++
		if err := writeSSEWithID(w, eventID, event, string(data)); err != nil {
			slog.Warn("failed to write SSE progress event", "error", err, "report_id", reportID)
			return false
		}
		flusher.Flush()
		return true
	}

	for {
		select {
		case <-r.Context().Done():
			slog.Info("Progress stream disconnected", "report_id", reportID)
			return
		case s := <-updates:
			if !send(s) || s.State.Terminal() {
				return
			}
		case <-done:
			// Run returned: deliver the final state once.
			final := monitor.Snapshot()
			send(final)
			return
		case <-keepalive.C:
			if err := writeSSE(w, "ping", `{"status":"alive"}`); err != nil {
				slog.Warn("failed to write SSE keepalive ping", "error", err, "report_id", reportID)
				return
			}
			flusher.Flush()
		}
	}
}

type progressView struct {
	progress.Snapshot
	Action string `json:"action,omitempty"`
}

// snapshotView attaches the recovery action for a failed report.
func snapshotView(s progress.Snapshot) progressView {
	v := progressView{Snapshot: s}
	if s.State == progress.StateError {
		v.Action = ActionReload
	}
	return v
}
