package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/interview-funnel/internal/identity"
	"github.com/ashureev/interview-funnel/internal/interview"
	"github.com/ashureev/interview-funnel/internal/modality"
	"github.com/coder/websocket"
)

// VoiceHandler carries voice capture over a websocket: text frames control
// the capture and binary frames carry audio.
type VoiceHandler struct {
	*Handler
	allowedOrigin string
	isDev         bool
	maxAudioBytes int64
}

// NewVoiceHandler creates a voice websocket handler.
func NewVoiceHandler(base *Handler, allowedOrigin string, isDev bool, maxAudioBytes int64) *VoiceHandler {
	if maxAudioBytes <= 0 {
		maxAudioBytes = 10 << 20
	}
	return &VoiceHandler{
		Handler:       base,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
		maxAudioBytes: maxAudioBytes,
	}
}

// voiceMessage is a client control frame.
type voiceMessage struct {
	Type     string `json:"type"`
	Mode     string `json:"mode,omitempty"`
	MimeType string `json:"mime_type,omitempty"`
}

// voiceFrame is a server frame.
type voiceFrame struct {
	Type     string                    `json:"type"`
	State    modality.CaptureState     `json:"state,omitempty"`
	Mode     modality.Mode             `json:"mode,omitempty"`
	Text     string                    `json:"text,omitempty"`
	Message  string                    `json:"message,omitempty"`
	Exchange *interview.ExchangeResult `json:"exchange,omitempty"`
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *VoiceHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	sessionID := identity.SessionIDFromContext(r.Context())
	slog.Info("Voice connection request", "session_id", sessionID, "ip", identity.IPFromRequest(r))

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	s, ok := h.sessions.Get(sessionID)
	if !ok || sessionID == "" {
		ErrorWithAction(w, http.StatusNotFound, "interview_not_started",
			"Your interview session has expired. Reload the page to start again.", ActionReload)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "session_id", sessionID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "session_id", sessionID)
		}
	}()
	ws.SetReadLimit(h.maxAudioBytes + 1024)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	ctrl := h.controller(s)
	snap := ctrl.Snapshot()
	h.writeJSON(ctx, ws, voiceFrame{Type: "capture", State: snap.Capture, Mode: snap.Mode})

	var wg sync.WaitGroup
	h.inputLoop(ctx, ws, ctrl, sessionID, &wg)

	// Abandon an unfinished capture when the client goes away.
	ctrl.Cancel()
	wg.Wait()
	slog.Info("Voice session ended", "session_id", sessionID)
}

func (h *VoiceHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

//nolint:gocognit // Message dispatch must coordinate websocket and capture state.
func (h *VoiceHandler) inputLoop(ctx context.Context, ws *websocket.Conn, ctrl *modality.Controller, sessionID string, wg *sync.WaitGroup) {
	for {
		typ, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "session_id", sessionID)
			} else if ctx.Err() == nil {
				slog.Warn("WebSocket read error", "error", err, "session_id", sessionID)
			}
			return
		}

		if typ == websocket.MessageBinary {
			if err := ctrl.AppendAudio(message); err != nil {
				h.sendCaptureError(ctx, ws, ctrl, err)
			}
			continue
		}

		var msg voiceMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			h.writeJSON(ctx, ws, voiceFrame{Type: "error", Message: "invalid message"})
			continue
		}

		switch msg.Type {
		case "start":
			if err := ctrl.StartRecording(msg.MimeType); err != nil {
				h.sendCaptureError(ctx, ws, ctrl, err)
				continue
			}
			h.writeJSON(ctx, ws, voiceFrame{Type: "capture", State: modality.CaptureRecording})
		case "stop":
			// A stop outside recording leaves a pending transcription alone.
			if ctrl.Snapshot().Capture != modality.CaptureRecording {
				h.sendCaptureError(ctx, ws, ctrl, modality.ErrNotRecording)
				continue
			}
			h.writeJSON(ctx, ws, voiceFrame{Type: "capture", State: modality.CaptureTranscribing})
			wg.Add(1)
			go func() {
				defer wg.Done()
				h.finishCapture(ctx, ws, ctrl, sessionID)
			}()
		case "cancel":
			ctrl.Cancel()
			h.writeJSON(ctx, ws, voiceFrame{Type: "capture", State: modality.CaptureIdle})
		case "mode":
			mode, err := modality.ParseMode(msg.Mode)
			if err != nil {
				h.writeJSON(ctx, ws, voiceFrame{Type: "error", Message: err.Error()})
				continue
			}
			ctrl.SetMode(mode)
			snap := ctrl.Snapshot()
			h.writeJSON(ctx, ws, voiceFrame{Type: "capture", State: snap.Capture, Mode: snap.Mode})
		case "ping":
			h.writeJSON(ctx, ws, voiceFrame{Type: "pong"})
		}
	}
}

// finishCapture transcribes and submits the recording. The submission is
// not tied to the socket so a disconnect cannot leave a half-finished exchange.
func (h *VoiceHandler) finishCapture(ctx context.Context, ws *websocket.Conn, ctrl *modality.Controller, sessionID string) {
	res, err := ctrl.StopRecording(context.WithoutCancel(ctx))
	switch {
	case errors.Is(err, context.Canceled):
		return
	case res != nil:
		h.writeJSON(ctx, ws, voiceFrame{Type: "transcript", Text: res.Transcript})
	}

	if err != nil {
		switch {
		case errors.Is(err, ErrRateLimited):
			h.writeJSON(ctx, ws, voiceFrame{Type: "error", Message: msgRateLimited})
		case errors.Is(err, interview.ErrNotAcceptingMessages):
			h.writeJSON(ctx, ws, voiceFrame{Type: "error", Message: "The interview is no longer accepting messages."})
		default:
			h.sendCaptureError(ctx, ws, ctrl, err)
		}
		h.writeJSON(ctx, ws, voiceFrame{Type: "capture", State: modality.CaptureIdle})
		return
	}

	if res.Exchange != nil && !res.Exchange.Ignored {
		h.writeJSON(ctx, ws, voiceFrame{Type: "exchange", Exchange: res.Exchange})
	}
	h.writeJSON(ctx, ws, voiceFrame{Type: "capture", State: modality.CaptureIdle})
	slog.Debug("Voice capture submitted", "session_id", sessionID)
}

func (h *VoiceHandler) sendCaptureError(ctx context.Context, ws *websocket.Conn, ctrl *modality.Controller, err error) {
	msg := ctrl.Snapshot().InputError
	if msg == "" {
		msg = err.Error()
	}
	h.writeJSON(ctx, ws, voiceFrame{Type: "error", Message: msg, State: ctrl.Snapshot().Capture})
}

func (h *VoiceHandler) writeJSON(ctx context.Context, ws *websocket.Conn, v interface{}) {
	if ctx.Err() != nil {
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		slog.Debug("Failed to marshal voice frame", "error", err)
		return
	}
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		slog.Debug("Failed to write voice frame", "error", err)
	}
}
