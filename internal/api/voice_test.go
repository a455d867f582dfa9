package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ashureev/interview-funnel/internal/identity"
	"github.com/coder/websocket"
)

func dialVoice(ctx context.Context, t *testing.T, srv *httptest.Server, sid string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws/interview/voice"
	header := http.Header{}
	header.Set(identity.SessionHeaderName, sid)
	return websocket.Dial(ctx, url, &websocket.DialOptions{HTTPHeader: header})
}

func readFrame(ctx context.Context, t *testing.T, ws *websocket.Conn) voiceFrame {
	t.Helper()
	_, data, err := ws.Read(ctx)
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	var f voiceFrame
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatalf("bad frame %q: %v", data, err)
	}
	return f
}

func sendFrame(ctx context.Context, t *testing.T, ws *websocket.Conn, msg voiceMessage) {
	t.Helper()
	data, _ := json.Marshal(msg)
	if err := ws.Write(ctx, websocket.MessageText, data); err != nil {
		t.Fatalf("write frame: %v", err)
	}
}

func TestVoiceCaptureSubmitsTranscript(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := dialVoice(ctx, t, srv, "sess-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.CloseNow()

	if f := readFrame(ctx, t, ws); f.Type != "capture" || f.Mode != "text" {
		t.Fatalf("unexpected initial frame %+v", f)
	}

	sendFrame(ctx, t, ws, voiceMessage{Type: "ping"})
	if f := readFrame(ctx, t, ws); f.Type != "pong" {
		t.Fatalf("expected pong, got %+v", f)
	}

	sendFrame(ctx, t, ws, voiceMessage{Type: "mode", Mode: "voice"})
	if f := readFrame(ctx, t, ws); f.Mode != "voice" {
		t.Fatalf("expected voice mode, got %+v", f)
	}

	sendFrame(ctx, t, ws, voiceMessage{Type: "start", MimeType: "audio/webm"})
	if f := readFrame(ctx, t, ws); f.State != "recording" {
		t.Fatalf("expected recording, got %+v", f)
	}

	if err := ws.Write(ctx, websocket.MessageBinary, []byte("fake-audio")); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	sendFrame(ctx, t, ws, voiceMessage{Type: "stop"})

	want := []string{"capture", "transcript", "exchange", "capture"}
	var frames []voiceFrame
	for range want {
		frames = append(frames, readFrame(ctx, t, ws))
	}
	for i, f := range frames {
		if f.Type != want[i] {
			t.Fatalf("frame %d: expected %s, got %+v", i, want[i], f)
		}
	}
	if frames[1].Text != "we sell shoes" {
		t.Errorf("unexpected transcript %q", frames[1].Text)
	}
	if ex := frames[2].Exchange; ex == nil || ex.User == nil || ex.User.Content != "we sell shoes" {
		t.Errorf("unexpected exchange %+v", frames[2].Exchange)
	}
	if frames[3].State != "idle" {
		t.Errorf("expected idle after submission, got %s", frames[3].State)
	}

	s, _ := env.sessions.Get("sess-1")
	if n := len(s.Snapshot().Messages); n != 3 {
		t.Fatalf("expected greeting plus one exchange, got %d messages", n)
	}
}

// recordAndStop switches to voice mode, records one chunk and stops.
func recordAndStop(ctx context.Context, t *testing.T, ws *websocket.Conn) {
	t.Helper()
	sendFrame(ctx, t, ws, voiceMessage{Type: "mode", Mode: "voice"})
	readFrame(ctx, t, ws)
	sendFrame(ctx, t, ws, voiceMessage{Type: "start", MimeType: "audio/webm"})
	if f := readFrame(ctx, t, ws); f.State != "recording" {
		t.Fatalf("expected recording, got %+v", f)
	}
	if err := ws.Write(ctx, websocket.MessageBinary, []byte("fake-audio")); err != nil {
		t.Fatalf("write audio: %v", err)
	}
	sendFrame(ctx, t, ws, voiceMessage{Type: "stop"})
	if f := readFrame(ctx, t, ws); f.State != "transcribing" {
		t.Fatalf("expected transcribing, got %+v", f)
	}
}

func TestVoiceSecondStopKeepsTranscribing(t *testing.T) {
	t.Parallel()

	tr := &gatedTranscriber{text: "we sell shoes", entered: make(chan struct{}, 1), release: make(chan struct{})}
	env := newTestEnvWith(t, envOptions{transcriber: tr})
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := dialVoice(ctx, t, srv, "sess-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.CloseNow()
	readFrame(ctx, t, ws)

	recordAndStop(ctx, t, ws)
	<-tr.entered

	sendFrame(ctx, t, ws, voiceMessage{Type: "stop"})
	f := readFrame(ctx, t, ws)
	if f.Type != "error" || f.State != "transcribing" {
		t.Fatalf("second stop should report the pending transcription, got %+v", f)
	}

	close(tr.release)
	want := []string{"transcript", "exchange", "capture"}
	for i, typ := range want {
		if f := readFrame(ctx, t, ws); f.Type != typ {
			t.Fatalf("frame %d: expected %s, got %+v", i, typ, f)
		}
	}
}

func TestVoiceTranscriptIsRateLimited(t *testing.T) {
	t.Parallel()

	env := newTestEnvWith(t, envOptions{limiter: NewRateLimiter(1, 1)})
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	if w := env.do(t, http.MethodPost, "/api/interview/messages", "sess-1", submitRequest{Content: "typed answer"}); w.Code != http.StatusOK {
		t.Fatalf("typed submit: expected 200, got %d", w.Code)
	}

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := dialVoice(ctx, t, srv, "sess-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.CloseNow()
	readFrame(ctx, t, ws)

	recordAndStop(ctx, t, ws)

	if f := readFrame(ctx, t, ws); f.Type != "transcript" {
		t.Fatalf("expected transcript, got %+v", f)
	}
	if f := readFrame(ctx, t, ws); f.Type != "error" || f.Message != msgRateLimited {
		t.Fatalf("expected rate limit error, got %+v", f)
	}
	if f := readFrame(ctx, t, ws); f.Type != "capture" || f.State != "idle" {
		t.Fatalf("expected idle, got %+v", f)
	}

	s, _ := env.sessions.Get("sess-1")
	if n := len(s.Snapshot().Messages); n != 3 {
		t.Fatalf("throttled transcript should not reach the interview, got %d messages", n)
	}
}

func TestVoiceStartRequiresVoiceMode(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	env.seed(t, "sess-1")
	env.do(t, http.MethodPost, "/api/interview/start", "sess-1", nil)

	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, _, err := dialVoice(ctx, t, srv, "sess-1")
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer ws.CloseNow()
	readFrame(ctx, t, ws)

	sendFrame(ctx, t, ws, voiceMessage{Type: "start"})
	if f := readFrame(ctx, t, ws); f.Type != "error" {
		t.Fatalf("expected error frame, got %+v", f)
	}
}

func TestVoiceRejectsUnknownSession(t *testing.T) {
	t.Parallel()

	env := newTestEnv(t)
	srv := httptest.NewServer(env.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ws, resp, err := dialVoice(ctx, t, srv, "nobody")
	if err == nil {
		ws.CloseNow()
		t.Fatal("expected dial to fail")
	}
	if resp == nil || resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %+v", resp)
	}
}
