package backend

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
)

// TranscriptionClient uploads recorded audio for speech-to-text.
type TranscriptionClient struct {
	baseURL string
	client  *http.Client
}

// NewTranscriptionClient creates a transcription client for baseURL.
func NewTranscriptionClient(baseURL string, client *http.Client) *TranscriptionClient {
	if client == nil {
		client = NewHTTPClient(0)
	}
	return &TranscriptionClient{baseURL: baseURL, client: client}
}

// Transcribe posts audio as multipart form data and returns the transcript text.
func (c *TranscriptionClient) Transcribe(ctx context.Context, audio []byte, mimeType string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("transcribe: no audio recorded")
	}
	if mimeType == "" {
		mimeType = "audio/webm"
	}

	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	header := make(textproto.MIMEHeader)
	header.Set("Content-Disposition", `form-data; name="audio"; filename="recording"`)
	header.Set("Content-Type", mimeType)
	part, err := mw.CreatePart(header)
	if err != nil {
		return "", fmt.Errorf("transcribe: create form part: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return "", fmt.Errorf("transcribe: write audio: %w", err)
	}
	if err := mw.Close(); err != nil {
		return "", fmt.Errorf("transcribe: close form: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, joinURL(c.baseURL, "/api/transcribe"), &body)
	if err != nil {
		return "", fmt.Errorf("transcribe: create request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	req.Header.Set("Accept", "application/json")

	var out struct {
		Text string `json:"text"`
	}
	if err := do(c.client, req, &out); err != nil {
		return "", fmt.Errorf("transcribe: %w", err)
	}
	return strings.TrimSpace(out.Text), nil
}

var _ Transcriber = (*TranscriptionClient)(nil)
