// Package modality arbitrates between typed and spoken input. Both feed the
// same interview submission path; only the capture mechanism differs.
package modality

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/interview-funnel/internal/backend"
	"github.com/ashureev/interview-funnel/internal/interview"
)

// Mode is the active input modality.
type Mode string

const (
	ModeText  Mode = "text"
	ModeVoice Mode = "voice"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case ModeText:
		return ModeText, nil
	case ModeVoice:
		return ModeVoice, nil
	default:
		return "", fmt.Errorf("unknown input mode %q", s)
	}
}

// CaptureState is the voice capture lifecycle: idle -> recording -> transcribing -> idle.
type CaptureState string

const (
	CaptureIdle         CaptureState = "idle"
	CaptureRecording    CaptureState = "recording"
	CaptureTranscribing CaptureState = "transcribing"
)

var (
	ErrWrongMode        = errors.New("voice capture requires voice mode")
	ErrNotRecording     = errors.New("no recording in progress")
	ErrAlreadyRecording = errors.New("capture already in progress")
	ErrAudioTooLarge    = errors.New("recording exceeds size limit")
	ErrTranscription    = errors.New("transcription failed")
)

// User-facing messages for the input error slot.
const (
	msgTooLong       = "That recording was too long. Please try a shorter answer."
	msgNoAudio       = "We didn't capture any audio. Please try again."
	msgNothingHeard  = "We couldn't hear anything in that recording. Please try again or type your answer."
	msgTranscription = "We couldn't transcribe that recording. Please try again or type your answer."
)

// Voice capture outcomes reported to the Recorder.
const (
	OutcomeTranscribed = "transcribed"
	OutcomeEmpty       = "empty"
	OutcomeFailed      = "failed"
	OutcomeTooLarge    = "too_large"
	OutcomeCancelled   = "cancelled"
)

// Submitter is the message submission path shared with typed input.
type Submitter interface {
	Submit(ctx context.Context, content string) (*interview.ExchangeResult, error)
}

// Recorder receives voice capture metrics.
type Recorder interface {
	ObserveVoiceCapture(outcome string)
}

type nopRecorder struct{}

func (nopRecorder) ObserveVoiceCapture(string) {}

// Options configures a Controller.
type Options struct {
	MaxAudioBytes int64
	Metrics       Recorder
	Logger        *slog.Logger
}

// Result is the one-shot outcome of a capture.
type Result struct {
	Transcript string                    `json:"transcript"`
	Exchange   *interview.ExchangeResult `json:"exchange,omitempty"`
}

// Snapshot is a copy of the controller state.
type Snapshot struct {
	Mode       Mode         `json:"input_mode"`
	Capture    CaptureState `json:"capture_state"`
	InputError string       `json:"input_error,omitempty"`
}

// Controller owns the input mode, the capture lifecycle and the input error
// slot for one interview session. The error slot is separate from exchange
// failures, which the interview handles itself.
type Controller struct {
	submitter   Submitter
	transcriber backend.Transcriber
	maxAudio    int64
	metrics     Recorder
	logger      *slog.Logger

	mu         sync.Mutex
	mode       Mode
	state      CaptureState
	audio      bytes.Buffer
	mimeType   string
	inputError string
	generation uint64
}

// NewController creates a controller in text mode.
func NewController(submitter Submitter, transcriber backend.Transcriber, opts Options) *Controller {
	if opts.MaxAudioBytes <= 0 {
		opts.MaxAudioBytes = 10 << 20
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Controller{
		submitter:   submitter,
		transcriber: transcriber,
		maxAudio:    opts.MaxAudioBytes,
		metrics:     opts.Metrics,
		logger:      opts.Logger,
		mode:        ModeText,
		state:       CaptureIdle,
	}
}

// Snapshot returns the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{Mode: c.mode, Capture: c.state, InputError: c.inputError}
}

// SetMode switches the input mode. Leaving voice mode discards any capture
// in progress. The pending input buffer is not touched.
func (c *Controller) SetMode(m Mode) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode == m {
		return
	}
	if m == ModeText && c.state != CaptureIdle {
		c.discardLocked()
	}
	c.mode = m
	c.inputError = ""
}

// ClearError empties the input error slot.
func (c *Controller) ClearError() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inputError = ""
}

// StartRecording begins a capture.
func (c *Controller) StartRecording(mimeType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.mode != ModeVoice {
		return ErrWrongMode
	}
	if c.state != CaptureIdle {
		return ErrAlreadyRecording
	}
	c.audio.Reset()
	c.mimeType = mimeType
	c.inputError = ""
	c.state = CaptureRecording
	return nil
}

// AppendAudio adds a chunk to the current recording. Exceeding the size
// limit aborts the capture.
func (c *Controller) AppendAudio(chunk []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != CaptureRecording {
		return ErrNotRecording
	}
	if int64(c.audio.Len()+len(chunk)) > c.maxAudio {
		c.discardLocked()
		c.inputError = msgTooLong
		c.metrics.ObserveVoiceCapture(OutcomeTooLarge)
		return ErrAudioTooLarge
	}
	c.audio.Write(chunk)
	return nil
}

// Cancel abandons the current capture. A transcription already in flight
// is discarded when it returns.
func (c *Controller) Cancel() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == CaptureIdle {
		return
	}
	c.discardLocked()
	c.metrics.ObserveVoiceCapture(OutcomeCancelled)
}

// StopRecording ends the capture, transcribes it and submits a non-empty
// transcript. Capture and transcription failures fill the error slot and
// return an error; the interview itself is unaffected.
func (c *Controller) StopRecording(ctx context.Context) (*Result, error) {
	c.mu.Lock()
	if c.state != CaptureRecording {
		c.mu.Unlock()
		return nil, ErrNotRecording
	}
	if c.audio.Len() == 0 {
		c.state = CaptureIdle
		c.inputError = msgNoAudio
		c.mu.Unlock()
		c.metrics.ObserveVoiceCapture(OutcomeEmpty)
		return nil, fmt.Errorf("%w: no audio captured", ErrTranscription)
	}
	audio := append([]byte(nil), c.audio.Bytes()...)
	mimeType := c.mimeType
	c.audio.Reset()
	c.state = CaptureTranscribing
	gen := c.generation
	c.mu.Unlock()

	text, err := c.transcriber.Transcribe(ctx, audio, mimeType)

	c.mu.Lock()
	if c.generation != gen {
		c.mu.Unlock()
		return nil, context.Canceled
	}
	c.state = CaptureIdle
	if err != nil {
		c.inputError = msgTranscription
		c.mu.Unlock()
		c.logger.Warn("voice transcription failed", "error", err)
		c.metrics.ObserveVoiceCapture(OutcomeFailed)
		return nil, fmt.Errorf("%w: %w", ErrTranscription, err)
	}
	text = strings.TrimSpace(text)
	if text == "" {
		c.inputError = msgNothingHeard
		c.mu.Unlock()
		c.metrics.ObserveVoiceCapture(OutcomeEmpty)
		return nil, fmt.Errorf("%w: empty transcript", ErrTranscription)
	}
	c.mu.Unlock()
	c.metrics.ObserveVoiceCapture(OutcomeTranscribed)

	exchange, err := c.submitter.Submit(ctx, text)
	if err != nil {
		return &Result{Transcript: text}, err
	}
	return &Result{Transcript: text, Exchange: exchange}, nil
}

func (c *Controller) discardLocked() {
	c.audio.Reset()
	c.state = CaptureIdle
	c.generation++
}
