// Package progress tracks report generation. A Monitor follows the live
// event stream for a report and switches to a simulated timeline when the
// stream cannot be used.
package progress

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/ashureev/interview-funnel/internal/domain"
)

// ErrTransport marks a failure of the live connection itself, as opposed to
// an error event reported by the job.
var ErrTransport = errors.New("progress stream transport failure")

// EventType discriminates progress stream payloads.
type EventType string

const (
	EventProgress EventType = "progress"
	EventComplete EventType = "complete"
	EventError    EventType = "error"
)

// Terminal reports whether the event ends the job.
func (t EventType) Terminal() bool {
	return t == EventComplete || t == EventError
}

// Event is one progress stream payload.
type Event struct {
	Type     EventType         `json:"type"`
	Step     string            `json:"step,omitempty"`
	Status   domain.StepStatus `json:"status,omitempty"`
	Detail   string            `json:"detail,omitempty"`
	Progress *int              `json:"progress,omitempty"`
	Message  string            `json:"message,omitempty"`
}

// ParseEvent decodes a stream payload. eventName is the SSE event field and
// is used when the payload carries no type.
func ParseEvent(eventName string, data []byte) (Event, bool) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, false
	}
	if ev.Type == "" {
		ev.Type = EventType(eventName)
	}
	switch ev.Type {
	case EventProgress, EventComplete, EventError:
		return ev, true
	default:
		return Event{}, false
	}
}

// Source produces progress events for a report. Stream calls emit for each
// event until a terminal event was emitted (returns nil), ctx is done, or
// the source fails. steps is the current step list.
type Source interface {
	Name() string
	Stream(ctx context.Context, reportID string, steps []domain.ProgressStep, emit func(Event)) error
}
