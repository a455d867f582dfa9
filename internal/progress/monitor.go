package progress

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/ashureev/interview-funnel/internal/domain"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// State is the overall monitor state.
type State string

const (
	StateConnecting State = "connecting"
	StateStreaming  State = "streaming"
	StateComplete   State = "complete"
	StateError      State = "error"
)

// Terminal reports whether s is final.
func (s State) Terminal() bool {
	return s == StateComplete || s == StateError
}

// Snapshot is a copy of the monitor state delivered to observers.
type Snapshot struct {
	ReportID  string                `json:"report_id"`
	Steps     []domain.ProgressStep `json:"steps"`
	Progress  int                   `json:"progress"`
	State     State                 `json:"state"`
	Source    string                `json:"source"`
	Estimated bool                  `json:"estimated"`
	Message   string                `json:"message,omitempty"`
}

// Recorder receives progress metrics.
type Recorder interface {
	IncProgressFallback()
	ObserveProgressTerminal(state, source string)
}

type nopRecorder struct{}

func (nopRecorder) IncProgressFallback()                  {}
func (nopRecorder) ObserveProgressTerminal(string, string) {}

// MonitorOptions configures a Monitor. Zero values are valid.
type MonitorOptions struct {
	Steps    []domain.ProgressStep // defaults to domain.DefaultReportSteps
	OnUpdate func(Snapshot)
	Tracer   trace.Tracer
	Metrics  Recorder
	Logger   *slog.Logger
}

// Monitor tracks one report job. Exactly one source is authoritative at a
// time: the live source first, then the simulated timeline for the rest of
// the job once the live source fails. Events from a replaced source are
// discarded.
type Monitor struct {
	reportID  string
	live      Source
	simulated Source
	onUpdate  func(Snapshot)
	tracer    trace.Tracer
	metrics   Recorder
	logger    *slog.Logger

	mu       sync.Mutex
	steps    []domain.ProgressStep
	progress int
	state    State
	source   string
	message  string
}

// NewMonitor creates a monitor for reportID. live may be nil, in which case
// the simulated timeline is used from the start.
func NewMonitor(reportID string, live, simulated Source, opts MonitorOptions) *Monitor {
	steps := opts.Steps
	if len(steps) == 0 {
		steps = domain.DefaultReportSteps()
	}
	if opts.Tracer == nil {
		opts.Tracer = noop.NewTracerProvider().Tracer("progress")
	}
	if opts.Metrics == nil {
		opts.Metrics = nopRecorder{}
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if simulated == nil {
		simulated = NewSimulatedSource(0)
	}

	return &Monitor{
		reportID:  reportID,
		live:      live,
		simulated: simulated,
		onUpdate:  opts.OnUpdate,
		tracer:    opts.Tracer,
		metrics:   opts.Metrics,
		logger:    opts.Logger,
		steps:     append([]domain.ProgressStep(nil), steps...),
		state:     StateConnecting,
	}
}

// Run follows the job until a terminal state or until ctx is done, which is
// how callers tear the subscription down. It returns ctx.Err() on teardown
// and nil otherwise.
func (m *Monitor) Run(ctx context.Context) error {
	if m.live != nil {
		err := m.runSource(ctx, m.live)
		if m.Snapshot().State.Terminal() {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		m.logger.Warn("live progress unavailable, switching to simulated timeline",
			"report_id", m.reportID,
			"error", err)
		m.metrics.IncProgressFallback()
	}

	if err := m.runSource(ctx, m.simulated); err != nil && ctx.Err() != nil {
		return ctx.Err()
	}

	// The simulated timeline always reaches a terminal state.
	if !m.Snapshot().State.Terminal() {
		m.apply(m.simulated.Name(), Event{Type: EventComplete})
	}
	return nil
}

func (m *Monitor) runSource(ctx context.Context, src Source) error {
	m.mu.Lock()
	m.source = src.Name()
	if m.state == StateConnecting || m.state == StateStreaming {
		m.state = StateStreaming
	}
	steps := append([]domain.ProgressStep(nil), m.steps...)
	m.mu.Unlock()
	m.notify()

	ctx, span := m.tracer.Start(ctx, "progress."+src.Name(),
		trace.WithAttributes(attribute.String("report.id", m.reportID)))
	defer span.End()

	name := src.Name()
	err := src.Stream(ctx, m.reportID, steps, func(ev Event) {
		m.apply(name, ev)
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		span.RecordError(err)
		span.SetStatus(codes.Error, "progress source failed")
	}
	return err
}

// apply folds an event into the state. Events from a source that is no
// longer authoritative, or after a terminal state, are dropped.
func (m *Monitor) apply(source string, ev Event) {
	m.mu.Lock()
	if m.source != source || m.state.Terminal() {
		m.mu.Unlock()
		return
	}

	switch ev.Type {
	case EventProgress:
		if ev.Progress != nil {
			p := clamp(*ev.Progress)
			// Estimates never move the bar backwards.
			if source == m.simulated.Name() && p < m.progress {
				p = m.progress
			}
			m.progress = p
		}
		if idx := m.stepIndex(ev.Step); idx >= 0 && ev.Status.Valid() {
			m.steps[idx].Status = ev.Status
			if ev.Detail != "" {
				m.steps[idx].Detail = ev.Detail
			}
		} else if ev.Step != "" {
			m.logger.Debug("ignoring progress for unknown step",
				"report_id", m.reportID,
				"step", ev.Step)
		}
	case EventComplete:
		for i := range m.steps {
			m.steps[i].Status = domain.StepCompleted
		}
		m.progress = 100
		m.state = StateComplete
	case EventError:
		for i := range m.steps {
			if m.steps[i].Status == domain.StepActive {
				m.steps[i].Status = domain.StepError
			}
		}
		m.state = StateError
		m.message = ev.Message
		if m.message == "" {
			m.message = "Report generation failed"
		}
	}

	terminal := m.state.Terminal()
	state := m.state
	m.mu.Unlock()

	if terminal {
		m.metrics.ObserveProgressTerminal(string(state), source)
		m.logger.Info("report progress finished",
			"report_id", m.reportID,
			"state", string(state),
			"source", source)
	}
	m.notify()
}

// Snapshot returns a copy of the current state.
func (m *Monitor) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return Snapshot{
		ReportID:  m.reportID,
		Steps:     append([]domain.ProgressStep(nil), m.steps...),
		Progress:  m.progress,
		State:     m.state,
		Source:    m.source,
		Estimated: m.source == m.simulated.Name(),
		Message:   m.message,
	}
}

func (m *Monitor) notify() {
	if m.onUpdate != nil {
		m.onUpdate(m.Snapshot())
	}
}

func (m *Monitor) stepIndex(id string) int {
	if id == "" {
		return -1
	}
	for i := range m.steps {
		if m.steps[i].ID == id {
			return i
		}
	}
	return -1
}

func clamp(p int) int {
	switch {
	case p < 0:
		return 0
	case p > 100:
		return 100
	default:
		return p
	}
}
