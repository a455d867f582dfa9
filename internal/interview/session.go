package interview

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ashureev/interview-funnel/internal/backend"
	"github.com/ashureev/interview-funnel/internal/domain"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

var (
	// ErrEmptyMessage is returned for blank submissions. Nothing is appended
	// and no request is made.
	ErrEmptyMessage = errors.New("message is empty")

	// ErrNotAcceptingMessages is returned when the session is not in the
	// conversation phase.
	ErrNotAcceptingMessages = errors.New("interview is not accepting messages")
)

// FallbackReply is appended when an exchange fails so the conversation can continue.
const FallbackReply = "Sorry, I didn't quite catch that. Could you tell me a bit more about what you mean?"

// Exchange outcomes reported to the Recorder.
const (
	OutcomeOK       = "ok"
	OutcomeFallback = "fallback"
	OutcomeIgnored  = "ignored"
	OutcomeEmpty    = "empty"
)

// Recorder receives interview metrics.
type Recorder interface {
	ObserveExchange(outcome string, duration time.Duration)
	ObservePhaseTransition(from, to string)
	SetActiveSessions(n int)
}

type nopRecorder struct{}

func (nopRecorder) ObserveExchange(string, time.Duration) {}
func (nopRecorder) ObservePhaseTransition(string, string) {}
func (nopRecorder) SetActiveSessions(int)                 {}

// TranscriptSaver persists finished interviews.
type TranscriptSaver interface {
	SaveTranscript(ctx context.Context, transcript *domain.Transcript) error
}

// Options configures a Session.
type Options struct {
	Reasoner        backend.Reasoner
	Transcripts     TranscriptSaver // optional
	GreetingDelay   time.Duration
	ExchangeTimeout time.Duration
	FinalizeTimeout time.Duration
	ContextWindow   int
	MaxQuestions    int // 0 disables the local cap
	Tracer          trace.Tracer
	Metrics         Recorder
	Logger          *slog.Logger
	Now             func() time.Time
}

func (o Options) withDefaults() Options {
	if o.ExchangeTimeout <= 0 {
		o.ExchangeTimeout = 60 * time.Second
	}
	if o.FinalizeTimeout <= 0 {
		o.FinalizeTimeout = 15 * time.Second
	}
	if o.ContextWindow <= 0 || o.ContextWindow > 10 {
		o.ContextWindow = 10
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("interview")
	}
	if o.Metrics == nil {
		o.Metrics = nopRecorder{}
	}
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ExchangeResult describes one submission.
type ExchangeResult struct {
	// Ignored is set when another exchange was already in flight.
	Ignored       bool            `json:"ignored,omitempty"`
	Fallback      bool            `json:"fallback,omitempty"`
	User          *domain.Message `json:"user_message,omitempty"`
	Assistant     *domain.Message `json:"assistant_message,omitempty"`
	Phase         domain.Phase    `json:"phase"`
	Topics        domain.Topics   `json:"topics_covered"`
	Progress      int             `json:"progress"`
	QuestionCount int             `json:"question_count"`
}

// Completion is shown once the interview is complete.
type Completion struct {
	CompanyName   string        `json:"company_name"`
	Topics        domain.Topics `json:"topics_covered"`
	QuestionCount int           `json:"question_count"`
	NextSteps     []string      `json:"next_steps"`
}

// Snapshot is a point-in-time copy of session state.
type Snapshot struct {
	SessionID     string           `json:"session_id"`
	CompanyName   string           `json:"company_name"`
	Phase         domain.Phase     `json:"phase"`
	Messages      []domain.Message `json:"messages"`
	Topics        domain.Topics    `json:"topics_covered"`
	Progress      int              `json:"progress"`
	QuestionCount int              `json:"question_count"`
	InFlight      bool             `json:"in_flight"`
	Draft         string           `json:"draft"`
	Completion    *Completion      `json:"completion,omitempty"`
}

// Session is one interview. Messages are append-only and at most one
// exchange is in flight at a time.
type Session struct {
	sc   *domain.SessionContext
	opts Options

	greetOnce  sync.Once
	inFlight   atomic.Bool
	finalizing atomic.Bool

	mu            sync.Mutex
	machine       *StateMachine
	messages      []domain.Message
	topics        domain.Topics
	progress      int
	questionCount int
	draft         string
	lastActive    time.Time
}

// NewSession creates a session in the loading phase for a resolved context.
func NewSession(sc *domain.SessionContext, opts Options) *Session {
	opts = opts.withDefaults()
	s := &Session{
		sc:         sc,
		opts:       opts,
		topics:     domain.NewTopics(),
		lastActive: opts.Now(),
	}
	s.machine = NewStateMachine(func(from, to domain.Phase) {
		opts.Metrics.ObservePhaseTransition(from.String(), to.String())
		opts.Logger.Info("interview phase changed",
			"session_id", sc.SessionID,
			"from", from.String(),
			"to", to.String())
	})
	return s
}

// ID returns the funnel session id.
func (s *Session) ID() string { return s.sc.SessionID }

// Context returns the immutable session context.
func (s *Session) Context() *domain.SessionContext { return s.sc }

// Greeting returns the deterministic opening message for a context.
func Greeting(sc *domain.SessionContext) string {
	name := sc.CompanyName
	if name == "" {
		name = domain.DefaultCompanyName
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Hi! Thanks for taking the time to talk with me. I've looked over what we know about **%s**", name)
	if n := len(sc.ResearchFindings); n > 0 {
		fmt.Fprintf(&b, " along with %d research findings", n)
	}
	b.WriteString(", and I'd like to ask a few questions so your report reflects your real priorities.\n\n")
	b.WriteString("To start, what is your role, and what prompted you to look into this now?")
	return b.String()
}

// Begin moves the session from loading through greeting into conversation,
// appending the greeting exactly once. Later calls are no-ops.
func (s *Session) Begin(ctx context.Context) {
	s.greetOnce.Do(func() {
		s.mu.Lock()
		_ = s.machine.Transition(domain.PhaseGreeting)
		s.mu.Unlock()

		if d := s.opts.GreetingDelay; d > 0 {
			t := time.NewTimer(d)
			select {
			case <-t.C:
			case <-ctx.Done():
				t.Stop()
			}
		}

		s.mu.Lock()
		defer s.mu.Unlock()
		s.messages = append(s.messages, s.newMessage(domain.RoleAssistant, Greeting(s.sc)))
		_ = s.machine.Transition(domain.PhaseConversation)
		s.touch()
	})
}

// Phase returns the current phase.
func (s *Session) Phase() domain.Phase {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.machine.Phase()
}

// SetDraft replaces the pending input buffer.
func (s *Session) SetDraft(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.draft = text
	s.touch()
}

// Draft returns the pending input buffer.
func (s *Session) Draft() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.draft
}

// InFlight reports whether an exchange is pending.
func (s *Session) InFlight() bool {
	return s.inFlight.Load()
}

// Submit sends one user message to the reasoning service. A submission made
// while another is pending returns a result with Ignored set and changes
// nothing. Backend failures are absorbed into a fallback reply.
func (s *Session) Submit(ctx context.Context, content string) (*ExchangeResult, error) {
	text := strings.TrimSpace(content)
	if text == "" {
		s.opts.Metrics.ObserveExchange(OutcomeEmpty, 0)
		return nil, ErrEmptyMessage
	}

	if !s.inFlight.CompareAndSwap(false, true) {
		s.opts.Metrics.ObserveExchange(OutcomeIgnored, 0)
		return &ExchangeResult{Ignored: true, Phase: s.Phase()}, nil
	}
	defer s.inFlight.Store(false)

	s.mu.Lock()
	if s.machine.Phase() != domain.PhaseConversation {
		phase := s.machine.Phase()
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: phase is %s", ErrNotAcceptingMessages, phase)
	}
	previous := domain.LastN(s.messages, s.opts.ContextWindow)
	userMsg := s.newMessage(domain.RoleUser, text)
	s.messages = append(s.messages, userMsg)
	s.draft = ""
	s.touch()
	req := backend.RespondRequest{
		SessionID: s.sc.SessionID,
		Message:   text,
		Context: backend.RespondContext{
			CompanyProfile:   s.sc.CompanyProfile,
			PreviousMessages: previous,
			QuestionCount:    s.questionCount,
			TopicsCovered:    append([]string(nil), s.topics...),
		},
	}
	s.mu.Unlock()

	ctx, span := s.opts.Tracer.Start(ctx, "interview.exchange",
		trace.WithAttributes(
			attribute.String("session.id", s.sc.SessionID),
			attribute.Int("question.count", req.Context.QuestionCount),
		))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.opts.ExchangeTimeout)
	started := time.Now()
	resp, err := s.opts.Reasoner.Respond(callCtx, req)
	cancel()
	elapsed := time.Since(started)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.touch()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "exchange failed")
		s.opts.Logger.Warn("interview exchange failed, using fallback reply",
			"session_id", s.sc.SessionID,
			"error", err)
		s.opts.Metrics.ObserveExchange(OutcomeFallback, elapsed)

		reply := s.newMessage(domain.RoleAssistant, FallbackReply)
		s.messages = append(s.messages, reply)
		return s.resultLocked(&userMsg, &reply, true), nil
	}

	s.opts.Metrics.ObserveExchange(OutcomeOK, elapsed)

	reply := s.newMessage(domain.RoleAssistant, resp.Response)
	s.messages = append(s.messages, reply)
	s.questionCount++
	s.topics = s.topics.Merge(resp.TopicsCovered)
	if resp.Progress != nil {
		s.progress = *resp.Progress
	}

	capped := s.opts.MaxQuestions > 0 && s.questionCount >= s.opts.MaxQuestions
	if resp.IsComplete || capped {
		if capped && !resp.IsComplete {
			s.opts.Logger.Info("question cap reached, moving to summary",
				"session_id", s.sc.SessionID,
				"question_count", s.questionCount)
		}
		_ = s.machine.Transition(domain.PhaseSummary)
	}
	span.SetAttributes(attribute.Bool("interview.complete", resp.IsComplete))

	return s.resultLocked(&userMsg, &reply, false), nil
}

// Finish finalizes an interview in the summary phase. The phase becomes
// complete even when the completion call fails. Finishing a completed
// interview returns the same completion again.
func (s *Session) Finish(ctx context.Context) (*Completion, error) {
	s.mu.Lock()
	phase := s.machine.Phase()
	if phase == domain.PhaseComplete {
		c := s.completionLocked()
		s.mu.Unlock()
		return c, nil
	}
	if phase != domain.PhaseSummary {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: cannot finish from %s", ErrInvalidTransition, phase)
	}
	if !s.finalizing.CompareAndSwap(false, true) {
		s.mu.Unlock()
		return nil, fmt.Errorf("%w: finish already in progress", ErrInvalidTransition)
	}
	req := backend.CompleteRequest{
		SessionID:     s.sc.SessionID,
		Messages:      append([]domain.Message(nil), s.messages...),
		TopicsCovered: append([]string(nil), s.topics...),
	}
	s.mu.Unlock()

	ctx, span := s.opts.Tracer.Start(ctx, "interview.finalize",
		trace.WithAttributes(attribute.String("session.id", s.sc.SessionID)))
	defer span.End()

	callCtx, cancel := context.WithTimeout(ctx, s.opts.FinalizeTimeout)
	err := s.opts.Reasoner.Complete(callCtx, req)
	cancel()
	if err != nil {
		span.RecordError(err)
		s.opts.Logger.Warn("interview finalization failed, completing anyway",
			"session_id", s.sc.SessionID,
			"error", err)
	}

	s.mu.Lock()
	_ = s.machine.Transition(domain.PhaseComplete)
	s.touch()
	completion := s.completionLocked()
	transcript := s.transcriptLocked()
	s.mu.Unlock()

	if s.opts.Transcripts != nil {
		if err := s.opts.Transcripts.SaveTranscript(context.WithoutCancel(ctx), transcript); err != nil {
			s.opts.Logger.Error("failed to save interview transcript",
				"session_id", s.sc.SessionID,
				"error", err)
		}
	}

	return completion, nil
}

// Snapshot returns a copy of the session state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	snap := Snapshot{
		SessionID:     s.sc.SessionID,
		CompanyName:   s.sc.CompanyName,
		Phase:         s.machine.Phase(),
		Messages:      append([]domain.Message{}, s.messages...),
		Topics:        append(domain.Topics{}, s.topics...),
		Progress:      s.progress,
		QuestionCount: s.questionCount,
		InFlight:      s.inFlight.Load(),
		Draft:         s.draft,
	}
	if snap.Phase == domain.PhaseComplete {
		snap.Completion = s.completionLocked()
	}
	return snap
}

// LastActive returns when the session was last used.
func (s *Session) LastActive() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastActive
}

func (s *Session) touch() {
	s.lastActive = s.opts.Now()
}

func (s *Session) newMessage(role domain.Role, content string) domain.Message {
	return domain.Message{
		ID:        uuid.New().String(),
		Role:      role,
		Content:   content,
		Timestamp: s.opts.Now(),
	}
}

func (s *Session) resultLocked(user, assistant *domain.Message, fallback bool) *ExchangeResult {
	return &ExchangeResult{
		Fallback:      fallback,
		User:          user,
		Assistant:     assistant,
		Phase:         s.machine.Phase(),
		Topics:        append(domain.Topics{}, s.topics...),
		Progress:      s.progress,
		QuestionCount: s.questionCount,
	}
}

func (s *Session) completionLocked() *Completion {
	return &Completion{
		CompanyName:   s.sc.CompanyName,
		Topics:        append(domain.Topics{}, s.topics...),
		QuestionCount: s.questionCount,
		NextSteps: []string{
			"We'll combine your answers with our research on " + s.sc.CompanyName + ".",
			"Your personalized report will be generated next.",
			"You'll get an email as soon as it's ready.",
		},
	}
}

func (s *Session) transcriptLocked() *domain.Transcript {
	now := s.opts.Now()
	return &domain.Transcript{
		SessionID:     s.sc.SessionID,
		CompanyName:   s.sc.CompanyName,
		Phase:         s.machine.Phase(),
		Messages:      append([]domain.Message(nil), s.messages...),
		Topics:        append(domain.Topics(nil), s.topics...),
		Progress:      s.progress,
		QuestionCount: s.questionCount,
		CompletedAt:   now,
		UpdatedAt:     now,
	}
}
