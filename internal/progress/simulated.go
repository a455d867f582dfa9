package progress

import (
	"context"
	"time"

	"github.com/ashureev/interview-funnel/internal/domain"
)

// EstimatedDetail tags every simulated step update.
const EstimatedDetail = "Estimated progress"

// SimulatedSource walks the step list at a fixed interval. Its events are
// estimates, not reports from the job.
type SimulatedSource struct {
	interval time.Duration
}

// NewSimulatedSource creates a simulated source advancing one step per interval.
func NewSimulatedSource(interval time.Duration) *SimulatedSource {
	if interval <= 0 {
		interval = 3 * time.Second
	}
	return &SimulatedSource{interval: interval}
}

// Name implements Source.
func (s *SimulatedSource) Name() string { return "simulated" }

// Duration returns how long a full run over n remaining steps takes.
func (s *SimulatedSource) Duration(n int) time.Duration {
	return time.Duration(n) * s.interval
}

// Stream implements Source. It resumes at the first step that is not
// completed, marks each remaining step active then completed, and finishes
// with a complete event. It stops early when ctx is done.
func (s *SimulatedSource) Stream(ctx context.Context, _ string, steps []domain.ProgressStep, emit func(Event)) error {
	total := len(steps)
	start := 0
	for start < total && steps[start].Status == domain.StepCompleted {
		start++
	}

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for i := start; i < total; i++ {
		pct := percent(i, total)
		emit(Event{Type: EventProgress, Step: steps[i].ID, Status: domain.StepActive, Detail: EstimatedDetail, Progress: &pct})

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}

		done := percent(i+1, total)
		emit(Event{Type: EventProgress, Step: steps[i].ID, Status: domain.StepCompleted, Detail: EstimatedDetail, Progress: &done})
	}

	emit(Event{Type: EventComplete})
	return nil
}

func percent(done, total int) int {
	if total == 0 {
		return 100
	}
	return done * 100 / total
}
