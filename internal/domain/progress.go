package domain

// StepStatus is the state of one report generation step.
type StepStatus string

const (
	StepPending   StepStatus = "pending"
	StepActive    StepStatus = "active"
	StepCompleted StepStatus = "completed"
	StepError     StepStatus = "error"
)

// Valid reports whether s is a known status.
func (s StepStatus) Valid() bool {
	switch s {
	case StepPending, StepActive, StepCompleted, StepError:
		return true
	}
	return false
}

// ProgressStep is one labeled stage of asynchronous report generation.
type ProgressStep struct {
	ID     string     `json:"id"`
	Label  string     `json:"label"`
	Status StepStatus `json:"status"`
	Detail string     `json:"detail,omitempty"`
}

// DefaultReportSteps returns the fixed, ordered step list for report generation.
func DefaultReportSteps() []ProgressStep {
	return []ProgressStep{
		{ID: "research", Label: "Researching your company", Status: StepPending},
		{ID: "analysis", Label: "Analyzing interview insights", Status: StepPending},
		{ID: "strategy", Label: "Building recommendations", Status: StepPending},
		{ID: "writing", Label: "Writing your report", Status: StepPending},
		{ID: "review", Label: "Final review", Status: StepPending},
	}
}
