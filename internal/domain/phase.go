package domain

// Phase is a discrete stage of the interview lifecycle.
type Phase string

const (
	PhaseLoading      Phase = "loading"
	PhaseGreeting     Phase = "greeting"
	PhaseConversation Phase = "conversation"
	PhaseSummary      Phase = "summary"
	PhaseComplete     Phase = "complete"
)

func (p Phase) String() string { return string(p) }
