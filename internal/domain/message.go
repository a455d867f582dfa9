package domain

import "time"

// Role identifies the author of a conversation message.
type Role string

const (
	RoleAssistant Role = "assistant"
	RoleUser      Role = "user"
)

// Message is one immutable entry in the interview conversation.
// Content may embed lightweight markup (bold, lists).
type Message struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}

// LastN returns at most n trailing messages. The result shares no backing
// array with msgs.
func LastN(msgs []Message, n int) []Message {
	if n <= 0 || len(msgs) == 0 {
		return []Message{}
	}
	start := 0
	if len(msgs) > n {
		start = len(msgs) - n
	}
	out := make([]Message, len(msgs)-start)
	copy(out, msgs[start:])
	return out
}

// Transcript is the persisted record of a finished interview.
type Transcript struct {
	SessionID     string    `json:"session_id"`
	CompanyName   string    `json:"company_name"`
	Phase         Phase     `json:"phase"`
	Messages      []Message `json:"messages"`
	Topics        Topics    `json:"topics_covered"`
	Progress      int       `json:"progress"`
	QuestionCount int       `json:"question_count"`
	CompletedAt   time.Time `json:"completed_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
