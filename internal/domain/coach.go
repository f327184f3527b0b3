package domain

import "time"

// ContextSnapshot is the read-only user state sent along with one coach turn.
type ContextSnapshot struct {
	Skills    []Skill    `json:"skills"`
	Goals     []Goal     `json:"goals"`
	ActiveLaw *GrowthLaw `json:"active_law,omitempty"`
}

// CoachRequest carries the user's chat message for a single turn.
type CoachRequest struct {
	Message string `json:"message"`
}

// CoachReply is the coach's answer. Text is never empty.
type CoachReply struct {
	Text string `json:"text"`
}

// ExchangeOutcome records which path produced a reply.
type ExchangeOutcome string

const (
	OutcomeReplied       ExchangeOutcome = "replied"
	OutcomeEmptyFallback ExchangeOutcome = "empty_fallback"
	OutcomeErrorFallback ExchangeOutcome = "error_fallback"
)

// Exchange is one user message and the reply it received. Exchanges form the
// caller-owned transcript; the coach itself keeps no history.
type Exchange struct {
	ID        string          `json:"id"`
	UserID    string          `json:"user_id"`
	SessionID string          `json:"session_id"`
	Message   string          `json:"message"`
	Reply     string          `json:"reply"`
	Outcome   ExchangeOutcome `json:"outcome"`
	CreatedAt time.Time       `json:"created_at"`
}
