package models

import "time"

// Outcome is the user-reported result of trying a script
type Outcome string

const (
	OutcomeWorked   Outcome = "worked"
	OutcomeProgress Outcome = "progress"
	OutcomeNotYet   Outcome = "not_yet"
)

// Valid reports whether o is one of the known outcomes
func (o Outcome) Valid() bool {
	switch o {
	case OutcomeWorked, OutcomeProgress, OutcomeNotYet:
		return true
	}
	return false
}

// ScriptFeedbackEvent is a single feedback submission for a script
type ScriptFeedbackEvent struct {
	ID        int64     `json:"id" db:"id"`
	UserID    int64     `json:"user_id" db:"user_id"`
	ChildID   *int64    `json:"child_id,omitempty" db:"child_id"`
	ScriptID  int64     `json:"script_id" db:"script_id"`
	Outcome   Outcome   `json:"outcome" db:"outcome"`
	Notes     string    `json:"notes,omitempty" db:"notes"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// FeedbackStats is the aggregate of feedback events for one script.
// It is derived on demand and never stored.
type FeedbackStats struct {
	TotalCount    int     `json:"total_count"`
	WorkedCount   int     `json:"worked_count"`
	ProgressCount int     `json:"progress_count"`
	NotYetCount   int     `json:"not_yet_count"`
	SuccessRate   float64 `json:"success_rate"` // 0-100
}
