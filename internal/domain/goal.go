package domain

import "fmt"

// GoalStatus tracks where a goal is in its lifecycle.
type GoalStatus string

const (
	GoalNotStarted GoalStatus = "Not Started"
	GoalInProgress GoalStatus = "In Progress"
	GoalCompleted  GoalStatus = "Completed"
)

// Goal is a major objective with a completion percentage.
type Goal struct {
	ID       string     `json:"id,omitempty" yaml:"id"`
	Title    string     `json:"title" yaml:"title"`
	Category string     `json:"category,omitempty" yaml:"category"`
	Status   GoalStatus `json:"status,omitempty" yaml:"status"`
	Progress int        `json:"progress" yaml:"progress"`
	Deadline string     `json:"deadline,omitempty" yaml:"deadline"`
	Velocity float64    `json:"velocity,omitempty" yaml:"velocity"` // % progress per month
}

// ValidateProgress checks that p is a percentage.
func ValidateProgress(p int) error {
	if p < 0 || p > 100 {
		return fmt.Errorf("progress must be between 0 and 100, got %d", p)
	}
	return nil
}

// SetProgress updates the percentage and derives the status from it.
func (g *Goal) SetProgress(p int) error {
	if err := ValidateProgress(p); err != nil {
		return err
	}
	g.Progress = p
	switch {
	case p == 0:
		g.Status = GoalNotStarted
	case p == 100:
		g.Status = GoalCompleted
	default:
		g.Status = GoalInProgress
	}
	return nil
}
