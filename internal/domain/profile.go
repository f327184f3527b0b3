package domain

import (
	"slices"
	"time"
)

// Profile is the per-user dashboard state the coach draws its context from.
type Profile struct {
	UserID    string     `json:"user_id"`
	Skills    []Skill    `json:"skills"`
	Goals     []Goal     `json:"goals"`
	ActiveLaw *GrowthLaw `json:"active_law,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Snapshot returns a detached ContextSnapshot of the profile.
func (p *Profile) Snapshot() ContextSnapshot {
	snap := ContextSnapshot{
		Skills: slices.Clone(p.Skills),
		Goals:  slices.Clone(p.Goals),
	}
	if p.ActiveLaw != nil {
		law := *p.ActiveLaw
		snap.ActiveLaw = &law
	}
	return snap
}

// Goal returns the goal with the given id, or nil.
func (p *Profile) Goal(id string) *Goal {
	for i := range p.Goals {
		if p.Goals[i].ID == id {
			return &p.Goals[i]
		}
	}
	return nil
}
