package coach

import (
	"fmt"
	"strings"

	"github.com/lifeos/los-coach/internal/domain"
)

// Temperature is the fixed sampling temperature for coaching replies.
const Temperature float32 = 0.7

// GeneralGrowth stands in for the growth focus when no law is active.
const GeneralGrowth = "General Growth"

const listSeparator = ", "

const persona = `You are the "LOS AI Coach", a personal strategic counselor inside the user's Life Operating System.
Your task is to provide high-level mentorship to people who are multi-talented, seeking financial stability, and looking for emotional and spiritual support.`

const tone = `Tone:
- Authoritative yet encouraging, strategic, and professional.
- Draw on John Maxwell's 15 Invaluable Laws of Growth, especially the current focus.
- Offer faith-based wisdom when appropriate (Christian context) and stay anchored in the user's values.
- Act as a stability engineer: help the user harmonize diverse talents into one unified engine.`

// GenerationRequest is the provider-neutral request for one coaching turn.
type GenerationRequest struct {
	SystemInstruction string
	Content           string
	Temperature       float32
}

// Composer renders ContextSnapshots into GenerationRequests. The zero value
// serializes every skill and goal.
type Composer struct {
	// MaxSkills and MaxGoals cap how many entries are listed; 0 means no cap.
	MaxSkills int
	MaxGoals  int
}

// NewComposer returns a Composer with the given list caps.
func NewComposer(maxSkills, maxGoals int) Composer {
	return Composer{MaxSkills: maxSkills, MaxGoals: maxGoals}
}

// Compose builds the request for req under snap. It has no side effects and
// returns identical output for identical input.
func (c Composer) Compose(snap domain.ContextSnapshot, req domain.CoachRequest) GenerationRequest {
	var b strings.Builder
	b.WriteString(persona)
	b.WriteString("\n\nUser Context:\n")
	fmt.Fprintf(&b, "- Skills: %s\n", c.skillList(snap.Skills))
	fmt.Fprintf(&b, "- Major Goals: %s\n", c.goalList(snap.Goals))
	fmt.Fprintf(&b, "- Current Personal Growth Focus: %s\n\n", focusName(snap.ActiveLaw))
	b.WriteString(tone)

	return GenerationRequest{
		SystemInstruction: b.String(),
		Content:           strings.TrimSpace(req.Message),
		Temperature:       Temperature,
	}
}

func (c Composer) skillList(skills []domain.Skill) string {
	skills = capped(skills, c.MaxSkills)
	parts := make([]string, 0, len(skills))
	for _, s := range skills {
		parts = append(parts, fmt.Sprintf("%s (%s)", s.Name, s.Status))
	}
	return strings.Join(parts, listSeparator)
}

func (c Composer) goalList(goals []domain.Goal) string {
	goals = capped(goals, c.MaxGoals)
	parts := make([]string, 0, len(goals))
	for _, g := range goals {
		parts = append(parts, fmt.Sprintf("%s (%d%% done)", g.Title, g.Progress))
	}
	return strings.Join(parts, listSeparator)
}

func focusName(law *domain.GrowthLaw) string {
	if law == nil || strings.TrimSpace(law.Name) == "" {
		return GeneralGrowth
	}
	return law.Name
}

func capped[T any](items []T, limit int) []T {
	if limit > 0 && len(items) > limit {
		return items[:limit]
	}
	return items
}
