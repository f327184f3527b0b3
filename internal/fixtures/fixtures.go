// Package fixtures provides the embedded starting state every new profile is
// seeded with.
package fixtures

import (
	_ "embed"
	"fmt"
	"slices"
	"time"

	"github.com/lifeos/los-coach/internal/domain"
	"gopkg.in/yaml.v3"
)

//go:embed seed.yaml
var seedYAML []byte

// Seed is the decoded fixture set.
type Seed struct {
	Skills []domain.Skill     `yaml:"skills"`
	Goals  []domain.Goal      `yaml:"goals"`
	Laws   []domain.GrowthLaw `yaml:"laws"`
}

// Load decodes and validates the embedded seed.
func Load() (*Seed, error) {
	return Parse(seedYAML)
}

// Parse decodes and validates a seed document.
func Parse(data []byte) (*Seed, error) {
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return nil, fmt.Errorf("decode seed: %w", err)
	}
	if err := seed.validate(); err != nil {
		return nil, fmt.Errorf("invalid seed: %w", err)
	}
	return &seed, nil
}

func (s *Seed) validate() error {
	for _, sk := range s.Skills {
		if sk.Name == "" {
			return fmt.Errorf("skill %q has no name", sk.ID)
		}
		if !sk.Status.Valid() {
			return fmt.Errorf("skill %q has invalid status %q", sk.Name, sk.Status)
		}
	}
	for _, g := range s.Goals {
		if g.Title == "" {
			return fmt.Errorf("goal %q has no title", g.ID)
		}
		if err := domain.ValidateProgress(g.Progress); err != nil {
			return fmt.Errorf("goal %q: %w", g.Title, err)
		}
	}
	seen := make(map[int]bool, len(s.Laws))
	for _, l := range s.Laws {
		if l.Number <= 0 || l.Name == "" {
			return fmt.Errorf("law %d is incomplete", l.Number)
		}
		if seen[l.Number] {
			return fmt.Errorf("duplicate law number %d", l.Number)
		}
		seen[l.Number] = true
	}
	return nil
}

// Law returns the law with the given number.
func (s *Seed) Law(number int) (domain.GrowthLaw, bool) {
	for _, l := range s.Laws {
		if l.Number == number {
			return l, true
		}
	}
	return domain.GrowthLaw{}, false
}

// NewProfile builds a fresh profile for userID from the seed. The first law
// is the active focus, matching what the dashboard shows on first visit.
func (s *Seed) NewProfile(userID string, now time.Time) *domain.Profile {
	p := &domain.Profile{
		UserID:    userID,
		Skills:    slices.Clone(s.Skills),
		Goals:     slices.Clone(s.Goals),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if len(s.Laws) > 0 {
		law := s.Laws[0]
		p.ActiveLaw = &law
	}
	return p
}
