// Package domain contains core domain types for the LOS coach.
package domain

import (
	"fmt"
	"slices"
	"strings"
)

// MonetizationStatus describes how far a skill has been turned into income.
type MonetizationStatus string

const (
	StatusHobby        MonetizationStatus = "Hobby"
	StatusSideHustle   MonetizationStatus = "SideHustle"
	StatusMainIncome   MonetizationStatus = "MainIncome"
	StatusNotMonetized MonetizationStatus = "NotMonetized"
)

var monetizationStatuses = []MonetizationStatus{
	StatusHobby,
	StatusSideHustle,
	StatusMainIncome,
	StatusNotMonetized,
}

// ParseMonetizationStatus accepts the canonical names as well as the
// display labels used by the dashboard ("Side Hustle", "not_monetized").
func ParseMonetizationStatus(s string) (MonetizationStatus, error) {
	key := strings.NewReplacer(" ", "", "_", "", "-", "").Replace(strings.TrimSpace(s))
	for _, st := range monetizationStatuses {
		if strings.EqualFold(key, string(st)) {
			return st, nil
		}
	}
	return "", fmt.Errorf("unknown monetization status %q", s)
}

// Valid reports whether s is one of the known statuses.
func (s MonetizationStatus) Valid() bool {
	return slices.Contains(monetizationStatuses, s)
}

// UnmarshalText normalizes labels when decoding JSON and YAML.
func (s *MonetizationStatus) UnmarshalText(text []byte) error {
	st, err := ParseMonetizationStatus(string(text))
	if err != nil {
		return err
	}
	*s = st
	return nil
}

// ExperienceLevel is the self-assessed level for a skill.
type ExperienceLevel string

const (
	ExperienceBeginner     ExperienceLevel = "Beginner"
	ExperienceIntermediate ExperienceLevel = "Intermediate"
	ExperienceAdvanced     ExperienceLevel = "Advanced"
)

// Skill is one talent the user is developing or monetizing.
type Skill struct {
	ID            string             `json:"id,omitempty" yaml:"id"`
	Name          string             `json:"name" yaml:"name"`
	Status        MonetizationStatus `json:"status" yaml:"status"`
	Experience    ExperienceLevel    `json:"experience,omitempty" yaml:"experience"`
	MonthlyIncome float64            `json:"monthly_income,omitempty" yaml:"monthly_income"`
	TargetIncome  float64            `json:"target_income,omitempty" yaml:"target_income"`
}
