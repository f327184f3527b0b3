package domain

// GrowthLaw is a named personal-growth principle the user can focus on.
type GrowthLaw struct {
	Number           int    `json:"number,omitempty" yaml:"number"`
	Name             string `json:"name" yaml:"name"`
	Description      string `json:"description,omitempty" yaml:"description"`
	ReflectionPrompt string `json:"reflection_prompt,omitempty" yaml:"reflection_prompt"`
}
