package model

// Template is a named starting point for new calculator configurations,
// loaded from a YAML or JSON file.
type Template struct {
	CalculatorConfig `yaml:",inline"`

	Checksum   string `yaml:"-" json:"checksum,omitempty"`
	SourceFile string `yaml:"-" json:"-"`
}

// TemplateSummary is the list view of a template.
type TemplateSummary struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category"`
	Components  int    `json:"components"`
	Rules       int    `json:"rules"`
	Checksum    string `json:"checksum"`
}

// Summary builds the list view of t.
func (t Template) Summary() TemplateSummary {
	return TemplateSummary{
		ID:          t.ID,
		Name:        t.Name,
		Description: t.Description,
		Category:    t.Category,
		Components:  len(t.Components),
		Rules:       len(t.PermutationRules),
		Checksum:    t.Checksum,
	}
}
