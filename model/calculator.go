package model

import (
	"sort"
	"time"
)

// ComponentType is the input kind of a calculator component.
type ComponentType string

// Supported component types.
const (
	ComponentSingleSelect ComponentType = "single-select"
	ComponentMultiSelect  ComponentType = "multi-select"
	ComponentNumericInput ComponentType = "numeric-input"
	ComponentToggle       ComponentType = "toggle"
)

// IsSelect reports whether the component is a single- or multi-select.
func (t ComponentType) IsSelect() bool {
	return t == ComponentSingleSelect || t == ComponentMultiSelect
}

// Valid reports whether t is one of the supported component types.
func (t ComponentType) Valid() bool {
	switch t {
	case ComponentSingleSelect, ComponentMultiSelect, ComponentNumericInput, ComponentToggle:
		return true
	}
	return false
}

// PermutationOperator is the effect a triggered rule has on its target.
type PermutationOperator string

// Supported permutation operators.
const (
	OperatorIfThenDisable PermutationOperator = "if-then-disable"
	OperatorIfThenEnable  PermutationOperator = "if-then-enable"
	OperatorRequires      PermutationOperator = "requires"
	OperatorConflictsWith PermutationOperator = "conflicts-with"
)

// Valid reports whether op is one of the supported operators.
func (op PermutationOperator) Valid() bool {
	switch op {
	case OperatorIfThenDisable, OperatorIfThenEnable, OperatorRequires, OperatorConflictsWith:
		return true
	}
	return false
}

// Option is a selectable choice within a component.
type Option struct {
	ID       string   `yaml:"id"       json:"id"`
	Label    string   `yaml:"label"    json:"label"`
	Value    string   `yaml:"value"    json:"value"`
	Metadata Metadata `yaml:"metadata" json:"metadata,omitempty"`
}

// ComponentConfig is one configurable input of the calculator.
type ComponentConfig struct {
	ID           string        `yaml:"id"            json:"id"`
	Label        string        `yaml:"label"         json:"label"`
	Description  string        `yaml:"description"   json:"description,omitempty"`
	Enabled      bool          `yaml:"enabled"       json:"enabled"`
	Type         ComponentType `yaml:"type"          json:"type"`
	Options      []Option      `yaml:"options"       json:"options"`
	Searchable   bool          `yaml:"searchable"    json:"searchable"`
	Required     bool          `yaml:"required"      json:"required"`
	DefaultValue *DefaultValue `yaml:"default_value" json:"defaultValue,omitempty"`
	Placeholder  string        `yaml:"placeholder"   json:"placeholder,omitempty"`
}

// HasOption reports whether the component defines an option with the given ID.
func (c ComponentConfig) HasOption(optionID string) bool {
	for _, o := range c.Options {
		if o.ID == optionID {
			return true
		}
	}
	return false
}

// OptionIDs returns the option IDs in definition order.
func (c ComponentConfig) OptionIDs() []string {
	ids := make([]string, len(c.Options))
	for i, o := range c.Options {
		ids[i] = o.ID
	}
	return ids
}

// PermutationRule is a directional constraint between two components.
type PermutationRule struct {
	ID              string              `yaml:"id"               json:"id"`
	Name            string              `yaml:"name"             json:"name"`
	Description     string              `yaml:"description"      json:"description,omitempty"`
	Operator        PermutationOperator `yaml:"operator"         json:"operator"`
	SourceComponent string              `yaml:"source_component" json:"sourceComponent"`
	SourceValues    []string            `yaml:"source_values"    json:"sourceValues"`
	TargetComponent string              `yaml:"target_component" json:"targetComponent"`
	TargetValues    []string            `yaml:"target_values"    json:"targetValues,omitempty"`
	Enabled         bool                `yaml:"enabled"          json:"enabled"`
}

// CalculatorConfig is the aggregate root: a calculator's components and the
// ordered permutation rules between them. Rule order is evaluation order.
type CalculatorConfig struct {
	ID               string                     `yaml:"id"                json:"id"`
	Name             string                     `yaml:"name"              json:"name"`
	Description      string                     `yaml:"description"       json:"description,omitempty"`
	Category         string                     `yaml:"category"          json:"category"`
	Components       map[string]ComponentConfig `yaml:"components"        json:"components"`
	PermutationRules []PermutationRule          `yaml:"permutation_rules" json:"permutationRules"`
	CreatedAt        time.Time                  `yaml:"created_at"        json:"createdAt"`
	UpdatedAt        time.Time                  `yaml:"updated_at"        json:"updatedAt"`
	Version          int                        `yaml:"version"           json:"version"`
}

// ComponentIDs returns the component keys in sorted order.
func (c CalculatorConfig) ComponentIDs() []string {
	ids := make([]string, 0, len(c.Components))
	for id := range c.Components {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// FindRule returns the first rule with the given ID.
func (c CalculatorConfig) FindRule(ruleID string) (PermutationRule, bool) {
	for _, r := range c.PermutationRules {
		if r.ID == ruleID {
			return r, true
		}
	}
	return PermutationRule{}, false
}

// Normalized returns c with nil Components and PermutationRules replaced by
// empty values, so the JSON form always carries {} and [].
func (c CalculatorConfig) Normalized() CalculatorConfig {
	if c.Components == nil {
		c.Components = map[string]ComponentConfig{}
	}
	if c.PermutationRules == nil {
		c.PermutationRules = []PermutationRule{}
	}
	return c
}

// DeepCopy returns a copy of c that shares no maps or slices with it.
func (c CalculatorConfig) DeepCopy() CalculatorConfig {
	out := c
	if c.Components != nil {
		out.Components = make(map[string]ComponentConfig, len(c.Components))
		for k, comp := range c.Components {
			out.Components[k] = comp.DeepCopy()
		}
	}
	if c.PermutationRules != nil {
		out.PermutationRules = make([]PermutationRule, len(c.PermutationRules))
		for i, r := range c.PermutationRules {
			out.PermutationRules[i] = r.DeepCopy()
		}
	}
	return out
}

// DeepCopy returns a copy of c that shares no maps or slices with it.
func (c ComponentConfig) DeepCopy() ComponentConfig {
	out := c
	if c.Options != nil {
		out.Options = make([]Option, len(c.Options))
		for i, o := range c.Options {
			out.Options[i] = o
			out.Options[i].Metadata = o.Metadata.Clone()
		}
	}
	if c.DefaultValue != nil {
		dv := c.DefaultValue.clone()
		out.DefaultValue = &dv
	}
	return out
}

// DeepCopy returns a copy of r that shares no slices with it.
func (r PermutationRule) DeepCopy() PermutationRule {
	out := r
	out.SourceValues = cloneStrings(r.SourceValues)
	out.TargetValues = cloneStrings(r.TargetValues)
	return out
}

// ConfigSummary is the list view of a stored configuration.
type ConfigSummary struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Category   string    `json:"category"`
	Components int       `json:"components"`
	Rules      int       `json:"rules"`
	UpdatedAt  time.Time `json:"updatedAt"`
	Version    int       `json:"version"`
}

// Summarize builds the list view of c.
func Summarize(c CalculatorConfig) ConfigSummary {
	return ConfigSummary{
		ID:         c.ID,
		Name:       c.Name,
		Category:   c.Category,
		Components: len(c.Components),
		Rules:      len(c.PermutationRules),
		UpdatedAt:  c.UpdatedAt,
		Version:    c.Version,
	}
}

func cloneStrings(in []string) []string {
	if in == nil {
		return nil
	}
	out := make([]string, len(in))
	copy(out, in)
	return out
}
