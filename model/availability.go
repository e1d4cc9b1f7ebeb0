package model

// ComponentPatch is a partial update of a component. Nil fields are left
// unchanged. The component id cannot be patched.
type ComponentPatch struct {
	Label        *string        `json:"label,omitempty"`
	Description  *string        `json:"description,omitempty"`
	Enabled      *bool          `json:"enabled,omitempty"`
	Type         *ComponentType `json:"type,omitempty"`
	Options      *[]Option      `json:"options,omitempty"`
	Searchable   *bool          `json:"searchable,omitempty"`
	Required     *bool          `json:"required,omitempty"`
	DefaultValue *DefaultValue  `json:"defaultValue,omitempty"`
	Placeholder  *string        `json:"placeholder,omitempty"`
}

// Apply merges the patch onto c and returns the result.
func (p ComponentPatch) Apply(c ComponentConfig) ComponentConfig {
	if p.Label != nil {
		c.Label = *p.Label
	}
	if p.Description != nil {
		c.Description = *p.Description
	}
	if p.Enabled != nil {
		c.Enabled = *p.Enabled
	}
	if p.Type != nil {
		c.Type = *p.Type
	}
	if p.Options != nil {
		c.Options = ComponentConfig{Options: *p.Options}.DeepCopy().Options
		if c.Options == nil {
			c.Options = []Option{}
		}
	}
	if p.Searchable != nil {
		c.Searchable = *p.Searchable
	}
	if p.Required != nil {
		c.Required = *p.Required
	}
	if p.DefaultValue != nil {
		dv := p.DefaultValue.clone()
		c.DefaultValue = &dv
	}
	if p.Placeholder != nil {
		c.Placeholder = *p.Placeholder
	}
	return c
}

// RulePatch is a partial update of a permutation rule. Nil fields are left
// unchanged. The rule id cannot be patched.
type RulePatch struct {
	Name            *string              `json:"name,omitempty"`
	Description     *string              `json:"description,omitempty"`
	Operator        *PermutationOperator `json:"operator,omitempty"`
	SourceComponent *string              `json:"sourceComponent,omitempty"`
	SourceValues    *[]string            `json:"sourceValues,omitempty"`
	TargetComponent *string              `json:"targetComponent,omitempty"`
	TargetValues    *[]string            `json:"targetValues,omitempty"`
	Enabled         *bool                `json:"enabled,omitempty"`
}

// Apply merges the patch onto r and returns the result.
func (p RulePatch) Apply(r PermutationRule) PermutationRule {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.Description != nil {
		r.Description = *p.Description
	}
	if p.Operator != nil {
		r.Operator = *p.Operator
	}
	if p.SourceComponent != nil {
		r.SourceComponent = *p.SourceComponent
	}
	if p.SourceValues != nil {
		r.SourceValues = append([]string{}, *p.SourceValues...)
	}
	if p.TargetComponent != nil {
		r.TargetComponent = *p.TargetComponent
	}
	if p.TargetValues != nil {
		r.TargetValues = append([]string{}, *p.TargetValues...)
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	return r
}

// Selections maps a component id to the option ids currently chosen on it.
// A component absent from the map has no selection.
type Selections map[string][]string

// AvailabilityState is the computed state of one option.
type AvailabilityState string

// Availability states.
const (
	StateAvailable      AvailabilityState = "available"
	StateDisabledByRule AvailabilityState = "disabled-by-rule"
	StateRequiredByRule AvailabilityState = "required-by-rule"
)

// OptionAvailability is the state of one option and the rule that decided it.
type OptionAvailability struct {
	OptionID string            `json:"optionId"`
	State    AvailabilityState `json:"state"`
	RuleID   string            `json:"ruleId,omitempty"`
}

// ComponentAvailability lists option states in definition order.
type ComponentAvailability struct {
	ComponentID string               `json:"componentId"`
	Options     []OptionAvailability `json:"options"`
}

// AvailabilityReport is the evaluator output, one entry per component sorted
// by component id.
type AvailabilityReport struct {
	Components []ComponentAvailability `json:"components"`
}

// State returns the state of one option. Unknown options report false.
func (r AvailabilityReport) State(componentID, optionID string) (AvailabilityState, bool) {
	o, ok := r.lookup(componentID, optionID)
	return o.State, ok
}

// DecidedBy returns the id of the rule that last set the option's state.
func (r AvailabilityReport) DecidedBy(componentID, optionID string) string {
	o, _ := r.lookup(componentID, optionID)
	return o.RuleID
}

// Component returns the availability entry for one component.
func (r AvailabilityReport) Component(componentID string) (ComponentAvailability, bool) {
	for _, c := range r.Components {
		if c.ComponentID == componentID {
			return c, true
		}
	}
	return ComponentAvailability{}, false
}

func (r AvailabilityReport) lookup(componentID, optionID string) (OptionAvailability, bool) {
	c, ok := r.Component(componentID)
	if !ok {
		return OptionAvailability{}, false
	}
	for _, o := range c.Options {
		if o.OptionID == optionID {
			return o, true
		}
	}
	return OptionAvailability{}, false
}
