// Package rulestore applies copy-on-write edits to calculator configurations:
// rule list operations and component merge-updates. Every operation returns a
// new configuration and leaves its input untouched.
package rulestore

import (
	"time"

	"github.com/google/uuid"

	"github.com/pitabwire/quotecfg/model"
)

// Editor performs configuration edits. The clock stamps UpdatedAt.
type Editor struct {
	now func() time.Time
}

// NewEditor returns an Editor using the wall clock in UTC.
func NewEditor() *Editor {
	return &Editor{now: func() time.Time { return time.Now().UTC() }}
}

// NewEditorWithClock returns an Editor with a caller-supplied clock.
func NewEditorWithClock(now func() time.Time) *Editor {
	return &Editor{now: now}
}

// Now returns the editor's current time.
func (e *Editor) Now() time.Time {
	return e.now()
}

// AddRule appends rule to the end of the rule list. Duplicate ids are not
// checked here.
func (e *Editor) AddRule(cfg model.CalculatorConfig, rule model.PermutationRule) model.CalculatorConfig {
	out := cfg.DeepCopy().Normalized()
	out.PermutationRules = append(out.PermutationRules, rule.DeepCopy())
	out.UpdatedAt = e.now()
	return out
}

// UpdateRule merges patch onto every rule with the given id. An unknown id
// leaves the list unchanged.
func (e *Editor) UpdateRule(cfg model.CalculatorConfig, ruleID string, patch model.RulePatch) model.CalculatorConfig {
	out := cfg.DeepCopy().Normalized()
	for i, r := range out.PermutationRules {
		if r.ID == ruleID {
			out.PermutationRules[i] = patch.Apply(r)
		}
	}
	out.UpdatedAt = e.now()
	return out
}

// DeleteRule removes every rule with the given id. An unknown id is a no-op.
func (e *Editor) DeleteRule(cfg model.CalculatorConfig, ruleID string) model.CalculatorConfig {
	out := cfg.DeepCopy().Normalized()
	kept := make([]model.PermutationRule, 0, len(out.PermutationRules))
	for _, r := range out.PermutationRules {
		if r.ID != ruleID {
			kept = append(kept, r)
		}
	}
	out.PermutationRules = kept
	out.UpdatedAt = e.now()
	return out
}

// ToggleRule sets the enabled flag of the rule with the given id.
func (e *Editor) ToggleRule(cfg model.CalculatorConfig, ruleID string, enabled bool) model.CalculatorConfig {
	return e.UpdateRule(cfg, ruleID, model.RulePatch{Enabled: &enabled})
}

// UpdateComponent merges patch onto the component with the given id. An
// unknown id leaves the components unchanged.
func (e *Editor) UpdateComponent(cfg model.CalculatorConfig, componentID string, patch model.ComponentPatch) model.CalculatorConfig {
	out := cfg.DeepCopy().Normalized()
	if c, ok := out.Components[componentID]; ok {
		out.Components[componentID] = patch.Apply(c)
	}
	out.UpdatedAt = e.now()
	return out
}

// ToggleComponent sets the enabled flag of the component with the given id.
func (e *Editor) ToggleComponent(cfg model.CalculatorConfig, componentID string, enabled bool) model.CalculatorConfig {
	return e.UpdateComponent(cfg, componentID, model.ComponentPatch{Enabled: &enabled})
}

// NewConfig starts a configuration from a set of components, with no rules.
func (e *Editor) NewConfig(name, category, description string, components map[string]model.ComponentConfig) model.CalculatorConfig {
	now := e.now()
	cfg := model.CalculatorConfig{
		ID:               NewConfigID(),
		Name:             name,
		Description:      description,
		Category:         category,
		Components:       map[string]model.ComponentConfig{},
		PermutationRules: []model.PermutationRule{},
		CreatedAt:        now,
		UpdatedAt:        now,
		Version:          1,
	}
	for k, c := range components {
		cfg.Components[k] = c.DeepCopy()
	}
	return cfg
}

// Clone returns an independent copy of cfg under a new id and name, with
// fresh timestamps and version 1.
func (e *Editor) Clone(cfg model.CalculatorConfig, newName string) model.CalculatorConfig {
	out := cfg.DeepCopy().Normalized()
	now := e.now()
	out.ID = NewConfigID()
	out.Name = newName
	out.CreatedAt = now
	out.UpdatedAt = now
	out.Version = 1
	return out
}

// NewConfigID returns a fresh configuration id.
func NewConfigID() string {
	return "calculator-" + uuid.NewString()
}

// NewRuleID returns a fresh rule id.
func NewRuleID() string {
	return "rule-" + uuid.NewString()
}
