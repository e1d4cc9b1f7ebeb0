// Package evaluator computes option availability for a calculator
// configuration and a set of selections.
package evaluator

import (
	"github.com/pitabwire/quotecfg/model"
)

// Evaluate applies the enabled permutation rules of cfg, in list order, to
// the given selections and reports the state of every option. It is a pure
// function: the same inputs always yield the same report. Rules that refer to
// missing components or options are skipped for the missing part.
func Evaluate(cfg model.CalculatorConfig, selections model.Selections) model.AvailabilityReport {
	states := newStateTable(cfg)

	for _, rule := range cfg.PermutationRules {
		if !rule.Enabled {
			continue
		}
		src, ok := cfg.Components[rule.SourceComponent]
		if !ok {
			continue
		}
		tgt, ok := cfg.Components[rule.TargetComponent]
		if !ok {
			continue
		}

		affected := affectedSet(tgt, rule.TargetValues)
		forwardTrigger := selectedTriggers(src, selections[rule.SourceComponent], rule.SourceValues)

		switch rule.Operator {
		case model.OperatorIfThenDisable:
			if len(forwardTrigger) > 0 {
				states.set(rule.TargetComponent, affected, model.StateDisabledByRule, rule.ID, nil)
			}
		case model.OperatorIfThenEnable:
			if len(forwardTrigger) > 0 {
				states.set(rule.TargetComponent, affected, model.StateAvailable, rule.ID, nil)
			}
		case model.OperatorRequires:
			if len(forwardTrigger) > 0 {
				states.set(rule.TargetComponent, affected, model.StateRequiredByRule, rule.ID, nil)
			}
		case model.OperatorConflictsWith:
			applyConflict(states, rule, src, tgt, affected, forwardTrigger, selections)
		}
	}

	return states.report(cfg)
}

// applyConflict evaluates a conflicts-with rule in both directions. Forward:
// a selected source trigger disables the affected target options. Mirror: a
// selected affected target option disables the source's trigger options.
//
// The exemption is taken from the direction being applied, not the opposite
// one: an option that is a selected trigger of this direction is left alone,
// so a conflict never disables the choice that caused it. Trigger sets hold
// bare option ids, so they only exempt anything when the rule's source and
// target are the same component. Across components an equal option id is a
// different option and is disabled like any other.
func applyConflict(
	states *stateTable,
	rule model.PermutationRule,
	src, tgt model.ComponentConfig,
	affected []string,
	forwardTrigger map[string]bool,
	selections model.Selections,
) {
	sameComponent := rule.SourceComponent == rule.TargetComponent

	if len(forwardTrigger) > 0 {
		states.set(rule.TargetComponent, affected, model.StateDisabledByRule, rule.ID, exemptIf(sameComponent, forwardTrigger))
	}

	mirrorTrigger := selectedTriggers(tgt, selections[rule.TargetComponent], affected)
	if len(mirrorTrigger) > 0 {
		states.set(rule.SourceComponent, existing(src, rule.SourceValues), model.StateDisabledByRule, rule.ID, exemptIf(sameComponent, mirrorTrigger))
	}
}

func exemptIf(ok bool, ids map[string]bool) map[string]bool {
	if !ok {
		return nil
	}
	return ids
}

// selectedTriggers returns the selected option ids of c that are in values.
// Selected ids that are not options of c never trigger.
func selectedTriggers(c model.ComponentConfig, selected, values []string) map[string]bool {
	if len(values) == 0 || len(selected) == 0 {
		return nil
	}
	want := make(map[string]bool, len(values))
	for _, v := range values {
		want[v] = true
	}
	var out map[string]bool
	for _, s := range selected {
		if want[s] && c.HasOption(s) {
			if out == nil {
				out = make(map[string]bool)
			}
			out[s] = true
		}
	}
	return out
}

// affectedSet returns values that exist as options of c, or every option of
// c when values is empty.
func affectedSet(c model.ComponentConfig, values []string) []string {
	if len(values) == 0 {
		return c.OptionIDs()
	}
	return existing(c, values)
}

func existing(c model.ComponentConfig, values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if c.HasOption(v) {
			out = append(out, v)
		}
	}
	return out
}
