package evaluator

import "github.com/pitabwire/quotecfg/model"

type cell struct {
	state  model.AvailabilityState
	ruleID string
}

// stateTable holds the working state of every (component, option) pair.
type stateTable struct {
	cells map[string]map[string]cell
}

func newStateTable(cfg model.CalculatorConfig) *stateTable {
	t := &stateTable{cells: make(map[string]map[string]cell, len(cfg.Components))}
	for id, c := range cfg.Components {
		opts := make(map[string]cell, len(c.Options))
		for _, o := range c.Options {
			opts[o.ID] = cell{state: model.StateAvailable}
		}
		t.cells[id] = opts
	}
	return t
}

// set writes state to each option of the component, skipping ids in except
// and ids that are not options of the component. Later writes win.
func (t *stateTable) set(componentID string, optionIDs []string, state model.AvailabilityState, ruleID string, except map[string]bool) {
	opts, ok := t.cells[componentID]
	if !ok {
		return
	}
	for _, id := range optionIDs {
		if except[id] {
			continue
		}
		if _, ok := opts[id]; !ok {
			continue
		}
		opts[id] = cell{state: state, ruleID: ruleID}
	}
}

// report renders the table with components sorted by id and options in
// definition order.
func (t *stateTable) report(cfg model.CalculatorConfig) model.AvailabilityReport {
	ids := cfg.ComponentIDs()
	out := model.AvailabilityReport{Components: make([]model.ComponentAvailability, 0, len(ids))}
	for _, id := range ids {
		c := cfg.Components[id]
		ca := model.ComponentAvailability{
			ComponentID: id,
			Options:     make([]model.OptionAvailability, 0, len(c.Options)),
		}
		for _, o := range c.Options {
			cl := t.cells[id][o.ID]
			ca.Options = append(ca.Options, model.OptionAvailability{
				OptionID: o.ID,
				State:    cl.state,
				RuleID:   cl.ruleID,
			})
		}
		out.Components = append(out.Components, ca)
	}
	return out
}
