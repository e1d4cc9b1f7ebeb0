package rulestore

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitabwire/quotecfg/model"
)

var (
	t0 = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	t1 = t0.Add(time.Hour)
)

func fixedEditor() *Editor {
	return NewEditorWithClock(func() time.Time { return t1 })
}

func baseConfig() model.CalculatorConfig {
	return model.CalculatorConfig{
		ID:       "cfg-1",
		Name:     "Flyers",
		Category: "leaflets",
		Components: map[string]model.ComponentConfig{
			"size": {
				ID: "size", Label: "Size", Enabled: true, Type: model.ComponentSingleSelect,
				Options:     []model.Option{{ID: "a4", Label: "A4", Value: "A4"}, {ID: "a5", Label: "A5", Value: "A5"}},
				Placeholder: "Select a size...",
				Required:    true,
			},
			"colour": {
				ID: "colour", Label: "Colour", Enabled: true, Type: model.ComponentSingleSelect,
				Options: []model.Option{{ID: "full-colour", Label: "Full Colour", Value: "full-colour"}},
			},
		},
		PermutationRules: []model.PermutationRule{
			{ID: "rule-1", Name: "first", Operator: model.OperatorIfThenDisable, SourceComponent: "colour", SourceValues: []string{"full-colour"}, TargetComponent: "size", TargetValues: []string{"a4"}, Enabled: true},
			{ID: "rule-2", Name: "second", Operator: model.OperatorRequires, SourceComponent: "size", SourceValues: []string{"a5"}, TargetComponent: "colour", Enabled: true},
		},
		CreatedAt: t0,
		UpdatedAt: t0,
		Version:   3,
	}
}

func TestAddRule_appends(t *testing.T) {
	e := fixedEditor()
	cfg := baseConfig()
	rule := model.PermutationRule{ID: "rule-3", Operator: model.OperatorIfThenEnable, SourceComponent: "size", SourceValues: []string{"a4"}, TargetComponent: "colour", Enabled: true}

	got := e.AddRule(cfg, rule)

	require.Len(t, got.PermutationRules, 3)
	assert.Equal(t, "rule-3", got.PermutationRules[2].ID)
	assert.Equal(t, t1, got.UpdatedAt)
	assert.Len(t, cfg.PermutationRules, 2, "input must not be mutated")
	assert.Equal(t, t0, cfg.UpdatedAt)
	assert.Equal(t, 3, got.Version, "version is the caller's responsibility")
}

func TestAddRule_allowsDuplicateID(t *testing.T) {
	got := fixedEditor().AddRule(baseConfig(), model.PermutationRule{ID: "rule-1"})
	assert.Len(t, got.PermutationRules, 3)
}

func TestAddThenDelete_restoresRules(t *testing.T) {
	e := fixedEditor()
	cfg := baseConfig()
	rule := model.PermutationRule{ID: "rule-new", Operator: model.OperatorConflictsWith, SourceComponent: "size", SourceValues: []string{"a4"}, TargetComponent: "colour", Enabled: true}

	got := e.DeleteRule(e.AddRule(cfg, rule), "rule-new")

	assert.Equal(t, cfg.PermutationRules, got.PermutationRules)
	assert.Equal(t, t1, got.UpdatedAt)
}

func TestAddThenDelete_nilRulesSerializeAsEmptyList(t *testing.T) {
	e := fixedEditor()
	cfg := baseConfig()
	cfg.PermutationRules = nil

	got := e.DeleteRule(e.AddRule(cfg, model.PermutationRule{ID: "rule-new"}), "rule-new")

	require.NotNil(t, got.PermutationRules)
	assert.Empty(t, got.PermutationRules)

	before, err := json.Marshal(cfg.Normalized().PermutationRules)
	require.NoError(t, err)
	after, err := json.Marshal(got.PermutationRules)
	require.NoError(t, err)
	assert.JSONEq(t, string(before), string(after))
	assert.Nil(t, cfg.PermutationRules, "input must not be mutated")
}

func TestAddRule_ruleIsCopied(t *testing.T) {
	rule := model.PermutationRule{ID: "r", SourceValues: []string{"a4"}}
	got := fixedEditor().AddRule(baseConfig(), rule)
	rule.SourceValues[0] = "mutated"
	assert.Equal(t, "a4", got.PermutationRules[2].SourceValues[0])
}

func TestUpdateRule_merges(t *testing.T) {
	cfg := baseConfig()
	name := "renamed"
	values := []string{"a4", "a5"}

	got := fixedEditor().UpdateRule(cfg, "rule-1", model.RulePatch{Name: &name, TargetValues: &values})

	r := got.PermutationRules[0]
	assert.Equal(t, "renamed", r.Name)
	assert.Equal(t, []string{"a4", "a5"}, r.TargetValues)
	assert.Equal(t, model.OperatorIfThenDisable, r.Operator)
	assert.Equal(t, []string{"full-colour"}, r.SourceValues)
	assert.True(t, r.Enabled)
	assert.Equal(t, "first", cfg.PermutationRules[0].Name, "input must not be mutated")
	assert.Equal(t, cfg.PermutationRules[1], got.PermutationRules[1])
}

func TestUpdateRule_unknownIDIsNoop(t *testing.T) {
	cfg := baseConfig()
	name := "x"
	got := fixedEditor().UpdateRule(cfg, "missing", model.RulePatch{Name: &name})

	assert.Equal(t, cfg.PermutationRules, got.PermutationRules)
	assert.Equal(t, t1, got.UpdatedAt)
}

func TestDeleteRule(t *testing.T) {
	cfg := baseConfig()
	got := fixedEditor().DeleteRule(cfg, "rule-1")

	require.Len(t, got.PermutationRules, 1)
	assert.Equal(t, "rule-2", got.PermutationRules[0].ID)
	assert.Len(t, cfg.PermutationRules, 2)
}

func TestDeleteRule_unknownIDIsNoop(t *testing.T) {
	cfg := baseConfig()
	got := fixedEditor().DeleteRule(cfg, "missing")
	assert.Equal(t, cfg.PermutationRules, got.PermutationRules)
}

func TestDeleteRule_removesAllWithID(t *testing.T) {
	e := fixedEditor()
	cfg := e.AddRule(baseConfig(), model.PermutationRule{ID: "rule-1"})
	got := e.DeleteRule(cfg, "rule-1")
	require.Len(t, got.PermutationRules, 1)
	assert.Equal(t, "rule-2", got.PermutationRules[0].ID)
}

func TestToggleRule(t *testing.T) {
	e := fixedEditor()
	off := e.ToggleRule(baseConfig(), "rule-2", false)
	assert.False(t, off.PermutationRules[1].Enabled)
	assert.True(t, off.PermutationRules[0].Enabled)

	on := e.ToggleRule(off, "rule-2", true)
	assert.Equal(t, baseConfig().PermutationRules, on.PermutationRules)
}

func TestUpdateComponent_merges(t *testing.T) {
	cfg := baseConfig()
	label := "Paper size"
	got := fixedEditor().UpdateComponent(cfg, "size", model.ComponentPatch{Label: &label})

	c := got.Components["size"]
	assert.Equal(t, "Paper size", c.Label)
	assert.Equal(t, "Select a size...", c.Placeholder)
	assert.Len(t, c.Options, 2)
	assert.Equal(t, "Size", cfg.Components["size"].Label, "input must not be mutated")
	assert.Equal(t, t1, got.UpdatedAt)
}

func TestUpdateComponent_unknownIDIsNoop(t *testing.T) {
	cfg := baseConfig()
	label := "x"
	got := fixedEditor().UpdateComponent(cfg, "ghost", model.ComponentPatch{Label: &label})

	assert.Equal(t, cfg.Components, got.Components)
	assert.NotContains(t, got.Components, "ghost")
	assert.Equal(t, t1, got.UpdatedAt)
}

func TestToggleComponent_roundTrip(t *testing.T) {
	e := fixedEditor()
	cfg := baseConfig()

	off := e.UpdateComponent(cfg, "size", model.ComponentPatch{Enabled: boolPtr(false)})
	assert.False(t, off.Components["size"].Enabled)

	on := e.ToggleComponent(off, "size", true)
	assert.True(t, on.Components["size"].Enabled)
	assert.Equal(t, cfg.Components, on.Components)
}

func TestNewConfig(t *testing.T) {
	cfg := baseConfig()
	got := fixedEditor().NewConfig("Posters", "large-format", "big prints", cfg.Components)

	assert.True(t, strings.HasPrefix(got.ID, "calculator-"))
	assert.Equal(t, "Posters", got.Name)
	assert.Equal(t, "large-format", got.Category)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, t1, got.CreatedAt)
	assert.Equal(t, t1, got.UpdatedAt)
	assert.Empty(t, got.PermutationRules)
	assert.NotNil(t, got.PermutationRules)
	assert.Equal(t, cfg.Components, got.Components)

	got.Components["size"].Options[0].ID = "changed"
	assert.Equal(t, "a4", cfg.Components["size"].Options[0].ID, "components must be copied")
}

func TestClone(t *testing.T) {
	cfg := baseConfig()
	got := fixedEditor().Clone(cfg, "Flyers copy")

	assert.NotEqual(t, cfg.ID, got.ID)
	assert.True(t, strings.HasPrefix(got.ID, "calculator-"))
	assert.Equal(t, "Flyers copy", got.Name)
	assert.Equal(t, 1, got.Version)
	assert.Equal(t, t1, got.CreatedAt)
	assert.Equal(t, cfg.PermutationRules, got.PermutationRules)
	assert.Equal(t, cfg.Components, got.Components)

	got.PermutationRules[0].SourceValues[0] = "changed"
	assert.Equal(t, "full-colour", cfg.PermutationRules[0].SourceValues[0], "clone must be independent")
}

func TestNewRuleID_unique(t *testing.T) {
	a, b := NewRuleID(), NewRuleID()
	assert.NotEqual(t, a, b)
	assert.True(t, strings.HasPrefix(a, "rule-"))
}

func boolPtr(b bool) *bool { return &b }
