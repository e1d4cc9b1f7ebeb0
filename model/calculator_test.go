package model

import (
	"encoding/json"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func sampleConfig() CalculatorConfig {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	return CalculatorConfig{
		ID:       "cfg-1",
		Name:     "Sample",
		Category: "general-print",
		Components: map[string]ComponentConfig{
			"material": {
				ID: "material", Label: "Material", Enabled: true, Type: ComponentSingleSelect,
				Options: []Option{
					{ID: "gloss", Label: "Gloss", Value: "gloss", Metadata: Metadata{"gsm": NumberListValue(130, 170)}},
				},
				DefaultValue: ListDefault("gloss"),
			},
		},
		PermutationRules: []PermutationRule{
			{ID: "r1", Operator: OperatorRequires, SourceComponent: "material", SourceValues: []string{"gloss"}, TargetComponent: "size", Enabled: true},
		},
		CreatedAt: now,
		UpdatedAt: now,
		Version:   1,
	}
}

func TestDeepCopy_independent(t *testing.T) {
	orig := sampleConfig()
	cp := orig.DeepCopy()

	comp := cp.Components["material"]
	comp.Options[0].Label = "changed"
	comp.Options[0].Metadata["gsm"].Nums[0] = 1
	comp.DefaultValue.List[0] = "other"
	cp.Components["material"] = comp
	cp.PermutationRules[0].SourceValues[0] = "matt"
	cp.Components["extra"] = ComponentConfig{ID: "extra"}

	o := orig.Components["material"]
	if o.Options[0].Label != "Gloss" {
		t.Errorf("option label leaked: %q", o.Options[0].Label)
	}
	if got := o.Options[0].Metadata.GSM(); got[0] != 130 {
		t.Errorf("metadata leaked: %v", got)
	}
	if o.DefaultValue.List[0] != "gloss" {
		t.Errorf("default value leaked: %v", o.DefaultValue.List)
	}
	if orig.PermutationRules[0].SourceValues[0] != "gloss" {
		t.Errorf("rule source values leaked: %v", orig.PermutationRules[0].SourceValues)
	}
	if _, ok := orig.Components["extra"]; ok {
		t.Error("components map shared")
	}
}

func TestCalculatorConfig_Normalized(t *testing.T) {
	got := CalculatorConfig{ID: "empty"}.Normalized()
	if got.Components == nil || len(got.Components) != 0 {
		t.Errorf("Components = %#v, want empty map", got.Components)
	}
	if got.PermutationRules == nil || len(got.PermutationRules) != 0 {
		t.Errorf("PermutationRules = %#v, want empty slice", got.PermutationRules)
	}

	rules := []PermutationRule{{ID: "rule-1"}}
	kept := CalculatorConfig{PermutationRules: rules}.Normalized()
	if len(kept.PermutationRules) != 1 || kept.PermutationRules[0].ID != "rule-1" {
		t.Errorf("PermutationRules = %+v, want rules kept", kept.PermutationRules)
	}
}

func TestCalculatorConfig_JSONFieldNames(t *testing.T) {
	data, err := json.Marshal(sampleConfig())
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, key := range []string{"id", "name", "category", "components", "permutationRules", "createdAt", "updatedAt", "version"} {
		if _, ok := raw[key]; !ok {
			t.Errorf("missing key %q in %s", key, data)
		}
	}
	rule := raw["permutationRules"].([]any)[0].(map[string]any)
	for _, key := range []string{"sourceComponent", "sourceValues", "targetComponent", "enabled"} {
		if _, ok := rule[key]; !ok {
			t.Errorf("rule missing key %q", key)
		}
	}
	if _, ok := rule["targetValues"]; ok {
		t.Error("empty targetValues should be omitted")
	}
}

func TestMetadata_JSON(t *testing.T) {
	var m Metadata
	if err := json.Unmarshal([]byte(`{"gsm":[80,100],"price":1.5,"finish":"matt","coated":true,"tags":["a","b"]}`), &m); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if got := m.GSM(); len(got) != 2 || got[0] != 80 || got[1] != 100 {
		t.Errorf("GSM() = %v", got)
	}
	if p, ok := m.Price(); !ok || p != 1.5 {
		t.Errorf("Price() = %v, %v", p, ok)
	}
	if s, ok := m.String("finish"); !ok || s != "matt" {
		t.Errorf("String(finish) = %q, %v", s, ok)
	}
	if m["coated"].Kind != MetaBool || !m["coated"].Bool {
		t.Errorf("coated = %+v", m["coated"])
	}
	if m["tags"].Kind != MetaStringList {
		t.Errorf("tags kind = %q", m["tags"].Kind)
	}

	out, err := json.Marshal(Metadata{"gsm": NumberListValue(350)})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	if string(out) != `{"gsm":[350]}` {
		t.Errorf("Marshal = %s", out)
	}
}

func TestMetadata_rejectsNonScalar(t *testing.T) {
	tests := []string{
		`{"x":{"nested":1}}`,
		`{"x":[1,"a"]}`,
		`{"x":[[1]]}`,
		`{"x":null}`,
	}
	for _, in := range tests {
		var m Metadata
		if err := json.Unmarshal([]byte(in), &m); err == nil {
			t.Errorf("Unmarshal(%s) succeeded, want error", in)
		}
	}
}

func TestMetadata_YAML(t *testing.T) {
	var opt Option
	src := "id: a4\nlabel: A4\nvalue: a4\nmetadata:\n  gsm: [80, 100]\n  price: 2\n"
	if err := yaml.Unmarshal([]byte(src), &opt); err != nil {
		t.Fatalf("yaml.Unmarshal: %v", err)
	}
	if got := opt.Metadata.GSM(); len(got) != 2 || got[1] != 100 {
		t.Errorf("GSM() = %v", got)
	}
	if p, _ := opt.Metadata.Price(); p != 2 {
		t.Errorf("Price() = %v", p)
	}
}

func TestMetadata_NumberListFromScalar(t *testing.T) {
	m := Metadata{"gsm": NumberValue(300)}
	if got := m.GSM(); len(got) != 1 || got[0] != 300 {
		t.Errorf("GSM() = %v", got)
	}
	if _, ok := m.String("gsm"); ok {
		t.Error("String(gsm) ok for number")
	}
}

func TestDefaultValue_JSON(t *testing.T) {
	var c ComponentConfig
	if err := json.Unmarshal([]byte(`{"id":"s","defaultValue":"no"}`), &c); err != nil {
		t.Fatalf("Unmarshal single: %v", err)
	}
	if c.DefaultValue.IsList || c.DefaultValue.Single != "no" {
		t.Errorf("single default = %+v", c.DefaultValue)
	}
	if err := json.Unmarshal([]byte(`{"id":"f","defaultValue":["a","b"]}`), &c); err != nil {
		t.Fatalf("Unmarshal list: %v", err)
	}
	if !c.DefaultValue.IsList || len(c.DefaultValue.Values()) != 2 {
		t.Errorf("list default = %+v", c.DefaultValue)
	}

	out, _ := json.Marshal(SingleDefault("no"))
	if string(out) != `"no"` {
		t.Errorf("Marshal single = %s", out)
	}
	out, _ = json.Marshal(ListDefault("a"))
	if string(out) != `["a"]` {
		t.Errorf("Marshal list = %s", out)
	}
}

func TestComponentPatch_Apply(t *testing.T) {
	c := sampleConfig().Components["material"]
	label := "Stock"
	disabled := false
	got := ComponentPatch{Label: &label, Enabled: &disabled}.Apply(c)
	if got.Label != "Stock" || got.Enabled {
		t.Errorf("Apply() = %+v", got)
	}
	if got.ID != "material" || len(got.Options) != 1 {
		t.Errorf("untouched fields changed: %+v", got)
	}
}

func TestRulePatch_Apply(t *testing.T) {
	r := sampleConfig().PermutationRules[0]
	op := OperatorIfThenDisable
	values := []string{"a1"}
	got := RulePatch{Operator: &op, TargetValues: &values}.Apply(r)
	if got.Operator != OperatorIfThenDisable || len(got.TargetValues) != 1 {
		t.Errorf("Apply() = %+v", got)
	}
	values[0] = "mutated"
	if got.TargetValues[0] != "a1" {
		t.Error("patch slice shared with result")
	}
	if got.ID != "r1" || got.SourceComponent != "material" {
		t.Errorf("untouched fields changed: %+v", got)
	}
}

func TestAvailabilityReport_State(t *testing.T) {
	r := AvailabilityReport{Components: []ComponentAvailability{
		{ComponentID: "size", Options: []OptionAvailability{
			{OptionID: "a4", State: StateDisabledByRule, RuleID: "r1"},
		}},
	}}
	if s, ok := r.State("size", "a4"); !ok || s != StateDisabledByRule {
		t.Errorf("State() = %q, %v", s, ok)
	}
	if r.DecidedBy("size", "a4") != "r1" {
		t.Errorf("DecidedBy() = %q", r.DecidedBy("size", "a4"))
	}
	if _, ok := r.State("size", "a9"); ok {
		t.Error("State() ok for unknown option")
	}
	if _, ok := r.State("paper", "a4"); ok {
		t.Error("State() ok for unknown component")
	}
}

func TestComponentType(t *testing.T) {
	if !ComponentMultiSelect.IsSelect() || ComponentToggle.IsSelect() {
		t.Error("IsSelect() mismatch")
	}
	if ComponentType("slider").Valid() {
		t.Error("Valid() true for unknown type")
	}
	if !OperatorConflictsWith.Valid() || PermutationOperator("xor").Valid() {
		t.Error("operator Valid() mismatch")
	}
}
