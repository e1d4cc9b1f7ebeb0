package definition

import (
	"reflect"
	"testing"

	"github.com/pitabwire/quotecfg/model"
)

func validConfig() model.CalculatorConfig {
	return model.CalculatorConfig{
		ID:       "cfg-1",
		Name:     "Business cards",
		Category: "cards",
		Components: map[string]model.ComponentConfig{
			"material": {
				ID: "material", Label: "Material", Enabled: true, Type: model.ComponentSingleSelect,
				Options: []model.Option{{ID: "business-card-white", Label: "White", Value: "white"}},
			},
			"size": {
				ID: "size", Label: "Size", Enabled: true, Type: model.ComponentSingleSelect,
				Options: []model.Option{{ID: "a4", Label: "A4", Value: "a4"}, {ID: "a6", Label: "A6", Value: "a6"}},
			},
			"quantity": {ID: "quantity", Label: "Quantity", Enabled: true, Type: model.ComponentNumericInput},
		},
		PermutationRules: []model.PermutationRule{
			{
				ID: "rule-1", Name: "White card size", Operator: model.OperatorIfThenDisable,
				SourceComponent: "material", SourceValues: []string{"business-card-white"},
				TargetComponent: "size", TargetValues: []string{"a4"}, Enabled: true,
			},
		},
		Version: 1,
	}
}

func TestValidateComponentConfig(t *testing.T) {
	tests := []struct {
		name string
		c    model.ComponentConfig
		want []string
	}{
		{
			name: "valid select",
			c:    model.ComponentConfig{ID: "size", Label: "Size", Type: model.ComponentSingleSelect, Options: []model.Option{{ID: "a4"}}},
		},
		{
			name: "numeric input without options",
			c:    model.ComponentConfig{ID: "quantity", Label: "Quantity", Type: model.ComponentNumericInput},
		},
		{
			name: "blank id and label",
			c:    model.ComponentConfig{ID: "  ", Label: "\t", Type: model.ComponentToggle},
			want: []string{MsgComponentIDRequired, MsgComponentLabelRequired},
		},
		{
			name: "single select without options",
			c:    model.ComponentConfig{ID: "size", Label: "Size", Type: model.ComponentSingleSelect},
			want: []string{MsgSelectNeedsOptions},
		},
		{
			name: "everything missing on multi select",
			c:    model.ComponentConfig{Type: model.ComponentMultiSelect},
			want: []string{MsgComponentIDRequired, MsgComponentLabelRequired, MsgSelectNeedsOptions},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidateComponentConfig(tt.c)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ValidateComponentConfig() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidateComponentConfig_doesNotMutate(t *testing.T) {
	c := model.ComponentConfig{ID: " size ", Label: " Size ", Type: model.ComponentSingleSelect}
	_ = ValidateComponentConfig(c)
	if c.ID != " size " || c.Label != " Size " {
		t.Errorf("input mutated: %+v", c)
	}
}

func TestValidateComponentConfig_selectOptionsMessage(t *testing.T) {
	for _, typ := range []model.ComponentType{model.ComponentSingleSelect, model.ComponentMultiSelect} {
		empty := ValidateComponentConfig(model.ComponentConfig{ID: "c", Label: "C", Type: typ})
		if !contains(empty, MsgSelectNeedsOptions) {
			t.Errorf("%s with no options: %v, want options message", typ, empty)
		}
		filled := ValidateComponentConfig(model.ComponentConfig{ID: "c", Label: "C", Type: typ, Options: []model.Option{{ID: "o"}}})
		if contains(filled, MsgSelectNeedsOptions) {
			t.Errorf("%s with options: %v, want no options message", typ, filled)
		}
	}
}

func TestValidatePermutationRule(t *testing.T) {
	components := validConfig().Components
	tests := []struct {
		name string
		r    model.PermutationRule
		want []string
	}{
		{
			name: "valid",
			r:    model.PermutationRule{SourceComponent: "material", SourceValues: []string{"x"}, TargetComponent: "size"},
		},
		{
			name: "missing source",
			r:    model.PermutationRule{SourceComponent: "paper", SourceValues: []string{"x"}, TargetComponent: "size"},
			want: []string{MsgSourceMissing},
		},
		{
			name: "empty target",
			r:    model.PermutationRule{SourceComponent: "material", SourceValues: []string{"x"}},
			want: []string{MsgTargetMissing},
		},
		{
			name: "same component",
			r:    model.PermutationRule{SourceComponent: "size", SourceValues: []string{"a4"}, TargetComponent: "size"},
			want: []string{MsgSameComponent},
		},
		{
			name: "same missing component reports both",
			r:    model.PermutationRule{SourceComponent: "ghost", SourceValues: []string{"x"}, TargetComponent: "ghost"},
			want: []string{MsgSourceMissing, MsgTargetMissing, MsgSameComponent},
		},
		{
			name: "no source values",
			r:    model.PermutationRule{SourceComponent: "material", TargetComponent: "size"},
			want: []string{MsgSourceValuesRequired},
		},
		{
			name: "unknown option ids are not checked",
			r:    model.PermutationRule{SourceComponent: "material", SourceValues: []string{"nope"}, TargetComponent: "size", TargetValues: []string{"zz"}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ValidatePermutationRule(tt.r, components)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("ValidatePermutationRule() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestValidatePermutationRule_sameComponentAlwaysReported(t *testing.T) {
	rules := []model.PermutationRule{
		{SourceComponent: "size", TargetComponent: "size"},
		{SourceComponent: "size", TargetComponent: "size", SourceValues: []string{"a4"}, Enabled: true},
		{SourceComponent: "", TargetComponent: ""},
	}
	for _, r := range rules {
		if got := ValidatePermutationRule(r, validConfig().Components); !contains(got, MsgSameComponent) {
			t.Errorf("ValidatePermutationRule(%+v) = %v, want same-component message", r, got)
		}
	}
}

func TestValidator_valid(t *testing.T) {
	errs := NewValidator().ValidateConfig(validConfig())
	if len(errs) > 0 {
		for _, e := range errs {
			t.Logf("  %s", e)
		}
		t.Fatalf("ValidateConfig() returned %d errors, want 0", len(errs))
	}
}

func TestValidator_component_paths(t *testing.T) {
	cfg := validConfig()
	size := cfg.Components["size"]
	size.Label = ""
	size.Options = nil
	cfg.Components["size"] = size

	errs := NewValidator().ValidateConfig(cfg)
	if !hasPath(errs, "components[size].label") {
		t.Errorf("expected components[size].label error, got %v", errs)
	}
	if !hasPath(errs, "components[size].options") {
		t.Errorf("expected components[size].options error, got %v", errs)
	}
}

func TestValidator_key_mismatch(t *testing.T) {
	cfg := validConfig()
	cfg.Components["paper"] = model.ComponentConfig{ID: "material", Label: "Paper", Type: model.ComponentToggle}
	errs := NewValidator().ValidateConfig(cfg)
	if !hasCode(errs, "KEY_MISMATCH") {
		t.Error("expected KEY_MISMATCH error")
	}
}

func TestValidator_invalid_enums(t *testing.T) {
	cfg := validConfig()
	cfg.PermutationRules[0].Operator = "xor"
	q := cfg.Components["quantity"]
	q.Type = "slider"
	cfg.Components["quantity"] = q

	errs := NewValidator().ValidateConfig(cfg)
	if !hasPath(errs, "permutationRules[0].operator") {
		t.Errorf("expected operator INVALID_ENUM, got %v", errs)
	}
	if !hasPath(errs, "components[quantity].type") {
		t.Errorf("expected type INVALID_ENUM, got %v", errs)
	}
}

func TestValidator_duplicate_rule_id(t *testing.T) {
	cfg := validConfig()
	cfg.PermutationRules = append(cfg.PermutationRules, cfg.PermutationRules[0])
	errs := NewValidator().ValidateConfig(cfg)
	if !hasCode(errs, "DUPLICATE_ID") {
		t.Fatal("expected DUPLICATE_ID error")
	}
	if !hasPath(errs, "permutationRules[1].id") {
		t.Errorf("DUPLICATE_ID should point at the second rule: %v", errs)
	}
}

func TestValidator_unknown_option_is_warning(t *testing.T) {
	cfg := validConfig()
	cfg.PermutationRules[0].TargetValues = []string{"a4", "b5"}
	errs := NewValidator().ValidateConfig(cfg)
	if !hasCode(errs, "UNKNOWN_OPTION") {
		t.Fatal("expected UNKNOWN_OPTION warning")
	}
	if HasErrors(errs) {
		t.Errorf("HasErrors() = true, want warnings only: %v", errs)
	}
}

func TestValidator_rule_messages(t *testing.T) {
	cfg := validConfig()
	cfg.PermutationRules[0].TargetComponent = "material"
	errs := NewValidator().ValidateConfig(cfg)
	found := false
	for _, e := range errs {
		if e.Message == MsgSameComponent && e.Path == "permutationRules[0].targetComponent" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected same-component error at permutationRules[0].targetComponent, got %v", errs)
	}
}

func TestValidator_Validate_prefixes(t *testing.T) {
	bad := validConfig()
	bad.Name = ""
	errs := NewValidator().Validate([]model.CalculatorConfig{validConfig(), bad})
	if !hasPath(errs, "configs[1].name") {
		t.Errorf("expected configs[1].name, got %v", errs)
	}
	if hasPath(errs, "configs[0].name") {
		t.Errorf("unexpected configs[0].name error")
	}
}

func hasCode(errs []VError, code string) bool {
	for _, e := range errs {
		if e.Code == code {
			return true
		}
	}
	return false
}

func hasPath(errs []VError, path string) bool {
	for _, e := range errs {
		if e.Path == path {
			return true
		}
	}
	return false
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
