package definition

import (
	"fmt"
	"strings"

	"github.com/pitabwire/quotecfg/model"
)

// Component and rule validation messages.
const (
	MsgComponentIDRequired    = "Component ID is required"
	MsgComponentLabelRequired = "Component label is required"
	MsgSelectNeedsOptions     = "Select components must have at least one option"
	MsgSourceMissing          = "Source component does not exist"
	MsgTargetMissing          = "Target component does not exist"
	MsgSameComponent          = "Source and target components cannot be the same"
	MsgSourceValuesRequired   = "At least one source value must be specified"
)

// ValidateComponentConfig checks a component and returns every problem found,
// in a fixed order. An empty result means the component is valid.
func ValidateComponentConfig(c model.ComponentConfig) []string {
	var errs []string
	if strings.TrimSpace(c.ID) == "" {
		errs = append(errs, MsgComponentIDRequired)
	}
	if strings.TrimSpace(c.Label) == "" {
		errs = append(errs, MsgComponentLabelRequired)
	}
	if c.Type.IsSelect() && len(c.Options) == 0 {
		errs = append(errs, MsgSelectNeedsOptions)
	}
	return errs
}

// ValidatePermutationRule checks a rule against the components it refers to.
// Option ids in SourceValues and TargetValues are not checked here.
func ValidatePermutationRule(r model.PermutationRule, components map[string]model.ComponentConfig) []string {
	var errs []string
	if _, ok := components[r.SourceComponent]; r.SourceComponent == "" || !ok {
		errs = append(errs, MsgSourceMissing)
	}
	if _, ok := components[r.TargetComponent]; r.TargetComponent == "" || !ok {
		errs = append(errs, MsgTargetMissing)
	}
	if r.SourceComponent == r.TargetComponent {
		errs = append(errs, MsgSameComponent)
	}
	if len(r.SourceValues) == 0 {
		errs = append(errs, MsgSourceValuesRequired)
	}
	return errs
}

// Severity of a VError.
const (
	SeverityError   = "error"
	SeverityWarning = "warning"
)

// VError describes a single validation problem in a configuration.
type VError struct {
	Path     string `json:"path"`
	Code     string `json:"code"`
	Message  string `json:"message"`
	Severity string `json:"severity"`
}

func (e VError) Error() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// HasErrors reports whether errs contains anything above warning severity.
func HasErrors(errs []VError) bool {
	for _, e := range errs {
		if e.Severity != SeverityWarning {
			return true
		}
	}
	return false
}

// Validator validates whole configurations, addressing each problem by path.
type Validator struct{}

// NewValidator creates a new Validator.
func NewValidator() *Validator {
	return &Validator{}
}

// Validate checks several configurations, prefixing paths with their index.
func (v *Validator) Validate(cfgs []model.CalculatorConfig) []VError {
	var errs []VError
	for i, cfg := range cfgs {
		prefix := fmt.Sprintf("configs[%d].", i)
		for _, e := range v.ValidateConfig(cfg) {
			e.Path = prefix + e.Path
			errs = append(errs, e)
		}
	}
	return errs
}

// ValidateConfig runs the component and rule checks over cfg and adds the
// aggregate checks that need the whole configuration.
func (v *Validator) ValidateConfig(cfg model.CalculatorConfig) []VError {
	var errs []VError

	if strings.TrimSpace(cfg.ID) == "" {
		errs = append(errs, newErr("id", "REQUIRED", "id is required"))
	}
	if strings.TrimSpace(cfg.Name) == "" {
		errs = append(errs, newErr("name", "REQUIRED", "name is required"))
	}

	for _, key := range cfg.ComponentIDs() {
		errs = append(errs, v.validateComponent(fmt.Sprintf("components[%s]", key), key, cfg.Components[key])...)
	}

	seen := make(map[string]int, len(cfg.PermutationRules))
	for i, r := range cfg.PermutationRules {
		rp := fmt.Sprintf("permutationRules[%d]", i)
		errs = append(errs, v.validateRule(rp, r, cfg.Components)...)
		if r.ID == "" {
			errs = append(errs, newErr(rp+".id", "REQUIRED", "rule id is required"))
			continue
		}
		if first, dup := seen[r.ID]; dup {
			errs = append(errs, newErr(rp+".id", "DUPLICATE_ID",
				fmt.Sprintf("rule id %q already used by permutationRules[%d]", r.ID, first)))
			continue
		}
		seen[r.ID] = i
	}

	return errs
}

func (v *Validator) validateComponent(prefix, key string, c model.ComponentConfig) []VError {
	var errs []VError
	for _, msg := range ValidateComponentConfig(c) {
		errs = append(errs, newErr(prefix+componentField(msg), "INVALID_COMPONENT", msg))
	}
	if c.ID != "" && c.ID != key {
		errs = append(errs, newErr(prefix+".id", "KEY_MISMATCH",
			fmt.Sprintf("component id %q does not match key %q", c.ID, key)))
	}
	if c.Type == "" {
		errs = append(errs, newErr(prefix+".type", "REQUIRED", "type is required"))
	} else if !c.Type.Valid() {
		errs = append(errs, newErr(prefix+".type", "INVALID_ENUM", fmt.Sprintf("invalid component type %q", c.Type)))
	}
	optionIDs := make(map[string]bool, len(c.Options))
	for i, o := range c.Options {
		if optionIDs[o.ID] {
			errs = append(errs, newErr(fmt.Sprintf("%s.options[%d].id", prefix, i), "DUPLICATE_ID",
				fmt.Sprintf("option id %q is not unique", o.ID)))
		}
		optionIDs[o.ID] = true
	}
	return errs
}

func (v *Validator) validateRule(prefix string, r model.PermutationRule, components map[string]model.ComponentConfig) []VError {
	var errs []VError
	for _, msg := range ValidatePermutationRule(r, components) {
		errs = append(errs, newErr(prefix+ruleField(msg), "INVALID_RULE", msg))
	}
	if !r.Operator.Valid() {
		errs = append(errs, newErr(prefix+".operator", "INVALID_ENUM", fmt.Sprintf("invalid operator %q", r.Operator)))
	}
	if src, ok := components[r.SourceComponent]; ok {
		errs = append(errs, unknownOptions(prefix+".sourceValues", src, r.SourceValues)...)
	}
	if tgt, ok := components[r.TargetComponent]; ok {
		errs = append(errs, unknownOptions(prefix+".targetValues", tgt, r.TargetValues)...)
	}
	return errs
}

// unknownOptions reports values that do not name an option of c. These are
// advisory: the evaluator ignores such values.
func unknownOptions(path string, c model.ComponentConfig, values []string) []VError {
	var errs []VError
	for _, val := range values {
		if !c.HasOption(val) {
			errs = append(errs, VError{
				Path:     path,
				Code:     "UNKNOWN_OPTION",
				Message:  fmt.Sprintf("option %q not found in component %q", val, c.ID),
				Severity: SeverityWarning,
			})
		}
	}
	return errs
}

func componentField(msg string) string {
	switch msg {
	case MsgComponentIDRequired:
		return ".id"
	case MsgComponentLabelRequired:
		return ".label"
	case MsgSelectNeedsOptions:
		return ".options"
	}
	return ""
}

func ruleField(msg string) string {
	switch msg {
	case MsgSourceMissing:
		return ".sourceComponent"
	case MsgTargetMissing, MsgSameComponent:
		return ".targetComponent"
	case MsgSourceValuesRequired:
		return ".sourceValues"
	}
	return ""
}

func newErr(path, code, msg string) VError {
	return VError{Path: path, Code: code, Message: msg, Severity: SeverityError}
}
