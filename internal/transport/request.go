package transport

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"reflect"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/pitabwire/quotecfg/internal/openapi"
	"github.com/pitabwire/quotecfg/model"
)

// --- request DTOs ---

type createConfigRequest struct {
	TemplateID  string `json:"templateId"  validate:"max=128"`
	Name        string `json:"name"        validate:"max=200"`
	Category    string `json:"category"    validate:"max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type cloneConfigRequest struct {
	Name string `json:"name" validate:"required,max=200"`
}

type toggleRequest struct {
	Enabled *bool `json:"enabled" validate:"required"`
}

type optionRequest struct {
	ID       string         `json:"id"       validate:"required,max=128"`
	Label    string         `json:"label"    validate:"required,max=200"`
	Value    string         `json:"value"    validate:"max=200"`
	Metadata model.Metadata `json:"metadata"`
}

func toOptions(in []optionRequest) []model.Option {
	out := make([]model.Option, 0, len(in))
	for _, o := range in {
		out = append(out, model.Option{ID: o.ID, Label: o.Label, Value: o.Value, Metadata: o.Metadata})
	}
	return out
}

type ruleRequest struct {
	ID              string   `json:"id"              validate:"max=128"`
	Name            string   `json:"name"            validate:"max=200"`
	Description     string   `json:"description"     validate:"max=2000"`
	Operator        string   `json:"operator"        validate:"required,oneof=if-then-disable if-then-enable requires conflicts-with"`
	SourceComponent string   `json:"sourceComponent" validate:"required,max=128"`
	SourceValues    []string `json:"sourceValues"    validate:"dive,required"`
	TargetComponent string   `json:"targetComponent" validate:"required,max=128"`
	TargetValues    []string `json:"targetValues"    validate:"dive,required"`
	Enabled         *bool    `json:"enabled"`
}

// toRule converts the request into a rule. Rules are enabled unless the
// request says otherwise.
func (req ruleRequest) toRule() model.PermutationRule {
	enabled := req.Enabled == nil || *req.Enabled
	return model.PermutationRule{
		ID:              req.ID,
		Name:            req.Name,
		Description:     req.Description,
		Operator:        model.PermutationOperator(req.Operator),
		SourceComponent: req.SourceComponent,
		SourceValues:    nonNil(req.SourceValues),
		TargetComponent: req.TargetComponent,
		TargetValues:    nonNil(req.TargetValues),
		Enabled:         enabled,
	}
}

type rulePatchRequest struct {
	Name            *string   `json:"name"            validate:"omitempty,max=200"`
	Description     *string   `json:"description"     validate:"omitempty,max=2000"`
	Operator        *string   `json:"operator"        validate:"omitempty,oneof=if-then-disable if-then-enable requires conflicts-with"`
	SourceComponent *string   `json:"sourceComponent" validate:"omitempty,min=1,max=128"`
	SourceValues    *[]string `json:"sourceValues"    validate:"omitempty,dive,required"`
	TargetComponent *string   `json:"targetComponent" validate:"omitempty,min=1,max=128"`
	TargetValues    *[]string `json:"targetValues"    validate:"omitempty,dive,required"`
	Enabled         *bool     `json:"enabled"`
}

func (req rulePatchRequest) toPatch() model.RulePatch {
	patch := model.RulePatch{
		Name:            req.Name,
		Description:     req.Description,
		SourceComponent: req.SourceComponent,
		SourceValues:    req.SourceValues,
		TargetComponent: req.TargetComponent,
		TargetValues:    req.TargetValues,
		Enabled:         req.Enabled,
	}
	if req.Operator != nil {
		op := model.PermutationOperator(*req.Operator)
		patch.Operator = &op
	}
	return patch
}

type componentPatchRequest struct {
	Label        *string             `json:"label"        validate:"omitempty,min=1,max=200"`
	Description  *string             `json:"description"  validate:"omitempty,max=2000"`
	Enabled      *bool               `json:"enabled"`
	Type         *string             `json:"type"         validate:"omitempty,oneof=single-select multi-select numeric-input toggle"`
	Options      *[]optionRequest    `json:"options"      validate:"omitempty,dive"`
	Searchable   *bool               `json:"searchable"`
	Required     *bool               `json:"required"`
	DefaultValue *model.DefaultValue `json:"defaultValue"`
	Placeholder  *string             `json:"placeholder"  validate:"omitempty,max=200"`
}

func (req componentPatchRequest) toPatch() model.ComponentPatch {
	patch := model.ComponentPatch{
		Label:        req.Label,
		Description:  req.Description,
		Enabled:      req.Enabled,
		Searchable:   req.Searchable,
		Required:     req.Required,
		DefaultValue: req.DefaultValue,
		Placeholder:  req.Placeholder,
	}
	if req.Type != nil {
		t := model.ComponentType(*req.Type)
		patch.Type = &t
	}
	if req.Options != nil {
		opts := toOptions(*req.Options)
		patch.Options = &opts
	}
	return patch
}

type evaluateRequest struct {
	Selections model.Selections `json:"selections" validate:"dive,keys,required,endkeys,dive,required"`
}

func nonNil(in []string) []string {
	if in == nil {
		return []string{}
	}
	return in
}

// --- binding ---

// binder decodes JSON request bodies, checks them against the operation's
// OpenAPI schema when one is loaded, and then runs the DTO's validate tags.
type binder struct {
	validate *validator.Validate
	api      *openapi.Index
}

func newBinder(api *openapi.Index) *binder {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return &binder{validate: v, api: api}
}

func (b *binder) bind(r *http.Request, operationID string, dst any) error {
	data, err := readBody(r)
	if err != nil {
		return err
	}

	var raw any
	if len(bytes.TrimSpace(data)) > 0 {
		if err := json.Unmarshal(data, &raw); err != nil {
			return model.NewBadRequestError("invalid JSON body")
		}
	}

	if b.api != nil {
		if errs := b.api.ValidateRequest(operationID, raw); len(errs) > 0 {
			details := make([]model.FieldError, 0, len(errs))
			for _, e := range errs {
				details = append(details, model.FieldError{Field: e.Field, Code: "SCHEMA", Message: e.Message})
			}
			return model.NewValidationError(details)
		}
	}
	if raw == nil {
		return model.NewBadRequestError("request body is required")
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return model.NewBadRequestError("invalid JSON body")
	}
	if err := b.validate.Struct(dst); err != nil {
		return validationError(err)
	}
	return nil
}

func readBody(r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	data, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, model.NewBadRequestError(fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit))
		}
		return nil, model.NewBadRequestError("could not read request body")
	}
	return data, nil
}

// validationError converts validator failures into field-level details.
func validationError(err error) error {
	var ve validator.ValidationErrors
	if !errors.As(err, &ve) {
		return model.NewBadRequestError(err.Error())
	}
	details := make([]model.FieldError, 0, len(ve))
	for _, fe := range ve {
		details = append(details, model.FieldError{
			Field:   fieldPath(fe),
			Code:    strings.ToUpper(fe.Tag()),
			Message: fieldMessage(fe),
		})
	}
	return model.NewValidationError(details)
}

// fieldPath drops the struct name from the validator namespace.
func fieldPath(fe validator.FieldError) string {
	ns := fe.Namespace()
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return fe.Field()
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fe.Field() + " is required"
	case "max":
		return fe.Field() + " must be at most " + fe.Param() + " characters"
	case "min":
		return fe.Field() + " must be at least " + fe.Param() + " characters"
	case "oneof":
		return fe.Field() + " must be one of: " + fe.Param()
	}
	return fe.Field() + " is invalid"
}

// queryInt extracts a non-negative integer query param with a default.
func queryInt(r *http.Request, key string, def int) (int, error) {
	s := r.URL.Query().Get(key)
	if s == "" {
		return def, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return 0, model.NewBadRequestError(fmt.Sprintf("query parameter %q must be a non-negative integer", key))
	}
	return v, nil
}
