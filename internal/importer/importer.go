// Package importer converts calculator configurations to and from their JSON
// file form. Imports are fully validated before a configuration is returned,
// so a rejected file never replaces the caller's current state.
package importer

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"github.com/pitabwire/quotecfg/model"
)

const schemaURL = "https://quotecfg.local/schemas/calculator-config.schema.json"

//go:embed schema/calculator-config.schema.json
var schemaJSON string

// Detail codes carried in INVALID_IMPORT errors.
const (
	CodeMalformed = "MALFORMED_JSON"
	CodeNotObject = "NOT_OBJECT"
	CodeSchema    = "SCHEMA"
	CodeDecode    = "DECODE"
)

// maxDetails caps how many schema violations are reported.
const maxDetails = 20

// Importer validates and decodes configuration files.
type Importer struct {
	schema *jsonschema.Schema
}

// New compiles the embedded configuration schema.
func New() (*Importer, error) {
	c := jsonschema.NewCompiler()
	c.Draft = jsonschema.Draft2020
	if err := c.AddResource(schemaURL, strings.NewReader(schemaJSON)); err != nil {
		return nil, fmt.Errorf("adding configuration schema: %w", err)
	}
	s, err := c.Compile(schemaURL)
	if err != nil {
		return nil, fmt.Errorf("compiling configuration schema: %w", err)
	}
	return &Importer{schema: s}, nil
}

// Schema returns the raw JSON schema document.
func Schema() []byte {
	return []byte(schemaJSON)
}

// Export serializes cfg verbatim as indented JSON.
func Export(cfg model.CalculatorConfig) ([]byte, error) {
	data, err := json.MarshalIndent(cfg.Normalized(), "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal configuration %q: %w", cfg.ID, err)
	}
	return data, nil
}

// PeekID returns the id field of a configuration file without decoding it.
func PeekID(data []byte) string {
	return gjson.GetBytes(data, "id").String()
}

// Import parses and validates a configuration file. Any failure is reported
// as a single INVALID_IMPORT error.
func (im *Importer) Import(data []byte) (model.CalculatorConfig, error) {
	if len(bytes.TrimSpace(data)) == 0 || !gjson.ValidBytes(data) {
		return model.CalculatorConfig{}, invalid(model.FieldError{Code: CodeMalformed, Message: "file is not valid JSON"})
	}
	if !gjson.ParseBytes(data).IsObject() {
		return model.CalculatorConfig{}, invalid(model.FieldError{Code: CodeNotObject, Message: "top-level value must be an object"})
	}

	var doc any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return model.CalculatorConfig{}, invalid(model.FieldError{Code: CodeMalformed, Message: err.Error()})
	}
	if err := im.schema.Validate(doc); err != nil {
		return model.CalculatorConfig{}, invalid(schemaDetails(err)...)
	}

	var cfg model.CalculatorConfig
	strict := json.NewDecoder(bytes.NewReader(data))
	strict.DisallowUnknownFields()
	if err := strict.Decode(&cfg); err != nil {
		return model.CalculatorConfig{}, invalid(model.FieldError{Code: CodeDecode, Message: err.Error()})
	}
	return cfg.Normalized(), nil
}

func invalid(details ...model.FieldError) error {
	return model.NewInvalidImportError(details)
}

// schemaDetails flattens a schema validation error into its leaf causes,
// sorted by location.
func schemaDetails(err error) []model.FieldError {
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return []model.FieldError{{Code: CodeSchema, Message: err.Error()}}
	}

	var out []model.FieldError
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, model.FieldError{Field: e.InstanceLocation, Code: CodeSchema, Message: e.Message})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	sort.SliceStable(out, func(i, j int) bool { return out[i].Field < out[j].Field })
	if len(out) > maxDetails {
		out = out[:maxDetails]
	}
	return out
}
