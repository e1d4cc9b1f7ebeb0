// Package openapi loads the service's OpenAPI description, indexes its
// operations by operationId, and validates request bodies against the
// declared schemas.
package openapi

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
)

//go:embed quotecfg.yaml
var specYAML []byte

// Operation holds a resolved OpenAPI operation with its route.
type Operation struct {
	OperationID  string
	Method       string
	PathTemplate string
	Parameters   []*openapi3.Parameter
	RequestBody  *openapi3.RequestBody
	Responses    *openapi3.Responses
}

// ValidationError describes a schema validation error.
type ValidationError struct {
	Field   string
	Message string
}

// Index is an in-memory index of the API's operations keyed by operationId.
type Index struct {
	doc        *openapi3.T
	basePath   string
	operations map[string]Operation
}

// Load parses and validates the embedded API description.
func Load() (*Index, error) {
	return LoadData(specYAML)
}

// LoadData parses and validates an OpenAPI document and indexes all of its
// operations. Operations without an operationId are skipped.
func LoadData(data []byte) (*Index, error) {
	loader := openapi3.NewLoader()
	loader.IsExternalRefsAllowed = false

	doc, err := loader.LoadFromData(data)
	if err != nil {
		return nil, fmt.Errorf("openapi: loading: %w", err)
	}
	if err := doc.Validate(context.Background()); err != nil {
		return nil, fmt.Errorf("openapi: validating: %w", err)
	}

	idx := &Index{
		doc:        doc,
		operations: make(map[string]Operation),
	}
	if len(doc.Servers) > 0 {
		idx.basePath = strings.TrimSuffix(doc.Servers[0].URL, "/")
	}

	for path, pathItem := range doc.Paths.Map() {
		for method, op := range pathItem.Operations() {
			if op.OperationID == "" {
				continue
			}

			// Merge path-level and operation-level parameters.
			params := make([]*openapi3.Parameter, 0)
			for _, ref := range pathItem.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}
			for _, ref := range op.Parameters {
				if ref.Value != nil {
					params = append(params, ref.Value)
				}
			}

			var reqBody *openapi3.RequestBody
			if op.RequestBody != nil && op.RequestBody.Value != nil {
				reqBody = op.RequestBody.Value
			}

			if _, dup := idx.operations[op.OperationID]; dup {
				return nil, fmt.Errorf("openapi: duplicate operationId %q", op.OperationID)
			}
			idx.operations[op.OperationID] = Operation{
				OperationID:  op.OperationID,
				Method:       method,
				PathTemplate: path,
				Parameters:   params,
				RequestBody:  reqBody,
				Responses:    op.Responses,
			}
		}
	}

	return idx, nil
}

// BasePath returns the path prefix of the first declared server.
func (idx *Index) BasePath() string {
	return idx.basePath
}

// GetOperation returns the indexed operation with the given operationId.
func (idx *Index) GetOperation(operationID string) (Operation, bool) {
	op, ok := idx.operations[operationID]
	return op, ok
}

// AllOperationIDs returns every indexed operationId, sorted.
func (idx *Index) AllOperationIDs() []string {
	ids := make([]string, 0, len(idx.operations))
	for id := range idx.operations {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// MarshalJSON renders the API description as JSON.
func (idx *Index) MarshalJSON() ([]byte, error) {
	return idx.doc.MarshalJSON()
}

// ValidateRequest validates a decoded JSON request body against the
// operation's request schema. Returns nil if the body is valid or the
// operation declares no JSON body.
func (idx *Index) ValidateRequest(operationID string, body any) []ValidationError {
	op, ok := idx.operations[operationID]
	if !ok {
		return []ValidationError{{Message: fmt.Sprintf("operation %s not found", operationID)}}
	}

	if op.RequestBody == nil {
		return nil
	}

	ct := op.RequestBody.Content.Get("application/json")
	if ct == nil || ct.Schema == nil || ct.Schema.Value == nil {
		return nil
	}

	if body == nil {
		if op.RequestBody.Required {
			return []ValidationError{{Message: "request body is required"}}
		}
		return nil
	}

	err := ct.Schema.Value.VisitJSON(body, openapi3.MultiErrors())
	if err == nil {
		return nil
	}
	return flatten(err)
}

func flatten(err error) []ValidationError {
	var multi openapi3.MultiError
	if errors.As(err, &multi) {
		var out []ValidationError
		for _, e := range multi {
			out = append(out, flatten(e)...)
		}
		return out
	}

	var se *openapi3.SchemaError
	if errors.As(err, &se) {
		return []ValidationError{{
			Field:   strings.Join(se.JSONPointer(), "."),
			Message: se.Reason,
		}}
	}
	return []ValidationError{{Message: err.Error()}}
}
