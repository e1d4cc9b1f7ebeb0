// Package transport contains the HTTP router, middleware chain, and all
// request handlers for the configuration API.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/pitabwire/quotecfg/internal/observability"
	"github.com/pitabwire/quotecfg/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:      http.StatusBadRequest,
	model.ErrNotFound:        http.StatusNotFound,
	model.ErrConflict:        http.StatusConflict,
	model.ErrValidationError: http.StatusUnprocessableEntity,
	model.ErrInvalidImport:   http.StatusUnprocessableEntity,
	model.ErrRateLimited:     http.StatusTooManyRequests,
	model.ErrInternalError:   http.StatusInternalServerError,
	model.ErrUnavailable:     http.StatusServiceUnavailable,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteConfig writes a configuration with its version as the ETag.
func WriteConfig(w http.ResponseWriter, status int, cfg model.CalculatorConfig) {
	w.Header().Set("ETag", strconv.Quote(strconv.Itoa(cfg.Version)))
	WriteJSON(w, status, cfg)
}

// WriteError writes an ErrorEnvelope as a JSON response with the correct
// HTTP status code. Errors without an envelope in their chain become a
// generic 500.
func WriteError(w http.ResponseWriter, err error) {
	writeError(context.Background(), w, err)
}

// WriteErrorCtx is WriteError with the trace id of ctx stamped on the envelope.
func WriteErrorCtx(ctx context.Context, w http.ResponseWriter, err error) {
	writeError(ctx, w, err)
}

func writeError(ctx context.Context, w http.ResponseWriter, err error) {
	ee, ok := model.AsEnvelope(err)
	if !ok {
		ee = model.NewInternalError()
	}
	out := *ee
	if out.TraceID == "" {
		out.TraceID = observability.TraceIDFromContext(ctx)
	}

	status := statusForCode[out.Code]
	if status == 0 {
		status = http.StatusInternalServerError
	}

	type errorResponse struct {
		Error *model.ErrorEnvelope `json:"error"`
	}
	WriteJSON(w, status, errorResponse{Error: &out})
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg))
}

// WriteValidationError writes a 422 error response with field-level details.
func WriteValidationError(w http.ResponseWriter, details []model.FieldError) {
	WriteError(w, model.NewValidationError(details))
}
